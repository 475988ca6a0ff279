// Package inventory loads hosts and indexes them by tag. It is independent of
// the service catalog.
package inventory

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/netip"
	"sort"
	"strings"

	"facr-builder/internal/model"
)

// Inventory is read-only once built.
type Inventory struct {
	hosts map[string]model.Host
	ids   []string
	byTag map[string][]model.Host
}

// Resolver turns a bare host name into an address.
type Resolver interface {
	Resolve(ctx context.Context, name string) (netip.Addr, error)
}

type Options struct {
	// Resolver handles lines that carry only an identifier. Nil makes such
	// lines an InvalidAddress error.
	Resolver Resolver
}

// Load parses one host per line: "<id> [<address>] [<tag>,<tag>...]".
// Blank lines and lines starting with '#' are skipped.
func Load(ctx context.Context, r io.Reader, opts Options) (*Inventory, error) {
	scanner := bufio.NewScanner(r)
	var hosts []model.Host
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		host, err := parseLine(ctx, line, lineNo, opts.Resolver)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, host)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	return FromHosts(hosts)
}

func parseLine(ctx context.Context, line string, lineNo int, resolver Resolver) (model.Host, error) {
	fields := strings.Fields(line)
	host := model.Host{ID: fields[0], Line: lineNo}

	if len(fields) == 1 {
		if resolver == nil {
			return host, &Error{Kind: InvalidAddress, Line: lineNo, Host: host.ID, Err: fmt.Errorf("no address and no resolver configured")}
		}
		addr, err := resolver.Resolve(ctx, host.ID)
		if err != nil {
			return host, &Error{Kind: InvalidAddress, Line: lineNo, Host: host.ID, Err: err}
		}
		host.Address = addr.Unmap()
		return host, nil
	}

	addr, err := ParseAddress(fields[1])
	if err != nil {
		return host, &Error{Kind: InvalidAddress, Line: lineNo, Host: host.ID, Err: err}
	}
	host.Address = addr
	host.Tags = splitTags(fields[2:]...)
	return host, nil
}

// ParseAddress validates a single IPv4 or IPv6 address without zone.
func ParseAddress(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, err
	}
	if addr.Zone() != "" {
		return netip.Addr{}, fmt.Errorf("zoned address %q not supported", s)
	}
	return addr.Unmap(), nil
}

func splitTags(lists ...string) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, list := range lists {
		for _, t := range strings.Split(list, ",") {
			t = strings.TrimSpace(t)
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			tags = append(tags, t)
		}
	}
	sort.Strings(tags)
	return tags
}

// FromHosts indexes already-parsed hosts, rejecting duplicate identifiers.
func FromHosts(hosts []model.Host) (*Inventory, error) {
	inv := &Inventory{
		hosts: make(map[string]model.Host, len(hosts)),
		byTag: make(map[string][]model.Host),
	}
	for _, h := range hosts {
		if prev, dup := inv.hosts[h.ID]; dup {
			err := fmt.Errorf("already defined")
			if prev.Line > 0 {
				err = fmt.Errorf("already defined on line %d", prev.Line)
			}
			return nil, &Error{Kind: DuplicateHost, Line: h.Line, Host: h.ID, Err: err}
		}
		if !h.Address.IsValid() {
			return nil, &Error{Kind: InvalidAddress, Line: h.Line, Host: h.ID, Err: fmt.Errorf("missing address")}
		}
		inv.hosts[h.ID] = h
		inv.ids = append(inv.ids, h.ID)
	}
	sort.Strings(inv.ids)

	for _, id := range inv.ids {
		h := inv.hosts[id]
		for _, tag := range h.Tags {
			inv.byTag[tag] = append(inv.byTag[tag], h)
		}
	}
	return inv, nil
}

func (inv *Inventory) Host(id string) (model.Host, bool) {
	h, ok := inv.hosts[id]
	return h, ok
}

// Hosts returns every host sorted by identifier.
func (inv *Inventory) Hosts() []model.Host {
	out := make([]model.Host, 0, len(inv.ids))
	for _, id := range inv.ids {
		out = append(out, inv.hosts[id])
	}
	return out
}

// ByTag returns the hosts carrying tag, sorted by identifier.
func (inv *Inventory) ByTag(tag string) []model.Host {
	return append([]model.Host(nil), inv.byTag[tag]...)
}

// Tags returns every known tag, sorted.
func (inv *Inventory) Tags() []string {
	tags := make([]string, 0, len(inv.byTag))
	for t := range inv.byTag {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

func (inv *Inventory) Len() int {
	return len(inv.ids)
}
