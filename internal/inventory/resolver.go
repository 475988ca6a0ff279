package inventory

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const maxCNAMEHops = 8

// DNSResolver looks hosts up with A then AAAA queries against one server.
type DNSResolver struct {
	server string
	client *dns.Client
}

// NewDNSResolver uses server ("host" or "host:port"), or the first nameserver
// in /etc/resolv.conf when server is empty.
func NewDNSResolver(server string, timeout time.Duration) (*DNSResolver, error) {
	if server == "" {
		cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil {
			return nil, fmt.Errorf("read resolv.conf: %w", err)
		}
		if len(cfg.Servers) == 0 {
			return nil, fmt.Errorf("no nameservers in resolv.conf")
		}
		server = net.JoinHostPort(cfg.Servers[0], cfg.Port)
	} else if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &DNSResolver{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}, nil
}

func (r *DNSResolver) Server() string {
	return r.server
}

func (r *DNSResolver) Resolve(ctx context.Context, name string) (netip.Addr, error) {
	fqdn := dns.Fqdn(strings.ToLower(name))
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		addrs, err := r.query(ctx, fqdn, qtype)
		if err != nil {
			return netip.Addr{}, err
		}
		if len(addrs) > 0 {
			return addrs[0], nil
		}
	}
	return netip.Addr{}, fmt.Errorf("resolve %s: no A or AAAA records", name)
}

// query returns the addresses for fqdn sorted, following CNAMEs inside the answer.
func (r *DNSResolver) query(ctx context.Context, fqdn string, qtype uint16) ([]netip.Addr, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, qtype)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", fqdn, err)
	}
	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, fmt.Errorf("resolve %s: NXDOMAIN", fqdn)
	default:
		return nil, fmt.Errorf("resolve %s: %s", fqdn, dns.RcodeToString[resp.Rcode])
	}

	cnames := make(map[string]string)
	for _, rr := range resp.Answer {
		if c, ok := rr.(*dns.CNAME); ok {
			cnames[strings.ToLower(c.Hdr.Name)] = strings.ToLower(c.Target)
		}
	}
	target := fqdn
	for i := 0; i < maxCNAMEHops; i++ {
		next, ok := cnames[target]
		if !ok {
			break
		}
		target = next
	}

	var addrs []netip.Addr
	for _, rr := range resp.Answer {
		if !strings.EqualFold(rr.Header().Name, target) {
			continue
		}
		var ip net.IP
		switch a := rr.(type) {
		case *dns.A:
			ip = a.A
		case *dns.AAAA:
			ip = a.AAAA
		default:
			continue
		}
		if addr, ok := netip.AddrFromSlice(ip); ok {
			addrs = append(addrs, addr.Unmap())
		}
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
	return addrs, nil
}
