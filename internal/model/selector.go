package model

import (
	"fmt"
	"net/netip"
	"strings"

	"facr-builder/internal/utils"
)

type SelectorKind string

const (
	SelectHost SelectorKind = "host"
	SelectTag  SelectorKind = "tag"
	SelectCIDR SelectorKind = "cidr"
	SelectAny  SelectorKind = "any"
)

// Selector is an unresolved reference to one or more endpoints. Value holds
// the host identifier or tag; Prefix is set for SelectCIDR only.
type Selector struct {
	Kind   SelectorKind
	Value  string
	Prefix netip.Prefix
}

func AnySelector() Selector {
	return Selector{Kind: SelectAny}
}

func HostSelector(id string) Selector {
	return Selector{Kind: SelectHost, Value: id}
}

func TagSelector(tag string) Selector {
	return Selector{Kind: SelectTag, Value: tag}
}

func CIDRSelector(p netip.Prefix) Selector {
	return Selector{Kind: SelectCIDR, Prefix: p}
}

// ParseSelector accepts "any", "host:<id>", "tag:<tag>", "cidr:<prefix>", or a
// bare IP/CIDR.
func ParseSelector(s string) (Selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Selector{}, fmt.Errorf("empty selector")
	}
	if strings.EqualFold(s, "any") || s == "*" {
		return AnySelector(), nil
	}

	kind, value, ok := strings.Cut(s, ":")
	if ok {
		value = strings.TrimSpace(value)
		switch SelectorKind(strings.ToLower(strings.TrimSpace(kind))) {
		case SelectHost:
			if value == "" {
				return Selector{}, fmt.Errorf("selector %q: empty host", s)
			}
			return HostSelector(value), nil
		case SelectTag:
			if value == "" {
				return Selector{}, fmt.Errorf("selector %q: empty tag", s)
			}
			return TagSelector(value), nil
		case SelectCIDR:
			p, err := utils.ParsePrefix(value)
			if err != nil {
				return Selector{}, fmt.Errorf("selector %q: %w", s, err)
			}
			return CIDRSelector(p), nil
		}
	}

	// IPv6 literals contain colons, so try the bare form last.
	if p, err := utils.ParsePrefix(s); err == nil {
		return CIDRSelector(p), nil
	}
	return Selector{}, fmt.Errorf("unrecognized selector %q", s)
}

func (s Selector) String() string {
	switch s.Kind {
	case SelectAny:
		return "any"
	case SelectCIDR:
		return "cidr:" + s.Prefix.String()
	default:
		return string(s.Kind) + ":" + s.Value
	}
}
