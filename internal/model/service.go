package model

import "net/netip"

// Service is a validated catalog entry. Selectors stay unresolved until
// compilation.
type Service struct {
	Name          string
	Description   string
	Protocol      Protocol
	Ports         PortRange
	Sources       []Selector
	Destinations  []Selector
	Required      bool
	Bidirectional bool
	// LOB is the line of business of the destination side.
	LOB LOB
}

// Host is one inventory record.
type Host struct {
	ID      string
	Address netip.Addr
	Tags    []string
	Line    int
}

func (h Host) HasTag(tag string) bool {
	for _, t := range h.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
