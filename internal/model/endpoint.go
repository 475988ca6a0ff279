package model

import (
	"net/netip"
	"strings"

	"facr-builder/internal/utils"
)

type EndpointKind string

const (
	EndpointAny  EndpointKind = "any"
	EndpointHost EndpointKind = "host"
	EndpointCIDR EndpointKind = "cidr"
)

// Endpoint is a resolved rule side. Host endpoints carry the inventory
// identifier as a label; identity is the prefix.
type Endpoint struct {
	Kind   EndpointKind
	Prefix netip.Prefix
	Host   string
}

func AnyEndpoint() Endpoint {
	return Endpoint{Kind: EndpointAny}
}

func HostEndpoint(h Host) Endpoint {
	return Endpoint{Kind: EndpointHost, Prefix: utils.HostPrefix(h.Address), Host: h.ID}
}

func CIDREndpoint(p netip.Prefix) Endpoint {
	return Endpoint{Kind: EndpointCIDR, Prefix: p}
}

// Key identifies the endpoint for de-duplication.
func (e Endpoint) Key() string {
	if e.Kind == EndpointAny {
		return "any"
	}
	return e.Prefix.String()
}

// String is the rule table form: "any", a bare address or a CIDR.
func (e Endpoint) String() string {
	if e.Kind == EndpointAny {
		return "any"
	}
	return utils.FormatPrefix(e.Prefix)
}

// Compare orders "any" first, then by prefix.
func (e Endpoint) Compare(o Endpoint) int {
	ea, oa := e.Kind == EndpointAny, o.Kind == EndpointAny
	switch {
	case ea && oa:
		return 0
	case ea:
		return -1
	case oa:
		return 1
	}
	return utils.ComparePrefix(e.Prefix, o.Prefix)
}

// ParseEndpoint reads the String form back.
func ParseEndpoint(s string) (Endpoint, error) {
	if strings.EqualFold(strings.TrimSpace(s), "any") {
		return AnyEndpoint(), nil
	}
	p, err := utils.ParsePrefix(s)
	if err != nil {
		return Endpoint{}, err
	}
	if utils.IsHostPrefix(p) {
		return Endpoint{Kind: EndpointHost, Prefix: p}, nil
	}
	return CIDREndpoint(p), nil
}

// Contains reports whether addr falls inside the endpoint.
func (e Endpoint) Contains(addr netip.Addr) bool {
	if e.Kind == EndpointAny {
		return true
	}
	return e.Prefix.Contains(addr.Unmap())
}
