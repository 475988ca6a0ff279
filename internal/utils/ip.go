package utils

import (
	"fmt"
	"net/netip"
	"strings"
)

// HostPrefix returns the single-address prefix (/32 or /128) for addr.
func HostPrefix(addr netip.Addr) netip.Prefix {
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen())
}

// ParsePrefix accepts CIDR notation or a single IP. A single IP becomes a
// host prefix. CIDRs are masked to their network address.
func ParsePrefix(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		bits := p.Bits() - unmappedBits(p.Addr())
		if bits < 0 {
			return netip.Prefix{}, fmt.Errorf("IPv4-mapped prefix %q must be at least /96", s)
		}
		return netip.PrefixFrom(p.Addr().Unmap(), bits).Masked(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	if addr.Zone() != "" {
		return netip.Prefix{}, fmt.Errorf("zoned address %q not supported", s)
	}
	return HostPrefix(addr), nil
}

// unmappedBits is the bit count removed when an IPv4-mapped IPv6 address is
// unmapped, so ::ffff:10.0.0.0/104 becomes 10.0.0.0/8.
func unmappedBits(addr netip.Addr) int {
	if addr.Is4In6() {
		return 96
	}
	return 0
}

// IsHostPrefix reports whether p covers exactly one address.
func IsHostPrefix(p netip.Prefix) bool {
	return p.IsValid() && p.Bits() == p.Addr().BitLen()
}

// FormatPrefix renders host prefixes as a bare address and others in CIDR form.
func FormatPrefix(p netip.Prefix) string {
	if IsHostPrefix(p) {
		return p.Addr().String()
	}
	return p.String()
}

// ComparePrefix orders IPv4 before IPv6, then by address, then by prefix length.
func ComparePrefix(a, b netip.Prefix) int {
	if a.Addr().Is4() != b.Addr().Is4() {
		if a.Addr().Is4() {
			return -1
		}
		return 1
	}
	if c := a.Addr().Compare(b.Addr()); c != 0 {
		return c
	}
	switch {
	case a.Bits() < b.Bits():
		return -1
	case a.Bits() > b.Bits():
		return 1
	}
	return 0
}

// CIDRSize returns the number of addresses in p, saturating at 1<<63.
func CIDRSize(p netip.Prefix) uint64 {
	host := p.Addr().BitLen() - p.Bits()
	if host >= 64 {
		return 1 << 63
	}
	return 1 << host
}
