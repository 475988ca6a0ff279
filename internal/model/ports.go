package model

import (
	"fmt"
	"strconv"
	"strings"
)

const MaxPort = 65535

// PortRange is an inclusive range of ports. {0, MaxPort} means any port.
type PortRange struct {
	Low  int
	High int
}

var AllPorts = PortRange{Low: 0, High: MaxPort}

func SinglePort(p int) PortRange {
	return PortRange{Low: p, High: p}
}

func (r PortRange) IsAny() bool {
	return r == AllPorts
}

func (r PortRange) Valid() bool {
	return r.Low >= 0 && r.High <= MaxPort && r.Low <= r.High
}

// String renders "any", "443" or "80-443".
func (r PortRange) String() string {
	switch {
	case r.IsAny():
		return "any"
	case r.Low == r.High:
		return strconv.Itoa(r.Low)
	default:
		return fmt.Sprintf("%d-%d", r.Low, r.High)
	}
}

// Touches reports whether r and o overlap or are contiguous.
func (r PortRange) Touches(o PortRange) bool {
	if r.Low > o.Low {
		r, o = o, r
	}
	return r.High+1 >= o.Low
}

// Union spans both ranges. Callers check Touches first.
func (r PortRange) Union(o PortRange) PortRange {
	return PortRange{Low: min(r.Low, o.Low), High: max(r.High, o.High)}
}

func (r PortRange) Contains(port int) bool {
	return port >= r.Low && port <= r.High
}

func (r PortRange) Compare(o PortRange) int {
	if r.Low != o.Low {
		if r.Low < o.Low {
			return -1
		}
		return 1
	}
	if r.High != o.High {
		if r.High < o.High {
			return -1
		}
		return 1
	}
	return 0
}

// ParsePortRange parses "443", "80-443", "any" or "*". Ports must be in 1-65535
// unless the whole range is given as "any".
func ParsePortRange(s string) (PortRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PortRange{}, fmt.Errorf("empty port")
	}
	if strings.EqualFold(s, "any") || s == "*" {
		return AllPorts, nil
	}

	lowStr, highStr, isRange := strings.Cut(s, "-")
	low, err := parsePort(lowStr)
	if err != nil {
		return PortRange{}, err
	}
	high := low
	if isRange {
		if high, err = parsePort(highStr); err != nil {
			return PortRange{}, err
		}
	}
	if low > high {
		return PortRange{}, fmt.Errorf("port range %q: low %d greater than high %d", s, low, high)
	}
	return PortRange{Low: low, High: high}, nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if p < 1 || p > MaxPort {
		return 0, fmt.Errorf("port %d out of range 1-%d", p, MaxPort)
	}
	return p, nil
}
