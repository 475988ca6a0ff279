package model

import (
	"fmt"
	"strings"
)

type Protocol string // "tcp", "udp", "icmp", "any"

const (
	TCP         Protocol = "tcp"
	UDP         Protocol = "udp"
	ICMP        Protocol = "icmp"
	AnyProtocol Protocol = "any"
)

// ParseProtocol accepts a protocol name in any case.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(strings.TrimSpace(s))); p {
	case TCP, UDP, ICMP, AnyProtocol:
		return p, nil
	default:
		return "", fmt.Errorf("unknown protocol %q", s)
	}
}

// HasPorts reports whether the protocol carries port numbers.
func (p Protocol) HasPorts() bool {
	return p == TCP || p == UDP
}
