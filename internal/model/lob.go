package model

import (
	"fmt"
	"strings"
)

// LOB is the line of business a host belongs to in the FACR audit sheet.
type LOB string

const (
	LOBConInfra LOB = "CONINFRA"
	LOBFuels    LOB = "FUELS"
	LOBPayments LOB = "PAYMENTS"
)

var LOBs = []LOB{LOBConInfra, LOBFuels, LOBPayments}

func ParseLOB(s string) (LOB, error) {
	l := LOB(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range LOBs {
		if l == known {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown line of business %q (want one of CONINFRA, FUELS, PAYMENTS)", s)
}
