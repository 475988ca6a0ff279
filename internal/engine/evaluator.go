package engine

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"facr-builder/internal/model"
)

type PrecheckStatus string

const (
	StatusSkip     PrecheckStatus = "SKIP"
	StatusAllowAll PrecheckStatus = "ALLOW_ALL"
	StatusExpand   PrecheckStatus = "EXPAND"
)

const (
	DecisionAllow = "ALLOW"
	DecisionDeny  = "DENY"
)

// broadPortSpan is the widest port range still indexed port by port.
const broadPortSpan = 100

// Flow is a single connection attempt checked against a rule table.
type Flow struct {
	Src      netip.Addr
	Dst      netip.Addr
	Protocol model.Protocol
	Port     int
}

type Result struct {
	Decision string
	// Rule is the first matching row, nil on implicit deny.
	Rule   *model.CompiledRule
	Row    int
	Reason string
}

// Evaluator answers flow queries against a compiled rule table. The table
// is allow-only and evaluated first match in table order.
type Evaluator struct {
	Rules      []model.CompiledRule
	portIndex  map[string][]int
	broadRules []int
}

func NewEvaluator(rules []model.CompiledRule) *Evaluator {
	e := &Evaluator{
		Rules:     rules,
		portIndex: make(map[string][]int),
	}
	e.buildPortIndex()
	return e
}

func (e *Evaluator) buildPortIndex() {
	for i, r := range e.Rules {
		if !r.Protocol.HasPorts() || r.Ports.High-r.Ports.Low > broadPortSpan {
			e.broadRules = append(e.broadRules, i)
			continue
		}
		for p := r.Ports.Low; p <= r.Ports.High; p++ {
			key := portKey(p, r.Protocol)
			e.portIndex[key] = append(e.portIndex[key], i)
		}
	}
}

func (e *Evaluator) Evaluate(flow Flow) Result {
	indexed := e.portIndex[portKey(flow.Port, flow.Protocol)]
	broad := e.broadRules

	// Both candidate lists are ascending; walk them in table order.
	for len(indexed) > 0 || len(broad) > 0 {
		var i int
		if len(broad) == 0 || (len(indexed) > 0 && indexed[0] < broad[0]) {
			i, indexed = indexed[0], indexed[1:]
		} else {
			i, broad = broad[0], broad[1:]
		}
		rule := &e.Rules[i]
		if matches(rule, flow) {
			return Result{
				Decision: DecisionAllow,
				Rule:     rule,
				Row:      i + 1,
				Reason:   "MATCH_RULE",
			}
		}
	}
	return Result{Decision: DecisionDeny, Reason: "IMPLICIT_DENY"}
}

// Precheck classifies a whole source/destination block at once: ALLOW_ALL
// when one rule covers both blocks entirely, EXPAND when the first
// overlapping rule only covers part of them, SKIP when nothing overlaps.
func (e *Evaluator) Precheck(src, dst netip.Prefix, port int, proto model.Protocol) (PrecheckStatus, *model.CompiledRule, string) {
	if !src.IsValid() || !dst.IsValid() {
		return StatusExpand, nil, "PRECHECK_INVALID_CIDR"
	}
	src, dst = src.Masked(), dst.Masked()

	for i := range e.Rules {
		rule := &e.Rules[i]
		if !matchesService(rule, proto, port) {
			continue
		}
		srcRel := endpointRelation(rule.Source, src)
		if srcRel == relNone {
			continue
		}
		dstRel := endpointRelation(rule.Destination, dst)
		if dstRel == relNone {
			continue
		}
		if srcRel != relFull || dstRel != relFull {
			return StatusExpand, rule, "PRECHECK_PARTIAL"
		}
		return StatusAllowAll, rule, "PRECHECK_ALLOW_ALL"
	}
	return StatusSkip, nil, "PRECHECK_IMPLICIT_DENY"
}

func matches(rule *model.CompiledRule, flow Flow) bool {
	return rule.Source.Contains(flow.Src) &&
		rule.Destination.Contains(flow.Dst) &&
		matchesService(rule, flow.Protocol, flow.Port)
}

func matchesService(rule *model.CompiledRule, proto model.Protocol, port int) bool {
	if rule.Protocol != model.AnyProtocol && rule.Protocol != proto {
		return false
	}
	if !rule.Protocol.HasPorts() {
		return true
	}
	return rule.Ports.Contains(port)
}

type cidrRelation int

const (
	relNone cidrRelation = iota
	relPartial
	relFull
)

func endpointRelation(ep model.Endpoint, block netip.Prefix) cidrRelation {
	if ep.Kind == model.EndpointAny {
		return relFull
	}
	if ep.Prefix.Addr().Is4() != block.Addr().Is4() || !ep.Prefix.Overlaps(block) {
		return relNone
	}
	if ep.Prefix.Bits() <= block.Bits() {
		return relFull
	}
	return relPartial
}

func portKey(port int, proto model.Protocol) string {
	return string(proto) + ":" + strconv.Itoa(port)
}

// ParsePortSpec reads "443/tcp", "tcp/443", "53/udp" or a bare "icmp".
// A bare port number defaults to tcp.
func ParsePortSpec(s string) (int, model.Protocol, error) {
	s = strings.TrimSpace(s)
	if p, err := model.ParseProtocol(s); err == nil {
		if p.HasPorts() {
			return 0, "", fmt.Errorf("port spec %q needs a port number", s)
		}
		return 0, p, nil
	}

	left, right, found := strings.Cut(s, "/")
	if !found {
		left, right = s, string(model.TCP)
	}
	portText, protoText := left, right
	if _, err := strconv.Atoi(left); err != nil {
		portText, protoText = right, left
	}
	proto, err := model.ParseProtocol(protoText)
	if err != nil {
		return 0, "", err
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port < 1 || port > model.MaxPort {
		return 0, "", fmt.Errorf("invalid port in %q", s)
	}
	return port, proto, nil
}
