package model

import "strings"

// CompiledRule is one row of the rule table. Services lists the catalog
// entries that produced it, sorted.
//
// SourceLOB and DestinationLOB are set on the side a service's destination
// selectors resolved to. An empty LOB means the endpoint came from the
// inventory side and takes the inventory's line of business at output.
type CompiledRule struct {
	Source         Endpoint
	Destination    Endpoint
	Protocol       Protocol
	Ports          PortRange
	Services       []string
	SourceLOB      LOB
	DestinationLOB LOB
}

// FlowKey is the (source, destination, protocol) triple port ranges merge under.
func (r CompiledRule) FlowKey() string {
	return r.Source.Key() + "|" + r.Destination.Key() + "|" + string(r.Protocol)
}

// Key is the full de-duplication tuple.
func (r CompiledRule) Key() string {
	return r.FlowKey() + "|" + r.Ports.String()
}

// Compare is the table order: source, destination, protocol, ports.
func (r CompiledRule) Compare(o CompiledRule) int {
	if c := r.Source.Compare(o.Source); c != 0 {
		return c
	}
	if c := r.Destination.Compare(o.Destination); c != 0 {
		return c
	}
	if c := strings.Compare(string(r.Protocol), string(o.Protocol)); c != 0 {
		return c
	}
	return r.Ports.Compare(o.Ports)
}
