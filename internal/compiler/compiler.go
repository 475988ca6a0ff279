// Package compiler resolves catalog services against an inventory and
// produces a merged, ordered rule table.
package compiler

import (
	"fmt"
	"runtime"
	"slices"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"facr-builder/internal/catalog"
	"facr-builder/internal/inventory"
	"facr-builder/internal/model"
	"facr-builder/internal/utils"
)

type MergePolicy string

const (
	// MergeAdjacent joins overlapping or contiguous port ranges of one flow.
	MergeAdjacent MergePolicy = "adjacent"
	// MergeExact only collapses identical rules.
	MergeExact MergePolicy = "exact"
)

const (
	broadPrefixSize = 65536
	broadPortSpan   = 100
)

type Options struct {
	// Services restricts compilation to these names. Empty means all.
	Services []string
	Merge    MergePolicy
	// Workers bounds parallel per-service expansion. Zero uses GOMAXPROCS.
	Workers int
}

type Result struct {
	Rules  []model.CompiledRule
	Report Report
}

type expansion struct {
	rules    []model.CompiledRule
	warnings []Warning
}

// Compile never writes partial output: on error the Result is nil.
func Compile(cat *catalog.Catalog, inv *inventory.Inventory, opts Options) (*Result, error) {
	switch opts.Merge {
	case "":
		opts.Merge = MergeAdjacent
	case MergeAdjacent, MergeExact:
	default:
		return nil, fmt.Errorf("unknown merge policy %q", opts.Merge)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	report := Report{RunID: uuid.NewString()}

	selected, unknown := cat.Select(opts.Services)
	for _, name := range unknown {
		report.Warnings = append(report.Warnings, Warning{
			Kind:    UnknownService,
			Service: name,
			Message: "service not found in catalog, skipped",
		})
	}

	services := selected.Services()
	expansions := make([]expansion, len(services))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, svc := range services {
		g.Go(func() error {
			expansions[i] = expand(svc, inv)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var candidates []model.CompiledRule
	for i, svc := range services {
		exp := expansions[i]
		report.Warnings = append(report.Warnings, exp.warnings...)
		if len(exp.rules) == 0 {
			if svc.Required {
				return nil, &Error{Kind: NoMatches, Service: svc.Name}
			}
			report.Omitted = append(report.Omitted, svc.Name)
			report.Warnings = append(report.Warnings, Warning{
				Kind:    ServiceOmitted,
				Service: svc.Name,
				Message: "optional service resolved to no rules, omitted",
			})
			continue
		}
		report.Services++
		candidates = append(candidates, exp.rules...)
	}

	rules := Merge(candidates, opts.Merge)
	Sort(rules)

	report.Candidates = len(candidates)
	report.Rules = len(rules)
	for _, r := range rules {
		if isBroad(r) {
			report.Broad++
		}
	}
	return &Result{Rules: rules, Report: report}, nil
}

// expand resolves one service and forms its source x destination product.
func expand(svc model.Service, inv *inventory.Inventory) expansion {
	var exp expansion
	srcs := resolveSide(svc, svc.Sources, inv, &exp.warnings)
	dsts := resolveSide(svc, svc.Destinations, inv, &exp.warnings)

	add := func(src, dst model.Endpoint, srcLOB, dstLOB model.LOB) {
		if selfPair(src, dst) {
			return
		}
		exp.rules = append(exp.rules, model.CompiledRule{
			Source:         src,
			Destination:    dst,
			Protocol:       svc.Protocol,
			Ports:          svc.Ports,
			Services:       []string{svc.Name},
			SourceLOB:      srcLOB,
			DestinationLOB: dstLOB,
		})
	}
	for _, src := range srcs {
		for _, dst := range dsts {
			add(src, dst, "", svc.LOB)
			if svc.Bidirectional {
				add(dst, src, svc.LOB, "")
			}
		}
	}
	return exp
}

// selfPair reports whether both sides are the same single address, whether
// they came from a host, a bare IP or a /32 cidr selector.
func selfPair(src, dst model.Endpoint) bool {
	if src.Kind == model.EndpointAny || dst.Kind == model.EndpointAny {
		return false
	}
	return utils.IsHostPrefix(src.Prefix) && src.Key() == dst.Key()
}

// resolveSide resolves every selector of one rule side, de-duplicated by
// endpoint identity.
func resolveSide(svc model.Service, sels []model.Selector, inv *inventory.Inventory, warnings *[]Warning) []model.Endpoint {
	var out []model.Endpoint
	index := make(map[string]int)
	for _, sel := range sels {
		eps := resolve(sel, inv)
		if len(eps) == 0 {
			*warnings = append(*warnings, Warning{
				Kind:     EmptySelector,
				Service:  svc.Name,
				Selector: sel.String(),
				Message:  emptyMessage(sel),
			})
		}
		for _, ep := range eps {
			if i, ok := index[ep.Key()]; ok {
				out[i] = preferLabel(out[i], ep)
				continue
			}
			index[ep.Key()] = len(out)
			out = append(out, ep)
		}
	}
	return out
}

func resolve(sel model.Selector, inv *inventory.Inventory) []model.Endpoint {
	switch sel.Kind {
	case model.SelectAny:
		return []model.Endpoint{model.AnyEndpoint()}
	case model.SelectCIDR:
		return []model.Endpoint{model.CIDREndpoint(sel.Prefix)}
	case model.SelectHost:
		h, ok := inv.Host(sel.Value)
		if !ok {
			return nil
		}
		return []model.Endpoint{model.HostEndpoint(h)}
	case model.SelectTag:
		hosts := inv.ByTag(sel.Value)
		eps := make([]model.Endpoint, 0, len(hosts))
		for _, h := range hosts {
			eps = append(eps, model.HostEndpoint(h))
		}
		return eps
	default:
		panic(fmt.Sprintf("compiler: unhandled selector kind %q", sel.Kind))
	}
}

func emptyMessage(sel model.Selector) string {
	if sel.Kind == model.SelectHost {
		return "host not in inventory"
	}
	return "tag matches no host"
}

// preferLabel picks the endpoint to keep when two share an identity: host
// endpoints over bare prefixes, then the smallest host identifier.
func preferLabel(a, b model.Endpoint) model.Endpoint {
	switch {
	case a.Kind != model.EndpointHost && b.Kind == model.EndpointHost:
		return b
	case a.Kind == model.EndpointHost && b.Kind == model.EndpointHost && b.Host < a.Host:
		return b
	}
	return a
}

// Merge collapses duplicate rules and, under MergeAdjacent, joins touching
// port ranges of the same flow. Contributing service names are unioned.
func Merge(rules []model.CompiledRule, policy MergePolicy) []model.CompiledRule {
	groups := make(map[string][]model.CompiledRule)
	var keys []string
	for _, r := range rules {
		k := r.FlowKey()
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r)
	}

	out := make([]model.CompiledRule, 0, len(rules))
	for _, k := range keys {
		group := groups[k]
		src, dst := group[0].Source, group[0].Destination
		for _, r := range group[1:] {
			src = preferLabel(src, r.Source)
			dst = preferLabel(dst, r.Destination)
		}
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Ports.Compare(group[j].Ports) < 0
		})

		cur := group[0]
		cur.Services = slices.Clone(cur.Services)
		flush := func() {
			cur.Source, cur.Destination = src, dst
			slices.Sort(cur.Services)
			cur.Services = slices.Compact(cur.Services)
			out = append(out, cur)
		}
		for _, next := range group[1:] {
			join := cur.Ports == next.Ports
			if policy == MergeAdjacent {
				join = cur.Ports.Touches(next.Ports)
			}
			if join {
				cur.Ports = cur.Ports.Union(next.Ports)
				cur.Services = append(cur.Services, next.Services...)
				cur.SourceLOB = mergeLOB(cur.SourceLOB, next.SourceLOB)
				cur.DestinationLOB = mergeLOB(cur.DestinationLOB, next.DestinationLOB)
				continue
			}
			flush()
			cur = next
			cur.Services = slices.Clone(cur.Services)
		}
		flush()
	}
	return out
}

// mergeLOB keeps a catalog LOB over an inventory one, then the smaller name,
// so the result does not depend on merge order.
func mergeLOB(a, b model.LOB) model.LOB {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return min(a, b)
}

// Sort orders rules by source, destination, protocol and port range.
func Sort(rules []model.CompiledRule) {
	slices.SortStableFunc(rules, model.CompiledRule.Compare)
}

func isBroad(r model.CompiledRule) bool {
	for _, ep := range []model.Endpoint{r.Source, r.Destination} {
		if ep.Kind == model.EndpointAny || utils.CIDRSize(ep.Prefix) > broadPrefixSize {
			return true
		}
	}
	return r.Protocol.HasPorts() && r.Ports.High-r.Ports.Low > broadPortSpan
}
