// Package catalog validates service definitions into an in-memory catalog.
// It knows nothing about the host inventory; tag selectors stay unresolved.
package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"facr-builder/internal/model"
	"facr-builder/pkg/wellknown"
)

type Catalog struct {
	services map[string]model.Service
	names    []string
}

// Load validates a raw name -> definition mapping.
func Load(raw map[string]any) (*Catalog, error) {
	c := &Catalog{services: make(map[string]model.Service, len(raw))}

	// Sorted iteration makes the reported error stable when several entries are bad.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, rawName := range keys {
		name := strings.ToLower(strings.TrimSpace(rawName))
		if name == "" {
			return nil, &Error{Kind: InvalidDefinition, Service: rawName, Err: fmt.Errorf("empty service name")}
		}
		if _, dup := c.services[name]; dup {
			return nil, &Error{Kind: DuplicateService, Service: rawName}
		}
		def, ok := asMap(raw[rawName])
		if !ok {
			return nil, &Error{Kind: InvalidDefinition, Service: name, Err: fmt.Errorf("definition is %T, want mapping", raw[rawName])}
		}
		svc, err := parseService(name, def)
		if err != nil {
			return nil, err
		}
		c.services[name] = svc
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	return c, nil
}

func parseService(name string, def map[string]any) (model.Service, error) {
	svc := model.Service{Name: name}

	protoRaw, ok := lookup(def, "protocol")
	if !ok {
		return svc, &Error{Kind: MissingField, Service: name, Field: "protocol"}
	}
	proto, err := model.ParseProtocol(toString(protoRaw))
	if err != nil {
		return svc, &Error{Kind: InvalidProtocol, Service: name, Field: "protocol", Err: err}
	}
	svc.Protocol = proto

	portRaw, ok := lookup(def, "port", "ports")
	switch {
	case ok:
		ports, err := parsePorts(portRaw, proto)
		if err != nil {
			return svc, &Error{Kind: InvalidPort, Service: name, Field: "port", Err: err}
		}
		svc.Ports = ports
	case proto.HasPorts():
		return svc, &Error{Kind: MissingField, Service: name, Field: "port"}
	default:
		svc.Ports = model.AllPorts
	}

	if svc.Sources, err = parseSelectors(name, "source", def); err != nil {
		return svc, err
	}
	if svc.Destinations, err = parseSelectors(name, "destination", def); err != nil {
		return svc, err
	}

	if v, ok := lookup(def, "required"); ok {
		if svc.Required, err = toBool(v); err != nil {
			return svc, &Error{Kind: InvalidDefinition, Service: name, Field: "required", Err: err}
		}
	}
	if v, ok := lookup(def, "bidirectional", "bi-directional"); ok {
		if svc.Bidirectional, err = toBool(v); err != nil {
			return svc, &Error{Kind: InvalidDefinition, Service: name, Field: "bidirectional", Err: err}
		}
	}
	svc.LOB = model.LOBConInfra
	if v, ok := lookup(def, "lob"); ok {
		if svc.LOB, err = model.ParseLOB(toString(v)); err != nil {
			return svc, &Error{Kind: InvalidDefinition, Service: name, Field: "lob", Err: err}
		}
	}
	if v, ok := lookup(def, "description"); ok {
		svc.Description = toString(v)
	}
	return svc, nil
}

// parsePorts accepts an integer, "low-high", "any", or a well-known service name.
func parsePorts(v any, proto model.Protocol) (model.PortRange, error) {
	var s string
	switch p := v.(type) {
	case int:
		s = strconv.Itoa(p)
	case int64:
		s = strconv.FormatInt(p, 10)
	case uint64:
		s = strconv.FormatUint(p, 10)
	case float64:
		if p != float64(int(p)) {
			return model.PortRange{}, fmt.Errorf("port %v is not an integer", p)
		}
		s = strconv.Itoa(int(p))
	case string:
		s = p
	default:
		return model.PortRange{}, fmt.Errorf("port has type %T", v)
	}

	r, err := model.ParsePortRange(s)
	if err == nil {
		if !proto.HasPorts() && !r.IsAny() {
			return model.PortRange{}, fmt.Errorf("protocol %s does not take ports", proto)
		}
		return r, nil
	}
	if port, ok := wellknown.Lookup(strings.TrimSpace(s), proto); ok && proto.HasPorts() {
		return model.SinglePort(port), nil
	}
	return model.PortRange{}, err
}

func parseSelectors(service, field string, def map[string]any) ([]model.Selector, error) {
	v, ok := lookup(def, field)
	if !ok {
		return nil, &Error{Kind: MissingField, Service: service, Field: field}
	}

	var items []string
	switch t := v.(type) {
	case string:
		items = []string{t}
	case []any:
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, &Error{Kind: InvalidSelector, Service: service, Field: field, Err: fmt.Errorf("selector has type %T", item)}
			}
			items = append(items, s)
		}
	case []string:
		items = t
	default:
		return nil, &Error{Kind: InvalidSelector, Service: service, Field: field, Err: fmt.Errorf("selector has type %T", v)}
	}
	if len(items) == 0 {
		return nil, &Error{Kind: MissingField, Service: service, Field: field}
	}

	sels := make([]model.Selector, 0, len(items))
	for _, item := range items {
		sel, err := model.ParseSelector(item)
		if err != nil {
			return nil, &Error{Kind: InvalidSelector, Service: service, Field: field, Err: err}
		}
		sels = append(sels, sel)
	}
	return sels, nil
}

// Names returns service names in sorted order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

func (c *Catalog) Len() int {
	return len(c.names)
}

// Get looks a service up case-insensitively.
func (c *Catalog) Get(name string) (model.Service, bool) {
	svc, ok := c.services[strings.ToLower(strings.TrimSpace(name))]
	return svc, ok
}

// Services returns every service in name order.
func (c *Catalog) Services() []model.Service {
	out := make([]model.Service, 0, len(c.names))
	for _, n := range c.names {
		out = append(out, c.services[n])
	}
	return out
}

// Select narrows the catalog to names. Unknown names are returned rather than
// failing; an empty names list selects everything.
func (c *Catalog) Select(names []string) (*Catalog, []string) {
	if len(names) == 0 {
		return c, nil
	}
	sub := &Catalog{services: make(map[string]model.Service)}
	var unknown []string
	for _, n := range names {
		svc, ok := c.Get(n)
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		if _, seen := sub.services[svc.Name]; seen {
			continue
		}
		sub.services[svc.Name] = svc
		sub.names = append(sub.names, svc.Name)
	}
	sort.Strings(sub.names)
	return sub, unknown
}

func lookup(def map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := def[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(b))
	}
	return false, fmt.Errorf("value %v is not a boolean", v)
}
