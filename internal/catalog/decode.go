package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// LoadFile reads, decodes and validates a catalog file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := Decode(path, data)
	if err != nil {
		return nil, err
	}
	return Load(raw)
}

// Decode turns catalog bytes into the raw mapping Load expects. The format is
// chosen by extension: .hcl for HCL, anything else as YAML (which covers JSON).
func Decode(filename string, data []byte) (map[string]any, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".hcl":
		return decodeHCL(filename, data)
	default:
		return decodeYAML(data)
	}
}

func decodeYAML(data []byte) (map[string]any, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

type hclCatalog struct {
	Services []hclService `hcl:"service,block"`
}

type hclService struct {
	Name          string    `hcl:"name,label"`
	Protocol      string    `hcl:"protocol,optional"`
	Port          string    `hcl:"port,optional"`
	Source        cty.Value `hcl:"source,optional"`
	Destination   cty.Value `hcl:"destination,optional"`
	Required      bool      `hcl:"required,optional"`
	Bidirectional bool      `hcl:"bidirectional,optional"`
	Description   string    `hcl:"description,optional"`
	LOB           string    `hcl:"lob,optional"`
}

func decodeHCL(filename string, data []byte) (map[string]any, error) {
	var doc hclCatalog
	if err := hclsimple.Decode(filename, data, nil, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	raw := make(map[string]any, len(doc.Services))
	for _, s := range doc.Services {
		if _, dup := raw[s.Name]; dup {
			return nil, &Error{Kind: DuplicateService, Service: s.Name}
		}
		def := map[string]any{
			"required":      s.Required,
			"bidirectional": s.Bidirectional,
		}
		// Unset string attributes stay absent so Load reports MissingField.
		if s.Protocol != "" {
			def["protocol"] = s.Protocol
		}
		if s.Port != "" {
			def["port"] = s.Port
		}
		if s.Description != "" {
			def["description"] = s.Description
		}
		if s.LOB != "" {
			def["lob"] = s.LOB
		}
		for field, v := range map[string]cty.Value{"source": s.Source, "destination": s.Destination} {
			items, err := ctySelectors(v)
			if err != nil {
				return nil, &Error{Kind: InvalidSelector, Service: s.Name, Field: field, Err: err}
			}
			if items != nil {
				def[field] = items
			}
		}
		raw[s.Name] = def
	}
	return raw, nil
}

// ctySelectors accepts a string or a list/tuple of strings.
func ctySelectors(v cty.Value) ([]any, error) {
	if v.IsNull() {
		return nil, nil
	}
	ty := v.Type()
	if ty == cty.String {
		return []any{v.AsString()}, nil
	}
	if !ty.IsListType() && !ty.IsTupleType() && !ty.IsSetType() {
		return nil, fmt.Errorf("want string or list of strings, got %s", ty.FriendlyName())
	}
	var items []any
	for it := v.ElementIterator(); it.Next(); {
		_, el := it.Element()
		if el.IsNull() || el.Type() != cty.String {
			return nil, fmt.Errorf("list element is %s, want string", el.Type().FriendlyName())
		}
		items = append(items, el.AsString())
	}
	return items, nil
}
