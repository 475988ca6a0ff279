// Package wellknown maps IANA service names to port numbers so catalogs can
// say "port: https" instead of 443.
package wellknown

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"

	"facr-builder/internal/model"
)

//go:embed well_known_ports.csv
var wellKnownPortsData string

type ServiceEntry struct {
	Protocol model.Protocol
	Port     int
}

// Registry is a name to entries table. Names are stored upper-case.
type Registry map[string][]ServiceEntry

// aliases adds extra names for a registered service.
var aliases = map[string][]string{
	"DOMAIN": {"DNS"},
}

var defaultRegistry = sync.OnceValue(func() Registry {
	r, err := Parse(strings.NewReader(wellKnownPortsData))
	if err != nil {
		panic(fmt.Sprintf("embedded well_known_ports.csv: %v", err))
	}
	return r
})

// Parse reads "port,tcp,udp" rows. Empty or N/A names are skipped, as are
// rows whose port is not a number.
func Parse(r io.Reader) (Registry, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("could not read header: %w", err)
	}

	reg := make(Registry)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < 3 {
			continue
		}
		port, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil || port < 1 || port > model.MaxPort {
			continue
		}
		reg.add(record[1], model.TCP, port)
		reg.add(record[2], model.UDP, port)
	}
	return reg, nil
}

func (r Registry) add(name string, proto model.Protocol, port int) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" || name == "N/A" {
		return
	}
	entry := ServiceEntry{Protocol: proto, Port: port}
	for _, key := range append([]string{name}, aliases[name]...) {
		if !slices.Contains(r[key], entry) {
			r[key] = append(r[key], entry)
		}
	}
}

// Lookup returns the port name maps to for proto. For the "any" protocol the
// first registered entry wins.
func (r Registry) Lookup(name string, proto model.Protocol) (int, bool) {
	for _, e := range r[strings.ToUpper(name)] {
		if proto == model.AnyProtocol || e.Protocol == proto {
			return e.Port, true
		}
	}
	return 0, false
}

// GetService returns every entry registered under name in the embedded table.
func GetService(name string) ([]ServiceEntry, bool) {
	entries, ok := defaultRegistry()[strings.ToUpper(name)]
	return entries, ok
}

func Lookup(name string, proto model.Protocol) (int, bool) {
	return defaultRegistry().Lookup(name, proto)
}
