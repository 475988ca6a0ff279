package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"facr-builder/internal/model"
)

// ReadTable parses a FormatCSV rule table. Row order is preserved.
func ReadTable(r io.Reader) ([]model.CompiledRule, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("could not read header: %w", err)
	}

	cols := make(map[string]int)
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, want := range tableHeader {
		if _, ok := cols[want]; !ok {
			return nil, fmt.Errorf("could not find %q column in rule table", want)
		}
	}

	var rules []model.CompiledRule
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rule, err := parseRecord(record, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseRecord(record []string, cols map[string]int) (model.CompiledRule, error) {
	var rule model.CompiledRule
	var err error
	if rule.Source, err = model.ParseEndpoint(record[cols["source"]]); err != nil {
		return rule, fmt.Errorf("source: %w", err)
	}
	if rule.Destination, err = model.ParseEndpoint(record[cols["destination"]]); err != nil {
		return rule, fmt.Errorf("destination: %w", err)
	}
	if rule.Protocol, err = model.ParseProtocol(record[cols["protocol"]]); err != nil {
		return rule, err
	}
	if rule.Ports, err = model.ParsePortRange(record[cols["port_range"]]); err != nil {
		return rule, fmt.Errorf("port_range: %w", err)
	}
	return rule, nil
}

func ReadFile(path string) ([]model.CompiledRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTable(f)
}
