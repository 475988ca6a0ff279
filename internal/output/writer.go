package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"facr-builder/internal/model"
)

type Format string

const (
	// FormatCSV is the normalized rule table.
	FormatCSV Format = "csv"
	// FormatFACR is the firewall change request sheet with hostname, address
	// and line of business columns.
	FormatFACR Format = "facr"
)

var ErrUnknownFormat = errors.New("unknown output format")

var (
	tableHeader = []string{"source", "destination", "protocol", "port_range"}
	facrHeader  = []string{
		"source_hostname", "source_ip_address", "source_lob",
		"destination_hostname", "destination_ip_address", "destination_lob",
		"destination_protocol_port", "add_modify_remove", "temporary",
	}
)

const (
	defaultChange    = "Add"
	defaultTemporary = "No"
)

type Options struct {
	Format Format
	// LOB is the inventory's line of business. It fills the FormatFACR lob
	// column of host endpoints that carry no LOB of their own.
	LOB model.LOB
}

func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatCSV, FormatFACR:
		return f, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownFormat, s)
}

// Write renders rules in order.
func Write(w io.Writer, rules []model.CompiledRule, opts Options) error {
	cw := csv.NewWriter(w)
	var err error
	switch opts.Format {
	case FormatCSV, "":
		err = writeTable(cw, rules)
	case FormatFACR:
		err = writeFACR(cw, rules, opts.LOB)
	default:
		return fmt.Errorf("%w %q", ErrUnknownFormat, opts.Format)
	}
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func writeTable(cw *csv.Writer, rules []model.CompiledRule) error {
	if err := cw.Write(tableHeader); err != nil {
		return err
	}
	for _, r := range rules {
		record := []string{r.Source.String(), r.Destination.String(), string(r.Protocol), r.Ports.String()}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func writeFACR(cw *csv.Writer, rules []model.CompiledRule, lob model.LOB) error {
	if err := cw.Write(facrHeader); err != nil {
		return err
	}
	for _, r := range rules {
		srcName, srcIP, srcLOB := facrEndpoint(r.Source, r.SourceLOB, lob)
		dstName, dstIP, dstLOB := facrEndpoint(r.Destination, r.DestinationLOB, lob)
		record := []string{
			srcName, srcIP, srcLOB,
			dstName, dstIP, dstLOB,
			string(r.Protocol) + "/" + r.Ports.String(),
			defaultChange, defaultTemporary,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func facrEndpoint(ep model.Endpoint, own, inventory model.LOB) (name, address, lobCol string) {
	if ep.Kind != model.EndpointHost || ep.Host == "" {
		return "", ep.String(), ""
	}
	if own != "" {
		return ep.Host, ep.String(), string(own)
	}
	return ep.Host, ep.String(), string(inventory)
}

// WriteFile writes to a temporary file next to path and renames it into
// place, so readers never observe a truncated table.
func WriteFile(path string, rules []model.CompiledRule, opts Options) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = Write(tmp, rules, opts); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
