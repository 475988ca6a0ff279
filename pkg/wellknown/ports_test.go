package wellknown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facr-builder/internal/model"
)

func TestGetServiceReturnsDNSAliases(t *testing.T) {
	entries, ok := GetService("dns")
	assert.True(t, ok, "dns should be present in the well-known registry")
	assert.Contains(t, entries, ServiceEntry{Protocol: model.TCP, Port: 53})
	assert.Contains(t, entries, ServiceEntry{Protocol: model.UDP, Port: 53})
}

func TestGetServiceReturnsFalseForUnknown(t *testing.T) {
	_, ok := GetService("definitely-not-a-service")
	assert.False(t, ok)
}

func TestLookupMatchesProtocol(t *testing.T) {
	port, ok := Lookup("HTTPS", model.TCP)
	assert.True(t, ok)
	assert.Equal(t, 443, port)

	_, ok = Lookup("https", model.UDP)
	assert.False(t, ok, "https is not registered for udp")

	port, ok = Lookup("ntp", model.AnyProtocol)
	assert.True(t, ok)
	assert.Equal(t, 123, port)
}

func TestParseSkipsUnusableRows(t *testing.T) {
	reg, err := Parse(strings.NewReader("port,tcp,udp\n8080,http-alt,\nabc,bogus,bogus\n70000,huge,\n53,domain,domain\n9,discard\n"))
	require.NoError(t, err)

	port, ok := reg.Lookup("http-alt", model.TCP)
	assert.True(t, ok)
	assert.Equal(t, 8080, port)

	_, ok = reg.Lookup("bogus", model.AnyProtocol)
	assert.False(t, ok)
	_, ok = reg.Lookup("huge", model.TCP)
	assert.False(t, ok)
	_, ok = reg.Lookup("discard", model.TCP)
	assert.False(t, ok, "short rows are skipped")

	assert.Len(t, reg["DNS"], 2)
}

func TestParseRequiresHeader(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	assert.Error(t, err)
}
