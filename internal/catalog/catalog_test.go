package catalog

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facr-builder/internal/model"
)

func TestLoadParsesServiceDefinition(t *testing.T) {
	cat, err := Load(map[string]any{
		"Web": map[string]any{
			"protocol":       "TCP",
			"port":           "80-443",
			"source":         "any",
			"destination":    "tag:web-servers",
			"required":       true,
			"bi-directional": "true",
			"description":    "public web tier",
			"lob":            "payments",
		},
	})
	require.NoError(t, err)

	svc, ok := cat.Get("WEB")
	require.True(t, ok)
	assert.Equal(t, "web", svc.Name)
	assert.Equal(t, model.TCP, svc.Protocol)
	assert.Equal(t, model.PortRange{Low: 80, High: 443}, svc.Ports)
	assert.Equal(t, []model.Selector{model.AnySelector()}, svc.Sources)
	assert.Equal(t, []model.Selector{model.TagSelector("web-servers")}, svc.Destinations)
	assert.True(t, svc.Required)
	assert.True(t, svc.Bidirectional)
	assert.Equal(t, "public web tier", svc.Description)
	assert.Equal(t, model.LOBPayments, svc.LOB)
}

func TestLoadAcceptsPortForms(t *testing.T) {
	tests := []struct {
		name  string
		proto string
		port  any
		want  model.PortRange
	}{
		{"integer", "tcp", 22, model.SinglePort(22)},
		{"string", "udp", "53", model.SinglePort(53)},
		{"range", "tcp", "8000-8100", model.PortRange{Low: 8000, High: 8100}},
		{"float from json", "tcp", float64(8080), model.SinglePort(8080)},
		{"well-known name", "tcp", "https", model.SinglePort(443)},
		{"any", "tcp", "any", model.AllPorts},
		{"icmp without port", "icmp", nil, model.AllPorts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := map[string]any{"protocol": tt.proto, "source": "any", "destination": "10.0.0.0/8"}
			if tt.port != nil {
				def["port"] = tt.port
			}
			cat, err := Load(map[string]any{"svc": def})
			require.NoError(t, err)
			svc, _ := cat.Get("svc")
			assert.Equal(t, tt.want, svc.Ports)
		})
	}
}

func TestLoadRejectsInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		def  any
		kind ErrorKind
	}{
		{"missing protocol", map[string]any{"port": 80, "source": "any", "destination": "any"}, MissingField},
		{"missing port", map[string]any{"protocol": "tcp", "source": "any", "destination": "any"}, MissingField},
		{"missing source", map[string]any{"protocol": "tcp", "port": 80, "destination": "any"}, MissingField},
		{"empty destination list", map[string]any{"protocol": "tcp", "port": 80, "source": "any", "destination": []any{}}, MissingField},
		{"reversed range", map[string]any{"protocol": "tcp", "port": "90-80", "source": "any", "destination": "any"}, InvalidPort},
		{"garbage port", map[string]any{"protocol": "tcp", "port": "eighty", "source": "any", "destination": "any"}, InvalidPort},
		{"out of range", map[string]any{"protocol": "tcp", "port": 70000, "source": "any", "destination": "any"}, InvalidPort},
		{"icmp with port", map[string]any{"protocol": "icmp", "port": 8, "source": "any", "destination": "any"}, InvalidPort},
		{"unknown protocol", map[string]any{"protocol": "sctp", "port": 80, "source": "any", "destination": "any"}, InvalidProtocol},
		{"bad selector", map[string]any{"protocol": "tcp", "port": 80, "source": "web1", "destination": "any"}, InvalidSelector},
		{"not a mapping", "tcp/80", InvalidDefinition},
		{"unknown lob", map[string]any{"protocol": "tcp", "port": 80, "source": "any", "destination": "any", "lob": "retail"}, InvalidDefinition},
		{"mapped cidr shorter than /96", map[string]any{"protocol": "tcp", "port": 22, "source": "::ffff:10.0.0.0/90", "destination": "any"}, InvalidSelector},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(map[string]any{"svc": tt.def})
			require.Error(t, err)
			kind, ok := KindOf(err)
			require.True(t, ok, "expected a catalog error, got %v", err)
			assert.Equal(t, tt.kind, kind)
			assert.True(t, errors.Is(err, tt.kind))

			var ce *Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, "svc", ce.Service)
		})
	}
}

func TestLoadRejectsCaseInsensitiveDuplicates(t *testing.T) {
	def := map[string]any{"protocol": "tcp", "port": 80, "source": "any", "destination": "any"}
	_, err := Load(map[string]any{"Web": def, "web": def})
	assert.ErrorIs(t, err, ErrDuplicateService)
}

func TestSelectReportsUnknownNames(t *testing.T) {
	def := map[string]any{"protocol": "tcp", "port": 80, "source": "any", "destination": "any"}
	cat, err := Load(map[string]any{"web": def, "db": def, "cache": def})
	require.NoError(t, err)
	assert.Equal(t, []string{"cache", "db", "web"}, cat.Names())

	sub, unknown := cat.Select([]string{"WEB", "db", "nope", "web"})
	assert.Equal(t, []string{"db", "web"}, sub.Names())
	assert.Equal(t, []string{"nope"}, unknown)

	all, unknown := cat.Select(nil)
	assert.Equal(t, 3, all.Len())
	assert.Empty(t, unknown)
}

func TestDecodeYAMLAndJSON(t *testing.T) {
	yamlDoc := []byte(`
web:
  protocol: tcp
  port: 80-443
  source: any
  destination:
    - tag:web-servers
    - 192.168.10.0/24
`)
	raw, err := Decode("services.yml", yamlDoc)
	require.NoError(t, err)
	cat, err := Load(raw)
	require.NoError(t, err)
	svc, _ := cat.Get("web")
	assert.Equal(t, []model.Selector{
		model.TagSelector("web-servers"),
		model.CIDRSelector(netip.MustParsePrefix("192.168.10.0/24")),
	}, svc.Destinations)

	jsonDoc := []byte(`{"dns": {"protocol": "udp", "port": 53, "source": "tag:clients", "destination": "host:ns1"}}`)
	raw, err = Decode("services.json", jsonDoc)
	require.NoError(t, err)
	cat, err = Load(raw)
	require.NoError(t, err)
	svc, _ = cat.Get("dns")
	assert.Equal(t, model.SinglePort(53), svc.Ports)
	assert.Equal(t, []model.Selector{model.HostSelector("ns1")}, svc.Destinations)
}

func TestDecodeHCL(t *testing.T) {
	doc := []byte(`
service "web" {
  protocol    = "tcp"
  port        = "80-443"
  source      = "any"
  destination = ["tag:web-servers"]
  required    = true
  lob         = "FUELS"
}

service "ping" {
  protocol    = "icmp"
  source      = ["tag:monitoring"]
  destination = ["any"]
}

service "ssh" {
  protocol    = "tcp"
  port        = 22
  source      = "10.0.0.0/8"
  destination = "tag:linux"
}
`)
	raw, err := Decode("services.hcl", doc)
	require.NoError(t, err)
	cat, err := Load(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"ping", "ssh", "web"}, cat.Names())

	web, _ := cat.Get("web")
	assert.True(t, web.Required)
	assert.Equal(t, []model.Selector{model.AnySelector()}, web.Sources)
	assert.Equal(t, model.LOBFuels, web.LOB)

	ping, _ := cat.Get("ping")
	assert.Equal(t, model.AllPorts, ping.Ports)

	ssh, _ := cat.Get("ssh")
	assert.Equal(t, model.SinglePort(22), ssh.Ports)
	assert.Equal(t, model.LOBConInfra, ssh.LOB, "lob defaults to CONINFRA")
}

func TestDecodeHCLMissingProtocol(t *testing.T) {
	raw, err := Decode("services.hcl", []byte(`
service "web" {
  port        = 80
  source      = "any"
  destination = "any"
}
`))
	require.NoError(t, err)
	_, err = Load(raw)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	_, err := Decode("services.yml", []byte("web: [unterminated"))
	assert.Error(t, err)

	_, err = Decode("services.hcl", []byte(`service "web" {`))
	assert.Error(t, err)
}
