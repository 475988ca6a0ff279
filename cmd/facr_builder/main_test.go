package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facr-builder/internal/catalog"
	"facr-builder/internal/compiler"
	"facr-builder/internal/inventory"
	"facr-builder/internal/output"
)

const testCatalog = `
web:
  protocol: tcp
  port: 80-443
  source: any
  destination: tag:web
ssh:
  protocol: tcp
  port: ssh
  source: host:jump1
  destination: tag:web
  required: true
legacy:
  protocol: udp
  port: 9999
  source: tag:retired
  destination: any
`

const testHosts = `# id address tags
web1 10.0.0.1 web
web2 10.0.0.2 web
jump1 10.9.0.1 admin
`

type fixture struct {
	dir      string
	services string
	hosts    string
	output   string
}

func newFixture(t *testing.T, catalogDoc, hostsDoc string) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:      dir,
		services: filepath.Join(dir, "services.yml"),
		hosts:    filepath.Join(dir, "hosts.txt"),
		output:   filepath.Join(dir, "rules.csv"),
	}
	require.NoError(t, os.WriteFile(f.services, []byte(catalogDoc), 0o644))
	require.NoError(t, os.WriteFile(f.hosts, []byte(hostsDoc), 0o644))
	return f
}

func (f fixture) args(extra ...string) []string {
	base := []string{
		"--services", f.services,
		"--hosts", f.hosts,
		"--output", f.output,
		"--env-file", "",
		"--log-file", filepath.Join(f.dir, "facr.log"),
	}
	return append(base, extra...)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, name := range []string{"SERVICES", "HOSTS", "CSVOUT"} {
		t.Setenv(name, "")
	}
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNewRootCmd(t *testing.T) {
	cmd := newRootCmd()
	require.NotNil(t, cmd)
	assert.Equal(t, "facr_builder [service...]", cmd.Use)
	for _, name := range []string{"services", "diff", "check"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestRunWritesRuleTable(t *testing.T) {
	f := newFixture(t, testCatalog, testHosts)
	metricsPath := filepath.Join(f.dir, "facr.prom")

	_, err := execute(t, f.args("--metrics-file", metricsPath)...)
	require.NoError(t, err)

	data, err := os.ReadFile(f.output)
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"source,destination,protocol,port_range",
		"any,10.0.0.1,tcp,80-443",
		"any,10.0.0.2,tcp,80-443",
		"10.9.0.1,10.0.0.1,tcp,22",
		"10.9.0.1,10.0.0.2,tcp,22",
		"",
	}, "\n"), string(data))

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "facr_compiled_rules 4")
	assert.Contains(t, string(prom), "facr_services_omitted 1")

	logs, err := os.ReadFile(filepath.Join(f.dir, "facr.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logs), `"kind":"ServiceOmitted"`)
}

func TestRunSelectsServicesByName(t *testing.T) {
	f := newFixture(t, testCatalog, testHosts)

	_, err := execute(t, append(f.args(), "SSH", "nosuch")...)
	require.NoError(t, err)

	rules, err := output.ReadFile(f.output)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	for _, r := range rules {
		assert.Equal(t, "22", r.Ports.String())
	}

	logs, err := os.ReadFile(filepath.Join(f.dir, "facr.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logs), `"kind":"UnknownService"`)
}

func TestRunFACRFormat(t *testing.T) {
	f := newFixture(t, testCatalog, testHosts)

	_, err := execute(t, f.args("--format", "facr", "--lob", "fuels", "ssh")...)
	require.NoError(t, err)

	data, err := os.ReadFile(f.output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "source_hostname,"))
	assert.Equal(t, "jump1,10.9.0.1,FUELS,web1,10.0.0.1,CONINFRA,tcp/22,Add,No", lines[1])
}

func TestRunFACRFormatBidirectionalService(t *testing.T) {
	f := newFixture(t, `
sync:
  protocol: tcp
  port: 8443
  source: tag:admin
  destination: host:web1
  bi-directional: true
  lob: PAYMENTS
`, testHosts)

	_, err := execute(t, f.args("--format", "facr", "--lob", "FUELS")...)
	require.NoError(t, err)

	data, err := os.ReadFile(f.output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "web1,10.0.0.1,PAYMENTS,jump1,10.9.0.1,FUELS,tcp/8443,Add,No", lines[1])
	assert.Equal(t, "jump1,10.9.0.1,FUELS,web1,10.0.0.1,PAYMENTS,tcp/8443,Add,No", lines[2])
}

func TestRunFailsWithoutWritingOutput(t *testing.T) {
	tests := []struct {
		name    string
		catalog string
		hosts   string
		extra   []string
		is      error
	}{
		{
			name:    "invalid port",
			catalog: "web:\n  protocol: tcp\n  port: 70000\n  source: any\n  destination: any\n",
			hosts:   testHosts,
			is:      catalog.ErrInvalidPort,
		},
		{
			name:    "duplicate host",
			catalog: testCatalog,
			hosts:   "host1 10.0.0.1 web\nhost1 10.0.0.2 web\n",
			is:      inventory.ErrDuplicateHost,
		},
		{
			name:    "required service without matches",
			catalog: "db:\n  protocol: tcp\n  port: 5432\n  source: tag:app\n  destination: tag:db\n  required: true\n",
			hosts:   testHosts,
			is:      compiler.ErrNoMatches,
		},
		{
			name:    "bad format",
			catalog: testCatalog,
			hosts:   testHosts,
			extra:   []string{"--format", "xlsx"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.catalog, tt.hosts)
			_, err := execute(t, f.args(tt.extra...)...)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
			_, statErr := os.Stat(f.output)
			assert.True(t, os.IsNotExist(statErr), "output must not be written on failure")
		})
	}
}

func TestRunWritesHeaderOnlyTableWhenNothingMatches(t *testing.T) {
	f := newFixture(t, "legacy:\n  protocol: udp\n  port: 9999\n  source: tag:retired\n  destination: any\n", testHosts)
	require.NoError(t, os.WriteFile(f.output, []byte("stale\n"), 0o644))

	_, err := execute(t, f.args()...)
	require.NoError(t, err)

	data, err := os.ReadFile(f.output)
	require.NoError(t, err)
	assert.Equal(t, "source,destination,protocol,port_range\n", string(data))
}

func TestRunSQLiteInventory(t *testing.T) {
	f := newFixture(t, testCatalog, "")
	dbPath := filepath.Join(f.dir, "cmdb.db")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.ExecContext(context.Background(), inventory.Schema)
	require.NoError(t, err)
	_, err = db.ExecContext(context.Background(),
		`INSERT INTO inventory_host (identifier, address, tags, environment) VALUES
			('web1', '10.0.0.1', 'web', 'prod'),
			('web9', '10.0.0.9', 'web', 'staging'),
			('jump1', '10.9.0.1', 'admin', 'prod')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = execute(t, f.args("--inventory-provider", "sqlite", "--db", dbPath, "--env", "prod", "web")...)
	require.NoError(t, err)

	rules, err := output.ReadFile(f.output)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "10.0.0.1", rules[0].Destination.String())
}

func TestServicesCommand(t *testing.T) {
	f := newFixture(t, testCatalog, testHosts)

	out, err := execute(t, "services", "--services", f.services, "--env-file", "", "--log-file", filepath.Join(f.dir, "facr.log"))
	require.NoError(t, err)
	assert.Contains(t, out, "SERVICE")
	assert.Contains(t, out, "legacy")
	assert.Contains(t, out, "(required)")
	assert.Contains(t, out, "host:jump1 -> tag:web")
	assert.Contains(t, out, "3 services")
}

func TestDiffCommand(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	c := filepath.Join(dir, "c.csv")
	header := "source,destination,protocol,port_range\n"
	require.NoError(t, os.WriteFile(a, []byte(header+"any,10.0.0.2,tcp,80\nany,10.0.0.1,tcp,80\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte(header+"any,10.0.0.1,tcp,80\nany,10.0.0.2,tcp,80\n"), 0o644))
	require.NoError(t, os.WriteFile(c, []byte(header+"any,10.0.0.1,tcp,80\nany,10.0.0.3,tcp,80\n"), 0o644))
	logArgs := []string{"--env-file", "", "--log-file", filepath.Join(dir, "facr.log")}

	out, err := execute(t, append([]string{"diff", a, b}, logArgs...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "identical")

	out, err = execute(t, append([]string{"diff", a, c}, logArgs...)...)
	require.Error(t, err)
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, out, "-any,10.0.0.2,tcp,80")
	assert.Contains(t, out, "+any,10.0.0.3,tcp,80")
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	rules := filepath.Join(dir, "rules.csv")
	require.NoError(t, os.WriteFile(rules, []byte("source,destination,protocol,port_range\n10.0.0.0/24,10.1.0.1,tcp,80-443\n"), 0o644))
	base := []string{"check", "--rules", rules, "--env-file", "", "--log-file", filepath.Join(dir, "facr.log")}

	out, err := execute(t, append(base, "--src", "10.0.0.7", "--dst", "10.1.0.1", "--port", "443/tcp")...)
	require.NoError(t, err)
	assert.Contains(t, out, "ALLOW row 1")

	out, err = execute(t, append(base, "--src", "10.0.0.7", "--dst", "10.1.0.1", "--port", "22/tcp")...)
	require.ErrorIs(t, err, errReported)
	assert.Contains(t, out, "DENY")

	out, err = execute(t, append(base, "--src", "10.0.0.128/25", "--dst", "10.1.0.1", "--port", "tcp/80")...)
	require.NoError(t, err)
	assert.Contains(t, out, "ALLOW")

	_, err = execute(t, append(base, "--src", "10.0.0.0/16", "--dst", "10.1.0.1", "--port", "80")...)
	assert.ErrorIs(t, err, errReported)
}

func TestSetupLogger(t *testing.T) {
	for _, lvl := range []string{"DEBUG", "INFO", "WARN", "ERROR", "UNKNOWN"} {
		assert.NotNil(t, setupLogger(lvl, "", "json"), lvl)
	}
	assert.NotNil(t, setupLogger("INFO", "", "text"))

	logFile := filepath.Join(t.TempDir(), "test.log")
	assert.NotNil(t, setupLogger("INFO", logFile, "json"))

	// An unwritable path falls back to stderr.
	assert.NotNil(t, setupLogger("INFO", "/nonexistent/path/to/log.log", "json"))
}
