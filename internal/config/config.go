package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"facr-builder/internal/compiler"
	"facr-builder/internal/model"
	"facr-builder/internal/output"
)

const envPrefix = "FACR"

const (
	ProviderFile    = "file"
	ProviderMariaDB = "mariadb"
	ProviderSQLite  = "sqlite"
)

type Config struct {
	Services          string        `mapstructure:"services"`
	Hosts             string        `mapstructure:"hosts"`
	Output            string        `mapstructure:"output"`
	Format            string        `mapstructure:"format"`
	Merge             string        `mapstructure:"merge"`
	Workers           int           `mapstructure:"workers"`
	LOB               string        `mapstructure:"lob"`
	InventoryProvider string        `mapstructure:"inventory-provider"`
	DB                string        `mapstructure:"db"`
	Env               string        `mapstructure:"env"`
	Resolve           bool          `mapstructure:"resolve"`
	DNSServer         string        `mapstructure:"dns-server"`
	DNSTimeout        time.Duration `mapstructure:"dns-timeout"`
	LogLevel          string        `mapstructure:"log-level"`
	LogFile           string        `mapstructure:"log-file"`
	LogFormat         string        `mapstructure:"log-format"`
	MetricsFile       string        `mapstructure:"metrics-file"`
}

// legacyEnv are the unprefixed variables older deployments export.
var legacyEnv = map[string]string{
	"services": "SERVICES",
	"hosts":    "HOSTS",
	"output":   "CSVOUT",
}

// RegisterFlags adds every configurable flag to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("services", "s", "", "Service catalog file (.yml, .yaml, .json or .hcl)")
	fs.String("hosts", "", "Host inventory file (for the 'file' inventory provider)")
	fs.StringP("output", "o", "facr_rules.csv", "Output rule table path")
	fs.String("format", string(output.FormatCSV), "Output format: 'csv' or 'facr'")
	fs.String("merge", string(compiler.MergeAdjacent), "Port merge policy: 'adjacent' or 'exact'")
	fs.IntP("workers", "w", runtime.NumCPU(), "Number of concurrent service expansions")
	fs.String("lob", "", "Line of business for facr output: CONINFRA, FUELS or PAYMENTS")
	fs.String("inventory-provider", ProviderFile, "Inventory provider: 'file', 'mariadb' or 'sqlite'")
	fs.String("db", "", "Database DSN (for the 'mariadb' and 'sqlite' providers)")
	fs.String("env", "", "Environment to filter inventory rows (adds WHERE environment = '...')")
	fs.Bool("resolve", false, "Resolve inventory hosts without an address through DNS")
	fs.String("dns-server", "", "DNS server host:port (default: first nameserver in /etc/resolv.conf)")
	fs.Duration("dns-timeout", 2*time.Second, "Per-query DNS timeout")
	fs.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	fs.String("log-file", "", "Log file path (default: stderr)")
	fs.String("log-format", "json", "Log format: 'json' or 'text'")
	fs.String("metrics-file", "", "Write Prometheus textfile metrics to this path")
	fs.StringP("config", "c", "", "YAML config file")
	fs.String("env-file", ".env", "Dotenv file read when present")
}

// Load resolves configuration from, lowest to highest precedence: flag
// defaults, the --config file, the dotenv file, environment variables and
// explicitly set flags.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(key), legacy); err != nil {
			return nil, err
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read config %s: %w", path, err)
		}
	}

	if path := v.GetString("env-file"); path != "" {
		values, err := readDotEnv(path)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(values); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readDotEnv maps FACR_LOG_LEVEL style keys and the legacy names onto
// config keys. A missing file is not an error.
func readDotEnv(path string) (map[string]any, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	dot := viper.New()
	dot.SetConfigFile(path)
	dot.SetConfigType("env")
	if err := dot.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}

	values := make(map[string]any)
	for _, raw := range dot.AllKeys() {
		key := raw
		for cfgKey, legacy := range legacyEnv {
			if strings.EqualFold(raw, legacy) {
				key = cfgKey
			}
		}
		key = strings.TrimPrefix(key, strings.ToLower(envPrefix)+"_")
		values[strings.ReplaceAll(key, "_", "-")] = dot.Get(raw)
	}
	return values, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Services == "" {
		errs = append(errs, errors.New("a service catalog is required (--services or SERVICES)"))
	}
	switch c.InventoryProvider {
	case ProviderFile:
		if c.Hosts == "" {
			errs = append(errs, errors.New("a host inventory is required (--hosts or HOSTS)"))
		}
	case ProviderMariaDB, ProviderSQLite:
		if c.DB == "" {
			errs = append(errs, fmt.Errorf("a database DSN must be provided for the %s provider", c.InventoryProvider))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown inventory provider: %s", c.InventoryProvider))
	}
	if c.Output == "" {
		errs = append(errs, errors.New("an output path is required (--output or CSVOUT)"))
	}
	if _, err := output.ParseFormat(c.Format); err != nil {
		errs = append(errs, err)
	}
	switch compiler.MergePolicy(c.Merge) {
	case compiler.MergeAdjacent, compiler.MergeExact:
	default:
		errs = append(errs, fmt.Errorf("unknown merge policy %q", c.Merge))
	}
	if c.LOB != "" {
		if _, err := model.ParseLOB(c.LOB); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.DNSTimeout <= 0 {
		errs = append(errs, errors.New("dns-timeout must be positive"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
