package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"facr-builder/internal/catalog"
	"facr-builder/internal/compiler"
	"facr-builder/internal/config"
	"facr-builder/internal/inventory"
	"facr-builder/internal/metrics"
	"facr-builder/internal/model"
	"facr-builder/internal/output"
	"facr-builder/internal/ui"
)

var version = "1.0-go"

// cfg is loaded once per invocation by the root PersistentPreRunE.
var cfg *config.Config

// errReported marks failures whose details were already printed.
var errReported = errors.New("reported")

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "facr_builder [service...]",
		Short: "Compile a service catalog and host inventory into a firewall rule table",
		Long: `facr_builder expands the selectors of every catalog service against the
host inventory, merges port ranges per flow and writes a deterministic rule table.

Positional arguments restrict compilation to the named services.`,
		Args:              cobra.ArbitraryArgs,
		RunE:              run,
		PersistentPreRunE: setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newServicesCmd(), newDiffCmd(), newCheckCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprint(os.Stderr, ui.FormatError(errorTitle(err), err.Error(), errorHint(err)))
		}
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.LogLevel, cfg.LogFile, cfg.LogFormat)
	slog.SetDefault(logger)
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		return err
	}

	slog.Info("Starting facr_builder", "version", version)
	ctx := cmd.Context()
	startTime := time.Now()

	// --- 1. Load Catalog ---
	slog.Info("Loading service catalog", "path", cfg.Services)
	cat, err := catalog.LoadFile(cfg.Services)
	if err != nil {
		logFailure("Failed to load service catalog", err)
		return err
	}
	slog.Info("Service catalog loaded", "services", cat.Len())

	// --- 2. Load Inventory ---
	slog.Info("Loading host inventory", "provider", cfg.InventoryProvider)
	inv, err := loadInventory(ctx, cfg)
	if err != nil {
		logFailure("Failed to load host inventory", err)
		return err
	}
	slog.Info("Host inventory loaded", "hosts", inv.Len(), "tags", len(inv.Tags()))

	// --- 3. Compile ---
	compileStart := time.Now()
	res, err := compiler.Compile(cat, inv, compiler.Options{
		Services: args,
		Merge:    compiler.MergePolicy(cfg.Merge),
		Workers:  cfg.Workers,
	})
	if err != nil {
		logFailure("Compilation failed", err)
		return err
	}
	compileTime := time.Since(compileStart)
	for _, w := range res.Report.Warnings {
		slog.Warn(w.Message, "run_id", res.Report.RunID, "kind", w.Kind, "service", w.Service, "selector", w.Selector)
	}

	// --- 4. Write Output ---
	opts, err := outputOptions(cfg)
	if err != nil {
		return err
	}
	if err := output.WriteFile(cfg.Output, res.Rules, opts); err != nil {
		slog.Error("Failed to write rule table", "path", cfg.Output, "error", err)
		return err
	}

	if cfg.MetricsFile != "" {
		reg := metrics.New()
		reg.InventoryHosts.Set(float64(inv.Len()))
		reg.ObserveCompile(res.Report, compileTime)
		if err := reg.WriteTextfile(cfg.MetricsFile); err != nil {
			slog.Warn("Failed to write metrics file", "path", cfg.MetricsFile, "error", err)
		}
	}

	slog.Info("Compilation complete",
		"run_id", res.Report.RunID,
		"output_file", cfg.Output,
		"format", opts.Format,
		"services", res.Report.Services,
		"omitted", len(res.Report.Omitted),
		"candidate_rules", res.Report.Candidates,
		"rules", res.Report.Rules,
		"broad_rules", res.Report.Broad,
		"warnings", len(res.Report.Warnings),
		"duration", time.Since(startTime),
	)
	return nil
}

func loadInventory(ctx context.Context, cfg *config.Config) (*inventory.Inventory, error) {
	var opts inventory.Options
	if cfg.Resolve {
		resolver, err := inventory.NewDNSResolver(cfg.DNSServer, cfg.DNSTimeout)
		if err != nil {
			return nil, err
		}
		slog.Info("Resolving address-less hosts", "dns_server", resolver.Server())
		opts.Resolver = resolver
	}

	switch cfg.InventoryProvider {
	case config.ProviderFile:
		f, err := os.Open(cfg.Hosts)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return inventory.Load(ctx, f, opts)
	case config.ProviderMariaDB, config.ProviderSQLite:
		driver := "mysql"
		if cfg.InventoryProvider == config.ProviderSQLite {
			driver = "sqlite"
		}
		src, err := inventory.NewSQLSource(driver, cfg.DB, cfg.Env)
		if err != nil {
			return nil, err
		}
		defer src.Close()
		return src.Load(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown inventory provider: %s", cfg.InventoryProvider)
	}
}

func outputOptions(cfg *config.Config) (output.Options, error) {
	format, err := output.ParseFormat(cfg.Format)
	if err != nil {
		return output.Options{}, err
	}
	opts := output.Options{Format: format}
	if cfg.LOB != "" {
		if opts.LOB, err = model.ParseLOB(cfg.LOB); err != nil {
			return output.Options{}, err
		}
	}
	return opts, nil
}

// logFailure logs err with the kind and context of the typed error it wraps.
func logFailure(msg string, err error) {
	attrs := []any{"error", err}
	var (
		catErr  *catalog.Error
		invErr  *inventory.Error
		compErr *compiler.Error
	)
	switch {
	case errors.As(err, &catErr):
		attrs = append(attrs, "kind", catErr.Kind, "service", catErr.Service)
		if catErr.Field != "" {
			attrs = append(attrs, "field", catErr.Field)
		}
	case errors.As(err, &invErr):
		attrs = append(attrs, "kind", invErr.Kind, "line", invErr.Line, "host", invErr.Host)
	case errors.As(err, &compErr):
		attrs = append(attrs, "kind", compErr.Kind, "service", compErr.Service)
	}
	slog.Error(msg, attrs...)
}

func errorTitle(err error) string {
	var (
		catErr  *catalog.Error
		invErr  *inventory.Error
		compErr *compiler.Error
	)
	switch {
	case errors.As(err, &catErr):
		return "invalid service catalog"
	case errors.As(err, &invErr):
		return "invalid host inventory"
	case errors.As(err, &compErr):
		return "compilation failed"
	}
	return "facr_builder failed"
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, catalog.ErrInvalidPort):
		return "ports are 1-65535, a range like 80-443, a well-known name or 'any'"
	case errors.Is(err, catalog.ErrInvalidSelector):
		return "selectors are any, host:<id>, tag:<tag>, cidr:<prefix> or a bare address"
	case errors.Is(err, inventory.ErrDuplicateHost):
		return "host identifiers must be unique across the inventory"
	case errors.Is(err, compiler.ErrNoMatches):
		return "check the service's tags against the inventory, or mark it required: false"
	case errors.Is(err, output.ErrUnknownFormat):
		return "use --format csv or --format facr"
	}
	return ""
}

func setupLogger(level, logFilePath, format string) *slog.Logger {
	var logWriter io.Writer = os.Stderr
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			logWriter = f
		}
		// The logger is not up yet; fall back to stderr silently.
	}

	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "INFO":
		lvl = slog.LevelInfo
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(logWriter, opts))
	}
	return slog.New(slog.NewJSONHandler(logWriter, opts))
}
