package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"facr-builder/internal/catalog"
	"facr-builder/internal/compiler"
	"facr-builder/internal/engine"
	"facr-builder/internal/model"
	"facr-builder/internal/output"
	"facr-builder/internal/ui"
	"facr-builder/internal/utils"
)

var (
	diffContext int

	checkRules string
	checkSrc   string
	checkDst   string
	checkPort  string
)

func newServicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List the services defined in the catalog",
		Args:  cobra.NoArgs,
		RunE:  runServices,
	}
}

func newDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <old.csv> <new.csv>",
		Short: "Show a unified diff of two rule tables",
		Long: `diff re-sorts both rule tables into canonical order and prints a unified
diff. It exits non-zero when the tables differ.`,
		Args: cobra.ExactArgs(2),
		RunE: runDiff,
	}
	cmd.Flags().IntVar(&diffContext, "context", 3, "Lines of context around each change")
	return cmd
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a flow is allowed by a rule table",
		Long: `check evaluates a flow against a compiled rule table, first match in
table order. --src and --dst take an address or a CIDR block; with a block the
whole range is checked at once. It exits non-zero unless the flow is allowed.`,
		Args: cobra.NoArgs,
		RunE: runCheck,
	}
	cmd.Flags().StringVar(&checkRules, "rules", "", "Rule table CSV file (required)")
	cmd.Flags().StringVar(&checkSrc, "src", "", "Source address or CIDR (required)")
	cmd.Flags().StringVar(&checkDst, "dst", "", "Destination address or CIDR (required)")
	cmd.Flags().StringVar(&checkPort, "port", "443/tcp", "Port and protocol, e.g. 443/tcp, udp/53 or icmp")
	cmd.MarkFlagRequired("rules")
	cmd.MarkFlagRequired("src")
	cmd.MarkFlagRequired("dst")
	return cmd
}

func runServices(cmd *cobra.Command, args []string) error {
	if cfg.Services == "" {
		return errors.New("a service catalog is required (--services or SERVICES)")
	}
	cat, err := catalog.LoadFile(cfg.Services)
	if err != nil {
		logFailure("Failed to load service catalog", err)
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.Bold(fmt.Sprintf("%-20s %-6s %-12s %s", "SERVICE", "PROTO", "PORTS", "FLOW")))
	for _, svc := range cat.Services() {
		flow := joinSelectors(svc.Sources) + " -> " + joinSelectors(svc.Destinations)
		if svc.Bidirectional {
			flow = joinSelectors(svc.Sources) + " <-> " + joinSelectors(svc.Destinations)
		}
		line := fmt.Sprintf("%-20s %-6s %-12s %s", svc.Name, svc.Protocol, svc.Ports, flow)
		if svc.Required {
			line += " " + ui.Bold("(required)")
		}
		if svc.Description != "" {
			line += " " + ui.Hint(svc.Description)
		}
		fmt.Fprintln(out, line)
	}
	ui.Success(out, fmt.Sprintf("%d services", cat.Len()))
	return nil
}

func joinSelectors(sels []model.Selector) string {
	parts := make([]string, len(sels))
	for i, s := range sels {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

func runDiff(cmd *cobra.Command, args []string) error {
	tables := make([][]string, 2)
	for i, path := range args {
		rules, err := output.ReadFile(path)
		if err != nil {
			slog.Error("Failed to read rule table", "path", path, "error", err)
			return err
		}
		compiler.Sort(rules)
		tables[i] = tableLines(rules)
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        tables[0],
		B:        tables[1],
		FromFile: args[0],
		ToFile:   args[1],
		Context:  diffContext,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if text == "" {
		ui.Success(out, "rule tables are identical")
		return nil
	}
	for _, line := range difflib.SplitLines(text) {
		fmt.Fprint(out, ui.DiffLine(strings.TrimSuffix(line, "\n"))+"\n")
	}
	return fmt.Errorf("rule tables differ: %w", errReported)
}

func tableLines(rules []model.CompiledRule) []string {
	lines := make([]string, 0, len(rules))
	for _, r := range rules {
		lines = append(lines, fmt.Sprintf("%s,%s,%s,%s\n", r.Source, r.Destination, r.Protocol, r.Ports))
	}
	return lines
}

func runCheck(cmd *cobra.Command, args []string) error {
	port, proto, err := engine.ParsePortSpec(checkPort)
	if err != nil {
		return err
	}
	src, err := utils.ParsePrefix(checkSrc)
	if err != nil {
		return fmt.Errorf("--src: %w", err)
	}
	dst, err := utils.ParsePrefix(checkDst)
	if err != nil {
		return fmt.Errorf("--dst: %w", err)
	}

	rules, err := output.ReadFile(checkRules)
	if err != nil {
		slog.Error("Failed to read rule table", "path", checkRules, "error", err)
		return err
	}
	evaluator := engine.NewEvaluator(rules)
	out := cmd.OutOrStdout()

	if utils.IsHostPrefix(src) && utils.IsHostPrefix(dst) {
		res := evaluator.Evaluate(engine.Flow{Src: src.Addr(), Dst: dst.Addr(), Protocol: proto, Port: port})
		slog.Debug("Flow evaluated", "src", src.Addr(), "dst", dst.Addr(), "protocol", proto, "port", port, "decision", res.Decision, "reason", res.Reason)
		if res.Rule == nil {
			fmt.Fprintf(out, "%s %s\n", ui.Decision(res.Decision), ui.Hint(res.Reason))
			return fmt.Errorf("flow denied: %w", errReported)
		}
		fmt.Fprintf(out, "%s row %d: %s\n", ui.Decision(res.Decision), res.Row, describeRule(*res.Rule))
		return nil
	}

	status, rule, reason := evaluator.Precheck(src, dst, port, proto)
	slog.Debug("Block prechecked", "src", src, "dst", dst, "protocol", proto, "port", port, "status", status, "reason", reason)
	switch status {
	case engine.StatusAllowAll:
		fmt.Fprintf(out, "%s %s\n", ui.Decision(engine.DecisionAllow), describeRule(*rule))
		return nil
	case engine.StatusExpand:
		if rule == nil {
			return fmt.Errorf("could not check %s -> %s: %s", src, dst, reason)
		}
		ui.Warn(out, fmt.Sprintf("only part of the block is allowed by %s", describeRule(*rule)))
		return fmt.Errorf("flow partially allowed: %w", errReported)
	}
	fmt.Fprintf(out, "%s %s\n", ui.Decision(engine.DecisionDeny), ui.Hint(reason))
	return fmt.Errorf("flow denied: %w", errReported)
}

func describeRule(r model.CompiledRule) string {
	s := fmt.Sprintf("%s -> %s %s/%s", r.Source, r.Destination, r.Protocol, r.Ports)
	if len(r.Services) > 0 {
		s += " [" + strings.Join(r.Services, ",") + "]"
	}
	return s
}
