// Strategy runner: executes a strategy document or preset against daily
// bars from CSV files, ClickHouse or an Arrow IPC file and prints a
// summary.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"strategy-backtester/services/engine"
	"strategy-backtester/strategies"
)

type globalFlags struct {
	configPath string
	verbose    bool
	lang       string
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func printer(lang string) *message.Printer {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag)
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "strategy_runner",
		Short:         "Run rule-based strategies over daily bars",
		Version:       engine.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", os.Getenv("BACKTEST_CONFIG"), "path to YAML config")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().StringVar(&g.lang, "lang", "en", "language tag for number formatting")

	root.AddCommand(runCmd(g), presetsCmd(g), validateCmd(g))
	return root
}

func presetsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List preset strategies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := printer(g.lang)
			for _, preset := range strategies.Presets() {
				p.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", preset.Name, preset.Description)
			}
			return nil
		},
	}
}

func validateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <strategy-file>",
		Short: "Check a strategy document without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := strategies.Load(args[0])
			if err != nil {
				return err
			}
			warnings, err := engine.Validate(s)
			out := cmd.OutOrStdout()
			for _, w := range warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			if err != nil {
				return err
			}
			printer(g.lang).Fprintf(out, "%s: %d actions over %d symbols, ok\n", args[0], len(s.Actions), len(s.Universe.Symbols))
			return nil
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
