package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kuitang/pillbridge-verify/internal/config"
	"github.com/kuitang/pillbridge-verify/internal/journey"
	"github.com/kuitang/pillbridge-verify/internal/obs"
)

// NewRootCmd creates the root command with production dependencies.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultDeps())
}

func newRootCmd(d *deps) *cobra.Command {
	cfg := config.Load()
	var headed, verbose bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Browser journeys that verify the PillBridge front end",
		Long: `verify drives a real browser through the PillBridge caregiver and patient
flows and saves a screenshot as evidence of each run.

Environment variables provide defaults; flags override them.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if verbose {
				obs.SetLevel(slog.LevelDebug)
			}
			if headed {
				cfg.Headless = false
			}
			cfg.TargetURL = strings.TrimRight(strings.TrimSpace(cfg.TargetURL), "/")
			if cmd.Name() == "version" {
				return nil
			}
			return cfg.Validate()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfg.TargetURL, "target-url", cfg.TargetURL, "Base URL of the front end (TARGET_URL)")
	pf.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Directory for screenshots and reports (OUTPUT_DIR)")
	pf.DurationVar(&cfg.StepTimeout, "timeout", cfg.StepTimeout, "Default timeout per browser action (STEP_TIMEOUT)")
	pf.DurationVar(&cfg.AIResponseTimeout, "ai-timeout", cfg.AIResponseTimeout, "Time allowed for the assistant reply (AI_RESPONSE_TIMEOUT)")
	pf.BoolVar(&headed, "headed", false, "Show the browser window")
	pf.BoolVar(&cfg.UniqueEmails, "unique-emails", cfg.UniqueEmails, "Suffix test emails so journeys can be re-run (UNIQUE_EMAILS)")
	pf.BoolVar(&cfg.WriteReport, "report", cfg.WriteReport, "Write a Markdown report next to the screenshot (WRITE_REPORT)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	for _, name := range journey.Names() {
		j, _ := journey.Lookup(name)
		cmd.AddCommand(newJourneyCmd(j, cfg, d))
	}
	cmd.AddCommand(newAllCmd(cfg, d))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

func newJourneyCmd(j journey.Journey, cfg *config.Config, d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   j.Name,
		Short: j.Description,
		Long:  fmt.Sprintf("%s.\n\nSaves %s under the output directory.", j.Description, j.Screenshot),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJourneys(cmd.Context(), cmd.OutOrStdout(), cfg, d, []journey.Journey{j})
		},
	}
}

func newAllCmd(cfg *config.Config, d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run every journey in order, each in its own browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var js []journey.Journey
			for _, name := range journey.Names() {
				j, _ := journey.Lookup(name)
				js = append(js, j)
			}
			return runJourneys(cmd.Context(), cmd.OutOrStdout(), cfg, d, js)
		},
	}
}
