package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/target/healwright/internal/bootstrap"
	"github.com/target/healwright/internal/domain/model"
	"github.com/target/healwright/internal/observability/statsd"
	"github.com/target/healwright/internal/service"
)

func newSuggestCmd(env *cliEnv) *cobra.Command {
	var (
		req     model.SuggestRequest
		domFile string
	)
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest a replacement for a broken selector",
		Long: `Ask the healing engine for a replacement selector without a database.

The configured AI provider is used when HEALING_PROVIDER (or an API key) is
set; otherwise only the DOM heuristics run. Redis caching is not used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if domFile != "" {
				if req.DOMSnapshot != "" {
					return errors.New("--dom and --dom-file are mutually exclusive")
				}
				raw, err := os.ReadFile(domFile)
				if err != nil {
					return fmt.Errorf("read dom file: %w", err)
				}
				req.DOMSnapshot = string(raw)
			}

			engine, err := bootstrap.BuildHealingEngine(cmd.Context(), env.cfg.Healing, nil, env.logger)
			if err != nil {
				return err
			}
			resp, err := service.NewSuggestService(engine, statsd.Discard, env.logger).Suggest(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVar(&req.Selector, "selector", "", "the selector that failed")
	cmd.Flags().StringVar(&req.ErrorMessage, "error", "", "the test failure message")
	cmd.Flags().StringVar(&req.DOMSnapshot, "dom", "", "DOM snapshot as a string")
	cmd.Flags().StringVar(&domFile, "dom-file", "", "read the DOM snapshot from a file")
	return cmd
}
