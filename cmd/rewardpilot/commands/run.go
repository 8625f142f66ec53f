package commands

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"RewardPilot/internal/observability/metrics"
	"RewardPilot/internal/workflow"
	"RewardPilot/pkg/logger"
)

func runCmd() *cobra.Command {
	var count string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate identities and run the daily pipeline for each",
		RunE: func(cmd *cobra.Command, args []string) error {
			input := count
			if !cmd.Flags().Changed("count") {
				line, err := prompt(cmd.InOrStdin(), cmd.OutOrStdout(), "How many identities to run? ")
				if err != nil {
					return err
				}
				input = line
			}
			n, err := workflow.ParseRunCount(input)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			app, err := build(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			stats, runErr := app.runner.Run(ctx, n)
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d/%d identities succeeded, %d/%d tasks completed in %s\n",
				stats.RunID, stats.Succeeded, stats.Requested, stats.TasksCompleted, stats.TasksTotal, stats.Duration.Round(1e6))

			if cfg.Metrics.Path != "" {
				if err := metrics.Default.WriteFile(cfg.Metrics.Path); err != nil {
					logger.L().Warn("write metrics snapshot", slog.Any("error", err))
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&count, "count", "n", "", "number of identities to generate")
	return cmd
}

func prompt(in io.Reader, out io.Writer, question string) (string, error) {
	fmt.Fprint(out, question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
