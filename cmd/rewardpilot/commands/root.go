package commands

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"RewardPilot/internal/config"
	"RewardPilot/pkg/logger"
)

var (
	configPath string
	envFile    string
	cfg        *config.Config
)

// Execute runs the root command with ctx, which is cancelled on SIGINT/SIGTERM.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:           "rewardpilot",
		Short:         "Drive generated wallet identities through the rewards platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			path := configPath
			if path == "" {
				path = os.Getenv("REWARDPILOT_CONFIG")
			}
			if path == "" {
				path = filepath.Join("configs", "rewardpilot.yaml")
			}
			loaded, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := logger.Init(loaded.Log); err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $REWARDPILOT_CONFIG or configs/rewardpilot.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(runCmd(), proxiesCmd())
	return root.ExecuteContext(ctx)
}
