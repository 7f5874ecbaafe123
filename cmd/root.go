package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mayuresh141/urbanhcf/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "urbanhcf",
	Short: "Urban heat island analysis and counterfactual scenarios",
	Long:  "Extracts raster features around a point, predicts land surface temperature, and measures the urban heat island and its response to counterfactual feature changes.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
