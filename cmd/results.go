package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mayuresh141/urbanhcf/internal/export"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect and export stored analysis runs",
	Long:  "Commands for viewing, exporting and purging analysis results held in the result store.",
}

// -- results show --

var resultsShowFull bool

var resultsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		runner, st, err := initResults(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		result, err := runner.Load(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "results show")
		}

		if !resultsShowFull {
			return printRunSummary(os.Stdout, args[0], result)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// -- results export --

var (
	resultsExportFormat string
	resultsExportLayer  string
)

var resultsExportCmd = &cobra.Command{
	Use:   "export <run-id> <path>",
	Short: "Write a stored run as GeoJSON, shapefile, XLSX or GeoTIFF",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		runner, st, err := initResults(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		result, err := runner.Load(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "results export")
		}
		if err := export.WriteFile(args[1], export.Format(resultsExportFormat), result, resultsExportLayer); err != nil {
			return eris.Wrap(err, "results export")
		}

		zap.L().Info("result exported",
			zap.String("run_id", args[0]),
			zap.String("path", args[1]),
		)
		return nil
	},
}

// -- results purge --

var resultsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired results from the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		_, st, err := initResults(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.DeleteExpired(ctx)
		if err != nil {
			return eris.Wrap(err, "results purge")
		}
		fmt.Fprintf(os.Stdout, "removed %d expired results\n", n)
		return nil
	},
}

func init() {
	resultsShowCmd.Flags().BoolVar(&resultsShowFull, "full", false, "print every grid, not just the summary")
	resultsExportCmd.Flags().StringVar(&resultsExportFormat, "format", "", "geojson, shapefile, xlsx or geotiff (default from extension)")
	resultsExportCmd.Flags().StringVar(&resultsExportLayer, "layer", export.LayerUHI, "layer for GeoTIFF export: lst, uhi, counterfactual_uhi, delta_uhi")

	resultsCmd.AddCommand(resultsShowCmd)
	resultsCmd.AddCommand(resultsExportCmd)
	resultsCmd.AddCommand(resultsPurgeCmd)
	rootCmd.AddCommand(resultsCmd)
}
