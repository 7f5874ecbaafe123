package main

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mayuresh141/urbanhcf/internal/export"
	"github.com/mayuresh141/urbanhcf/internal/model"
	"github.com/mayuresh141/urbanhcf/internal/pipeline"
)

// analyzeFlags are the query flags shared by analyze and features.
type analyzeFlags struct {
	lat, lon float64
	place    string
	bufferKM float64
	feature  string
	op       string
	value    float64
}

var (
	analyzeOpts   analyzeFlags
	analyzeExport string
	analyzeFormat string
	analyzeLayer  string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the urban heat island around a point or place",
	Long: `Runs the full pipeline for one point: feature extraction, LST prediction,
UHI against the configured reference, and optionally a counterfactual.

Examples:
  urbanhcf analyze --lat 33.6846 --lon -117.8265 --buffer-km 5
  urbanhcf analyze --place Irvine --feature NDVI --op multiply --value 1.2
  urbanhcf analyze --lat 34.05 --lon -118.25 --export uhi.geojson`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		req, err := analyzeOpts.request(cmd)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		runID, result, err := env.Runner.Run(ctx, req)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		if analyzeExport != "" {
			if err := export.WriteFile(analyzeExport, export.Format(analyzeFormat), result, analyzeLayer); err != nil {
				return eris.Wrap(err, "analyze: export")
			}
			zap.L().Info("result exported", zap.String("path", analyzeExport))
		}

		return printRunSummary(os.Stdout, runID, result)
	},
}

func init() {
	addQueryFlags(analyzeCmd, &analyzeOpts, true)
	analyzeCmd.Flags().StringVar(&analyzeExport, "export", "", "also write the result to this file")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "", "export format: geojson, shapefile, xlsx, geotiff (default from extension)")
	analyzeCmd.Flags().StringVar(&analyzeLayer, "layer", export.LayerUHI, "layer for single-band exports")
	rootCmd.AddCommand(analyzeCmd)
}

func addQueryFlags(cmd *cobra.Command, f *analyzeFlags, counterfactual bool) {
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "latitude in degrees")
	cmd.Flags().Float64Var(&f.lon, "lon", 0, "longitude in degrees")
	cmd.Flags().StringVar(&f.place, "place", "", "place name to geocode instead of --lat/--lon")
	cmd.Flags().Float64Var(&f.bufferKM, "buffer-km", 0, "half-width of the analysis box in km (default from config)")
	if counterfactual {
		cmd.Flags().StringVar(&f.feature, "feature", "", "feature band to perturb, e.g. NDVI")
		cmd.Flags().StringVar(&f.op, "op", "", "counterfactual operation: multiply or divide")
		cmd.Flags().Float64Var(&f.value, "value", 0, "counterfactual operand")
	}
}

// request builds a pipeline request from the flags. Either --place or both
// --lat and --lon are required; --feature and --op go together.
func (f *analyzeFlags) request(cmd *cobra.Command) (pipeline.Request, error) {
	req := pipeline.Request{
		Place:   strings.TrimSpace(f.place),
		Feature: strings.TrimSpace(f.feature),
	}
	if cmd.Flags().Changed("buffer-km") {
		km := f.bufferKM
		req.BufferKM = &km
	}
	if req.Place == "" {
		if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
			return req, eris.New("either --place or both --lat and --lon are required")
		}
		req.Lat, req.Lon = f.lat, f.lon
	}
	if f.op != "" {
		if !cmd.Flags().Changed("value") {
			return req, eris.New("--op requires --value")
		}
		req.Change = &model.Change{Operation: model.Operation(strings.ToLower(f.op)), Value: f.value}
	}
	return req, nil
}

// runSummary is the printed outcome of one run.
type runSummary struct {
	RunID          string                    `json:"run_id"`
	BBox           model.BoundingBox         `json:"bbox"`
	Shape          string                    `json:"shape"`
	Units          string                    `json:"units"`
	Counterfactual *model.CounterfactualSpec `json:"counterfactual,omitempty"`
	Summary        model.Summary             `json:"summary"`
}

func printRunSummary(w io.Writer, runID string, r *model.AnalysisResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(runSummary{
		RunID:          runID,
		BBox:           r.BBox,
		Shape:          r.UHI.Shape().String(),
		Units:          r.Units,
		Counterfactual: r.Counterfactual,
		Summary:        r.Summary,
	})
}
