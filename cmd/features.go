package main

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mayuresh141/urbanhcf/internal/features"
	"github.com/mayuresh141/urbanhcf/internal/geo"
	"github.com/mayuresh141/urbanhcf/internal/model"
)

var featuresOpts analyzeFlags

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Print the feature bands extracted around a point",
	Long:  "Reads the feature raster window for a point and prints its bounding box, grid shape and per-band means, without running the model.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		req, err := featuresOpts.request(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate("features"); err != nil {
			return err
		}

		lat, lon := req.Lat, req.Lon
		if req.Place != "" {
			res, err := initGeocoder().Geocode(ctx, req.Place)
			if err != nil {
				return eris.Wrap(err, "features: geocode")
			}
			if !res.Matched {
				return model.NewError(model.KindInvalidInput, "place not found", "place", req.Place)
			}
			lat, lon = res.Latitude, res.Longitude
		}
		buffer := req.Buffer(cfg.Analysis.BufferKM)

		bbox, err := geo.NewBBoxBuilder(cfg.Analysis.MaxAbsLatitude).BBox(lat, lon, buffer)
		if err != nil {
			return err
		}

		feat, mask, err := initRasters(ctx)
		if err != nil {
			return err
		}
		defer feat.Close()
		defer mask.Close()

		ex, err := features.NewExtractor(feat)
		if err != nil {
			return err
		}
		extraction, err := ex.Extract(ctx, bbox)
		if err != nil {
			return eris.Wrap(err, "features: extract")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(featureReport(bbox, extraction))
	},
}

func init() {
	addQueryFlags(featuresCmd, &featuresOpts, false)
	rootCmd.AddCommand(featuresCmd)
}

type bandReport struct {
	Name string      `json:"name"`
	Mean model.Float `json:"mean"`
}

type featuresReport struct {
	BBox  model.BoundingBox `json:"bbox"`
	Shape string            `json:"shape"`
	Bands []bandReport      `json:"bands"`
}

// featureReport lists band means in raster band order.
func featureReport(bbox model.BoundingBox, ex *features.Extraction) featuresReport {
	bands := make([]bandReport, 0, len(ex.BandMeans))
	for name, mean := range ex.BandMeans {
		bands = append(bands, bandReport{Name: name, Mean: model.Float(mean)})
	}
	sort.Slice(bands, func(i, j int) bool {
		a, _ := model.BandIndex(bands[i].Name)
		b, _ := model.BandIndex(bands[j].Name)
		return a < b
	})
	return featuresReport{BBox: bbox, Shape: ex.Tensor.Shape().String(), Bands: bands}
}
