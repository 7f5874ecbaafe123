package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mayuresh141/urbanhcf/internal/model"
	"github.com/mayuresh141/urbanhcf/internal/pipeline"
)

var (
	batchCSV      string
	batchOutput   string
	batchLimit    int
	batchBufferKM float64
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Analyze every point of a CSV file",
	Long: `Reads points from a CSV with a header of either name,lat,lon or
name,place and analyzes each one. Every successful run is stored on its own;
failed rows are logged and counted without stopping the batch.

Examples:
  urbanhcf batch --csv cities.csv --output runs.csv
  urbanhcf batch --csv points.csv --limit 10 --buffer-km 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		f, err := os.Open(batchCSV)
		if err != nil {
			return eris.Wrap(err, "batch: open csv")
		}
		points, err := parsePoints(f)
		f.Close() //nolint:errcheck
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		if cmd.Flags().Changed("buffer-km") {
			for i := range points {
				km := batchBufferKM
				points[i].Request.BufferKM = &km
			}
		}

		outcomes, err := processBatch(ctx, points, batchLimit, cfg.Batch.MaxConcurrent, env.Runner.Run)
		if err != nil {
			return err
		}

		out := io.Writer(os.Stdout)
		if batchOutput != "" {
			of, err := os.Create(batchOutput)
			if err != nil {
				return eris.Wrap(err, "batch: create output")
			}
			defer of.Close() //nolint:errcheck
			out = of
		}
		return writeOutcomes(out, outcomes)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchCSV, "csv", "", "input CSV path (required)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "write per-row outcomes as CSV to this path (default stdout)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of rows to process (0 = all)")
	batchCmd.Flags().Float64Var(&batchBufferKM, "buffer-km", 0, "buffer for every row (default from config)")
	_ = batchCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(batchCmd)
}

// batchPoint is one CSV row.
type batchPoint struct {
	Name    string
	Request pipeline.Request
}

// parsePoints reads a CSV whose header is name,lat,lon or name,place
// (case-insensitive, any column order).
func parsePoints(r io.Reader) ([]batchPoint, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, eris.New("batch: csv is empty")
	}
	if err != nil {
		return nil, eris.Wrap(err, "batch: read csv header")
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	nameCol, hasName := cols["name"]
	latCol, hasLat := cols["lat"]
	lonCol, hasLon := cols["lon"]
	placeCol, hasPlace := cols["place"]
	if !hasName || !(hasLat && hasLon || hasPlace) {
		return nil, eris.Errorf("batch: csv header must be name,lat,lon or name,place; got %v", header)
	}

	field := func(rec []string, i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var points []batchPoint
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "batch: read csv line %d", line)
		}

		p := batchPoint{Name: field(rec, nameCol)}
		if hasPlace {
			p.Request.Place = field(rec, placeCol)
		}
		if p.Request.Place == "" {
			if !hasLat || !hasLon {
				return nil, eris.Errorf("batch: line %d has no place", line)
			}
			lat, err := strconv.ParseFloat(field(rec, latCol), 64)
			if err != nil {
				return nil, eris.Wrapf(err, "batch: line %d: bad lat", line)
			}
			lon, err := strconv.ParseFloat(field(rec, lonCol), 64)
			if err != nil {
				return nil, eris.Wrapf(err, "batch: line %d: bad lon", line)
			}
			p.Request.Lat, p.Request.Lon = lat, lon
		}
		if p.Name == "" {
			p.Name = p.Request.Place
		}
		points = append(points, p)
	}
	return points, nil
}

// runFunc runs one analysis and persists it.
type runFunc func(ctx context.Context, req pipeline.Request) (string, *model.AnalysisResult, error)

// batchOutcome is the result of one row.
type batchOutcome struct {
	Name   string
	RunID  string
	Result *model.AnalysisResult
	Err    error
}

// processBatch applies limit, then runs points concurrently. Row failures are
// recorded in the outcomes and never abort the batch. Outcomes keep input order.
func processBatch(ctx context.Context, points []batchPoint, limit, concurrency int, run runFunc) ([]batchOutcome, error) {
	if len(points) == 0 {
		zap.L().Info("no points to analyze")
		return nil, nil
	}

	// Apply limit
	if limit > 0 && len(points) > limit {
		points = points[:limit]
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("points", len(points)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var (
		succeeded, failed atomic.Int64
		mu                sync.Mutex
	)
	outcomes := make([]batchOutcome, len(points))

	for i, p := range points {
		g.Go(func() error {
			log := zap.L().With(zap.String("point", p.Name))

			runID, result, err := run(gctx, p.Request)
			mu.Lock()
			outcomes[i] = batchOutcome{Name: p.Name, RunID: runID, Result: result, Err: err}
			mu.Unlock()
			if err != nil {
				failed.Add(1)
				log.Error("analysis failed", zap.Error(err), zap.String("kind", string(model.KindOf(err))))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			log.Info("analysis complete",
				zap.String("run_id", runID),
				zap.Float64("uhi_mean", float64(result.Summary.UHIMean)),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return outcomes, nil
}

// writeOutcomes writes one CSV row per outcome.
func writeOutcomes(w io.Writer, outcomes []batchOutcome) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"name", "run_id", "status", "lst_mean", "uhi_mean", "reference", "delta_uhi_mean", "error"}); err != nil {
		return eris.Wrap(err, "batch: write header")
	}
	for _, o := range outcomes {
		row := []string{o.Name, o.RunID, "ok", "", "", "", "", ""}
		if o.Err != nil {
			row[2] = "error"
			row[7] = o.Err.Error()
		} else if o.Result != nil {
			s := o.Result.Summary
			row[3] = formatFloat(s.LSTMean)
			row[4] = formatFloat(s.UHIMean)
			row[5] = formatFloat(s.Reference)
			row[6] = formatFloat(s.DeltaUHIMean)
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "batch: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "batch: flush")
}

// formatFloat renders NaN as an empty cell.
func formatFloat(f model.Float) string {
	v := float64(f)
	if v != v {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}
