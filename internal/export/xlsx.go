package export

import (
	"io"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/mayuresh141/urbanhcf/internal/model"
)

// WriteXLSX writes r as a workbook: a "summary" sheet followed by one sheet
// per layer the result carries, laid out like the grid (row 1 = north).
func WriteXLSX(w io.Writer, r *model.AnalysisResult) error {
	g, err := gridOf(r)
	if err != nil {
		return err
	}

	f := xlsx.NewFile()
	if err := summarySheet(f, r); err != nil {
		return err
	}
	for _, l := range layers(r) {
		if l.grid == nil {
			continue
		}
		sheet, err := f.AddSheet(l.name)
		if err != nil {
			return eris.Wrapf(err, "export: add sheet %s", l.name)
		}
		for row := 0; row < g.shape.Rows; row++ {
			xr := sheet.AddRow()
			for col := 0; col < g.shape.Cols; col++ {
				cell := xr.AddCell()
				if v := l.value(row, col); v != nil {
					cell.SetFloat(*v)
				}
			}
		}
	}
	return eris.Wrap(f.Write(w), "export: write xlsx")
}

func summarySheet(f *xlsx.File, r *model.AnalysisResult) error {
	sheet, err := f.AddSheet("summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}
	add := func(key string, v model.Float) {
		row := sheet.AddRow()
		row.AddCell().SetString(key)
		if c := row.AddCell(); !isMissing(float64(v)) {
			c.SetFloat(float64(v))
		}
	}
	text := func(key, v string) {
		row := sheet.AddRow()
		row.AddCell().SetString(key)
		row.AddCell().SetString(v)
	}

	text("bbox", r.BBox.String())
	text("crs", r.CRS)
	text("units", r.Units)
	if r.Counterfactual != nil {
		text("counterfactual", string(r.Counterfactual.Operation)+" "+r.Counterfactual.Feature)
		add("counterfactual_value", model.Float(r.Counterfactual.Value))
	}
	s := r.Summary
	add("lst_mean", s.LSTMean)
	add("uhi_mean", s.UHIMean)
	add("reference", s.Reference)
	add("counterfactual_uhi_mean", s.CounterfactualUHIMean)
	add("counterfactual_reference", s.CounterfactualReference)
	add("delta_uhi_mean", s.DeltaUHIMean)

	names := make([]string, 0, len(s.BandMeans))
	for n := range s.BandMeans {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		add("mean_"+n, s.BandMeans[n])
	}
	return nil
}
