package raster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mayuresh141/urbanhcf/internal/db"
	"github.com/mayuresh141/urbanhcf/internal/geo"
	"github.com/mayuresh141/urbanhcf/internal/model"
)

// PostGISSource reads windows from a single-tile raster stored in a PostGIS
// table with columns (name TEXT, rast RASTER). Clipping happens server side,
// so only the window's pixels cross the wire.
type PostGISSource struct {
	pool    db.Pool
	table   string
	name    string
	info    Info
	closeFn func()
}

// PostGISOption configures a PostGISSource.
type PostGISOption func(*PostGISSource)

// WithPoolOwnership makes Close also close the pool.
func WithPoolOwnership() PostGISOption {
	return func(s *PostGISSource) {
		s.closeFn = s.pool.Close
	}
}

// NewPostGIS loads the georeference of raster name from table.
func NewPostGIS(ctx context.Context, pool db.Pool, table, name string, opts ...PostGISOption) (*PostGISSource, error) {
	ident, err := tableIdentifier(table)
	if err != nil {
		return nil, err
	}
	s := &PostGISSource{pool: pool, table: ident, name: name}
	for _, opt := range opts {
		opt(s)
	}

	query := fmt.Sprintf(`SELECT ST_UpperLeftX(rast), ST_UpperLeftY(rast), ST_ScaleX(rast), ST_ScaleY(rast),
		ST_SkewX(rast), ST_SkewY(rast), ST_Width(rast), ST_Height(rast), ST_NumBands(rast), ST_SRID(rast)
		FROM %s WHERE name = $1`, ident)

	var (
		ulx, uly, sx, sy, skx, sky float64
		width, height, bands, srid int32
	)
	err = pool.QueryRow(ctx, query, name).Scan(&ulx, &uly, &sx, &sy, &skx, &sky, &width, &height, &bands, &srid)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NewError(model.KindDataUnavailable, "raster not found", "table", table, "name", name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "raster: postgis metadata for %s", name)
	}
	if skx != 0 || sky != 0 {
		return nil, eris.Errorf("raster: postgis raster %s is rotated", name)
	}
	crs := ""
	if srid > 0 {
		crs = fmt.Sprintf("EPSG:%d", srid)
	}
	if err := checkCRS(crs, name); err != nil {
		return nil, err
	}

	s.info = Info{
		Cols:      int(width),
		Rows:      int(height),
		Bands:     int(bands),
		Transform: geo.Transform{OriginX: ulx, OriginY: uly, PixelWidth: sx, PixelHeight: sy},
		CRS:       crs,
	}
	zap.L().Debug("raster: opened postgis raster",
		zap.String("table", table),
		zap.String("name", name),
		zap.Int("cols", s.info.Cols),
		zap.Int("rows", s.info.Rows),
		zap.Int("bands", s.info.Bands),
	)
	return s, nil
}

// tableIdentifier validates and quotes a [schema.]table name.
func tableIdentifier(table string) (string, error) {
	parts := strings.Split(table, ".")
	if len(parts) > 2 {
		return "", eris.Errorf("raster: invalid table name %q", table)
	}
	for _, p := range parts {
		if p == "" {
			return "", eris.Errorf("raster: invalid table name %q", table)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}

// Info implements Source.
func (s *PostGISSource) Info() Info { return s.info }

// Close implements Source.
func (s *PostGISSource) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// ReadWindow implements Source. The clip envelope is the pixel-aligned bounds
// of the planned window, so the server returns exactly the window's pixels.
func (s *PostGISSource) ReadWindow(ctx context.Context, bbox model.BoundingBox) (*Window, error) {
	w, err := PlanWindow(s.info, bbox)
	if err != nil {
		return nil, err
	}
	env := s.info.Transform.WindowBounds(w)

	query := fmt.Sprintf(`SELECT (dv).nband, (dv).valarray
		FROM (
			SELECT ST_DumpValues(ST_Clip(rast, ST_MakeEnvelope($2, $3, $4, $5, ST_SRID(rast)), true)) AS dv
			FROM %s WHERE name = $1
		) q
		ORDER BY (dv).nband`, s.table)

	rows, err := s.pool.Query(ctx, query, s.name, env.MinLon, env.MinLat, env.MaxLon, env.MaxLat)
	if err != nil {
		return nil, eris.Wrap(err, "raster: postgis clip query")
	}
	defer rows.Close()

	out := model.NewStack(s.info.Bands, w.Height, w.Width)
	seen := 0
	for rows.Next() {
		var (
			nband  int32
			values [][]*float64
		)
		if err := rows.Scan(&nband, &values); err != nil {
			return nil, eris.Wrap(err, "raster: scan postgis band")
		}
		b := int(nband) - 1
		if b < 0 || b >= s.info.Bands {
			return nil, eris.Errorf("raster: postgis returned band %d of %d", nband, s.info.Bands)
		}
		got := model.Shape{Rows: len(values)}
		if len(values) > 0 {
			got.Cols = len(values[0])
		}
		if got != w.Shape() {
			return nil, model.NewError(model.KindShapeMismatch, "postgis clip does not match the planned window",
				"band", nband, "window", w.Shape(), "clip", got)
		}
		dst := out.Band(b)
		for r, row := range values {
			if len(row) != w.Width {
				return nil, model.NewError(model.KindShapeMismatch, "ragged postgis band", "band", nband, "row", r)
			}
			for c, v := range row {
				if v == nil {
					dst[r*w.Width+c] = math.NaN()
					continue
				}
				dst[r*w.Width+c] = *v
			}
		}
		seen++
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "raster: iterate postgis bands")
	}
	if seen != s.info.Bands {
		return nil, model.NewError(model.KindDataUnavailable, "postgis clip returned too few bands",
			"want", s.info.Bands, "got", seen, "bbox", bbox)
	}
	return newWindow(s.info, w, out), nil
}
