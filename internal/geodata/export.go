package geodata

import (
	"bytes"
	"context"
	"io"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/geodata/internal/crs"
	"github.com/sells-group/geodata/internal/export"
	"github.com/sells-group/geodata/internal/format"
	"github.com/sells-group/geodata/internal/model"
	"github.com/sells-group/geodata/internal/pgdump"
	"github.com/sells-group/geodata/internal/topojson"
)

// UnionFormat selects the representation returned by Union.
type UnionFormat string

// Union representations.
const (
	UnionRaw     UnionFormat = "raw"
	UnionGeoJSON UnionFormat = "geojson"
	UnionWKT     UnionFormat = "wkt"
)

// ParseUnionFormat maps a name onto a UnionFormat; empty means raw.
func ParseUnionFormat(s string) (UnionFormat, error) {
	switch u := UnionFormat(s); u {
	case "":
		return UnionRaw, nil
	case UnionRaw, UnionGeoJSON, UnionWKT:
		return u, nil
	default:
		return "", eris.Errorf("geodata: unknown union format %q", s)
	}
}

// UnionResult is a dissolved geometry. Text holds the encoded form for
// UnionGeoJSON and UnionWKT.
type UnionResult struct {
	Geometry geom.T
	Text     string
}

// SQLOptions configures the PostGIS dump.
type SQLOptions struct {
	// CRS of the dumped geometry; zero means EPSG:4326.
	CRS crs.CRS
	// Schema is the target schema; empty uses the dumper's default.
	Schema string
	// Table is the target table; empty uses the layer name.
	Table string
}

// ExportOptions carries the per-format options used by Export.
type ExportOptions struct {
	// CRS is the target CRS; zero uses each format's default.
	CRS             crs.CRS
	EnforceTopology bool
	SQL             SQLOptions
}

// BBox returns the envelope of all features in target (zero means the
// dataset CRS) as a WKT polygon.
func (a *Adapter) BBox(ctx context.Context, target crs.CRS) (string, error) {
	features, _, err := a.project(ctx, target)
	if err != nil {
		return "", err
	}
	return export.BBoxWKT(model.Geometries(features))
}

// GeoJSON returns the dataset as a FeatureCollection in target (zero means
// EPSG:4326).
func (a *Adapter) GeoJSON(ctx context.Context, target crs.CRS) ([]byte, error) {
	features, _, err := a.project(ctx, orWGS84(target))
	if err != nil {
		return nil, err
	}
	return export.GeoJSON(features)
}

// TopoJSON returns the dataset as an unquantized topology in target (zero
// means EPSG:4326). With enforceTopo shared boundaries are stored once as
// arcs; without it every ring and line keeps its own arc. Objects are keyed
// by feature ID.
func (a *Adapter) TopoJSON(ctx context.Context, target crs.CRS, enforceTopo bool) ([]byte, error) {
	features, _, err := a.project(ctx, orWGS84(target))
	if err != nil {
		return nil, err
	}
	return topojson.Marshal(features, topojson.Options{EnforceTopology: enforceTopo})
}

// WKT returns every geometry inside one GEOMETRYCOLLECTION, in target (zero
// means the dataset CRS).
func (a *Adapter) WKT(ctx context.Context, target crs.CRS) (string, error) {
	features, _, err := a.project(ctx, target)
	if err != nil {
		return "", err
	}
	return export.WKTCollection(model.Geometries(features))
}

// KML returns the dataset as a KML document in EPSG:4326. The document is
// written to a temporary file and read back; the file is always removed.
func (a *Adapter) KML(ctx context.Context) (string, error) {
	features, _, err := a.project(ctx, crs.WGS84)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(a.opts.TempDir, "geodata-*.kml")
	if err != nil {
		return "", eris.Wrap(err, "geodata: create kml temp file")
	}
	defer func() {
		_ = tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			a.log.Warn("failed to remove temp file", zap.String("path", tmp.Name()), zap.Error(err))
		}
	}()

	if err := export.WriteKML(tmp, a.ds.Name, a.ds.Fields, features); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", eris.Wrap(err, "geodata: flush kml")
	}

	b, err := os.ReadFile(tmp.Name())
	if err != nil {
		return "", eris.Wrap(err, "geodata: read kml")
	}
	return string(b), nil
}

// SQL returns a PostGIS SQL script that creates and fills a table with the
// dataset.
func (a *Adapter) SQL(ctx context.Context, opts SQLOptions) (string, error) {
	if a.opts.Dumper == nil {
		return "", eris.Wrap(ErrNotImplemented, "geodata: sql export needs ogr2ogr")
	}
	target := orWGS84(opts.CRS)
	features, c, err := a.project(ctx, target)
	if err != nil {
		return "", err
	}
	gj, err := export.GeoJSON(features)
	if err != nil {
		return "", err
	}

	table := opts.Table
	if table == "" {
		table = TableName(a.ds.Name)
	}
	return a.opts.Dumper.Dump(ctx, gj, pgdump.Request{
		Table:  table,
		Schema: opts.Schema,
		SRID:   c.EPSG(),
	})
}

// Union dissolves every feature into one geometry in the dataset CRS.
func (a *Adapter) Union(ctx context.Context, as UnionFormat) (*UnionResult, error) {
	if a.ds == nil {
		return nil, ErrNoDataset
	}
	return a.unionOf(ctx, model.Geometries(a.ds.Features), as)
}

func (a *Adapter) unionOf(ctx context.Context, geoms []geom.T, as UnionFormat) (*UnionResult, error) {
	eng, err := a.engine()
	if err != nil {
		return nil, err
	}
	g, err := eng.Union(ctx, geoms)
	if err != nil {
		return nil, eris.Wrap(err, "geodata: union")
	}
	if a.ds != nil {
		g = withSRID(g, a.ds.CRS.EPSG())
	}

	res := &UnionResult{Geometry: g}
	switch as {
	case UnionRaw, "":
	case UnionGeoJSON:
		b, err := export.GeometryJSON(g)
		if err != nil {
			return nil, err
		}
		res.Text = string(b)
	case UnionWKT:
		if res.Text, err = export.WKT(g); err != nil {
			return nil, err
		}
	default:
		return nil, eris.Errorf("geodata: unknown union format %q", as)
	}
	return res, nil
}

// Parquet writes the dataset to w as GeoParquet in target (zero means the
// dataset CRS).
func (a *Adapter) Parquet(ctx context.Context, target crs.CRS, w io.Writer) error {
	features, c, err := a.project(ctx, target)
	if err != nil {
		return err
	}
	return export.WriteParquet(w, a.ds.Fields, features, export.ParquetOptions{
		EPSG:          c.EPSG(),
		GeometryTypes: geometryTypes(features),
	})
}

// XLSX writes the attribute table to w.
func (a *Adapter) XLSX(w io.Writer) error {
	if a.ds == nil {
		return ErrNoDataset
	}
	return export.WriteXLSX(w, a.ds.Fields, a.ds.Features)
}

// Export renders the dataset in f.
func (a *Adapter) Export(ctx context.Context, f format.Format, opts ExportOptions) ([]byte, error) {
	if a.ds == nil {
		return nil, ErrNoDataset
	}

	switch f {
	case format.GeoJSON:
		return a.GeoJSON(ctx, opts.CRS)
	case format.TopoJSON:
		return a.TopoJSON(ctx, opts.CRS, opts.EnforceTopology)
	case format.WKT:
		s, err := a.WKT(ctx, opts.CRS)
		return []byte(s), err
	case format.KML:
		s, err := a.KML(ctx)
		return []byte(s), err
	case format.SQL:
		sqlOpts := opts.SQL
		if sqlOpts.CRS.IsZero() {
			sqlOpts.CRS = opts.CRS
		}
		s, err := a.SQL(ctx, sqlOpts)
		return []byte(s), err
	case format.Parquet:
		var buf bytes.Buffer
		if err := a.Parquet(ctx, opts.CRS, &buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case format.XLSX:
		var buf bytes.Buffer
		if err := a.XLSX(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, eris.Wrapf(ErrNotImplemented, "geodata: no exporter for %q", f)
	}
}

func orWGS84(c crs.CRS) crs.CRS {
	if c.IsZero() {
		return crs.WGS84
	}
	return c
}

// geometryTypes lists the distinct geometry types present, sorted.
func geometryTypes(features []model.Feature) []string {
	seen := map[string]bool{}
	for _, f := range features {
		if f.Geometry != nil {
			seen[f.GeometryType()] = true
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
