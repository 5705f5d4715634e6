// Package geodata holds one loaded geospatial dataset and converts it into
// the export formats the service supports.
package geodata

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/geodata/internal/crs"
	"github.com/sells-group/geodata/internal/format"
	"github.com/sells-group/geodata/internal/model"
	"github.com/sells-group/geodata/internal/pgdump"
	"github.com/sells-group/geodata/internal/shapefile"
)

var (
	// ErrNoDataset is returned by accessors called before a successful Read.
	ErrNoDataset = eris.New("geodata: no dataset loaded")
	// ErrNoCRS is returned when the dataset has no usable CRS representation.
	ErrNoCRS = eris.New("geodata: dataset has no CRS")
	// ErrNotImplemented is returned for formats without a handler.
	ErrNotImplemented = eris.New("geodata: format not implemented")
	// ErrNoReader is returned when the detected input format cannot be read.
	ErrNoReader = eris.New("geodata: no reader for format")
	// ErrNoEngine is returned when an operation needs the spatial engine and
	// the adapter was built without one.
	ErrNoEngine = eris.New("geodata: spatial engine not configured")
)

// Engine runs geometry operations. *spatial.Engine implements it.
type Engine interface {
	Transform(ctx context.Context, geoms []geom.T, from, to crs.CRS) ([]geom.T, error)
	Union(ctx context.Context, geoms []geom.T) (geom.T, error)
	IsValid(ctx context.Context, g geom.T) (bool, error)
	MakeValid(ctx context.Context, g geom.T) (geom.T, error)
	Intersects(ctx context.Context, a, b geom.T) (bool, error)
	Equals(ctx context.Context, a, b geom.T) (bool, error)
	Difference(ctx context.Context, a, b geom.T) (geom.T, error)
}

// Dumper converts GeoJSON to a PostGIS SQL script. *pgdump.Dumper implements it.
type Dumper interface {
	Dump(ctx context.Context, geojson []byte, req pgdump.Request) (string, error)
}

// Options configures an Adapter.
type Options struct {
	// DefaultCRS is assumed for inputs that carry no projection and for
	// which the caller gives none. Zero means EPSG:4326.
	DefaultCRS crs.CRS
	Engine     Engine
	Dumper     Dumper
	// TempDir holds scratch files for file-backed exports.
	TempDir string
}

// ReadOptions are the optional inputs to Read.
type ReadOptions struct {
	// Format is the declared input format; empty derives it from the name.
	Format string
	// CRS is the working CRS. Inputs without a .prj are assumed to be in
	// it, and inputs in a different CRS are reprojected into it.
	CRS crs.CRS
}

// Dataset is the loaded content.
type Dataset struct {
	Name     string
	Source   string
	Format   format.Format
	CRS      crs.CRS
	Fields   []model.Field
	Features []model.Feature
	// Encoding is the attribute code page declared by the input, if any.
	Encoding string
}

// GeometryType is the single geometry type of the dataset, or Mixed.
func (d *Dataset) GeometryType() string { return model.CollectionType(d.Features) }

// Adapter reads one dataset at a time and serves it in other formats. It is
// not safe for concurrent use.
type Adapter struct {
	opts Options
	ds   *Dataset
	log  *zap.Logger
}

// New creates an Adapter.
func New(opts Options) *Adapter {
	if opts.DefaultCRS.IsZero() {
		opts.DefaultCRS = crs.WGS84
	}
	return &Adapter{
		opts: opts,
		log:  zap.L().With(zap.String("component", "geodata")),
	}
}

// Read loads the dataset at path, replacing any previous one. The previous
// dataset is dropped even when the read fails.
func (a *Adapter) Read(ctx context.Context, path string, opts ReadOptions) error {
	a.ds = nil

	f, err := format.Detect(path, opts.Format)
	if err != nil {
		return err
	}

	var layer *shapefile.Layer
	switch f {
	case format.Zip:
		if layer, err = shapefile.ReadZip(path); err != nil {
			return err
		}
	default:
		if format.IsArchive(path) {
			return eris.Wrapf(format.ErrUnsupportedContainer, "geodata: %s", filepath.Base(path))
		}
		return eris.Wrapf(ErrNoReader, "geodata: cannot read %s as %q", filepath.Base(path), f)
	}

	src := a.sourceCRS(path, layer, opts.CRS)
	ds := &Dataset{
		Name:     layer.Name,
		Source:   path,
		Format:   format.Shp,
		CRS:      src,
		Fields:   layer.Fields,
		Features: layer.Features,
		Encoding: layer.Encoding,
	}

	if !opts.CRS.IsZero() && !src.Equal(opts.CRS) {
		a.log.Warn("reprojecting dataset",
			zap.String("source", path),
			zap.String("from", src.String()),
			zap.String("to", opts.CRS.String()),
		)
		geoms, err := a.transform(ctx, model.Geometries(ds.Features), src, opts.CRS)
		if err != nil {
			return err
		}
		for i := range ds.Features {
			ds.Features[i].Geometry = geoms[i]
		}
		ds.CRS = opts.CRS
	} else if code := src.EPSG(); code > 0 {
		for i := range ds.Features {
			ds.Features[i].Geometry = withSRID(ds.Features[i].Geometry, code)
		}
	}

	a.ds = ds
	a.log.Info("dataset loaded",
		zap.String("source", path),
		zap.String("layer", ds.Name),
		zap.String("crs", ds.CRS.String()),
		zap.Int("features", len(ds.Features)),
		zap.String("geometry_type", ds.GeometryType()),
	)
	return nil
}

// sourceCRS resolves the CRS the layer's coordinates are in: the .prj when
// it parses, else the caller's working CRS, else the configured default.
func (a *Adapter) sourceCRS(path string, layer *shapefile.Layer, working crs.CRS) crs.CRS {
	if layer.HasPRJ() {
		c, err := crs.FromPRJ(layer.PRJ)
		if err == nil {
			if c.EPSG() == 0 {
				a.log.Warn("projection not in registry, keeping WKT definition",
					zap.String("source", path),
					zap.String("name", c.Name()),
				)
			}
			return c
		}
		a.log.Warn("unreadable projection file", zap.String("source", path), zap.Error(err))
	}
	if !working.IsZero() {
		return working
	}
	a.log.Warn("no CRS detected, assuming default",
		zap.String("source", path),
		zap.String("crs", a.opts.DefaultCRS.String()),
	)
	return a.opts.DefaultCRS
}

// Close discards the dataset.
func (a *Adapter) Close() {
	a.ds = nil
}

// Dataset returns the loaded dataset.
func (a *Adapter) Dataset() (*Dataset, error) {
	if a.ds == nil {
		return nil, ErrNoDataset
	}
	return a.ds, nil
}

func (a *Adapter) datasetCRS() (crs.CRS, error) {
	if a.ds == nil {
		return crs.CRS{}, ErrNoDataset
	}
	if a.ds.CRS.IsZero() {
		return crs.CRS{}, ErrNoCRS
	}
	return a.ds.CRS, nil
}

// ProjectionString returns the CRS as "EPSG:xxxx", or its PROJ4 or name form
// when it has no EPSG code.
func (a *Adapter) ProjectionString() (string, error) {
	c, err := a.datasetCRS()
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// Proj4 returns the CRS as a PROJ4 string carrying +type=crs.
func (a *Adapter) Proj4() (string, error) {
	c, err := a.datasetCRS()
	if err != nil {
		return "", err
	}
	if c.Proj4() == "" {
		return "", eris.Wrapf(ErrNoCRS, "geodata: no PROJ4 form for %s", c)
	}
	return c.Proj4(), nil
}

// ProjectionID returns the EPSG code, 0 when the CRS has none.
func (a *Adapter) ProjectionID() (int, error) {
	c, err := a.datasetCRS()
	if err != nil {
		return 0, err
	}
	return c.EPSG(), nil
}

// FeatureCount returns the number of features.
func (a *Adapter) FeatureCount() (int, error) {
	if a.ds == nil {
		return 0, ErrNoDataset
	}
	return len(a.ds.Features), nil
}

// FeatureTypes returns the geometry type of every feature in order.
func (a *Adapter) FeatureTypes() ([]string, error) {
	if a.ds == nil {
		return nil, ErrNoDataset
	}
	types := make([]string, len(a.ds.Features))
	for i, f := range a.ds.Features {
		types[i] = f.GeometryType()
	}
	return types, nil
}

// project returns the features reprojected to target. A zero target or the
// dataset's own CRS returns the stored features unchanged.
func (a *Adapter) project(ctx context.Context, target crs.CRS) ([]model.Feature, crs.CRS, error) {
	if a.ds == nil {
		return nil, crs.CRS{}, ErrNoDataset
	}
	if target.IsZero() || target.Equal(a.ds.CRS) {
		return a.ds.Features, a.ds.CRS, nil
	}

	geoms, err := a.transform(ctx, model.Geometries(a.ds.Features), a.ds.CRS, target)
	if err != nil {
		return nil, crs.CRS{}, err
	}
	out := make([]model.Feature, len(a.ds.Features))
	for i, f := range a.ds.Features {
		out[i] = model.Feature{ID: f.ID, Geometry: geoms[i], Properties: f.Properties}
	}
	return out, target, nil
}

func (a *Adapter) transform(ctx context.Context, geoms []geom.T, from, to crs.CRS) ([]geom.T, error) {
	if a.opts.Engine == nil {
		return nil, eris.Wrapf(ErrNoEngine, "geodata: reproject %s to %s", from, to)
	}
	if from.IsZero() {
		return nil, eris.Wrapf(ErrNoCRS, "geodata: cannot reproject to %s", to)
	}
	out, err := a.opts.Engine.Transform(ctx, geoms, from, to)
	if err != nil {
		return nil, eris.Wrapf(err, "geodata: reproject %s to %s", from, to)
	}
	return out, nil
}

func (a *Adapter) engine() (Engine, error) {
	if a.opts.Engine == nil {
		return nil, ErrNoEngine
	}
	return a.opts.Engine, nil
}

func withSRID(g geom.T, srid int) geom.T {
	if g == nil {
		return nil
	}
	if out, err := geom.SetSRID(g, srid); err == nil {
		return out
	}
	return g
}

// TableName turns a layer name into a lower-case SQL identifier.
func TableName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "t_" + s
	}
	return s
}
