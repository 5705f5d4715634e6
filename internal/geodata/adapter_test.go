package geodata

import (
	"context"
	"errors"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/geodata/internal/crs"
	"github.com/sells-group/geodata/internal/format"
	"github.com/sells-group/geodata/internal/model"
	"github.com/sells-group/geodata/internal/shapefile"
	"github.com/sells-group/geodata/internal/shapefile/shptest"
)

// Envelope of the single treatment polygon used as the reference fixture.
const (
	fixtureMinX = -120.49474239349365
	fixtureMinY = 48.356049409316185
	fixtureMaxX = -120.48525810241698
	fixtureMaxY = 48.366913315743155
)

const fixtureWKT = "POLYGON ((-120.49474239349365 48.356049409316185, " +
	"-120.49474239349365 48.366913315743155, " +
	"-120.48525810241698 48.366913315743155, " +
	"-120.48525810241698 48.356049409316185, " +
	"-120.49474239349365 48.356049409316185))"

const fixtureBBox = "POLYGON ((-120.49474239349365 48.356049409316185, " +
	"-120.48525810241698 48.356049409316185, " +
	"-120.48525810241698 48.366913315743155, " +
	"-120.49474239349365 48.366913315743155, " +
	"-120.49474239349365 48.356049409316185))"

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.WarnLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func writeFixture(t *testing.T, dir string) string {
	t.Helper()
	return shptest.WriteZip(t, dir, shptest.Layer{
		Name:   "small_polygon_treatment_4326",
		Type:   shp.POLYGON,
		Fields: []shp.Field{shp.StringField("TREATMENT", 20), shp.NumberField("ACRES", 8)},
		Shapes: []shp.Shape{shptest.Polygon(shptest.Square(fixtureMinX, fixtureMinY, fixtureMaxX, fixtureMaxY))},
		Rows:   [][]any{{"thin", 42}},
		PRJ:    shptest.WGS84PRJ,
	})
}

func readFixture(t *testing.T, opts Options) *Adapter {
	t.Helper()
	a := New(opts)
	require.NoError(t, a.Read(context.Background(), writeFixture(t, t.TempDir()), ReadOptions{Format: "zip", CRS: crs.WGS84}))
	return a
}

// loaded returns an adapter holding features directly, in EPSG:4326.
func loaded(eng Engine, features ...model.Feature) *Adapter {
	a := New(Options{Engine: eng})
	for i := range features {
		features[i].ID = i
	}
	a.ds = &Dataset{Name: "test", Format: format.Shp, CRS: crs.WGS84, Features: features}
	return a
}

func TestRead_Fixture(t *testing.T) {
	a := readFixture(t, Options{Engine: newFakeEngine()})

	ds, err := a.Dataset()
	require.NoError(t, err)
	assert.Equal(t, format.Shp, ds.Format)
	assert.Equal(t, "small_polygon_treatment_4326", ds.Name)

	s, err := a.ProjectionString()
	require.NoError(t, err)
	assert.Equal(t, "EPSG:4326", s)

	p4, err := a.Proj4()
	require.NoError(t, err)
	assert.Equal(t, "+proj=longlat +datum=WGS84 +no_defs +type=crs", p4)

	id, err := a.ProjectionID()
	require.NoError(t, err)
	assert.Equal(t, 4326, id)

	n, err := a.FeatureCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	types, err := a.FeatureTypes()
	require.NoError(t, err)
	assert.Equal(t, []string{model.TypePolygon}, types)

	assert.Equal(t, 4326, ds.Features[0].Geometry.SRID())
	assert.Equal(t, "thin", ds.Features[0].Properties["TREATMENT"])
}

func TestRead_FixtureExports(t *testing.T) {
	eng := newFakeEngine()
	a := readFixture(t, Options{Engine: eng})
	ctx := context.Background()

	bbox, err := a.BBox(ctx, crs.CRS{})
	require.NoError(t, err)
	assert.Equal(t, fixtureBBox, bbox)

	wkt, err := a.WKT(ctx, crs.CRS{})
	require.NoError(t, err)
	assert.Equal(t, "GEOMETRYCOLLECTION ("+fixtureWKT+")", wkt)

	// Reprojecting into the CRS the dataset is already in is the identity.
	same, err := a.WKT(ctx, crs.WGS84)
	require.NoError(t, err)
	assert.Equal(t, wkt, same)

	gj, err := a.GeoJSON(ctx, crs.CRS{})
	require.NoError(t, err)
	gj2, err := a.GeoJSON(ctx, crs.WGS84)
	require.NoError(t, err)
	assert.JSONEq(t, string(gj), string(gj2))

	assert.Zero(t, eng.transforms, "no transform for the dataset's own CRS")
}

func TestRead_DeclaredShpOnZipWarns(t *testing.T) {
	logs := observeLogs(t)
	path := writeFixture(t, t.TempDir())

	a := New(Options{})
	require.NoError(t, a.Read(context.Background(), path, ReadOptions{Format: "shp"}))

	n, err := a.FeatureCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, logs.FilterMessageSnippet("does not match").Len())
}

func TestRead_NoPRJ(t *testing.T) {
	layer := shptest.Layer{
		Name:   "points",
		Type:   shp.POINT,
		Shapes: []shp.Shape{shptest.Point(1, 2)},
	}

	t.Run("assumes default and warns", func(t *testing.T) {
		logs := observeLogs(t)
		a := New(Options{})
		require.NoError(t, a.Read(context.Background(), shptest.WriteZip(t, t.TempDir(), layer), ReadOptions{}))

		id, err := a.ProjectionID()
		require.NoError(t, err)
		assert.Equal(t, 4326, id)
		assert.Equal(t, 1, logs.FilterMessage("no CRS detected, assuming default").Len())
	})

	t.Run("configured default", func(t *testing.T) {
		a := New(Options{DefaultCRS: crs.MustEPSG(4269)})
		require.NoError(t, a.Read(context.Background(), shptest.WriteZip(t, t.TempDir(), layer), ReadOptions{}))

		id, err := a.ProjectionID()
		require.NoError(t, err)
		assert.Equal(t, 4269, id)
	})

	t.Run("caller CRS is the source", func(t *testing.T) {
		eng := newFakeEngine()
		a := New(Options{Engine: eng})
		require.NoError(t, a.Read(context.Background(), shptest.WriteZip(t, t.TempDir(), layer), ReadOptions{CRS: crs.WebMercator}))

		id, err := a.ProjectionID()
		require.NoError(t, err)
		assert.Equal(t, 3857, id)
		assert.Zero(t, eng.transforms)
	})
}

func TestRead_ReprojectsToWorkingCRS(t *testing.T) {
	logs := observeLogs(t)
	path := shptest.WriteZip(t, t.TempDir(), shptest.Layer{
		Name:   "mercator",
		Type:   shp.POINT,
		Shapes: []shp.Shape{shptest.Point(1113194.9079327357, 2273030.926987689)},
		PRJ:    shptest.WebMercatorPRJ,
	})

	eng := newFakeEngine()
	a := New(Options{Engine: eng})
	require.NoError(t, a.Read(context.Background(), path, ReadOptions{CRS: crs.WGS84}))

	assert.Equal(t, 1, eng.transforms)
	ds, err := a.Dataset()
	require.NoError(t, err)
	assert.Equal(t, 4326, ds.CRS.EPSG())

	pt := ds.Features[0].Geometry.FlatCoords()
	assert.InDelta(t, 10, pt[0], 1e-7)
	assert.InDelta(t, 20, pt[1], 1e-7)
	assert.Equal(t, 4326, ds.Features[0].Geometry.SRID())

	warn := logs.FilterMessage("reprojecting dataset").All()
	require.Len(t, warn, 1)
	assert.Equal(t, "EPSG:3857", warn[0].ContextMap()["from"])
	assert.Equal(t, "EPSG:4326", warn[0].ContextMap()["to"])
}

func TestRead_ReprojectWithoutEngine(t *testing.T) {
	path := shptest.WriteZip(t, t.TempDir(), shptest.Layer{
		Type:   shp.POINT,
		Shapes: []shp.Shape{shptest.Point(0, 0)},
		PRJ:    shptest.WebMercatorPRJ,
	})

	a := New(Options{})
	err := a.Read(context.Background(), path, ReadOptions{CRS: crs.WGS84})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoEngine))
}

func TestRead_ProjectedPRJIsNotWGS84(t *testing.T) {
	path := shptest.WriteZip(t, t.TempDir(), shptest.Layer{
		Name:   "albers",
		Type:   shp.POINT,
		Shapes: []shp.Shape{shptest.Point(-1683000, 2360000)},
		PRJ:    shptest.AlbersPRJ,
	})

	eng := newFakeEngine()
	a := New(Options{Engine: eng})
	err := a.Read(context.Background(), path, ReadOptions{CRS: crs.WGS84})
	require.Error(t, err, "metre coordinates must be reprojected, not relabelled")
	assert.Equal(t, 1, eng.transforms)
	assert.Contains(t, err.Error(), "cannot transform")
}

func TestRead_Errors(t *testing.T) {
	dir := t.TempDir()
	incomplete := shptest.WriteZip(t, dir, shptest.Layer{
		Name:   "nodbf",
		Type:   shp.POINT,
		Shapes: []shp.Shape{shptest.Point(0, 0)},
		Omit:   []string{".dbf"},
	})

	tests := []struct {
		name     string
		path     string
		declared string
		wantErr  error
	}{
		{name: "missing dbf", path: incomplete, wantErr: shapefile.ErrIncompleteShapefile},
		{name: "tar.gz container", path: "parcels.tar.gz", declared: "zip", wantErr: format.ErrUnsupportedContainer},
		{name: "gzip container", path: "parcels.gzip", wantErr: format.ErrUnsupportedContainer},
		{name: "tar.gz undeclared", path: "parcels.tar.gz", wantErr: format.ErrUnsupportedContainer},
		{name: "gzip declared geojson", path: "data.gzip", declared: "geojson", wantErr: format.ErrUnsupportedContainer},
		{name: "geojson has no reader", path: "parcels.geojson", declared: "geojson", wantErr: ErrNoReader},
		{name: "nothing detected", path: "parcels", wantErr: ErrNoReader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(Options{}).Read(context.Background(), tt.path, ReadOptions{Format: tt.declared})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestRead_FailureDropsPreviousDataset(t *testing.T) {
	a := readFixture(t, Options{})

	err := a.Read(context.Background(), "missing.zip", ReadOptions{})
	require.Error(t, err)

	_, err = a.FeatureCount()
	assert.True(t, errors.Is(err, ErrNoDataset))
}

func TestAccessors_NoDataset(t *testing.T) {
	a := New(Options{})
	ctx := context.Background()

	_, err := a.ProjectionString()
	assert.True(t, errors.Is(err, ErrNoDataset))
	_, err = a.Proj4()
	assert.True(t, errors.Is(err, ErrNoDataset))
	_, err = a.ProjectionID()
	assert.True(t, errors.Is(err, ErrNoDataset))
	_, err = a.FeatureCount()
	assert.True(t, errors.Is(err, ErrNoDataset))
	_, err = a.FeatureTypes()
	assert.True(t, errors.Is(err, ErrNoDataset))
	_, err = a.BBox(ctx, crs.CRS{})
	assert.True(t, errors.Is(err, ErrNoDataset))
	_, err = a.Export(ctx, format.GeoJSON, ExportOptions{})
	assert.True(t, errors.Is(err, ErrNoDataset))
	_, err = a.RemoveOverlap(ctx)
	assert.True(t, errors.Is(err, ErrNoDataset))
}

func TestAccessors_NoCRS(t *testing.T) {
	a := loaded(nil)
	a.ds.CRS = crs.CRS{}

	_, err := a.ProjectionString()
	assert.True(t, errors.Is(err, ErrNoCRS))
}

func TestProj4_WKTOnlyCRS(t *testing.T) {
	c, err := crs.FromPRJ(`PROJCS["Local_Grid",GEOGCS["GCS_Local",DATUM["D_Local",SPHEROID["Local",6378137.0,298.257223563]]],PROJECTION["Transverse_Mercator"]]`)
	require.NoError(t, err)

	a := loaded(nil)
	a.ds.CRS = c

	id, err := a.ProjectionID()
	require.NoError(t, err)
	assert.Zero(t, id)

	_, err = a.Proj4()
	assert.True(t, errors.Is(err, ErrNoCRS))
}

func TestClose(t *testing.T) {
	a := readFixture(t, Options{})
	a.Close()
	_, err := a.Dataset()
	assert.True(t, errors.Is(err, ErrNoDataset))
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "small_polygon_treatment_4326", TableName("small_polygon_treatment_4326"))
	assert.Equal(t, "parcels_2024", TableName("Parcels 2024"))
	assert.Equal(t, "t_2024", TableName("2024"))
	assert.Equal(t, "t_", TableName(""))
}
