package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geodata/internal/crs"
	"github.com/sells-group/geodata/internal/fetcher"
	"github.com/sells-group/geodata/internal/format"
	"github.com/sells-group/geodata/internal/geodata"
	"github.com/sells-group/geodata/internal/model"
	"github.com/sells-group/geodata/internal/shapefile/shptest"
	"github.com/sells-group/geodata/internal/store"
)

func writeParcels(t *testing.T, dir, name string) string {
	t.Helper()
	return shptest.WriteZip(t, dir, shptest.Layer{
		Name:   name,
		Type:   shp.POLYGON,
		Fields: []shp.Field{shp.StringField("OWNER", 20)},
		Shapes: []shp.Shape{shptest.Polygon(shptest.Square(-120.5, 48.35, -120.49, 48.36))},
		Rows:   [][]any{{"county"}},
		PRJ:    shptest.WGS84PRJ,
	})
}

// testEnv is an env without a spatial engine or dumper.
func testEnv(t *testing.T, journal bool) *env {
	t.Helper()
	e := &env{
		Options:  geodata.Options{TempDir: t.TempDir()},
		Resolver: &fetcher.Resolver{TempDir: t.TempDir()},
	}
	if journal {
		j, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
		require.NoError(t, err)
		require.NoError(t, j.Migrate(context.Background()))
		e.Journal = j
	}
	t.Cleanup(e.Close)
	return e
}

func TestConvertFile_GeoJSON(t *testing.T) {
	e := testEnv(t, true)
	src := writeParcels(t, t.TempDir(), "parcels")
	outDir := filepath.Join(t.TempDir(), "out")

	res, err := convertFile(context.Background(), e, src, convertOptions{To: format.GeoJSON, OutDir: outDir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "parcels.geojson"), res.Path)
	assert.Equal(t, 1, res.Features)

	b, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(b)), res.Bytes)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, "FeatureCollection", doc["type"])

	runs, err := e.Journal.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	assert.Equal(t, src, runs[0].Source)
	assert.Equal(t, "geojson", runs[0].Format)
	assert.Equal(t, "EPSG:4326", runs[0].CRS)
	assert.Equal(t, 1, runs[0].Features)
}

func TestConvertFile_ExplicitOut(t *testing.T) {
	e := testEnv(t, false)
	src := writeParcels(t, t.TempDir(), "parcels")
	out := filepath.Join(t.TempDir(), "nested", "shapes.wkt")

	res, err := convertFile(context.Background(), e, src, convertOptions{To: format.WKT, Out: out, CRS: crs.WGS84})
	require.NoError(t, err)
	assert.Equal(t, out, res.Path)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), "GEOMETRYCOLLECTION (POLYGON")
}

func TestConvertFile_FailureIsJournaled(t *testing.T) {
	e := testEnv(t, true)
	src := writeParcels(t, t.TempDir(), "parcels")

	_, err := convertFile(context.Background(), e, src, convertOptions{To: format.SQL, OutDir: t.TempDir()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, geodata.ErrNotImplemented))

	runs, err := e.Journal.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

func TestConvertFile_NotExportable(t *testing.T) {
	e := testEnv(t, true)

	_, err := convertFile(context.Background(), e, "x.zip", convertOptions{To: format.Shp})
	assert.True(t, errors.Is(err, format.ErrUnknownFormat))

	runs, err := e.Journal.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs, "rejected before a run is recorded")
}

func TestConvertFile_MissingSource(t *testing.T) {
	e := testEnv(t, false)

	_, err := convertFile(context.Background(), e, filepath.Join(t.TempDir(), "missing.zip"), convertOptions{To: format.GeoJSON})
	assert.Error(t, err)
}

func TestOpenSource_RemovesNothingLocal(t *testing.T) {
	e := testEnv(t, false)
	src := writeParcels(t, t.TempDir(), "parcels")

	a, cleanup, err := openSource(context.Background(), e, src, "", crs.CRS{})
	require.NoError(t, err)
	n, err := a.FeatureCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cleanup()
	_, err = os.Stat(src)
	assert.NoError(t, err, "local sources are never deleted")
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "given.json", outputPath("given.json", "dir", "parcels", ".geojson"))
	assert.Equal(t, filepath.Join("dir", "parcels.geojson"), outputPath("", "dir", "parcels", ".geojson"))
	assert.Equal(t, "parcels.kml", outputPath("", "", "parcels", ".kml"))
	assert.Equal(t, filepath.Join("out", "roads.sql"), outputPath("", "out", "/data/roads.zip", ".sql"))
}

func TestWriteOutput(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, "", []byte("POINT (1 2)")))
	assert.Equal(t, "POINT (1 2)", buf.String())

	buf.Reset()
	require.NoError(t, writeOutput(&buf, "-", []byte("x")))
	assert.Equal(t, "x", buf.String())

	p := filepath.Join(t.TempDir(), "a", "b.txt")
	require.NoError(t, writeOutput(&buf, p, []byte("y")))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "y", string(b))
}
