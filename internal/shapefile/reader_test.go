package shapefile

import (
	"errors"
	"os"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/geodata/internal/model"
	"github.com/sells-group/geodata/internal/shapefile/shptest"
)

func TestReadZip_Polygon(t *testing.T) {
	dir := t.TempDir()
	path := shptest.WriteZip(t, dir, shptest.Layer{
		Name: "parcels",
		Type: shp.POLYGON,
		Fields: []shp.Field{
			shp.StringField("NAME", 20),
			shp.NumberField("LOTS", 6),
			shp.FloatField("ACRES", 10, 2),
			shp.DateField("SURVEYED"),
		},
		Shapes: []shp.Shape{shptest.Polygon(shptest.Square(0, 0, 1, 1))},
		Rows:   [][]any{{"North", 12, 3.5, "20240115"}},
		PRJ:    shptest.WGS84PRJ,
	})

	layer, err := ReadZip(path)
	require.NoError(t, err)

	assert.Equal(t, "parcels", layer.Name)
	assert.True(t, layer.HasPRJ())
	assert.Equal(t, shptest.WGS84PRJ, layer.PRJ)
	assert.Equal(t, model.TypePolygon, layer.ShapeType)
	require.Len(t, layer.Features, 1)

	f := layer.Features[0]
	assert.Equal(t, 0, f.ID)
	poly, ok := f.Geometry.(*geom.Polygon)
	require.True(t, ok, "got %T", f.Geometry)
	assert.Equal(t, 1, poly.NumLinearRings())
	assert.Equal(t, []float64{0, 0, 0, 1, 1, 1, 1, 0, 0, 0}, poly.FlatCoords())

	assert.Equal(t, "North", f.Properties["NAME"])
	assert.Equal(t, int64(12), f.Properties["LOTS"])
	assert.InDelta(t, 3.5, f.Properties["ACRES"], 1e-9)
	assert.Equal(t, "2024-01-15", f.Properties["SURVEYED"])

	require.Len(t, layer.Fields, 4)
	assert.Equal(t, []string{"NAME", "LOTS", "ACRES", "SURVEYED"}, model.FieldNames(layer.Fields))
	assert.Equal(t, "float", layer.Fields[2].Kind())
}

func TestReadZip_HolesAndParts(t *testing.T) {
	dir := t.TempDir()
	path := shptest.WriteZip(t, dir, shptest.Layer{
		Type: shp.POLYGON,
		Shapes: []shp.Shape{
			shptest.Polygon(shptest.Square(0, 0, 10, 10), shptest.Hole(2, 2, 4, 4)),
			shptest.Polygon(shptest.Square(0, 0, 1, 1), shptest.Square(5, 5, 6, 6)),
		},
	})

	layer, err := ReadZip(path)
	require.NoError(t, err)
	require.Len(t, layer.Features, 2)

	withHole, ok := layer.Features[0].Geometry.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, 2, withHole.NumLinearRings())

	multi, ok := layer.Features[1].Geometry.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 2, multi.NumPolygons())
	assert.Equal(t, model.TypeMixed, layer.ShapeType)

	// Default ID field is written when no fields are given.
	assert.Equal(t, int64(1), layer.Features[1].Properties["ID"])
}

func TestReadZip_PointsAndLines(t *testing.T) {
	dir := t.TempDir()
	points := shptest.WriteZip(t, dir, shptest.Layer{
		Name:   "wells",
		Type:   shp.POINT,
		Shapes: []shp.Shape{shptest.Point(-122.5, 45.5), shptest.Point(-122.6, 45.6)},
	})
	layer, err := ReadZip(points)
	require.NoError(t, err)
	assert.Equal(t, model.TypePoint, layer.ShapeType)
	assert.False(t, layer.HasPRJ())
	pt := layer.Features[1].Geometry.(*geom.Point)
	assert.Equal(t, []float64{-122.6, 45.6}, pt.FlatCoords())

	roads := shptest.WriteZip(t, dir, shptest.Layer{
		Name: "roads",
		Type: shp.POLYLINE,
		Shapes: []shp.Shape{
			shptest.Line([]shp.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}),
			shptest.Line([]shp.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}, []shp.Point{{X: 2, Y: 2}, {X: 3, Y: 3}}),
		},
	})
	layer, err = ReadZip(roads)
	require.NoError(t, err)
	assert.IsType(t, &geom.LineString{}, layer.Features[0].Geometry)
	mls, ok := layer.Features[1].Geometry.(*geom.MultiLineString)
	require.True(t, ok)
	assert.Equal(t, 2, mls.NumLineStrings())
}

func TestReadZip_MissingMembers(t *testing.T) {
	tests := []struct {
		name    string
		omit    []string
		missing []string
	}{
		{"no dbf", []string{".dbf"}, []string{".dbf"}},
		{"no shx", []string{".shx"}, []string{".shx"}},
		{"only prj", []string{".shp", ".shx", ".dbf"}, []string{".shp", ".shx", ".dbf"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := shptest.WriteZip(t, t.TempDir(), shptest.Layer{
				Type:   shp.POINT,
				Shapes: []shp.Shape{shptest.Point(1, 2)},
				PRJ:    shptest.WGS84PRJ,
				Omit:   tt.omit,
			})

			_, err := ReadZip(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrIncompleteShapefile))

			var inc *IncompleteShapefileError
			require.True(t, errors.As(err, &inc))
			assert.Equal(t, tt.missing, inc.Missing)
		})
	}
}

func TestReadZip_MultipleLayers(t *testing.T) {
	path := shptest.WriteZip(t, t.TempDir(), shptest.Layer{
		Type:   shp.POINT,
		Shapes: []shp.Shape{shptest.Point(1, 2)},
		Extra:  map[string][]byte{"other.SHP": []byte("x")},
	})

	_, err := ReadZip(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMultipleLayers))
}

func TestReadZip_IgnoresMacOSXAndCaseInsensitive(t *testing.T) {
	path := shptest.WriteZip(t, t.TempDir(), shptest.Layer{
		Name:   "UPPER",
		Type:   shp.POINT,
		Shapes: []shp.Shape{shptest.Point(1, 2)},
		Extra:  map[string][]byte{"__MACOSX/._UPPER.shp": []byte("resource fork")},
	})

	layer, err := ReadZip(path)
	require.NoError(t, err)
	assert.Len(t, layer.Features, 1)
}

func TestReadZipFrom(t *testing.T) {
	path := shptest.WriteZip(t, t.TempDir(), shptest.Layer{
		Type:   shp.POINT,
		Shapes: []shp.Shape{shptest.Point(1, 2)},
	})
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	info, err := f.Stat()
	require.NoError(t, err)

	layer, err := ReadZipFrom(f, info.Size(), "upload.zip")
	require.NoError(t, err)
	assert.Len(t, layer.Features, 1)
}

func TestReadZip_NotAnArchive(t *testing.T) {
	path := t.TempDir() + "/bad.zip"
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))
	_, err := ReadZip(path)
	require.Error(t, err)
}

func TestReadZip_CodePage(t *testing.T) {
	path := shptest.WriteZip(t, t.TempDir(), shptest.Layer{
		Type:   shp.POINT,
		Fields: []shp.Field{shp.StringField("CITY", 20)},
		Shapes: []shp.Shape{shptest.Point(1, 2)},
		Rows:   [][]any{{"K\xf6ln"}},
		CPG:    "1252",
	})

	layer, err := ReadZip(path)
	require.NoError(t, err)
	assert.Equal(t, "1252", layer.Encoding)
	assert.Equal(t, "Köln", layer.Features[0].Properties["CITY"])
}

func TestParseValue(t *testing.T) {
	num := model.Field{Type: model.FieldNumeric}
	dec := model.Field{Type: model.FieldNumeric, Precision: 2}
	logical := model.Field{Type: model.FieldLogical}
	date := model.Field{Type: model.FieldDate}
	char := model.Field{Type: model.FieldCharacter}

	assert.Equal(t, int64(42), parseValue(num, "   42"))
	assert.Equal(t, 4.25, parseValue(dec, "4.25"))
	assert.Nil(t, parseValue(num, "******"))
	assert.Nil(t, parseValue(num, "   "))
	assert.Equal(t, true, parseValue(logical, "T"))
	assert.Equal(t, false, parseValue(logical, "n"))
	assert.Nil(t, parseValue(logical, "?"))
	assert.Equal(t, "1999-12-31", parseValue(date, "19991231"))
	assert.Nil(t, parseValue(date, "00000000"))
	assert.Equal(t, "abc", parseValue(char, "abc   \x00\x00"))
}

func TestDecoderFor(t *testing.T) {
	d, err := decoderFor("UTF-8")
	require.NoError(t, err)
	assert.Equal(t, "ü", d("ü"))

	d, err = decoderFor("ISO-8859-1")
	require.NoError(t, err)
	assert.Equal(t, "é", d("\xe9"))

	_, err = decoderFor("klingon")
	assert.Error(t, err)

	assert.Equal(t, "é", defaultDecoder("\xe9"))
}

func TestSignedArea(t *testing.T) {
	cw := []float64{0, 0, 0, 1, 1, 1, 1, 0, 0, 0}
	ccw := []float64{0, 0, 1, 0, 1, 1, 0, 1, 0, 0}
	assert.Less(t, signedArea(cw), 0.0)
	assert.Greater(t, signedArea(ccw), 0.0)
}
