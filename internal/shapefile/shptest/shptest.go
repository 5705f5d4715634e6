// Package shptest builds zipped shapefile fixtures for tests.
package shptest

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

// WGS84PRJ is the .prj content ArcGIS writes for EPSG:4326.
const WGS84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// WebMercatorPRJ is the .prj content ArcGIS writes for EPSG:3857.
const WebMercatorPRJ = `PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Mercator_Auxiliary_Sphere"],PARAMETER["False_Easting",0.0],PARAMETER["False_Northing",0.0],PARAMETER["Central_Meridian",0.0],PARAMETER["Standard_Parallel_1",0.0],PARAMETER["Auxiliary_Sphere_Type",0.0],UNIT["Meter",1.0]]`

// AlbersPRJ is a GDAL-written Conus Albers without an authority on the
// projected CRS itself; only the base GEOGCS carries one.
const AlbersPRJ = `PROJCS["unnamed",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]],PROJECTION["Albers_Conic_Equal_Area"],PARAMETER["standard_parallel_1",29.5],PARAMETER["standard_parallel_2",45.5],PARAMETER["latitude_of_center",23],PARAMETER["longitude_of_center",-96],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["Meter",1]]`

// Layer describes the fixture to write. Rows holds one attribute slice per
// shape, in field order; nil cells are left blank.
type Layer struct {
	Name   string
	Type   shp.ShapeType
	Fields []shp.Field
	Shapes []shp.Shape
	Rows   [][]any
	PRJ    string
	CPG    string
	// Omit lists member extensions (".dbf", ".shx") left out of the archive.
	Omit []string
	// Extra adds arbitrary members to the archive.
	Extra map[string][]byte
}

// WriteZip writes l as a zipped shapefile under dir and returns its path.
func WriteZip(t testing.TB, dir string, l Layer) string {
	t.Helper()

	if l.Name == "" {
		l.Name = "layer"
	}
	work := t.TempDir()
	base := filepath.Join(work, l.Name)

	w, err := shp.Create(base+".shp", l.Type)
	require.NoError(t, err)
	fields := l.Fields
	if len(fields) == 0 {
		fields = []shp.Field{shp.NumberField("ID", 10)}
	}
	require.NoError(t, w.SetFields(fields))

	for i, s := range l.Shapes {
		n := int(w.Write(s))
		if len(l.Fields) == 0 {
			require.NoError(t, w.WriteAttribute(n, 0, i))
			continue
		}
		if i >= len(l.Rows) {
			continue
		}
		for j, v := range l.Rows[i] {
			if v == nil {
				continue
			}
			require.NoError(t, w.WriteAttribute(n, j, v))
		}
	}
	w.Close()

	// go-shp names the attribute table "<base>dbf", without the dot.
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))

	if l.PRJ != "" {
		require.NoError(t, os.WriteFile(base+".prj", []byte(l.PRJ), 0o644))
	}
	if l.CPG != "" {
		require.NoError(t, os.WriteFile(base+".cpg", []byte(l.CPG), 0o644))
	}

	out := filepath.Join(dir, l.Name+".zip")
	f, err := os.Create(out)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	zw := zip.NewWriter(f)
	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj", ".cpg"} {
		if omitted(l.Omit, ext) {
			continue
		}
		b, err := os.ReadFile(base + ext)
		if os.IsNotExist(err) {
			continue
		}
		require.NoError(t, err)
		addMember(t, zw, l.Name+ext, b)
	}
	for name, b := range l.Extra {
		addMember(t, zw, name, b)
	}
	require.NoError(t, zw.Close())

	return out
}

func addMember(t testing.TB, zw *zip.Writer, name string, b []byte) {
	t.Helper()
	mw, err := zw.Create(name)
	require.NoError(t, err)
	_, err = mw.Write(b)
	require.NoError(t, err)
}

func omitted(omit []string, ext string) bool {
	for _, o := range omit {
		if strings.EqualFold(o, ext) {
			return true
		}
	}
	return false
}

// Square returns a clockwise ring (a shapefile shell) for the given box.
func Square(minX, minY, maxX, maxY float64) []shp.Point {
	return []shp.Point{
		{X: minX, Y: minY},
		{X: minX, Y: maxY},
		{X: maxX, Y: maxY},
		{X: maxX, Y: minY},
		{X: minX, Y: minY},
	}
}

// Hole returns a counter-clockwise ring for the given box.
func Hole(minX, minY, maxX, maxY float64) []shp.Point {
	return []shp.Point{
		{X: minX, Y: minY},
		{X: maxX, Y: minY},
		{X: maxX, Y: maxY},
		{X: minX, Y: maxY},
		{X: minX, Y: minY},
	}
}

// Polygon builds a polygon shape from rings.
func Polygon(rings ...[]shp.Point) shp.Shape {
	return shp.NewPolyLine(rings)
}

// Point builds a point shape.
func Point(x, y float64) shp.Shape {
	return &shp.Point{X: x, Y: y}
}

// Line builds a polyline shape from parts.
func Line(parts ...[]shp.Point) shp.Shape {
	return shp.NewPolyLine(parts)
}
