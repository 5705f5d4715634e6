package export

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// EmptyBBox is the envelope of a dataset without geometries.
const EmptyBBox = "POLYGON EMPTY"

// WKT encodes a single geometry.
func WKT(g geom.T) (string, error) {
	s, err := wkt.Marshal(g)
	if err != nil {
		return "", eris.Wrapf(err, "export: encode %T as wkt", g)
	}
	return s, nil
}

// WKTCollection wraps every non-nil geometry in one GEOMETRYCOLLECTION. An
// empty input yields "GEOMETRYCOLLECTION ()".
func WKTCollection(geoms []geom.T) (string, error) {
	parts := make([]string, 0, len(geoms))
	for _, g := range geoms {
		if g == nil {
			continue
		}
		s, err := WKT(g)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "GEOMETRYCOLLECTION (" + strings.Join(parts, ", ") + ")", nil
}

// Bounds returns the XY envelope of geoms as minx, miny, maxx, maxy. ok is
// false when there is nothing to bound.
func Bounds(geoms []geom.T) (minX, minY, maxX, maxY float64, ok bool) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, g := range geoms {
		if g == nil {
			continue
		}
		b := g.Bounds()
		if b.IsEmpty() {
			continue
		}
		minX, minY = math.Min(minX, b.Min(0)), math.Min(minY, b.Min(1))
		maxX, maxY = math.Max(maxX, b.Max(0)), math.Max(maxY, b.Max(1))
		ok = true
	}
	return minX, minY, maxX, maxY, ok
}

// BBoxWKT renders the envelope of geoms as a polygon ring
// (minx miny, maxx miny, maxx maxy, minx maxy, minx miny). A single point
// gives a zero-area box.
func BBoxWKT(geoms []geom.T) (string, error) {
	minX, minY, maxX, maxY, ok := Bounds(geoms)
	if !ok {
		return EmptyBBox, nil
	}
	ring := geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY,
		maxX, minY,
		maxX, maxY,
		minX, maxY,
		minX, minY,
	}, []int{10})
	return WKT(ring)
}
