package geodata

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/geodata/internal/crs"
	"github.com/sells-group/geodata/internal/pgdump"
)

const earthRadius = 6378137.0

// fakeEngine implements Engine for axis-aligned rectangles. It reprojects
// between EPSG:4326 and EPSG:3857 with the spherical Mercator formulas.
type fakeEngine struct {
	transforms int
	unions     int
	invalid    map[geom.T]bool
	failWith   error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{invalid: map[geom.T]bool{}}
}

func (f *fakeEngine) Transform(_ context.Context, geoms []geom.T, from, to crs.CRS) ([]geom.T, error) {
	f.transforms++
	if f.failWith != nil {
		return nil, f.failWith
	}
	var fn func(x, y float64) (float64, float64)
	switch {
	case from.EPSG() == 4326 && to.EPSG() == 3857:
		fn = func(x, y float64) (float64, float64) {
			return earthRadius * x * math.Pi / 180,
				earthRadius * math.Log(math.Tan(math.Pi/4+y*math.Pi/360))
		}
	case from.EPSG() == 3857 && to.EPSG() == 4326:
		fn = func(x, y float64) (float64, float64) {
			return x / earthRadius * 180 / math.Pi,
				(2*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2) * 180 / math.Pi
		}
	default:
		return nil, eris.Errorf("fake: cannot transform %s to %s", from, to)
	}

	out := make([]geom.T, len(geoms))
	for i, g := range geoms {
		if g == nil {
			continue
		}
		c := clone(g)
		flat := c.FlatCoords()
		for k := 0; k+1 < len(flat); k += c.Stride() {
			flat[k], flat[k+1] = fn(flat[k], flat[k+1])
		}
		out[i] = withSRID(c, to.EPSG())
	}
	return out, nil
}

// Union returns the envelope of all inputs, which is exact for rectangles
// that tile a rectangle.
func (f *fakeEngine) Union(_ context.Context, geoms []geom.T) (geom.T, error) {
	f.unions++
	b := geom.NewBounds(geom.XY)
	var found bool
	for _, g := range geoms {
		if g == nil || g.Empty() {
			continue
		}
		b.Extend(g)
		found = true
	}
	if !found {
		return geom.NewGeometryCollection(), nil
	}
	return rect(b.Min(0), b.Min(1), b.Max(0), b.Max(1)), nil
}

func (f *fakeEngine) IsValid(_ context.Context, g geom.T) (bool, error) {
	return !f.invalid[g], nil
}

func (f *fakeEngine) MakeValid(_ context.Context, g geom.T) (geom.T, error) {
	b := g.Bounds()
	return rect(b.Min(0), b.Min(1), b.Max(0), b.Max(1)), nil
}

func (f *fakeEngine) Intersects(_ context.Context, a, b geom.T) (bool, error) {
	if a.Empty() || b.Empty() {
		return false, nil
	}
	return a.Bounds().Overlaps(geom.XY, b.Bounds()), nil
}

func (f *fakeEngine) Equals(_ context.Context, a, b geom.T) (bool, error) {
	if a.Empty() || b.Empty() {
		return a.Empty() && b.Empty(), nil
	}
	ab, bb := a.Bounds(), b.Bounds()
	for d := 0; d < 2; d++ {
		if ab.Min(d) != bb.Min(d) || ab.Max(d) != bb.Max(d) {
			return false, nil
		}
	}
	return true, nil
}

// Difference handles a cut by b that spans a fully in one axis.
func (f *fakeEngine) Difference(_ context.Context, a, b geom.T) (geom.T, error) {
	ab, bb := a.Bounds(), b.Bounds()
	aMinX, aMinY, aMaxX, aMaxY := ab.Min(0), ab.Min(1), ab.Max(0), ab.Max(1)
	bMinX, bMinY, bMaxX, bMaxY := bb.Min(0), bb.Min(1), bb.Max(0), bb.Max(1)

	if bMaxX <= aMinX || bMinX >= aMaxX || bMaxY <= aMinY || bMinY >= aMaxY {
		return a, nil
	}
	if bMinX <= aMinX && bMaxX >= aMaxX && bMinY <= aMinY && bMaxY >= aMaxY {
		return geom.NewPolygon(geom.XY), nil
	}
	if bMinY <= aMinY && bMaxY >= aMaxY {
		if bMinX <= aMinX {
			return rect(bMaxX, aMinY, aMaxX, aMaxY), nil
		}
		if bMaxX >= aMaxX {
			return rect(aMinX, aMinY, bMinX, aMaxY), nil
		}
	}
	if bMinX <= aMinX && bMaxX >= aMaxX {
		if bMinY <= aMinY {
			return rect(aMinX, bMaxY, aMaxX, aMaxY), nil
		}
		if bMaxY >= aMaxY {
			return rect(aMinX, aMinY, aMaxX, bMinY), nil
		}
	}
	return nil, eris.New("fake: unsupported difference")
}

func clone(g geom.T) geom.T {
	switch g := g.(type) {
	case *geom.Point:
		return g.Clone()
	case *geom.MultiPoint:
		return g.Clone()
	case *geom.LineString:
		return g.Clone()
	case *geom.MultiLineString:
		return g.Clone()
	case *geom.Polygon:
		return g.Clone()
	case *geom.MultiPolygon:
		return g.Clone()
	default:
		panic("fake: cannot clone")
	}
}

func rect(minX, minY, maxX, maxY float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY, minX, maxY, maxX, maxY, maxX, minY, minX, minY,
	}, []int{10})
}

type fakeDumper struct {
	req     pgdump.Request
	geojson []byte
	err     error
}

func (f *fakeDumper) Dump(_ context.Context, geojson []byte, req pgdump.Request) (string, error) {
	f.req = req
	f.geojson = geojson
	if f.err != nil {
		return "", f.err
	}
	return "CREATE TABLE \"" + req.Schema + "\".\"" + req.Table + "\" ();", nil
}
