package geodata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/geodata/internal/model"
)

func bounds(t *testing.T, g geom.T) []float64 {
	t.Helper()
	require.NotNil(t, g)
	b := g.Bounds()
	return []float64{b.Min(0), b.Min(1), b.Max(0), b.Max(1)}
}

func TestRemoveOverlap(t *testing.T) {
	eng := newFakeEngine()
	a := loaded(eng,
		model.Feature{Geometry: rect(0, 0, 2, 1)},
		model.Feature{Geometry: rect(1, 0, 3, 1)},
		model.Feature{Geometry: rect(10, 10, 11, 11)},
		model.Feature{Geometry: geom.NewPointFlat(geom.XY, []float64{1.5, 0.5})},
		model.Feature{Geometry: rect(0.5, 0.2, 1.5, 0.8)},
		model.Feature{Geometry: rect(0, 0, 2, 1)},
		model.Feature{},
	)
	ctx := context.Background()

	n, err := a.RemoveOverlap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f := a.ds.Features
	assert.Equal(t, []float64{0, 0, 2, 1}, bounds(t, f[0].Geometry), "first feature wins")
	assert.Equal(t, []float64{2, 0, 3, 1}, bounds(t, f[1].Geometry), "trimmed by the first")
	assert.Equal(t, []float64{10, 10, 11, 11}, bounds(t, f[2].Geometry))
	assert.Equal(t, []float64{1.5, 0.5}, f[3].Geometry.FlatCoords(), "points are not compared with polygons")

	assert.True(t, f[4].Geometry.Empty(), "fully covered feature becomes empty")
	assert.Equal(t, model.TypePolygon, model.Family(f[4].Geometry))

	assert.Equal(t, []float64{0, 0, 2, 1}, bounds(t, f[5].Geometry), "identical features are left alone")
	assert.Nil(t, f[6].Geometry)
	assert.Equal(t, 4326, f[1].Geometry.SRID())

	// A second pass finds nothing left to trim.
	n, err = a.RemoveOverlap(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []float64{2, 0, 3, 1}, bounds(t, a.ds.Features[1].Geometry))
}

func TestRemoveOverlap_RepairsInvalid(t *testing.T) {
	eng := newFakeEngine()
	bad := rect(0, 0, 1, 1)
	eng.invalid[bad] = true

	a := loaded(eng,
		model.Feature{Geometry: bad},
		model.Feature{Geometry: rect(5, 5, 6, 6)},
	)

	n, err := a.RemoveOverlap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotSame(t, bad, a.ds.Features[0].Geometry)

	n, err = a.RemoveOverlap(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRemoveOverlap_EngineError(t *testing.T) {
	eng := newFakeEngine()
	// An L-shaped cut is beyond the fake, which reports an error.
	a := loaded(eng,
		model.Feature{Geometry: rect(0, 0, 2, 2)},
		model.Feature{Geometry: rect(1, 1, 3, 3)},
	)

	_, err := a.RemoveOverlap(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "difference of features 1 and 0")
}

func TestRemoveOverlap_Cancelled(t *testing.T) {
	a := loaded(newFakeEngine(),
		model.Feature{Geometry: rect(0, 0, 2, 1)},
		model.Feature{Geometry: rect(1, 0, 3, 1)},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.RemoveOverlap(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRemoveOverlap_NoEngine(t *testing.T) {
	a := loaded(nil, model.Feature{Geometry: rect(0, 0, 1, 1)})
	_, err := a.RemoveOverlap(context.Background())
	assert.True(t, errors.Is(err, ErrNoEngine))
}

func TestSameFamily(t *testing.T) {
	assert.IsType(t, &geom.MultiPolygon{}, sameFamily(geom.NewGeometryCollection(), rect(0, 0, 1, 1)))
	assert.IsType(t, &geom.MultiLineString{}, sameFamily(nil, geom.NewLineString(geom.XY)))
	assert.IsType(t, &geom.MultiPoint{}, sameFamily(geom.NewGeometryCollection(), geom.NewPoint(geom.XY)))

	keep := rect(0, 0, 1, 1)
	assert.Same(t, keep, sameFamily(keep, rect(0, 0, 2, 2)))
}
