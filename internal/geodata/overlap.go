package geodata

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/geodata/internal/model"
)

// RemoveOverlap trims overlapping features of the same geometry family in
// place. Features are compared pairwise in input order and the earlier
// feature wins: a later feature that overlaps an earlier one is replaced by
// its difference with it. Invalid geometries are repaired first. A second
// call changes nothing. It returns the number of features modified.
func (a *Adapter) RemoveOverlap(ctx context.Context) (int, error) {
	if a.ds == nil {
		return 0, ErrNoDataset
	}
	eng, err := a.engine()
	if err != nil {
		return 0, err
	}

	features := a.ds.Features
	srid := a.ds.CRS.EPSG()
	modified := make(map[int]bool)

	repair := func(i int) (geom.T, error) {
		g := features[i].Geometry
		valid, err := eng.IsValid(ctx, g)
		if err != nil {
			return nil, eris.Wrapf(err, "geodata: validate feature %d", i)
		}
		if valid {
			return g, nil
		}
		fixed, err := eng.MakeValid(ctx, g)
		if err != nil {
			return nil, eris.Wrapf(err, "geodata: repair feature %d", i)
		}
		fixed = withSRID(fixed, srid)
		features[i].Geometry = fixed
		modified[i] = true
		return fixed, nil
	}

	for i := range features {
		if skipOverlap(features[i].Geometry) {
			continue
		}
		gi, err := repair(i)
		if err != nil {
			return 0, err
		}

		for j := i + 1; j < len(features); j++ {
			if err := ctx.Err(); err != nil {
				return 0, eris.Wrap(err, "geodata: remove overlap")
			}
			if skipOverlap(features[j].Geometry) || model.Family(gi) != model.Family(features[j].Geometry) {
				continue
			}
			gj, err := repair(j)
			if err != nil {
				return 0, err
			}

			hit, err := eng.Intersects(ctx, gi, gj)
			if err != nil {
				return 0, eris.Wrapf(err, "geodata: intersect features %d and %d", i, j)
			}
			if !hit {
				continue
			}
			same, err := eng.Equals(ctx, gi, gj)
			if err != nil {
				return 0, eris.Wrapf(err, "geodata: compare features %d and %d", i, j)
			}
			if same {
				continue
			}

			diff, err := eng.Difference(ctx, gj, gi)
			if err != nil {
				return 0, eris.Wrapf(err, "geodata: difference of features %d and %d", j, i)
			}
			// Touching features intersect without sharing area.
			if unchanged, err := eng.Equals(ctx, diff, gj); err != nil {
				return 0, eris.Wrapf(err, "geodata: compare trimmed feature %d", j)
			} else if unchanged {
				continue
			}

			features[j].Geometry = withSRID(sameFamily(diff, gj), srid)
			modified[j] = true
		}
	}

	a.log.Info("removed overlaps",
		zap.String("layer", a.ds.Name),
		zap.Int("features", len(features)),
		zap.Int("modified", len(modified)),
	)
	return len(modified), nil
}

func skipOverlap(g geom.T) bool {
	return g == nil || g.Empty()
}

// sameFamily keeps an empty difference in the family of the original, so a
// fully covered polygon stays an empty polygon.
func sameFamily(diff, orig geom.T) geom.T {
	if diff != nil && !diff.Empty() {
		return diff
	}
	switch orig.(type) {
	case *geom.Point, *geom.MultiPoint:
		return geom.NewMultiPoint(geom.XY)
	case *geom.LineString, *geom.MultiLineString:
		return geom.NewMultiLineString(geom.XY)
	case *geom.Polygon, *geom.MultiPolygon:
		return geom.NewMultiPolygon(geom.XY)
	default:
		return geom.NewGeometryCollection()
	}
}
