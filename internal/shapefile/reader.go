// Package shapefile reads ESRI shapefile layers packed in a zip archive into
// go-geom features.
package shapefile

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/geodata/internal/model"
)

var (
	// ErrIncompleteShapefile is the sentinel matched by IncompleteShapefileError.
	ErrIncompleteShapefile = eris.New("shapefile: incomplete shapefile")
	// ErrMultipleLayers is returned when an archive holds more than one .shp member.
	ErrMultipleLayers = eris.New("shapefile: archive contains more than one layer")
)

// IncompleteShapefileError lists the mandatory members missing from an archive.
type IncompleteShapefileError struct {
	Archive string
	Missing []string
}

func (e *IncompleteShapefileError) Error() string {
	return fmt.Sprintf("shapefile: %s is missing %s", e.Archive, strings.Join(e.Missing, ", "))
}

// Is lets errors.Is match ErrIncompleteShapefile.
func (e *IncompleteShapefileError) Is(target error) bool {
	return target == ErrIncompleteShapefile
}

// Layer is the content of one shapefile.
type Layer struct {
	Name      string
	Features  []model.Feature
	Fields    []model.Field
	ShapeType string
	// PRJ is the raw .prj WKT, empty when the archive has none.
	PRJ string
	// Encoding is the .cpg code page, empty when the archive has none.
	Encoding string
}

// HasPRJ reports whether the archive carried a projection definition.
func (l *Layer) HasPRJ() bool { return strings.TrimSpace(l.PRJ) != "" }

type members struct {
	shp, shx, dbf, prj, cpg *zip.File
}

// ReadZip opens the zip archive at p and reads its single shapefile layer.
func ReadZip(p string) (*Layer, error) {
	r, err := zip.OpenReader(p)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open archive %s", p)
	}
	defer r.Close() //nolint:errcheck

	return read(&r.Reader, path.Base(p))
}

// ReadZipFrom reads a shapefile layer from an in-memory or on-disk archive.
func ReadZipFrom(ra io.ReaderAt, size int64, name string) (*Layer, error) {
	r, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open archive %s", name)
	}
	return read(r, name)
}

func read(r *zip.Reader, archive string) (*Layer, error) {
	m, err := scan(r, archive)
	if err != nil {
		return nil, err
	}

	layer := &Layer{Name: strings.TrimSuffix(path.Base(m.shp.Name), path.Ext(m.shp.Name))}

	if m.prj != nil {
		b, err := readMember(m.prj)
		if err != nil {
			return nil, err
		}
		layer.PRJ = strings.TrimSpace(string(b))
	}

	dec := defaultDecoder
	if m.cpg != nil {
		b, err := readMember(m.cpg)
		if err != nil {
			return nil, err
		}
		layer.Encoding = strings.TrimSpace(string(b))
		if dec, err = decoderFor(layer.Encoding); err != nil {
			zap.L().Warn("shapefile: unknown code page, reading attributes as-is",
				zap.String("archive", archive),
				zap.String("cpg", layer.Encoding),
			)
			dec = defaultDecoder
		}
	}

	shpRC, err := m.shp.Open()
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", m.shp.Name)
	}
	dbfRC, err := m.dbf.Open()
	if err != nil {
		_ = shpRC.Close()
		return nil, eris.Wrapf(err, "shapefile: open %s", m.dbf.Name)
	}

	sr := shp.SequentialReaderFromExt(shpRC, dbfRC)
	defer sr.Close() //nolint:errcheck

	layer.Fields = convertFields(sr.Fields(), dec)

	var skipped int
	for sr.Next() {
		_, shape := sr.Shape()

		g, err := toGeom(shape)
		if err != nil {
			skipped++
			zap.L().Debug("shapefile: unreadable shape, keeping feature without geometry",
				zap.String("archive", archive),
				zap.Int("feature", len(layer.Features)),
				zap.Error(err),
			)
		}

		props := make(map[string]any, len(layer.Fields))
		for i, f := range layer.Fields {
			props[f.Name] = parseValue(f, dec(sr.Attribute(i)))
		}

		layer.Features = append(layer.Features, model.Feature{
			ID:         len(layer.Features),
			Geometry:   g,
			Properties: props,
		})
	}
	if err := sr.Err(); err != nil {
		return nil, eris.Wrapf(err, "shapefile: read %s", m.shp.Name)
	}

	layer.ShapeType = model.CollectionType(layer.Features)

	zap.L().Debug("shapefile: read layer",
		zap.String("archive", archive),
		zap.String("layer", layer.Name),
		zap.Int("features", len(layer.Features)),
		zap.Int("fields", len(layer.Fields)),
		zap.Int("skipped_shapes", skipped),
	)

	return layer, nil
}

// scan matches archive members by case-insensitive suffix.
func scan(r *zip.Reader, archive string) (members, error) {
	var m members
	var layers []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		switch strings.ToLower(path.Ext(f.Name)) {
		case ".shp":
			layers = append(layers, f.Name)
			m.shp = f
		case ".shx":
			m.shx = f
		case ".dbf":
			m.dbf = f
		case ".prj":
			m.prj = f
		case ".cpg":
			m.cpg = f
		}
	}

	if len(layers) > 1 {
		sort.Strings(layers)
		return m, eris.Wrapf(ErrMultipleLayers, "shapefile: %s: %s", archive, strings.Join(layers, ", "))
	}

	var missing []string
	if m.shp == nil {
		missing = append(missing, ".shp")
	}
	if m.shx == nil {
		missing = append(missing, ".shx")
	}
	if m.dbf == nil {
		missing = append(missing, ".dbf")
	}
	if len(missing) > 0 {
		return m, &IncompleteShapefileError{Archive: archive, Missing: missing}
	}
	return m, nil
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: read %s", f.Name)
	}
	return b, nil
}

func convertFields(fields []shp.Field, dec decodeFunc) []model.Field {
	out := make([]model.Field, len(fields))
	for i, f := range fields {
		out[i] = model.Field{
			Name:      dec(strings.TrimSpace(strings.TrimRight(f.String(), "\x00"))),
			Type:      f.Fieldtype,
			Size:      f.Size,
			Precision: f.Precision,
		}
	}
	return out
}

// toGeom converts a shapefile shape into an XY go-geom geometry. Z and M
// ordinates are dropped. Null shapes yield a nil geometry.
func toGeom(shape shp.Shape) (geom.T, error) {
	switch s := shape.(type) {
	case nil, *shp.Null:
		return nil, nil
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}), nil
	case *shp.PointZ:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}), nil
	case *shp.PointM:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}), nil
	case *shp.MultiPoint:
		return multiPoint(s.Points), nil
	case *shp.MultiPointZ:
		return multiPoint(s.Points), nil
	case *shp.MultiPointM:
		return multiPoint(s.Points), nil
	case *shp.PolyLine:
		return lines(s.Parts, s.Points)
	case *shp.PolyLineZ:
		return lines(s.Parts, s.Points)
	case *shp.PolyLineM:
		return lines(s.Parts, s.Points)
	case *shp.Polygon:
		return polygons(s.Parts, s.Points)
	case *shp.PolygonZ:
		return polygons(s.Parts, s.Points)
	case *shp.PolygonM:
		return polygons(s.Parts, s.Points)
	default:
		return nil, eris.Errorf("shapefile: unsupported shape %T", shape)
	}
}

func multiPoint(pts []shp.Point) geom.T {
	return geom.NewMultiPointFlat(geom.XY, flatCoords(pts))
}

// partBounds returns the [start, end) point range of each part.
func partBounds(parts []int32, n int) [][2]int {
	out := make([][2]int, 0, len(parts))
	for i, start := range parts {
		end := n
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if int(start) < 0 || int(start) > end || end > n {
			continue
		}
		out = append(out, [2]int{int(start), end})
	}
	return out
}

func lines(parts []int32, pts []shp.Point) (geom.T, error) {
	bounds := partBounds(parts, len(pts))
	if len(bounds) == 0 {
		return nil, nil
	}
	if len(bounds) == 1 {
		b := bounds[0]
		return geom.NewLineStringFlat(geom.XY, flatCoords(pts[b[0]:b[1]])), nil
	}

	mls := geom.NewMultiLineString(geom.XY)
	for _, b := range bounds {
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, flatCoords(pts[b[0]:b[1]]))); err != nil {
			return nil, eris.Wrap(err, "shapefile: build multilinestring")
		}
	}
	return mls, nil
}

// polygons assembles rings into polygons. Clockwise rings are shells and
// counter-clockwise rings are holes of the preceding shell.
func polygons(parts []int32, pts []shp.Point) (geom.T, error) {
	var polys []*geom.Polygon
	for _, b := range partBounds(parts, len(pts)) {
		ring := geom.NewLinearRingFlat(geom.XY, flatCoords(pts[b[0]:b[1]]))
		if ring.NumCoords() == 0 {
			continue
		}
		if signedArea(ring.FlatCoords()) <= 0 || len(polys) == 0 {
			poly := geom.NewPolygon(geom.XY)
			if err := poly.Push(ring); err != nil {
				return nil, eris.Wrap(err, "shapefile: build polygon")
			}
			polys = append(polys, poly)
			continue
		}
		if err := polys[len(polys)-1].Push(ring); err != nil {
			return nil, eris.Wrap(err, "shapefile: add polygon hole")
		}
	}

	switch len(polys) {
	case 0:
		return nil, nil
	case 1:
		return polys[0], nil
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for _, p := range polys {
		if err := mp.Push(p); err != nil {
			return nil, eris.Wrap(err, "shapefile: build multipolygon")
		}
	}
	return mp, nil
}

// signedArea is positive for counter-clockwise XY rings.
func signedArea(flat []float64) float64 {
	var sum float64
	n := len(flat) / 2
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return sum / 2
}

func flatCoords(pts []shp.Point) []float64 {
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
