package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-kml"

	"github.com/sells-group/geodata/internal/model"
)

// WriteKML writes features as an OGC KML document. Coordinates must already
// be WGS84 longitude/latitude. Attributes are carried in ExtendedData against
// a Schema named after the layer, the layout GDAL's KML driver produces.
func WriteKML(w io.Writer, layer string, fields []model.Field, features []model.Feature) error {
	if layer == "" {
		layer = "layer"
	}

	simpleFields := make([]kml.Element, len(fields))
	for i, f := range fields {
		simpleFields[i] = kml.SimpleField(f.Name, kmlType(f))
	}

	placemarks := make([]kml.Element, 0, len(features)+1)
	placemarks = append(placemarks, kml.Name(layer))
	for _, f := range features {
		children := []kml.Element{}
		if data := schemaData(layer, fields, f.Properties); data != nil {
			children = append(children, kml.ExtendedData(data))
		}
		if f.Geometry != nil {
			g, err := kmlGeometry(f.Geometry)
			if err != nil {
				return eris.Wrapf(err, "export: kml feature %d", f.ID)
			}
			children = append(children, g)
		}
		placemarks = append(placemarks, kml.Placemark(children...))
	}

	doc := kml.KML(
		kml.Document(
			kml.Schema(layer, layer, simpleFields...),
			kml.Folder(placemarks...),
		),
	)

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return eris.Wrap(err, "export: write kml header")
	}
	if err := doc.WriteIndent(w, "", "  "); err != nil {
		return eris.Wrap(err, "export: write kml")
	}
	return nil
}

func kmlType(f model.Field) string {
	switch f.Kind() {
	case "int":
		return "int"
	case "float":
		return "float"
	case "bool":
		return "bool"
	default:
		return "string"
	}
}

func schemaData(layer string, fields []model.Field, props map[string]any) kml.Element {
	var values []kml.Element
	for _, f := range fields {
		v, ok := props[f.Name]
		if !ok || v == nil {
			continue
		}
		values = append(values, kml.SimpleData(f.Name, FormatValue(v)))
	}
	if len(values) == 0 {
		return nil
	}
	return kml.SchemaData("#"+layer, values...)
}

// FormatValue renders an attribute value as text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func kmlGeometry(g geom.T) (kml.Element, error) {
	switch g := g.(type) {
	case *geom.Point:
		return kml.Point(kmlCoords(g.FlatCoords(), g.Stride())), nil
	case *geom.LineString:
		return kml.LineString(kmlCoords(g.FlatCoords(), g.Stride())), nil
	case *geom.Polygon:
		return kmlPolygon(g), nil
	case *geom.MultiPoint:
		children := make([]kml.Element, g.NumPoints())
		for i := range children {
			children[i] = kml.Point(kmlCoords(g.Point(i).FlatCoords(), g.Stride()))
		}
		return kml.MultiGeometry(children...), nil
	case *geom.MultiLineString:
		children := make([]kml.Element, g.NumLineStrings())
		for i := range children {
			children[i] = kml.LineString(kmlCoords(g.LineString(i).FlatCoords(), g.Stride()))
		}
		return kml.MultiGeometry(children...), nil
	case *geom.MultiPolygon:
		children := make([]kml.Element, g.NumPolygons())
		for i := range children {
			children[i] = kmlPolygon(g.Polygon(i))
		}
		return kml.MultiGeometry(children...), nil
	case *geom.GeometryCollection:
		children := make([]kml.Element, 0, g.NumGeoms())
		for _, sub := range g.Geoms() {
			el, err := kmlGeometry(sub)
			if err != nil {
				return nil, err
			}
			children = append(children, el)
		}
		return kml.MultiGeometry(children...), nil
	default:
		return nil, eris.Errorf("export: unsupported kml geometry %T", g)
	}
}

func kmlPolygon(p *geom.Polygon) kml.Element {
	children := make([]kml.Element, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := kml.LinearRing(kmlCoords(p.LinearRing(i).FlatCoords(), p.Stride()))
		if i == 0 {
			children = append(children, kml.OuterBoundaryIs(ring))
		} else {
			children = append(children, kml.InnerBoundaryIs(ring))
		}
	}
	return kml.Polygon(children...)
}

func kmlCoords(flat []float64, stride int) kml.Element {
	coords := make([]kml.Coordinate, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		coords = append(coords, kml.Coordinate{Lon: flat[i], Lat: flat[i+1]})
	}
	return kml.Coordinates(coords...)
}
