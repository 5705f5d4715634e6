// Package topojson encodes features as TopoJSON. With topology enforcement
// the arcs come from github.com/rubenv/topojson, which cuts lines and rings
// at junctions and stores shared arcs once; without it every line and ring
// keeps its own arc. Coordinates are never quantized.
package topojson

import (
	"encoding/json"
	"strconv"

	orbjson "github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	topology "github.com/rubenv/topojson"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/geodata/internal/export"
	"github.com/sells-group/geodata/internal/model"
)

// idProperty is the feature member the topology names its objects by.
const idProperty = "id"

// Options configures Marshal.
type Options struct {
	// EnforceTopology cuts arcs at junctions and shares identical arcs.
	EnforceTopology bool
}

// Marshal encodes features as a TopoJSON document with one object per
// feature, keyed by feature ID.
func Marshal(features []model.Feature, opts Options) ([]byte, error) {
	var (
		doc any
		err error
	)
	if opts.EnforceTopology {
		doc, err = Shared(features)
	} else {
		doc, err = Build(features)
	}
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "topojson: encode")
	}
	return out, nil
}

// Shared computes a topology with shared arcs. Features without a geometry
// contribute no object.
func Shared(features []model.Feature) (*topology.Topology, error) {
	withGeom := make([]model.Feature, 0, len(features))
	for _, f := range features {
		if f.Geometry != nil {
			withGeom = append(withGeom, f)
		}
	}

	b, err := json.Marshal(export.FeatureCollection(withGeom))
	if err != nil {
		return nil, eris.Wrap(err, "topojson: encode features")
	}
	fc, err := orbjson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, eris.Wrap(err, "topojson: decode features")
	}
	return topology.NewTopology(fc, &topology.TopologyOptions{IDProperty: idProperty}), nil
}

// Position is an XY coordinate.
type Position [2]float64

// GeometryType is a TopoJSON geometry type; the empty type encodes as null.
type GeometryType string

// MarshalJSON encodes the empty type as null.
func (t GeometryType) MarshalJSON() ([]byte, error) {
	if t == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(t))
}

// Topology is a TopoJSON document without shared arcs.
type Topology struct {
	Type    string             `json:"type"`
	BBox    []float64          `json:"bbox,omitempty"`
	Objects map[string]*Object `json:"objects"`
	Arcs    [][]Position       `json:"arcs"`
}

// Object is a TopoJSON geometry object.
type Object struct {
	Type        GeometryType   `json:"type"`
	ID          string         `json:"id,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	Coordinates any            `json:"coordinates,omitempty"`
	Arcs        any            `json:"arcs,omitempty"`
	Geometries  []*Object      `json:"geometries,omitempty"`
}

// Build encodes features with one arc per line and ring, in input order.
func Build(features []model.Feature) (*Topology, error) {
	b := &builder{
		topo: &Topology{Type: "Topology", Objects: make(map[string]*Object, len(features)), Arcs: [][]Position{}},
		bbox: geom.NewBounds(geom.XY),
	}
	for _, f := range features {
		obj, err := b.object(f.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "topojson: feature %d", f.ID)
		}
		obj.ID = strconv.Itoa(f.ID)
		if len(f.Properties) > 0 {
			obj.Properties = f.Properties
		}
		b.topo.Objects[obj.ID] = obj
	}
	if !b.bbox.IsEmpty() {
		b.topo.BBox = []float64{b.bbox.Min(0), b.bbox.Min(1), b.bbox.Max(0), b.bbox.Max(1)}
	}
	return b.topo, nil
}

type builder struct {
	topo *Topology
	bbox *geom.Bounds
}

func (b *builder) object(g geom.T) (*Object, error) {
	if g != nil && !g.Empty() {
		b.bbox.Extend(g)
	}
	switch g := g.(type) {
	case nil:
		return &Object{}, nil
	case *geom.Point:
		if g.Empty() {
			return &Object{Type: "Point"}, nil
		}
		return &Object{Type: "Point", Coordinates: Position{g.X(), g.Y()}}, nil
	case *geom.MultiPoint:
		pts := make([]Position, 0, g.NumPoints())
		for i := 0; i < g.NumPoints(); i++ {
			if p := g.Point(i); !p.Empty() {
				pts = append(pts, Position{p.X(), p.Y()})
			}
		}
		return &Object{Type: "MultiPoint", Coordinates: pts}, nil
	case *geom.LineString:
		return &Object{Type: "LineString", Arcs: []int{b.arc(g.FlatCoords(), g.Stride())}}, nil
	case *geom.MultiLineString:
		arcs := make([][]int, g.NumLineStrings())
		for i := range arcs {
			ls := g.LineString(i)
			arcs[i] = []int{b.arc(ls.FlatCoords(), ls.Stride())}
		}
		return &Object{Type: "MultiLineString", Arcs: arcs}, nil
	case *geom.Polygon:
		return &Object{Type: "Polygon", Arcs: b.polygon(g)}, nil
	case *geom.MultiPolygon:
		arcs := make([][][]int, g.NumPolygons())
		for i := range arcs {
			arcs[i] = b.polygon(g.Polygon(i))
		}
		return &Object{Type: "MultiPolygon", Arcs: arcs}, nil
	case *geom.GeometryCollection:
		obj := &Object{Type: "GeometryCollection", Geometries: make([]*Object, 0, g.NumGeoms())}
		for _, sub := range g.Geoms() {
			child, err := b.object(sub)
			if err != nil {
				return nil, err
			}
			obj.Geometries = append(obj.Geometries, child)
		}
		return obj, nil
	default:
		return nil, eris.Errorf("topojson: unsupported geometry %T", g)
	}
}

func (b *builder) polygon(p *geom.Polygon) [][]int {
	rings := make([][]int, p.NumLinearRings())
	for i := range rings {
		r := p.LinearRing(i)
		rings[i] = []int{b.arc(r.FlatCoords(), r.Stride())}
	}
	return rings
}

func (b *builder) arc(flat []float64, stride int) int {
	out := make([]Position, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		out = append(out, Position{flat[i], flat[i+1]})
	}
	b.topo.Arcs = append(b.topo.Arcs, out)
	return len(b.topo.Arcs) - 1
}
