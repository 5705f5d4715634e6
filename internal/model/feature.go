package model

import (
	"github.com/twpayne/go-geom"
)

// Geometry type names reported per feature.
const (
	TypePoint              = "Point"
	TypeMultiPoint         = "MultiPoint"
	TypeLineString         = "LineString"
	TypeMultiLineString    = "MultiLineString"
	TypePolygon            = "Polygon"
	TypeMultiPolygon       = "MultiPolygon"
	TypeGeometryCollection = "GeometryCollection"
	TypeMixed              = "Mixed"
	TypeUnknown            = "Unknown"
)

// Feature is one record of a vector dataset: a geometry plus its attributes.
// Geometry may be nil for null shapes.
type Feature struct {
	ID         int            `json:"id"`
	Geometry   geom.T         `json:"-"`
	Properties map[string]any `json:"properties"`
}

// GeometryType returns the type name of the feature's geometry.
func (f Feature) GeometryType() string {
	return GeometryTypeOf(f.Geometry)
}

// GeometryTypeOf returns the type name of g, or TypeUnknown for nil or
// unsupported geometries.
func GeometryTypeOf(g geom.T) string {
	switch g.(type) {
	case *geom.Point:
		return TypePoint
	case *geom.MultiPoint:
		return TypeMultiPoint
	case *geom.LineString, *geom.LinearRing:
		return TypeLineString
	case *geom.MultiLineString:
		return TypeMultiLineString
	case *geom.Polygon:
		return TypePolygon
	case *geom.MultiPolygon:
		return TypeMultiPolygon
	case *geom.GeometryCollection:
		return TypeGeometryCollection
	default:
		return TypeUnknown
	}
}

// Family groups single and multi variants of the same dimension, so that a
// Polygon and a MultiPolygon compare as the same kind of geometry.
func Family(g geom.T) string {
	switch g.(type) {
	case *geom.Point, *geom.MultiPoint:
		return TypePoint
	case *geom.LineString, *geom.LinearRing, *geom.MultiLineString:
		return TypeLineString
	case *geom.Polygon, *geom.MultiPolygon:
		return TypePolygon
	case *geom.GeometryCollection:
		return TypeGeometryCollection
	default:
		return TypeUnknown
	}
}

// CollectionType summarizes the geometry type of a set of features: the
// single shared type name, TypeMixed when types differ, or TypeUnknown when
// there are no non-nil geometries.
func CollectionType(features []Feature) string {
	result := ""
	for _, f := range features {
		if f.Geometry == nil {
			continue
		}
		t := f.GeometryType()
		switch result {
		case "":
			result = t
		case t:
		default:
			return TypeMixed
		}
	}
	if result == "" {
		return TypeUnknown
	}
	return result
}

// Geometries returns the geometries of features in order, including nils.
func Geometries(features []Feature) []geom.T {
	out := make([]geom.T, len(features))
	for i, f := range features {
		out[i] = f.Geometry
	}
	return out
}
