// Package export encodes features into the text and binary formats the
// adapter serves. Encoders are pure: callers reproject first.
package export

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/geodata/internal/model"
)

// FeatureCollection builds a GeoJSON FeatureCollection. Each feature's id is
// its zero-based index in the dataset.
func FeatureCollection(features []model.Feature) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, len(features))}
	for i, f := range features {
		props := f.Properties
		if props == nil {
			props = map[string]any{}
		}
		fc.Features[i] = &geojson.Feature{
			ID:         strconv.Itoa(f.ID),
			Geometry:   f.Geometry,
			Properties: props,
		}
	}
	return fc
}

// GeoJSON encodes features as an RFC 7946 FeatureCollection.
func GeoJSON(features []model.Feature) ([]byte, error) {
	b, err := json.Marshal(FeatureCollection(features))
	if err != nil {
		return nil, eris.Wrap(err, "export: encode geojson")
	}
	return b, nil
}

// WriteGeoJSON streams the FeatureCollection to w.
func WriteGeoJSON(w io.Writer, features []model.Feature) error {
	b, err := GeoJSON(features)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return eris.Wrap(err, "export: write geojson")
	}
	return nil
}

// GeometryJSON encodes a single geometry as a GeoJSON geometry object.
func GeometryJSON(g geom.T) ([]byte, error) {
	b, err := geojson.Marshal(g)
	if err != nil {
		return nil, eris.Wrapf(err, "export: encode %T as geojson", g)
	}
	return b, nil
}
