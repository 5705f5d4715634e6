package geodata

import (
	"context"

	"github.com/sells-group/geodata/internal/crs"
	"github.com/sells-group/geodata/internal/model"
)

// Summary describes a loaded dataset.
type Summary struct {
	Name         string         `json:"name" yaml:"name"`
	Source       string         `json:"source" yaml:"source"`
	Format       string         `json:"format" yaml:"format"`
	CRS          string         `json:"crs" yaml:"crs"`
	EPSG         int            `json:"epsg" yaml:"epsg"`
	Proj4        string         `json:"proj4,omitempty" yaml:"proj4,omitempty"`
	Features     int            `json:"features" yaml:"features"`
	GeometryType string         `json:"geometry_type" yaml:"geometry_type"`
	Types        map[string]int `json:"types" yaml:"types"`
	BBox         string         `json:"bbox" yaml:"bbox"`
	Encoding     string         `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Fields       []FieldSummary `json:"fields" yaml:"fields"`
}

// FieldSummary is one attribute column.
type FieldSummary struct {
	Name string `json:"name" yaml:"name"`
	Kind string `json:"kind" yaml:"kind"`
	Size uint8  `json:"size" yaml:"size"`
}

// Summary reports the dataset's metadata. The bounding box is in the
// dataset's own CRS.
func (a *Adapter) Summary(ctx context.Context) (*Summary, error) {
	if a.ds == nil {
		return nil, ErrNoDataset
	}
	ds := a.ds

	bbox, err := a.BBox(ctx, crs.CRS{})
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Name:         ds.Name,
		Source:       ds.Source,
		Format:       ds.Format.String(),
		CRS:          ds.CRS.String(),
		EPSG:         ds.CRS.EPSG(),
		Proj4:        ds.CRS.Proj4(),
		Features:     len(ds.Features),
		GeometryType: ds.GeometryType(),
		Types:        make(map[string]int),
		BBox:         bbox,
		Encoding:     ds.Encoding,
		Fields:       make([]FieldSummary, len(ds.Fields)),
	}
	for _, f := range ds.Features {
		s.Types[f.GeometryType()]++
	}
	for i, f := range ds.Fields {
		s.Fields[i] = FieldSummary{Name: f.Name, Kind: f.Kind(), Size: f.Size}
	}
	return s, nil
}

// Features returns the dataset's features, for consumers such as the PostGIS
// loader that write them elsewhere.
func (a *Adapter) Features() ([]model.Feature, error) {
	if a.ds == nil {
		return nil, ErrNoDataset
	}
	return a.ds.Features, nil
}
