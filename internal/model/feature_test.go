package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/twpayne/go-geom"
)

func TestGeometryTypeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		g    geom.T
		want string
	}{
		{"point", geom.NewPoint(geom.XY), TypePoint},
		{"multipoint", geom.NewMultiPoint(geom.XY), TypeMultiPoint},
		{"linestring", geom.NewLineString(geom.XY), TypeLineString},
		{"multilinestring", geom.NewMultiLineString(geom.XY), TypeMultiLineString},
		{"polygon", geom.NewPolygon(geom.XY), TypePolygon},
		{"multipolygon", geom.NewMultiPolygon(geom.XY), TypeMultiPolygon},
		{"collection", geom.NewGeometryCollection(), TypeGeometryCollection},
		{"nil", nil, TypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, GeometryTypeOf(tt.g))
		})
	}
}

func TestFamily(t *testing.T) {
	assert.Equal(t, Family(geom.NewPolygon(geom.XY)), Family(geom.NewMultiPolygon(geom.XY)))
	assert.Equal(t, Family(geom.NewLineString(geom.XY)), Family(geom.NewMultiLineString(geom.XY)))
	assert.NotEqual(t, Family(geom.NewPoint(geom.XY)), Family(geom.NewPolygon(geom.XY)))
}

func TestCollectionType(t *testing.T) {
	poly := geom.NewPolygon(geom.XY)
	pt := geom.NewPoint(geom.XY)

	assert.Equal(t, TypeUnknown, CollectionType(nil))
	assert.Equal(t, TypeUnknown, CollectionType([]Feature{{ID: 0}}))
	assert.Equal(t, TypePolygon, CollectionType([]Feature{{Geometry: poly}, {Geometry: poly}, {}}))
	assert.Equal(t, TypeMixed, CollectionType([]Feature{{Geometry: poly}, {Geometry: pt}}))
}

func TestGeometries(t *testing.T) {
	pt := geom.NewPoint(geom.XY)
	got := Geometries([]Feature{{Geometry: pt}, {}})
	assert.Len(t, got, 2)
	assert.Same(t, pt, got[0])
	assert.Nil(t, got[1])
}

func TestFieldKind(t *testing.T) {
	tests := []struct {
		field Field
		want  string
	}{
		{Field{Type: FieldCharacter}, "string"},
		{Field{Type: FieldNumeric}, "int"},
		{Field{Type: FieldNumeric, Precision: 3}, "float"},
		{Field{Type: FieldFloat}, "float"},
		{Field{Type: FieldLogical}, "bool"},
		{Field{Type: FieldDate}, "date"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.field.Kind())
	}
	assert.Equal(t, []string{"a", "b"}, FieldNames([]Field{{Name: "a"}, {Name: "b"}}))
}

func TestRunDuration(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Zero(t, Run{StartedAt: start}.Duration())
	assert.Equal(t, 3*time.Second, Run{StartedAt: start, FinishedAt: start.Add(3 * time.Second)}.Duration())
}
