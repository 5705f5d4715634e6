package export

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/sells-group/geodata/internal/model"
)

// Parquet column names for the fixed columns.
const (
	ParquetFIDColumn      = "fid"
	ParquetGeometryColumn = "geometry"
)

// ParquetOptions configures WriteParquet.
type ParquetOptions struct {
	// EPSG is recorded in the GeoParquet "geo" metadata; 0 writes a null crs.
	EPSG int
	// GeometryType lists the geometry types written, for GeoParquet readers.
	GeometryTypes []string
}

// WriteParquet writes features as one Arrow record batch in a Snappy
// compressed Parquet file. Geometry is stored as WKB with GeoParquet column
// metadata; attributes are stored as nullable strings in field order.
func WriteParquet(w io.Writer, fields []model.Field, features []model.Feature, opts ParquetOptions) error {
	pool := memory.NewGoAllocator()

	md, err := geoMetadata(opts)
	if err != nil {
		return err
	}

	arrowFields := []arrow.Field{
		{Name: ParquetFIDColumn, Type: arrow.PrimitiveTypes.Int32},
		{Name: ParquetGeometryColumn, Type: arrow.BinaryTypes.Binary, Nullable: true},
	}
	for _, f := range fields {
		arrowFields = append(arrowFields, arrow.Field{Name: f.Name, Type: arrow.BinaryTypes.String, Nullable: true})
	}
	schema := arrow.NewSchema(arrowFields, &md)

	fidBuilder := array.NewInt32Builder(pool)
	defer fidBuilder.Release()
	geomBuilder := array.NewBinaryBuilder(pool, arrow.BinaryTypes.Binary)
	defer geomBuilder.Release()
	attrBuilders := make([]*array.StringBuilder, len(fields))
	for i := range fields {
		attrBuilders[i] = array.NewStringBuilder(pool)
		defer attrBuilders[i].Release()
	}

	for _, f := range features {
		fidBuilder.Append(int32(f.ID))
		if f.Geometry == nil {
			geomBuilder.AppendNull()
		} else {
			b, err := wkb.Marshal(f.Geometry, binary.LittleEndian)
			if err != nil {
				return eris.Wrapf(err, "export: encode feature %d as wkb", f.ID)
			}
			geomBuilder.Append(b)
		}
		for i, fld := range fields {
			v := f.Properties[fld.Name]
			if v == nil {
				attrBuilders[i].AppendNull()
				continue
			}
			attrBuilders[i].Append(FormatValue(v))
		}
	}

	cols := make([]arrow.Array, 0, len(arrowFields))
	cols = append(cols, fidBuilder.NewArray(), geomBuilder.NewArray())
	for _, b := range attrBuilders {
		cols = append(cols, b.NewArray())
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	rec := array.NewRecordBatch(schema, cols, int64(len(features)))
	defer rec.Release()

	writer, err := pqarrow.NewFileWriter(
		schema,
		w,
		parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy)),
		pqarrow.DefaultWriterProps(),
	)
	if err != nil {
		return eris.Wrap(err, "export: create parquet writer")
	}
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return eris.Wrap(err, "export: write parquet record batch")
	}
	return eris.Wrap(writer.Close(), "export: close parquet writer")
}

// geoMetadata builds the GeoParquet 1.0 file metadata.
func geoMetadata(opts ParquetOptions) (arrow.Metadata, error) {
	column := map[string]any{
		"encoding":       "WKB",
		"geometry_types": nonNil(opts.GeometryTypes),
	}
	// A missing crs means OGC:CRS84 to readers; null marks it unknown.
	column["crs"] = nil
	if opts.EPSG != 0 {
		column["crs"] = map[string]any{
			"id": map[string]any{"authority": "EPSG", "code": opts.EPSG},
		}
	}
	geo := map[string]any{
		"version":        "1.0.0",
		"primary_column": ParquetGeometryColumn,
		"columns":        map[string]any{ParquetGeometryColumn: column},
	}
	b, err := json.Marshal(geo)
	if err != nil {
		return arrow.Metadata{}, eris.Wrap(err, "export: encode geoparquet metadata")
	}
	return arrow.NewMetadata([]string{"geo"}, []string{string(b)}), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
