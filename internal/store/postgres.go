package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/geodata/internal/db"
	"github.com/sells-group/geodata/internal/model"
)

// Reserved loader columns.
const (
	ColumnFID  = "fid"
	ColumnGeom = "geom"
)

// Layer is a dataset ready to load into PostGIS.
type Layer struct {
	Table    string
	Fields   []model.Field
	Features []model.Feature
	SRID     int
}

// LoadOptions controls how a layer is written.
type LoadOptions struct {
	Schema   string
	Truncate bool // empty the table before loading
	Upsert   bool // merge on fid instead of appending
}

// PostGIS loads layers into PostGIS tables.
type PostGIS struct {
	pool      db.Pool
	batchSize int
	log       *zap.Logger
}

// NewPostGIS creates a loader over pool. batchSize <= 0 uses db.DefaultBatchSize.
func NewPostGIS(pool db.Pool, batchSize int) *PostGIS {
	return &PostGIS{
		pool:      pool,
		batchSize: batchSize,
		log:       zap.L().With(zap.String("component", "store.postgis")),
	}
}

// Load creates the target table if needed and copies every feature into it.
// It returns the number of rows written.
func (p *PostGIS) Load(ctx context.Context, l Layer, opts LoadOptions) (int64, error) {
	if l.Table == "" {
		return 0, eris.New("store: load: no table specified")
	}
	schema := opts.Schema
	if schema == "" {
		schema = "public"
	}
	table := pgx.Identifier{schema, l.Table}
	columns := Columns(l.Fields)

	if err := p.EnsureTable(ctx, schema, l.Table, l.Fields, l.SRID); err != nil {
		return 0, err
	}
	if opts.Truncate {
		if err := db.Truncate(ctx, p.pool, table); err != nil {
			return 0, err
		}
	}

	rows, err := Rows(l)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	var n int64
	if opts.Upsert {
		n, err = db.BulkUpsert(ctx, p.pool, db.UpsertConfig{
			Table:        table,
			Columns:      columns,
			ConflictKeys: []string{ColumnFID},
		}, rows)
	} else {
		n, err = db.CopyFrom(ctx, p.pool, table, columns, rows, p.batchSize)
	}
	if err != nil {
		return n, eris.Wrapf(err, "store: load %s.%s", schema, l.Table)
	}

	p.log.Info("layer loaded",
		zap.String("table", schema+"."+l.Table),
		zap.Int64("rows", n),
		zap.Bool("upsert", opts.Upsert),
		zap.Duration("elapsed", time.Since(start)),
	)
	return n, nil
}

// EnsureTable creates the schema and the layer table when missing.
func (p *PostGIS) EnsureTable(ctx context.Context, schema, table string, fields []model.Field, srid int) error {
	if _, err := p.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
		return eris.Wrapf(err, "store: create schema %s", schema)
	}
	if _, err := p.pool.Exec(ctx, CreateTableSQL(schema, table, fields, srid)); err != nil {
		return eris.Wrapf(err, "store: create table %s.%s", schema, table)
	}
	return nil
}

// CreateTableSQL returns the DDL for a layer table: a fid primary key, one
// column per attribute and a geometry column in srid (0 leaves it
// unconstrained).
func CreateTableSQL(schema, table string, fields []model.Field, srid int) string {
	cols := Columns(fields)
	defs := make([]string, 0, len(cols))
	defs = append(defs, pgx.Identifier{ColumnFID}.Sanitize()+" bigint PRIMARY KEY")
	for i, f := range fields {
		defs = append(defs, pgx.Identifier{cols[i+1]}.Sanitize()+" "+columnType(f))
	}
	geomType := "geometry"
	if srid > 0 {
		geomType = fmt.Sprintf("geometry(Geometry,%d)", srid)
	}
	defs = append(defs, pgx.Identifier{ColumnGeom}.Sanitize()+" "+geomType)

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		pgx.Identifier{schema, table}.Sanitize(), strings.Join(defs, ", "))
}

// Columns returns the table columns for fields: fid, the attributes in
// schema order with lower-cased unique names, then geom.
func Columns(fields []model.Field) []string {
	cols := make([]string, 0, len(fields)+2)
	cols = append(cols, ColumnFID)
	seen := map[string]bool{ColumnFID: true, ColumnGeom: true}
	for _, f := range fields {
		name := strings.ToLower(strings.TrimSpace(f.Name))
		if name == "" {
			name = "field"
		}
		base := name
		for i := 1; seen[name]; i++ {
			name = fmt.Sprintf("%s_%d", base, i)
		}
		seen[name] = true
		cols = append(cols, name)
	}
	return append(cols, ColumnGeom)
}

// Rows converts features to COPY rows matching Columns. Geometries are
// written as EWKB carrying the layer SRID.
func Rows(l Layer) ([][]any, error) {
	rows := make([][]any, 0, len(l.Features))
	for i, f := range l.Features {
		row := make([]any, 0, len(l.Fields)+2)
		row = append(row, int64(i))
		for _, fld := range l.Fields {
			row = append(row, columnValue(fld, f.Properties[fld.Name]))
		}
		g, err := EncodeEWKB(f.Geometry, l.SRID)
		if err != nil {
			return nil, eris.Wrapf(err, "store: feature %d", i)
		}
		row = append(row, g)
		rows = append(rows, row)
	}
	return rows, nil
}

// EncodeEWKB converts a geometry to little-endian EWKB with srid. Nil
// geometries encode as nil.
func EncodeEWKB(g geom.T, srid int) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	if srid > 0 && g.SRID() != srid {
		var err error
		if g, err = geom.SetSRID(g, srid); err != nil {
			return nil, eris.Wrap(err, "store: set SRID")
		}
	}
	b, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode EWKB")
	}
	return b, nil
}

func columnType(f model.Field) string {
	switch f.Kind() {
	case "int":
		return "bigint"
	case "float":
		return "double precision"
	case "bool":
		return "boolean"
	case "date":
		return "date"
	default:
		return "text"
	}
}

// columnValue coerces a decoded attribute to the Go type pgx encodes for
// the column. Values that do not fit become NULL.
func columnValue(f model.Field, v any) any {
	if v == nil {
		return nil
	}
	switch f.Kind() {
	case "int":
		switch x := v.(type) {
		case int64:
			return x
		case float64:
			return int64(x)
		}
		return nil
	case "float":
		switch x := v.(type) {
		case float64:
			return x
		case int64:
			return float64(x)
		}
		return nil
	case "bool":
		if b, ok := v.(bool); ok {
			return b
		}
		return nil
	case "date":
		s, ok := v.(string)
		if !ok {
			return nil
		}
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil
		}
		return t
	default:
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
}
