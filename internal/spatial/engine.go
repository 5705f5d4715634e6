// Package spatial runs geometry operations (reprojection, union, validity,
// predicates and overlay) on an embedded DuckDB database with the spatial
// extension loaded.
package spatial

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/binary"
	"strings"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkbhex"
	"go.uber.org/zap"

	"github.com/sells-group/geodata/internal/crs"
)

// Options configures the embedded database.
type Options struct {
	// Path is the database file; empty keeps everything in memory.
	Path string
	// ExtensionDir overrides DuckDB's extension cache directory.
	ExtensionDir string
	// SkipInstall loads the spatial extension without installing it first,
	// for hosts without network access that ship the extension pre-installed.
	SkipInstall bool
}

// Engine executes geometry operations through DuckDB spatial.
type Engine struct {
	connector *duckdb.Connector
	db        *sql.DB
	log       *zap.Logger
}

// Open creates the DuckDB database and loads the spatial extension on every
// connection.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	var stmts []string
	if opts.ExtensionDir != "" {
		stmts = append(stmts, "SET extension_directory = '"+strings.ReplaceAll(opts.ExtensionDir, "'", "''")+"'")
	}
	if !opts.SkipInstall {
		stmts = append(stmts, "INSTALL spatial")
	}
	stmts = append(stmts, "LOAD spatial")

	connector, err := duckdb.NewConnector(opts.Path, func(execer driver.ExecerContext) error {
		for _, stmt := range stmts {
			if _, err := execer.ExecContext(context.Background(), stmt, nil); err != nil {
				return eris.Wrapf(err, "spatial: %s", stmt)
			}
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "spatial: create duckdb connector")
	}

	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = connector.Close()
		return nil, eris.Wrap(err, "spatial: load spatial extension")
	}

	return &Engine{
		connector: connector,
		db:        db,
		log:       zap.L().With(zap.String("component", "spatial")),
	}, nil
}

// Close releases the database.
func (e *Engine) Close() error {
	if err := e.db.Close(); err != nil {
		return eris.Wrap(err, "spatial: close db")
	}
	return eris.Wrap(e.connector.Close(), "spatial: close connector")
}

// Transform reprojects geoms from one CRS to another. Nil entries stay nil.
// Output order matches input order and each geometry carries the target SRID.
func (e *Engine) Transform(ctx context.Context, geoms []geom.T, from, to crs.CRS) ([]geom.T, error) {
	out := make([]geom.T, len(geoms))
	if from.Equal(to) {
		copy(out, geoms)
		return out, nil
	}
	if from.IsZero() || to.IsZero() {
		return nil, eris.Errorf("spatial: transform needs both CRSs, got %q and %q", from, to)
	}

	var transformed int
	err := e.withGeoms(ctx, geoms, func(conn *sql.Conn, table string) error {
		rows, err := conn.QueryContext(ctx,
			`SELECT fid, ST_AsHEXWKB(ST_Transform(ST_GeomFromHEXWKB(wkb), ?, ?, true)) FROM `+table+` ORDER BY fid`,
			from.Definition(), to.Definition(),
		)
		if err != nil {
			return eris.Wrapf(err, "spatial: transform %s to %s", from, to)
		}
		defer rows.Close() //nolint:errcheck

		for rows.Next() {
			var fid int32
			var hex string
			if err := rows.Scan(&fid, &hex); err != nil {
				return eris.Wrap(err, "spatial: scan transformed geometry")
			}
			g, err := decode(hex)
			if err != nil {
				return err
			}
			out[fid] = withSRID(g, to.EPSG())
			transformed++
		}
		return eris.Wrap(rows.Err(), "spatial: iterate transformed geometries")
	})
	if err != nil {
		return nil, err
	}

	e.log.Debug("reprojected geometries",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("count", transformed),
	)
	return out, nil
}

// Union dissolves geoms into a single geometry. Nil entries are ignored; an
// input with no geometries yields an empty GeometryCollection.
func (e *Engine) Union(ctx context.Context, geoms []geom.T) (geom.T, error) {
	var result geom.T
	err := e.withGeoms(ctx, geoms, func(conn *sql.Conn, table string) error {
		var hex sql.NullString
		err := conn.QueryRowContext(ctx,
			`SELECT ST_AsHEXWKB(ST_Union_Agg(ST_GeomFromHEXWKB(wkb))) FROM `+table,
		).Scan(&hex)
		if err != nil {
			return eris.Wrap(err, "spatial: union")
		}
		if !hex.Valid {
			return nil
		}
		result, err = decode(hex.String)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return geom.NewGeometryCollection(), nil
	}
	return result, nil
}

// IsValid reports whether g is a valid OGC geometry.
func (e *Engine) IsValid(ctx context.Context, g geom.T) (bool, error) {
	var ok bool
	err := e.scalar(ctx, `SELECT ST_IsValid(ST_GeomFromHEXWKB(?))`, &ok, g)
	return ok, eris.Wrap(err, "spatial: is valid")
}

// MakeValid repairs g with a zero-distance buffer.
func (e *Engine) MakeValid(ctx context.Context, g geom.T) (geom.T, error) {
	return e.geomResult(ctx, "make valid", `SELECT ST_AsHEXWKB(ST_Buffer(ST_GeomFromHEXWKB(?), 0.0))`, g)
}

// Intersects reports whether a and b share any point.
func (e *Engine) Intersects(ctx context.Context, a, b geom.T) (bool, error) {
	var ok bool
	err := e.scalar(ctx, `SELECT ST_Intersects(ST_GeomFromHEXWKB(?), ST_GeomFromHEXWKB(?))`, &ok, a, b)
	return ok, eris.Wrap(err, "spatial: intersects")
}

// Equals reports whether a and b are spatially equal.
func (e *Engine) Equals(ctx context.Context, a, b geom.T) (bool, error) {
	var ok bool
	err := e.scalar(ctx, `SELECT ST_Equals(ST_GeomFromHEXWKB(?), ST_GeomFromHEXWKB(?))`, &ok, a, b)
	return ok, eris.Wrap(err, "spatial: equals")
}

// Difference returns the part of a not covered by b.
func (e *Engine) Difference(ctx context.Context, a, b geom.T) (geom.T, error) {
	return e.geomResult(ctx, "difference", `SELECT ST_AsHEXWKB(ST_Difference(ST_GeomFromHEXWKB(?), ST_GeomFromHEXWKB(?)))`, a, b)
}

func (e *Engine) scalar(ctx context.Context, query string, dest any, geoms ...geom.T) error {
	args, err := encodeArgs(geoms)
	if err != nil {
		return err
	}
	return e.db.QueryRowContext(ctx, query, args...).Scan(dest)
}

func (e *Engine) geomResult(ctx context.Context, op, query string, geoms ...geom.T) (geom.T, error) {
	var hex string
	if err := e.scalar(ctx, query, &hex, geoms...); err != nil {
		return nil, eris.Wrapf(err, "spatial: %s", op)
	}
	g, err := decode(hex)
	if err != nil {
		return nil, err
	}
	return withSRID(g, geoms[0].SRID()), nil
}

// withGeoms loads the non-nil geoms into a scratch table keyed by input index
// and runs fn against it on a single connection. The table is dropped on
// every exit path.
func (e *Engine) withGeoms(ctx context.Context, geoms []geom.T, fn func(conn *sql.Conn, table string) error) error {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return eris.Wrap(err, "spatial: acquire connection")
	}
	defer conn.Close() //nolint:errcheck

	table := "geoms_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := conn.ExecContext(ctx, `CREATE TABLE `+table+` (fid INTEGER, wkb VARCHAR)`); err != nil {
		return eris.Wrap(err, "spatial: create scratch table")
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), `DROP TABLE IF EXISTS `+table); err != nil {
			e.log.Warn("failed to drop scratch table", zap.String("table", table), zap.Error(err))
		}
	}()

	err = conn.Raw(func(driverConn any) error {
		dc, ok := driverConn.(driver.Conn)
		if !ok {
			return eris.Errorf("spatial: unexpected driver connection %T", driverConn)
		}
		app, err := duckdb.NewAppenderFromConn(dc, "", table)
		if err != nil {
			return eris.Wrap(err, "spatial: create appender")
		}
		for i, g := range geoms {
			if g == nil {
				continue
			}
			hex, err := encode(g)
			if err != nil {
				_ = app.Close()
				return eris.Wrapf(err, "spatial: feature %d", i)
			}
			if err := app.AppendRow(int32(i), hex); err != nil {
				_ = app.Close()
				return eris.Wrapf(err, "spatial: append feature %d", i)
			}
		}
		return eris.Wrap(app.Close(), "spatial: flush appender")
	})
	if err != nil {
		return err
	}

	return fn(conn, table)
}

func encodeArgs(geoms []geom.T) ([]any, error) {
	args := make([]any, len(geoms))
	for i, g := range geoms {
		if g == nil {
			return nil, eris.New("spatial: nil geometry")
		}
		hex, err := encode(g)
		if err != nil {
			return nil, err
		}
		args[i] = hex
	}
	return args, nil
}

func encode(g geom.T) (string, error) {
	hex, err := wkbhex.Encode(g, binary.LittleEndian)
	if err != nil {
		return "", eris.Wrapf(err, "spatial: encode %T", g)
	}
	return hex, nil
}

func decode(hex string) (geom.T, error) {
	g, err := wkbhex.Decode(hex)
	if err != nil {
		return nil, eris.Wrap(err, "spatial: decode geometry")
	}
	return g, nil
}

func withSRID(g geom.T, srid int) geom.T {
	if srid == 0 {
		return g
	}
	if out, err := geom.SetSRID(g, srid); err == nil {
		return out
	}
	return g
}
