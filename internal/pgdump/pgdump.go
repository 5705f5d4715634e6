// Package pgdump turns GeoJSON into a PostGIS SQL script with ogr2ogr's
// PGDump driver.
package pgdump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrExportToolFailed is the sentinel matched by ToolError.
var ErrExportToolFailed = eris.New("pgdump: export tool failed")

// ToolError reports a failed ogr2ogr run.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("pgdump: %s failed", e.Tool)
	if e.ExitCode != 0 {
		msg += " with exit code " + strconv.Itoa(e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ToolError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrExportToolFailed.
func (e *ToolError) Is(target error) bool { return target == ErrExportToolFailed }

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error
}

type osExecutor struct{}

func (osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (osExecutor) Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// Options configures a Dumper.
type Options struct {
	// Bin is the ogr2ogr executable; defaults to "ogr2ogr".
	Bin string
	// Schema is the default target schema; defaults to "public".
	Schema string
	// Timeout bounds one ogr2ogr run; zero means no limit beyond ctx.
	Timeout time.Duration
	// TempDir holds the scratch files; empty uses the OS default.
	TempDir string
}

// Request describes one dump.
type Request struct {
	// Table is the target table name.
	Table string
	// Schema overrides Options.Schema.
	Schema string
	// SRID is written into the geometry column definition; 0 lets ogr2ogr
	// derive it from the input.
	SRID int
}

// Dumper runs ogr2ogr.
type Dumper struct {
	opts Options
	exec executor
	log  *zap.Logger
}

// New creates a Dumper.
func New(opts Options) *Dumper {
	if opts.Bin == "" {
		opts.Bin = "ogr2ogr"
	}
	if opts.Schema == "" {
		opts.Schema = "public"
	}
	return &Dumper{
		opts: opts,
		exec: osExecutor{},
		log:  zap.L().With(zap.String("component", "pgdump")),
	}
}

// Dump writes geojson to a scratch file, converts it and returns the SQL
// script. Scratch files are removed on every exit path.
func (d *Dumper) Dump(ctx context.Context, geojson []byte, req Request) (string, error) {
	if req.Table == "" {
		return "", eris.New("pgdump: table name is required")
	}
	schema := req.Schema
	if schema == "" {
		schema = d.opts.Schema
	}

	bin, err := d.exec.LookPath(d.opts.Bin)
	if err != nil {
		return "", &ToolError{Tool: d.opts.Bin, Err: err}
	}

	dir, err := os.MkdirTemp(d.opts.TempDir, "geodata-pgdump-*")
	if err != nil {
		return "", eris.Wrap(err, "pgdump: create temp dir")
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			d.log.Warn("failed to remove temp dir", zap.String("dir", dir), zap.Error(err))
		}
	}()

	in := filepath.Join(dir, "in.geojson")
	out := filepath.Join(dir, "out.sql")
	if err := os.WriteFile(in, geojson, 0o600); err != nil {
		return "", eris.Wrap(err, "pgdump: write geojson")
	}

	args := Args(in, out, schema, req)

	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	var stdout, stderr bytes.Buffer
	if err := d.exec.Run(ctx, bin, args, &stdout, &stderr); err != nil {
		te := &ToolError{Tool: d.opts.Bin, Stderr: stderr.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			te.ExitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			te.Err = ctx.Err()
		}
		return "", te
	}

	sql, err := os.ReadFile(out)
	if err != nil {
		return "", &ToolError{Tool: d.opts.Bin, Stderr: stderr.String(), Err: eris.Wrap(err, "pgdump: read output")}
	}
	if len(bytes.TrimSpace(sql)) == 0 {
		return "", &ToolError{Tool: d.opts.Bin, Stderr: stderr.String(), Err: eris.New("pgdump: empty output")}
	}

	d.log.Debug("ogr2ogr dump complete",
		zap.String("table", schema+"."+req.Table),
		zap.Int("srid", req.SRID),
		zap.Int("bytes", len(sql)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return string(sql), nil
}

// Args returns the ogr2ogr arguments that convert in to a PGDump at out.
func Args(in, out, schema string, req Request) []string {
	args := []string{"-f", "PGDump", out, in}
	if req.SRID > 0 {
		args = append(args, "-lco", "SRID="+strconv.Itoa(req.SRID))
	}
	return append(args,
		"-lco", "SCHEMA="+schema,
		"-lco", "EXTRACT_SCHEMA_FROM_LAYER_NAME=NO",
		"-nln", req.Table,
	)
}
