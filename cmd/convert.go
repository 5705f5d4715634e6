package main

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geodata/internal/crs"
	"github.com/sells-group/geodata/internal/format"
	"github.com/sells-group/geodata/internal/geodata"
	"github.com/sells-group/geodata/internal/store"
)

// convertOptions describes one read-and-export.
type convertOptions struct {
	InputFormat   string
	CRS           crs.CRS // working CRS for the read
	TargetCRS     crs.CRS // export CRS; zero keeps each format's default
	To            format.Format
	Topology      bool
	RemoveOverlap bool
	Schema        string
	Table         string
	Out           string // "-" writes to stdout
	OutDir        string
}

// convertResult reports a finished conversion.
type convertResult struct {
	Path     string
	Features int
	Trimmed  int
	Bytes    int64
}

// openSource resolves src (fetching remote URLs) and reads it into a new
// adapter. Callers must call the returned cleanup.
func openSource(ctx context.Context, e *env, src string, inputFormat string, working crs.CRS) (*geodata.Adapter, func(), error) {
	local, err := e.Resolver.Resolve(ctx, src)
	if err != nil {
		return nil, nil, err
	}

	a := e.NewAdapter()
	if err := a.Read(ctx, local.Path, geodata.ReadOptions{Format: inputFormat, CRS: working}); err != nil {
		local.Cleanup()
		return nil, nil, err
	}
	return a, func() {
		a.Close()
		local.Cleanup()
	}, nil
}

// convertFile runs one conversion and records it in the journal when one
// is configured.
func convertFile(ctx context.Context, e *env, src string, opts convertOptions) (*convertResult, error) {
	if !opts.To.Exportable() {
		return nil, eris.Wrapf(format.ErrUnknownFormat, "cannot export to %q", opts.To)
	}

	var runID string
	if e.Journal != nil {
		run, err := e.Journal.CreateRun(ctx, src, opts.To.String())
		if err != nil {
			zap.L().Warn("journal: create run failed", zap.Error(err))
		} else {
			runID = run.ID
		}
	}

	res, crsName, err := doConvert(ctx, e, src, opts)

	if runID != "" {
		rr := store.RunResult{CRS: crsName, Err: err}
		if res != nil {
			rr.Features, rr.Bytes = res.Features, res.Bytes
		}
		if ferr := e.Journal.FinishRun(ctx, runID, rr); ferr != nil {
			zap.L().Warn("journal: finish run failed", zap.String("run_id", runID), zap.Error(ferr))
		}
	}
	return res, err
}

func doConvert(ctx context.Context, e *env, src string, opts convertOptions) (*convertResult, string, error) {
	a, cleanup, err := openSource(ctx, e, src, opts.InputFormat, opts.CRS)
	if err != nil {
		return nil, "", err
	}
	defer cleanup()

	ds, err := a.Dataset()
	if err != nil {
		return nil, "", err
	}
	res := &convertResult{Features: len(ds.Features)}

	if opts.RemoveOverlap {
		if res.Trimmed, err = a.RemoveOverlap(ctx); err != nil {
			return nil, ds.CRS.String(), err
		}
	}

	b, err := a.Export(ctx, opts.To, geodata.ExportOptions{
		CRS:             opts.TargetCRS,
		EnforceTopology: opts.Topology,
		SQL:             geodata.SQLOptions{Schema: opts.Schema, Table: opts.Table},
	})
	if err != nil {
		return nil, ds.CRS.String(), err
	}
	res.Bytes = int64(len(b))

	if opts.Out == "-" {
		res.Path = "-"
		_, err := os.Stdout.Write(b)
		return res, ds.CRS.String(), eris.Wrap(err, "write stdout")
	}

	res.Path = outputPath(opts.Out, opts.OutDir, ds.Name, opts.To.Extension())
	if err := writeFile(res.Path, b); err != nil {
		return nil, ds.CRS.String(), err
	}
	return res, ds.CRS.String(), nil
}

// writeFile writes b to path, creating parent directories.
func writeFile(path string, b []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "create output dir %s", dir)
		}
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return eris.Wrapf(err, "write %s", path)
	}
	return nil
}

// writeOutput writes b to out, or to w when out is empty or "-".
func writeOutput(w io.Writer, out string, b []byte) error {
	if out == "" || out == "-" {
		_, err := w.Write(b)
		return eris.Wrap(err, "write output")
	}
	return writeFile(out, b)
}
