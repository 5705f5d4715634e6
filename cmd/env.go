package main

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/geodata/internal/config"
	"github.com/sells-group/geodata/internal/fetcher"
	"github.com/sells-group/geodata/internal/geodata"
	"github.com/sells-group/geodata/internal/pgdump"
	"github.com/sells-group/geodata/internal/spatial"
	"github.com/sells-group/geodata/internal/store"
)

// env holds the collaborators shared by the conversion commands.
type env struct {
	Options  geodata.Options
	Resolver *fetcher.Resolver
	Journal  store.Journal

	engine *spatial.Engine
}

// NewAdapter returns an adapter wired to the shared engine and dumper.
func (e *env) NewAdapter() *geodata.Adapter {
	return geodata.New(e.Options)
}

// Close releases the engine and journal.
func (e *env) Close() {
	if e.engine != nil {
		if err := e.engine.Close(); err != nil {
			zap.L().Warn("close spatial engine", zap.Error(err))
		}
	}
	if e.Journal != nil {
		if err := e.Journal.Close(); err != nil {
			zap.L().Warn("close run journal", zap.Error(err))
		}
	}
}

type envOptions struct {
	// Journal opens the SQLite run journal.
	Journal bool
}

// initEnv builds the adapter options, fetcher and optional journal from cfg.
// A spatial engine that fails to start is logged and left out; operations
// that need it then fail with geodata.ErrNoEngine.
func initEnv(ctx context.Context, c *config.Config, opts envOptions) (*env, error) {
	defCRS, err := c.CRS.DefaultCRS()
	if err != nil {
		return nil, err
	}

	e := &env{
		Options: geodata.Options{
			DefaultCRS: defCRS,
			Dumper: pgdump.New(pgdump.Options{
				Bin:     c.Export.Ogr2ogrPath,
				Schema:  c.Export.Schema,
				Timeout: c.Export.ToolTimeout(),
				TempDir: c.Export.TempDir,
			}),
			TempDir: c.Export.TempDir,
		},
		Resolver: newResolver(c),
	}

	eng, err := spatial.Open(ctx, spatial.Options{
		Path:         c.Engine.Path,
		ExtensionDir: c.Engine.ExtensionDir,
		SkipInstall:  c.Engine.SkipInstall,
	})
	if err != nil {
		zap.L().Warn("spatial engine unavailable, reprojection and geometry operations are disabled", zap.Error(err))
	} else {
		e.engine = eng
		e.Options.Engine = eng
	}

	if opts.Journal {
		j, err := openJournal(ctx, c)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.Journal = j
	}
	return e, nil
}

func newResolver(c *config.Config) *fetcher.Resolver {
	return &fetcher.Resolver{
		HTTP: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  c.Fetch.UserAgent,
			Timeout:    c.Fetch.Timeout(),
			MaxRetries: c.Fetch.MaxRetries,
			Rate:       rate.Limit(c.Fetch.RatePerSec),
			Burst:      c.Fetch.Burst,
		}),
		FTP:     fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: c.Fetch.Timeout()}),
		TempDir: c.Export.TempDir,
	}
}

func openJournal(ctx context.Context, c *config.Config) (*store.SQLiteStore, error) {
	path := c.Store.JournalPath
	if path == "" {
		path = "geodata.db"
	}
	j, err := store.NewSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := j.Migrate(ctx); err != nil {
		j.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate run journal")
	}
	return j, nil
}

// outputPath picks where an export of name goes: out when given, else
// name plus the format extension inside dir.
func outputPath(out, dir, name, ext string) string {
	if out != "" {
		return out
	}
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	return filepath.Join(dir, base+ext)
}
