// Package fetcher downloads remote dataset archives over HTTP(S) and FTP so
// the adapter can read them from local disk.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// IsRemote reports whether src is a URL this package can fetch.
func IsRemote(src string) bool {
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp":
		return u.Host != ""
	}
	return false
}

// Resolver turns a source argument into a local file path, downloading
// remote sources into a temporary directory.
type Resolver struct {
	HTTP    Fetcher
	FTP     Fetcher
	TempDir string // parent for download directories; "" uses os.TempDir
}

// Local is a resolved source. Cleanup removes any downloaded copy and is
// safe to call more than once.
type Local struct {
	Path    string
	Bytes   int64
	Remote  bool
	cleanup func()
}

// Cleanup releases the downloaded copy, if any.
func (l *Local) Cleanup() {
	if l.cleanup != nil {
		l.cleanup()
		l.cleanup = nil
	}
}

// Resolve returns src unchanged when it is a local path, otherwise downloads
// it. The local file keeps the URL's base name so the format detector and
// the dataset name see the same name the remote file had.
func (r *Resolver) Resolve(ctx context.Context, src string) (*Local, error) {
	if !IsRemote(src) {
		return &Local{Path: src}, nil
	}

	u, _ := url.Parse(src)
	var f Fetcher
	switch strings.ToLower(u.Scheme) {
	case "ftp":
		f = r.FTP
	default:
		f = r.HTTP
	}
	if f == nil {
		return nil, eris.Errorf("fetcher: no fetcher for scheme %q", u.Scheme)
	}

	dir, err := os.MkdirTemp(r.TempDir, "geodata-fetch-*")
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create temp dir")
	}
	cleanup := func() { os.RemoveAll(dir) } //nolint:errcheck

	dest := filepath.Join(dir, localName(u))
	n, err := f.DownloadToFile(ctx, src, dest)
	if err != nil {
		cleanup()
		return nil, eris.Wrapf(err, "fetcher: %s", redact(u))
	}

	zap.L().Info("fetcher: downloaded source",
		zap.String("url", redact(u)),
		zap.String("path", dest),
		zap.Int64("bytes", n),
	)
	return &Local{Path: dest, Bytes: n, Remote: true, cleanup: cleanup}, nil
}

func localName(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return "download"
	}
	return base
}

// redact drops credentials from a URL before it is logged.
func redact(u *url.URL) string {
	if u.User == nil {
		return u.String()
	}
	c := *u
	c.User = nil
	return c.String()
}
