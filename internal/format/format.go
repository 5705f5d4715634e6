// Package format names the data formats the adapter knows about and derives
// the format of an input file from its name.
package format

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Format is a closed set of data format tags.
type Format string

const (
	Unknown  Format = ""
	Zip      Format = "zip"
	Shp      Format = "shp"
	GeoJSON  Format = "geojson"
	WKT      Format = "wkt"
	TopoJSON Format = "topojson"
	KML      Format = "kml"
	SQL      Format = "sql"
	Parquet  Format = "parquet"
	XLSX     Format = "xlsx"
)

var (
	// ErrUnsupportedContainer is returned for compressed inputs other than .zip.
	ErrUnsupportedContainer = eris.New("format: unsupported container, only .zip archives are accepted")
	// ErrUnknownFormat is returned by Parse for names outside the closed set.
	ErrUnknownFormat = eris.New("format: unknown format")
)

// All lists every known format in a stable order.
var All = []Format{Zip, Shp, GeoJSON, WKT, TopoJSON, KML, SQL, Parquet, XLSX}

// Exports lists the formats a loaded dataset can be written as.
var Exports = []Format{GeoJSON, TopoJSON, WKT, KML, SQL, Parquet, XLSX}

// compressed suffixes that are rejected outright.
var otherContainers = []string{".tar.gz", ".tgz", ".gz", ".gzip", ".bz2", ".xz", ".7z", ".7zip", ".rar", ".tar"}

// String returns the lower-case tag, or "unknown".
func (f Format) String() string {
	if f == Unknown {
		return "unknown"
	}
	return string(f)
}

// Exportable reports whether f is an output format.
func (f Format) Exportable() bool {
	for _, e := range Exports {
		if e == f {
			return true
		}
	}
	return false
}

// Extension returns the conventional file extension including the dot.
func (f Format) Extension() string {
	switch f {
	case GeoJSON:
		return ".geojson"
	case TopoJSON:
		return ".topojson"
	case Unknown:
		return ""
	default:
		return "." + string(f)
	}
}

// ContentType returns the MIME type used when serving the format over HTTP.
func (f Format) ContentType() string {
	switch f {
	case Zip:
		return "application/zip"
	case GeoJSON:
		return "application/geo+json"
	case TopoJSON:
		return "application/json"
	case KML:
		return "application/vnd.google-earth.kml+xml"
	case SQL:
		return "application/sql"
	case Parquet:
		return "application/vnd.apache.parquet"
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Parse maps a format name (case-insensitive) onto the closed set.
func Parse(name string) (Format, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "json":
		return GeoJSON, nil
	case "pgdump", "postgis":
		return SQL, nil
	}
	for _, f := range All {
		if string(f) == n {
			return f, nil
		}
	}
	return Unknown, eris.Wrapf(ErrUnknownFormat, "format: %q", name)
}

// Detect derives the format of fileName, using declared as a hint.
//
// Only the .zip container is recognized by extension. When zip is declared,
// or nothing is declared and the name ends in "zip", the extension must be
// exactly .zip. A declared format that disagrees with the derived one is
// logged and ignored. When nothing can be derived the lower-cased declared
// format is returned unchanged, which may be Unknown.
func Detect(fileName, declared string) (Format, error) {
	decl := strings.ToLower(strings.TrimSpace(declared))
	name := strings.ToLower(strings.TrimSpace(fileName))

	derived := Unknown
	switch {
	case strings.HasSuffix(name, ".zip"):
		derived = Zip
	case decl == string(Zip), decl == "" && strings.HasSuffix(name, "zip"):
		return Unknown, eris.Wrapf(ErrUnsupportedContainer, "format: %s", fileName)
	}

	if decl != "" && derived != Unknown && Format(decl) != derived {
		zap.L().Warn("format: derived format does not match declared format, using derived",
			zap.String("file", fileName),
			zap.String("derived", derived.String()),
			zap.String("declared", decl),
		)
	}

	if derived != Unknown {
		return derived, nil
	}
	return Format(decl), nil
}

// IsArchive reports whether name carries a compressed or archive suffix other
// than .zip.
func IsArchive(name string) bool {
	return hasContainerSuffix(strings.ToLower(strings.TrimSpace(name)))
}

func hasContainerSuffix(name string) bool {
	for _, s := range otherContainers {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
