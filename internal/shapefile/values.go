package shapefile

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/geodata/internal/model"
)

type decodeFunc func(string) string

// defaultDecoder keeps valid UTF-8 and reads anything else as Latin-1, the
// dBase default.
func defaultDecoder(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	out, err := charmap.ISO8859_1.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return out
}

// decoderFor resolves a .cpg code page name such as "UTF-8", "1252" or
// "ISO-8859-1".
func decoderFor(cpg string) (decodeFunc, error) {
	name := strings.ToLower(strings.TrimSpace(cpg))
	if _, err := strconv.Atoi(name); err == nil {
		// ArcGIS writes bare Windows code page numbers.
		name = "windows-" + name
	}
	if name == "utf8" {
		name = "utf-8"
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: code page %q", cpg)
	}
	if enc == encoding.Nop {
		return defaultDecoder, nil
	}
	if n, _ := htmlindex.Name(enc); n == "utf-8" {
		return func(s string) string { return s }, nil
	}
	return func(s string) string {
		out, err := enc.NewDecoder().String(s)
		if err != nil {
			return s
		}
		return out
	}, nil
}

// parseValue converts a raw DBF cell to a typed value. Blank cells are nil.
func parseValue(f model.Field, raw string) any {
	v := strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if v == "" {
		return nil
	}

	switch f.Type {
	case model.FieldNumeric:
		if f.Precision == 0 {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n
			}
		}
		if x, err := strconv.ParseFloat(v, 64); err == nil {
			return x
		}
		return nil
	case model.FieldFloat:
		if x, err := strconv.ParseFloat(v, 64); err == nil {
			return x
		}
		return nil
	case model.FieldLogical:
		switch v {
		case "T", "t", "Y", "y":
			return true
		case "F", "f", "N", "n":
			return false
		}
		return nil
	case model.FieldDate:
		if len(v) != 8 || v == "00000000" {
			return nil
		}
		if _, err := strconv.Atoi(v); err != nil {
			return nil
		}
		return v[0:4] + "-" + v[4:6] + "-" + v[6:8]
	default:
		return v
	}
}
