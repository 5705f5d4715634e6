// Package crs models coordinate reference systems as immutable values that
// can be rendered as an EPSG code, a PROJ4 string or an "EPSG:xxxx" string.
package crs

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnknownCRS is returned when a CRS definition cannot be interpreted.
var ErrUnknownCRS = eris.New("crs: unknown coordinate reference system")

// WGS84 is geographic longitude/latitude on the WGS84 datum, EPSG:4326.
var WGS84 = MustEPSG(4326)

// WebMercator is the spherical Mercator projection used by web maps, EPSG:3857.
var WebMercator = MustEPSG(3857)

// CRS identifies a coordinate reference system. The zero value means "no CRS".
type CRS struct {
	epsg  int
	name  string
	proj4 string
	wkt   string
}

// FromEPSG returns the registered CRS for code.
func FromEPSG(code int) (CRS, error) {
	def, ok := lookupEPSG(code)
	if !ok {
		return CRS{}, eris.Wrapf(ErrUnknownCRS, "crs: EPSG:%d is not registered", code)
	}
	return CRS{epsg: code, name: def.name, proj4: def.proj4}, nil
}

// MustEPSG is FromEPSG for package-level values; it panics on unknown codes.
func MustEPSG(code int) CRS {
	c, err := FromEPSG(code)
	if err != nil {
		panic(err)
	}
	return c
}

// Parse interprets s as "EPSG:4326" (any case), a bare EPSG number, a PROJ4
// string or an OGC WKT definition. An empty string yields the zero CRS.
func Parse(s string) (CRS, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return CRS{}, nil
	case strings.HasPrefix(s, "+"):
		return FromProj4(s), nil
	case looksLikeWKT(s):
		return FromPRJ(s)
	}

	code := s
	if i := strings.IndexByte(s, ':'); i >= 0 {
		if !strings.EqualFold(s[:i], "epsg") {
			return CRS{}, eris.Wrapf(ErrUnknownCRS, "crs: unsupported authority in %q", s)
		}
		code = s[i+1:]
	}
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return CRS{}, eris.Wrapf(ErrUnknownCRS, "crs: cannot parse %q", s)
	}
	return FromEPSG(n)
}

// FromProj4 returns the CRS described by a PROJ4 string. Strings that match a
// registered definition resolve to that EPSG code; others are kept verbatim
// after normalization.
func FromProj4(s string) CRS {
	norm := NormalizeProj4(s)
	if code, ok := lookupProj4(norm); ok {
		return MustEPSG(code)
	}
	return CRS{proj4: norm}
}

var (
	authorityRe = regexp.MustCompile(`(?i)^(?:AUTHORITY|ID)\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)
	nameRe      = regexp.MustCompile(`(?i)^\s*(?:PROJCS|GEOGCS|PROJCRS|GEOGCRS|GEODCRS)\[\s*"([^"]*)"`)
)

// FromPRJ interprets the WKT content of a shapefile .prj member. The EPSG code
// is taken from an AUTHORITY or ID clause of the root node when present (a
// nested clause names a component such as the base GEOGCS), otherwise from a
// known CRS name (including ESRI names such as GCS_WGS_1984). Unrecognized
// definitions keep their WKT with EPSG 0.
func FromPRJ(wkt string) (CRS, error) {
	wkt = strings.TrimSpace(strings.TrimPrefix(wkt, "\ufeff"))
	if wkt == "" {
		return CRS{}, eris.Wrap(ErrUnknownCRS, "crs: empty projection definition")
	}
	if !looksLikeWKT(wkt) {
		return CRS{}, eris.Wrapf(ErrUnknownCRS, "crs: not a WKT definition: %.40q", wkt)
	}

	if code, ok := rootAuthority(wkt); ok {
		if c, err := FromEPSG(code); err == nil {
			c.wkt = wkt
			return c, nil
		}
	}

	var name string
	if m := nameRe.FindStringSubmatch(wkt); m != nil {
		name = m[1]
		if code, ok := lookupName(name); ok {
			c := MustEPSG(code)
			c.wkt = wkt
			return c, nil
		}
	}

	return CRS{name: name, wkt: wkt}, nil
}

// rootAuthority finds an EPSG AUTHORITY or ID clause whose parent is the root
// node of the WKT.
func rootAuthority(wkt string) (int, bool) {
	depth := 0
	quoted := false
	for i := 0; i < len(wkt); i++ {
		switch ch := wkt[i]; {
		case ch == '"':
			quoted = !quoted
		case quoted:
		case ch == '[' || ch == '(':
			depth++
		case ch == ']' || ch == ')':
			depth--
		case depth == 1 && (ch == ',' || ch == ' '):
			m := authorityRe.FindStringSubmatch(strings.TrimLeft(wkt[i+1:], " \t\r\n"))
			if m == nil {
				continue
			}
			if code, err := strconv.Atoi(m[1]); err == nil {
				return code, true
			}
		}
	}
	return 0, false
}

// NormalizeProj4 collapses whitespace and appends +type=crs when missing, so
// the string is read as a CRS rather than a bare parameter set.
func NormalizeProj4(s string) string {
	parts := strings.Fields(s)
	for _, p := range parts {
		if p == "+type=crs" {
			return strings.Join(parts, " ")
		}
	}
	return strings.Join(append(parts, "+type=crs"), " ")
}

// EPSG returns the EPSG code, or 0 when the CRS has none.
func (c CRS) EPSG() int { return c.epsg }

// Name returns the human-readable CRS name, such as "WGS 84".
func (c CRS) Name() string { return c.name }

// Proj4 returns the PROJ4 representation, always carrying +type=crs. It is
// empty for CRSs known only by WKT.
func (c CRS) Proj4() string { return c.proj4 }

// WKT returns the source WKT when the CRS came from a .prj definition.
func (c CRS) WKT() string { return c.wkt }

// IsZero reports whether c is the zero CRS.
func (c CRS) IsZero() bool {
	return c.epsg == 0 && c.proj4 == "" && c.wkt == ""
}

// String returns "EPSG:<code>" for CRSs with a code, otherwise the PROJ4 or
// name form.
func (c CRS) String() string {
	switch {
	case c.epsg != 0:
		return "EPSG:" + strconv.Itoa(c.epsg)
	case c.proj4 != "":
		return c.proj4
	case c.name != "":
		return c.name
	case c.wkt != "":
		return "WKT"
	default:
		return ""
	}
}

// Definition returns the most precise form accepted by projection engines:
// "EPSG:<code>", then PROJ4, then WKT.
func (c CRS) Definition() string {
	switch {
	case c.epsg != 0:
		return "EPSG:" + strconv.Itoa(c.epsg)
	case c.proj4 != "":
		return c.proj4
	default:
		return c.wkt
	}
}

// Equal reports whether c and o denote the same CRS.
func (c CRS) Equal(o CRS) bool {
	if c.epsg != 0 || o.epsg != 0 {
		return c.epsg == o.epsg
	}
	if c.proj4 != "" || o.proj4 != "" {
		return proj4Key(c.proj4) == proj4Key(o.proj4)
	}
	return strings.TrimSpace(c.wkt) == strings.TrimSpace(o.wkt)
}

// Geographic reports whether the CRS uses longitude/latitude degrees.
func (c CRS) Geographic() bool {
	return strings.Contains(c.proj4, "+proj=longlat")
}

func looksLikeWKT(s string) bool {
	u := strings.ToUpper(strings.TrimSpace(s))
	for _, p := range []string{"PROJCS[", "GEOGCS[", "GEOCCS[", "COMPD_CS[", "PROJCRS[", "GEOGCRS[", "GEODCRS[", "BOUNDCRS["} {
		if strings.HasPrefix(u, p) {
			return true
		}
	}
	return false
}

// proj4Key is an order-insensitive key for PROJ4 strings.
func proj4Key(s string) string {
	parts := strings.Fields(NormalizeProj4(s))
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
