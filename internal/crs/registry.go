package crs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type definition struct {
	name  string
	proj4 string
}

var registry = map[int]definition{
	4326: {"WGS 84", "+proj=longlat +datum=WGS84 +no_defs +type=crs"},
	4269: {"NAD83", "+proj=longlat +datum=NAD83 +no_defs +type=crs"},
	4267: {"NAD27", "+proj=longlat +datum=NAD27 +no_defs +type=crs"},
	4258: {"ETRS89", "+proj=longlat +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +no_defs +type=crs"},
	3857: {"WGS 84 / Pseudo-Mercator", "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +nadgrids=@null +wktext +no_defs +type=crs"},
	5070: {"NAD83 / Conus Albers", "+proj=aea +lat_0=23 +lon_0=-96 +lat_1=29.5 +lat_2=45.5 +x_0=0 +y_0=0 +datum=NAD83 +units=m +no_defs +type=crs"},
	2992: {"NAD83 / Oregon GIC Lambert (ft)", "+proj=lcc +lat_0=41.75 +lon_0=-120.5 +lat_1=43 +lat_2=45.5 +x_0=399999.9999984 +y_0=0 +datum=NAD83 +units=ft +no_defs +type=crs"},
}

func init() {
	for zone := 1; zone <= 60; zone++ {
		registry[32600+zone] = definition{
			name:  fmt.Sprintf("WGS 84 / UTM zone %dN", zone),
			proj4: fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs +type=crs", zone),
		}
		registry[32700+zone] = definition{
			name:  fmt.Sprintf("WGS 84 / UTM zone %dS", zone),
			proj4: fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs +type=crs", zone),
		}
	}
	for zone := 1; zone <= 23; zone++ {
		registry[26900+zone] = definition{
			name:  fmt.Sprintf("NAD83 / UTM zone %dN", zone),
			proj4: fmt.Sprintf("+proj=utm +zone=%d +datum=NAD83 +units=m +no_defs +type=crs", zone),
		}
	}
}

// Codes returns the registered EPSG codes.
func Codes() []int {
	out := make([]int, 0, len(registry))
	for code := range registry {
		out = append(out, code)
	}
	return out
}

func lookupEPSG(code int) (definition, bool) {
	d, ok := registry[code]
	return d, ok
}

func lookupProj4(norm string) (int, bool) {
	key := proj4Key(norm)
	for code, d := range registry {
		if proj4Key(d.proj4) == key {
			return code, true
		}
	}
	return 0, false
}

// ESRI .prj files name their CRS without an authority clause.
var esriNames = map[string]int{
	"gcs_wgs_1984":                                4326,
	"wgs 84":                                      4326,
	"wgs84":                                       4326,
	"gcs_north_american_1983":                     4269,
	"nad83":                                       4269,
	"gcs_north_american_1927":                     4267,
	"nad27":                                       4267,
	"gcs_etrs_1989":                               4258,
	"etrs89":                                      4258,
	"wgs_1984_web_mercator_auxiliary_sphere":      3857,
	"wgs_1984_web_mercator":                       3857,
	"wgs 84 / pseudo-mercator":                    3857,
	"usa_contiguous_albers_equal_area_conic":      5070,
	"nad_1983_contiguous_usa_albers":              5070,
	"nad83 / conus albers":                        5070,
	"nad_1983_oregon_statewide_lambert_feet_intl": 2992,
}

var (
	wgsUTMRe   = regexp.MustCompile(`^wgs[_ ]?(?:19)?84[_ /]+utm[_ ]zone[_ ](\d{1,2})([ns])$`)
	nad83UTMRe = regexp.MustCompile(`^nad[_ ]?(?:19)?83[_ /]+utm[_ ]zone[_ ](\d{1,2})n?$`)
)

func lookupName(name string) (int, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if code, ok := esriNames[n]; ok {
		return code, true
	}
	if m := wgsUTMRe.FindStringSubmatch(n); m != nil {
		zone, _ := strconv.Atoi(m[1])
		if zone < 1 || zone > 60 {
			return 0, false
		}
		if m[2] == "s" {
			return 32700 + zone, true
		}
		return 32600 + zone, true
	}
	if m := nad83UTMRe.FindStringSubmatch(n); m != nil {
		zone, _ := strconv.Atoi(m[1])
		if zone < 1 || zone > 23 {
			return 0, false
		}
		return 26900 + zone, true
	}
	return 0, false
}
