package s2grid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// The placemark description in the ESA grid KML is an HTML fragment with a
// fixed sequence of <b>-labeled sections. The two fields we need sit in the
// EPSG section (value wrapped in a green font tag) and the UTM_WKT section
// (a single-part MULTIPOLYGON coordinate list).
var (
	reEPSGValue = regexp.MustCompile(`(?s)<b>EPSG</b>.*?<font COLOR="#008000">(.+?)</font>`)
	reUTMWKT    = regexp.MustCompile(`(?s)<b>UTM_WKT</b>.*?MULTIPOLYGON\(\(\((.+?)\)\)\)`)
)

// ExtractEPSG returns the UTM EPSG code embedded in a placemark description.
func ExtractEPSG(description string) (int, error) {
	m := reEPSGValue.FindStringSubmatch(description)
	if m == nil {
		return 0, fmt.Errorf("description has no EPSG section")
	}

	epsg, err := strconv.Atoi(strings.TrimSpace(m[1]))
	if err != nil {
		return 0, fmt.Errorf("failed to parse EPSG value %q, %w", m[1], err)
	}

	return epsg, nil
}

// ExtractUTMWKT returns the UTM-space footprint embedded in a placemark
// description. The source encodes every UTM footprint as a single-part
// multipolygon; the coordinate list is re-emitted as POLYGON WKT.
func ExtractUTMWKT(description string) (string, error) {
	m := reUTMWKT.FindStringSubmatch(description)
	if m == nil {
		return "", fmt.Errorf("description has no UTM_WKT multipolygon")
	}

	return fmt.Sprintf("POLYGON ((%s))", m[1]), nil
}
