package s2grid

import (
	"strings"
	"testing"
)

// Trimmed-down rendition of the description HTML the ESA grid KML attaches
// to every placemark.
const sampleDescription = `<html><body><center>
<b>TILE PROPERTIES</b><br>
<table><tr><td><b>TILE_ID</b></td><td><font COLOR="#008000">33UUT</font></td></tr>
<tr><td><b>EPSG</b></td><td><font COLOR="#008000">32633</font></td></tr>
<tr><td><b>UTM_WKT</b></td><td><font COLOR="#008000">MULTIPOLYGON(((300000 5690220,409800 5690220,409800 5800020,300000 5800020,300000 5690220)))</font></td></tr>
<tr><td><b>MGRS_REF</b></td><td><font COLOR="#008000">33UUT</font></td></tr></table>
</center></body></html>`

func TestExtractEPSG(t *testing.T) {
	epsg, err := ExtractEPSG(sampleDescription)
	if err != nil {
		t.Fatalf("Failed to extract EPSG, %v", err)
	}
	if epsg != 32633 {
		t.Fatalf("ExtractEPSG() = %d, want 32633", epsg)
	}
}

func TestExtractEPSG_Missing(t *testing.T) {
	tests := map[string]string{
		"no EPSG section": `<b>TILE_ID</b><font COLOR="#008000">33UUT</font>`,
		"no font value":   `<b>EPSG</b><td>32633</td>`,
		"empty":           "",
	}

	for name, description := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ExtractEPSG(description); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestExtractEPSG_NotANumber(t *testing.T) {
	description := `<b>EPSG</b><font COLOR="#008000">thirty-two</font>`
	if _, err := ExtractEPSG(description); err == nil {
		t.Fatal("expected an error for a non-numeric EPSG value")
	}
}

func TestExtractUTMWKT(t *testing.T) {
	wkt, err := ExtractUTMWKT(sampleDescription)
	if err != nil {
		t.Fatalf("Failed to extract UTM WKT, %v", err)
	}

	if !strings.HasPrefix(wkt, "POLYGON ((") || !strings.HasSuffix(wkt, "))") {
		t.Fatalf("ExtractUTMWKT() = %q, want POLYGON ((...)) form", wkt)
	}
	if !strings.Contains(wkt, "300000 5690220") {
		t.Fatalf("ExtractUTMWKT() = %q, missing first coordinate", wkt)
	}
}

func TestExtractUTMWKT_Missing(t *testing.T) {
	description := `<b>EPSG</b><font COLOR="#008000">32633</font>`
	if _, err := ExtractUTMWKT(description); err == nil {
		t.Fatal("expected an error")
	}
}
