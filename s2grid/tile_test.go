package s2grid

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestTile_ComputeUTMBounds(t *testing.T) {
	tile := Tile{
		Name:   "33UUT",
		UTMWKT: "POLYGON ((300000 5690220,409800 5690220,409800 5800020,300000 5800020,300000 5690220))",
	}

	if err := tile.ComputeUTMBounds(); err != nil {
		t.Fatalf("Failed to compute UTM bounds, %v", err)
	}

	want := orb.Bound{
		Min: orb.Point{300000, 5690220},
		Max: orb.Point{409800, 5800020},
	}
	if tile.UTMBounds != want {
		t.Fatalf("UTMBounds = %v, want %v", tile.UTMBounds, want)
	}
}

func TestTile_ComputeUTMBounds_BadWKT(t *testing.T) {
	tile := Tile{Name: "33UUT", UTMWKT: "POLYGON ((not numbers))"}
	if err := tile.ComputeUTMBounds(); err == nil {
		t.Fatal("expected an error for malformed WKT")
	}
}

func TestTile_ExpectedEPSG(t *testing.T) {
	tests := []struct {
		name   string
		center orb.Point
		want   int
	}{
		{"33UUT northern", orb.Point{12.6, 51.8}, 32633},
		{"55HEV southern", orb.Point{147.3, -42.2}, 32755},
		{"01 near antimeridian", orb.Point{-177.0, 10.0}, 32601},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tile := Tile{Name: tt.name, Center: tt.center}
			got, err := tile.ExpectedEPSG()
			if err != nil {
				t.Fatalf("Failed to derive EPSG, %v", err)
			}
			if got != tt.want {
				t.Fatalf("ExpectedEPSG() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTile_ExpectedEPSG_Polar(t *testing.T) {
	tile := Tile{Name: "BAN", Center: orb.Point{0, -88.0}}
	if _, err := tile.ExpectedEPSG(); err == nil {
		t.Fatal("expected an error for a center outside the UTM latitude range")
	}
}

func TestTile_Validate(t *testing.T) {
	valid := Tile{
		Name:      "33UUT",
		Footprint: footprint(11.9, 51.3, 13.5, 52.3),
		Center:    orb.Point{12.7, 51.8},
		EPSG:      32633,
		UTMWKT:    "POLYGON ((300000 5690220,409800 5690220,409800 5800020,300000 5800020,300000 5690220))",
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("valid tile failed validation, %v", err)
	}

	t.Run("no footprint", func(t *testing.T) {
		tile := valid
		tile.Footprint = nil
		if err := tile.Validate(); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("no epsg", func(t *testing.T) {
		tile := valid
		tile.EPSG = 0
		if err := tile.Validate(); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("center outside footprint", func(t *testing.T) {
		tile := valid
		tile.Center = orb.Point{40.0, 10.0}
		if err := tile.Validate(); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestTable_AppendDuplicate(t *testing.T) {
	table := NewTable()
	if err := table.Append(Tile{Name: "33UUT"}); err != nil {
		t.Fatalf("first append failed, %v", err)
	}
	if err := table.Append(Tile{Name: "33UUT"}); err == nil {
		t.Fatal("expected an error for a duplicate name")
	}
}

func TestTable_Subset(t *testing.T) {
	table := NewTable()
	for _, name := range []string{"a", "b", "c", "d"} {
		if err := table.Append(Tile{Name: name}); err != nil {
			t.Fatalf("append failed, %v", err)
		}
	}

	subset, err := table.Subset([]int{0, 2})
	if err != nil {
		t.Fatalf("Subset failed, %v", err)
	}
	if subset.Len() != 2 || subset.Tiles[0].Name != "a" || subset.Tiles[1].Name != "c" {
		t.Fatalf("unexpected subset %v", subset.Tiles)
	}

	if _, err := table.Subset([]int{4}); err == nil {
		t.Fatal("expected an error for an out-of-range index")
	}
	if _, err := table.Subset([]int{-1}); err == nil {
		t.Fatal("expected an error for a negative index")
	}
}

func TestTable_Bound(t *testing.T) {
	table := NewTable()
	table.Append(Tile{Name: "a", Footprint: footprint(0, 0, 1, 1)})
	table.Append(Tile{Name: "b", Footprint: footprint(5, 5, 6, 7)})

	want := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{6, 7}}
	if got := table.Bound(); got != want {
		t.Fatalf("Bound() = %v, want %v", got, want)
	}
}
