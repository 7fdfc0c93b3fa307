package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/tidwall/gjson"

	"github.com/maawoo/sentinel-2-grid-geoparquet/s2grid"
)

// Inspects produced outputs: row counts, EPSG range, bounds, and whether
// grid_land is a strict order-preserving subset of grid.
func main() {
	flag.Parse()

	for _, path := range flag.Args() {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".sqlite", ".db":
			verifySQLite(path)
		case ".parquet":
			verifyParquet(path)
		case ".geojson":
			verifyGeoJSON(path)
		default:
			log.Fatalf("Don't know how to verify %s", path)
		}
	}
}

func verifySQLite(path string) {
	reader, err := s2grid.NewGridReader(path)
	if err != nil {
		log.Fatalf("Couldn't open %s: %+v", path, err)
	}
	defer reader.Close()

	metadata, err := reader.Metadata()
	if err != nil {
		log.Fatalf("Unable to read metadata for %s, %v", path, err)
	}
	log.Printf("[%s] metadata: %v", path, metadata)

	var gridNames []string
	gridStats := newTableStats()
	err = reader.VisitRows(s2grid.TableGrid, func(idx int, tile s2grid.Tile) {
		gridNames = append(gridNames, tile.Name)
		gridStats.add(tile)
	})
	if err != nil {
		log.Fatalf("Couldn't read %s rows from %s: %+v", s2grid.TableGrid, path, err)
	}

	var landNames []string
	lastIdx := -1
	landStats := newTableStats()
	err = reader.VisitRows(s2grid.TableGridLand, func(idx int, tile s2grid.Tile) {
		if idx <= lastIdx {
			log.Fatalf("[%s] %s indices are not strictly ascending: %d after %d", path, s2grid.TableGridLand, idx, lastIdx)
		}
		lastIdx = idx
		landNames = append(landNames, tile.Name)
		landStats.add(tile)
	})
	if err != nil {
		log.Fatalf("Couldn't read %s rows from %s: %+v", s2grid.TableGridLand, path, err)
	}

	gridStats.report(path, s2grid.TableGrid)
	landStats.report(path, s2grid.TableGridLand)
	checkSubset(path, gridNames, landNames)
}

func verifyParquet(path string) {
	names, stats := readParquet(path)
	stats.report(path, filepath.Base(path))

	// When inspecting the land subset, check it against the sibling full
	// grid file if one is present.
	if strings.TrimSuffix(filepath.Base(path), ".parquet") != s2grid.TableGridLand {
		return
	}
	gridPath := filepath.Join(filepath.Dir(path), s2grid.TableGrid+".parquet")
	if _, err := os.Stat(gridPath); err != nil {
		return
	}

	gridNames, _ := readParquet(gridPath)
	checkSubset(path, gridNames, names)
}

func readParquet(path string) ([]string, *tableStats) {
	rows, err := parquet.ReadFile[s2grid.GeoparquetRow](path)
	if err != nil {
		log.Fatalf("Couldn't read %s: %+v", path, err)
	}

	var names []string
	stats := newTableStats()
	for _, row := range rows {
		geometry, err := wkb.Unmarshal(row.Geometry)
		if err != nil {
			log.Fatalf("[%s] tile %s has undecodable geometry: %+v", path, row.Tile, err)
		}
		footprint, ok := geometry.(orb.MultiPolygon)
		if !ok {
			log.Fatalf("[%s] tile %s geometry is %s, expected MultiPolygon", path, row.Tile, geometry.GeoJSONType())
		}

		names = append(names, row.Tile)
		stats.add(s2grid.Tile{Name: row.Tile, Footprint: footprint, EPSG: int(row.EPSG)})
	}

	return names, stats
}

func verifyGeoJSON(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Couldn't read %s: %+v", path, err)
	}

	if t := gjson.GetBytes(data, "type").String(); t != "FeatureCollection" {
		log.Fatalf("[%s] type is %q, expected FeatureCollection", path, t)
	}

	count := gjson.GetBytes(data, "features.#").Int()

	epsgs := make(map[int64]int)
	gjson.GetBytes(data, "features.#.properties.epsg").ForEach(func(_, value gjson.Result) bool {
		epsgs[value.Int()]++
		return true
	})

	missing := 0
	gjson.GetBytes(data, "features.#.properties.tile").ForEach(func(_, value gjson.Result) bool {
		if value.String() == "" {
			missing++
		}
		return true
	})
	if missing > 0 {
		log.Fatalf("[%s] %d features are missing a tile name", path, missing)
	}

	log.Printf("[%s] features: %d distinct EPSG codes: %d", path, count, len(epsgs))
}

// checkSubset verifies that the land table names form an order-preserving
// subsequence of the full grid names, which is what ascending unique source
// indices produce.
func checkSubset(path string, grid []string, land []string) {
	if len(land) > len(grid) {
		log.Fatalf("[%s] %s has more rows (%d) than %s (%d)", path, s2grid.TableGridLand, len(land), s2grid.TableGrid, len(grid))
	}

	i := 0
	for _, name := range land {
		for i < len(grid) && grid[i] != name {
			i++
		}
		if i == len(grid) {
			log.Fatalf("[%s] %s row %s is not an in-order subset of %s", path, s2grid.TableGridLand, name, s2grid.TableGrid)
		}
		i++
	}

	log.Printf("[%s] %s is an in-order subset of %s (%d of %d rows)", path, s2grid.TableGridLand, s2grid.TableGrid, len(land), len(grid))
}

type tableStats struct {
	count    int
	minEPSG  int
	maxEPSG  int
	bound    orb.Bound
	hasBound bool
}

func newTableStats() *tableStats {
	return &tableStats{}
}

func (s *tableStats) add(tile s2grid.Tile) {
	s.count++

	if s.minEPSG == 0 || tile.EPSG < s.minEPSG {
		s.minEPSG = tile.EPSG
	}
	if tile.EPSG > s.maxEPSG {
		s.maxEPSG = tile.EPSG
	}

	if len(tile.Footprint) == 0 {
		return
	}
	fb := tile.Footprint.Bound()
	if s.hasBound {
		s.bound = s.bound.Union(fb)
	} else {
		s.bound = fb
		s.hasBound = true
	}
}

func (s *tableStats) report(path string, name string) {
	log.Printf("[%s] %s rows: %d EPSG: %d-%d bounds: %s", path, name, s.count, s.minEPSG, s.maxEPSG, formatBound(s.bound))
}

func formatBound(b orb.Bound) string {
	return fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y())
}
