package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/maawoo/sentinel-2-grid-geoparquet/s2grid"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using system environment variables")
	}

	gridURL := flag.String("grid-url", s2grid.URLFromEnv(s2grid.EnvGridURL, s2grid.DefaultGridURL), "URL or path of the ESA Sentinel-2 tiling grid KML/KMZ.")
	landmaskURL := flag.String("landmask-url", s2grid.URLFromEnv(s2grid.EnvLandmaskURL, s2grid.DefaultLandmaskURL), "URL or path of the land mask GeoJSON.")
	cacheDir := flag.String("cache-dir", "", "Directory to cache downloaded inputs in. Empty disables caching.")
	outputMode := flag.String("output-mode", "geoparquet", "Valid modes are: geoparquet, geojson, sqlite.")
	outputDSN := flag.String("dsn", "", "Output directory (geoparquet, geojson) or database path (sqlite).")
	predicateStr := flag.String("predicate", "intersects", "Spatial predicate for the land filter. Options are intersects, contains, within, covers, coveredby, touches, overlaps.")
	requestTimeout := flag.Int("timeout", 120, "HTTP client timeout for input downloads, in seconds.")
	previewPath := flag.String("preview", "", "Also write a PMTiles preview of the land-filtered grid to the given path.")
	previewMaxZoom := flag.Int("preview-maxzoom", 7, "Maximum zoom level of the PMTiles preview.")
	cpuProfile := flag.String("cpuprofile", "", "Enables CPU profiling. Saves the dump to the given path.")
	flag.Parse()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	if *outputDSN == "" {
		log.Fatalf("Output DSN (-dsn) is required")
	}

	predicate, err := s2grid.ParsePredicate(*predicateStr)
	if err != nil {
		log.Fatalf("Invalid predicate: %+v", err)
	}

	fetcher := s2grid.NewFetcher(time.Duration(*requestTimeout)*time.Second, *cacheDir)

	gridData, err := fetcher.Fetch(*gridURL)
	if err != nil {
		log.Fatalf("Failed to fetch tile grid from %s: %+v", *gridURL, err)
	}

	table, err := s2grid.ParseGrid(gridData)
	if err != nil {
		log.Fatalf("Failed to parse tile grid: %+v", err)
	}

	bar := progressbar.Default(int64(table.Len()), "validating tiles")
	for i := range table.Tiles {
		if err := table.Tiles[i].Validate(); err != nil {
			log.Fatalf("Tile validation failed: %+v", err)
		}
		bar.Add(1)
	}

	landData, err := fetcher.Fetch(*landmaskURL)
	if err != nil {
		log.Fatalf("Failed to fetch land mask from %s: %+v", *landmaskURL, err)
	}

	mask, err := s2grid.LoadLandMask(landData)
	if err != nil {
		log.Fatalf("Failed to load land mask: %+v", err)
	}

	start := time.Now()
	indices, err := s2grid.FilterLand(table, mask, predicate)
	if err != nil {
		log.Fatalf("Land filter failed: %+v", err)
	}
	log.Printf("Land filter kept %d of %d tiles (%0.1fs)", len(indices), table.Len(), time.Since(start).Seconds())

	subset, err := table.Subset(indices)
	if err != nil {
		log.Fatalf("Failed to subset grid table: %+v", err)
	}

	outputter, err := s2grid.NewTableOutputter(*outputMode, *outputDSN)
	if err != nil {
		log.Fatalf("Couldn't create %s output: %+v", *outputMode, err)
	}

	if err := outputter.CreateTables(); err != nil {
		log.Fatalf("Failed to create %s output: %+v", *outputMode, err)
	}

	if err := outputter.WriteTable(s2grid.TableGrid, table); err != nil {
		log.Fatalf("Failed to write grid table: %+v", err)
	}

	if err := outputter.WriteTable(s2grid.TableGridLand, subset); err != nil {
		log.Fatalf("Failed to write land-filtered grid table: %+v", err)
	}

	if mw, ok := outputter.(s2grid.MetadataWriter); ok {
		bound := table.Bound()
		metadata := map[string]string{
			"grid_url":        *gridURL,
			"landmask_url":    *landmaskURL,
			"predicate":       string(predicate),
			"grid_count":      strconv.Itoa(table.Len()),
			"grid_land_count": strconv.Itoa(subset.Len()),
			"bounds":          fmt.Sprintf("%f,%f,%f,%f", bound.Min.X(), bound.Min.Y(), bound.Max.X(), bound.Max.Y()),
			"created":         time.Now().UTC().Format(time.RFC3339),
		}
		for name, value := range metadata {
			if err := mw.SetMetadata(name, value); err != nil {
				log.Fatalf("Failed to write %s metadata: %+v", name, err)
			}
		}
	}

	if err := outputter.Close(); err != nil {
		log.Fatalf("Error closing %s output: %+v", *outputMode, err)
	}

	log.Printf("Wrote %s and %s (%s)", s2grid.TableGrid, s2grid.TableGridLand, *outputMode)

	if *previewPath != "" {
		preview, err := s2grid.NewPreviewOutputter(*previewPath, *previewMaxZoom)
		if err != nil {
			log.Fatalf("Couldn't create preview output: %+v", err)
		}

		if err := preview.WriteGrid(subset); err != nil {
			log.Fatalf("Failed to render preview tiles: %+v", err)
		}

		if err := preview.Close(); err != nil {
			log.Fatalf("Failed to write preview archive: %+v", err)
		}

		log.Printf("Wrote preview to %s", *previewPath)
	}
}
