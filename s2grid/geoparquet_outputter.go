package s2grid

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/paulmach/orb/encoding/wkb"
)

// GeoparquetRow is the GeoParquet column layout of one grid table row.
// Geometry columns hold WKB; the UTM bounding box is flattened into four
// numeric columns.
type GeoparquetRow struct {
	Tile     string  `parquet:"tile"`
	Geometry []byte  `parquet:"geometry"`
	Center   []byte  `parquet:"center"`
	EPSG     int32   `parquet:"epsg"`
	UTMWKT   string  `parquet:"utm_wkt"`
	UTMXMin  float64 `parquet:"utm_xmin"`
	UTMYMin  float64 `parquet:"utm_ymin"`
	UTMXMax  float64 `parquet:"utm_xmax"`
	UTMYMax  float64 `parquet:"utm_ymax"`
}

type geoparquetOutputter struct {
	base string
}

// NewGeoparquetOutputter writes one <base>/<name>.parquet file per table,
// with GeoParquet 1.0.0 "geo" file metadata describing the WKB geometry
// columns.
func NewGeoparquetOutputter(base string) (TableOutputter, error) {
	if base == "" {
		return nil, fmt.Errorf("geoparquet output requires a base directory")
	}
	return &geoparquetOutputter{base: base}, nil
}

func (o *geoparquetOutputter) CreateTables() error {
	return os.MkdirAll(o.base, 0755)
}

func (o *geoparquetOutputter) WriteTable(name string, table *Table) error {
	rows := make([]GeoparquetRow, 0, table.Len())
	for _, tile := range table.Tiles {
		row, err := geoparquetRow(tile)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	geoMeta, err := geoMetadata(table)
	if err != nil {
		return err
	}

	outPath := filepath.Join(o.base, name+".parquet")
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create %s, %w", outPath, err)
	}

	writer := parquet.NewGenericWriter[GeoparquetRow](f, parquet.KeyValueMetadata("geo", geoMeta))

	if _, err := writer.Write(rows); err != nil {
		f.Close()
		return fmt.Errorf("failed to write rows to %s, %w", outPath, err)
	}
	if err := writer.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to close parquet writer for %s, %w", outPath, err)
	}

	return f.Close()
}

func (o *geoparquetOutputter) Close() error {
	return nil
}

func geoparquetRow(tile Tile) (GeoparquetRow, error) {
	geometry, err := wkb.Marshal(tile.Footprint)
	if err != nil {
		return GeoparquetRow{}, fmt.Errorf("tile %s: failed to encode footprint, %w", tile.Name, err)
	}

	center, err := wkb.Marshal(tile.Center)
	if err != nil {
		return GeoparquetRow{}, fmt.Errorf("tile %s: failed to encode center, %w", tile.Name, err)
	}

	return GeoparquetRow{
		Tile:     tile.Name,
		Geometry: geometry,
		Center:   center,
		EPSG:     int32(tile.EPSG),
		UTMWKT:   tile.UTMWKT,
		UTMXMin:  tile.UTMBounds.Min.X(),
		UTMYMin:  tile.UTMBounds.Min.Y(),
		UTMXMax:  tile.UTMBounds.Max.X(),
		UTMYMax:  tile.UTMBounds.Max.Y(),
	}, nil
}

type geoColumn struct {
	Encoding      string    `json:"encoding"`
	GeometryTypes []string  `json:"geometry_types"`
	BBox          []float64 `json:"bbox,omitempty"`
}

type geoFileMetadata struct {
	Version       string               `json:"version"`
	PrimaryColumn string               `json:"primary_column"`
	Columns       map[string]geoColumn `json:"columns"`
}

func geoMetadata(table *Table) (string, error) {
	bound := table.Bound()

	meta := geoFileMetadata{
		Version:       "1.0.0",
		PrimaryColumn: "geometry",
		Columns: map[string]geoColumn{
			"geometry": {
				Encoding:      "WKB",
				GeometryTypes: []string{"MultiPolygon"},
				BBox:          []float64{bound.Min.X(), bound.Min.Y(), bound.Max.X(), bound.Max.Y()},
			},
			"center": {
				Encoding:      "WKB",
				GeometryTypes: []string{"Point"},
			},
		},
	}

	encoded, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to encode geo metadata, %w", err)
	}

	return string(encoded), nil
}
