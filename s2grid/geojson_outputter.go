package s2grid

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
)

type geojsonOutputter struct {
	base string
}

// NewGeoJSONOutputter writes one <base>/<name>.geojson FeatureCollection
// per table, with the footprint as feature geometry and the scalar columns
// as properties.
func NewGeoJSONOutputter(base string) (TableOutputter, error) {
	if base == "" {
		return nil, fmt.Errorf("geojson output requires a base directory")
	}
	return &geojsonOutputter{base: base}, nil
}

func (o *geojsonOutputter) CreateTables() error {
	return os.MkdirAll(o.base, 0755)
}

func (o *geojsonOutputter) WriteTable(name string, table *Table) error {
	fc := geojson.NewFeatureCollection()

	for _, tile := range table.Tiles {
		f := geojson.NewFeature(tile.Footprint)
		f.Properties["tile"] = tile.Name
		f.Properties["center_lon"] = tile.Center.X()
		f.Properties["center_lat"] = tile.Center.Y()
		f.Properties["epsg"] = tile.EPSG
		f.Properties["utm_wkt"] = tile.UTMWKT
		f.Properties["utm_xmin"] = tile.UTMBounds.Min.X()
		f.Properties["utm_ymin"] = tile.UTMBounds.Min.Y()
		f.Properties["utm_xmax"] = tile.UTMBounds.Max.X()
		f.Properties["utm_ymax"] = tile.UTMBounds.Max.Y()
		fc.Append(f)
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("failed to encode %s feature collection, %w", name, err)
	}

	outPath := filepath.Join(o.base, name+".geojson")
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s, %w", outPath, err)
	}

	return nil
}

func (o *geojsonOutputter) Close() error {
	return nil
}
