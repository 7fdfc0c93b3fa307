package s2grid

import "fmt"

// The two output table names every run writes: the full grid and its
// land-intersecting subset.
const (
	TableGrid     = "grid"
	TableGridLand = "grid_land"
)

// TableOutputter writes named grid tables to a storage target.
type TableOutputter interface {
	CreateTables() error
	WriteTable(name string, table *Table) error
	Close() error
}

// MetadataWriter is implemented by outputters that can record name/value
// metadata alongside the tables.
type MetadataWriter interface {
	SetMetadata(name string, value string) error
}

// NewTableOutputter returns the outputter for the given mode. The dsn is a
// base directory for the file-per-table modes and a database path for
// sqlite.
func NewTableOutputter(mode string, dsn string) (TableOutputter, error) {
	switch mode {
	case "geoparquet":
		return NewGeoparquetOutputter(dsn)
	case "geojson":
		return NewGeoJSONOutputter(dsn)
	case "sqlite":
		return NewSqliteOutputter(dsn)
	default:
		return nil, fmt.Errorf("unknown output mode %s", mode)
	}
}
