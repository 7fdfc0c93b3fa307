package s2grid

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // Register sqlite3 database driver
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// GridReader is the read side of the SQLite output, used by the verify
// command.
type GridReader interface {
	Close() error
	CountRows(table string) (int, error)
	Metadata() (map[string]string, error)
	VisitRows(table string, visitor func(idx int, tile Tile)) error
}

func NewGridReader(dsn string) (GridReader, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	return NewGridReaderWithDatabase(db)
}

func NewGridReaderWithDatabase(db *sql.DB) (GridReader, error) {
	return &gridReader{db: db}, nil
}

type gridReader struct {
	db *sql.DB
}

// Close gracefully tears down the database connection.
func (r *gridReader) Close() error {
	var err error

	if r.db != nil {
		if err2 := r.db.Close(); err2 != nil {
			err = err2
		}
	}

	return err
}

func (r *gridReader) CountRows(table string) (int, error) {
	if !reTableName.MatchString(table) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}

	var count int
	row := r.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table))
	if err := row.Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

func (r *gridReader) Metadata() (map[string]string, error) {
	rows, err := r.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metadata := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		metadata[name] = value
	}

	return metadata, rows.Err()
}

// VisitRows runs the given function on every row of the table, in stored
// index order.
func (r *gridReader) VisitRows(table string, visitor func(idx int, tile Tile)) error {
	if !reTableName.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}

	rows, err := r.db.Query(fmt.Sprintf(`
		SELECT idx, tile, geometry, center, epsg, utm_wkt, utm_xmin, utm_ymin, utm_xmax, utm_ymax
		FROM %s ORDER BY idx`, table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			idx                    int
			name, utmWKT           string
			geometry, center       []byte
			epsg                   int
			xmin, ymin, xmax, ymax float64
		)

		if err := rows.Scan(&idx, &name, &geometry, &center, &epsg, &utmWKT, &xmin, &ymin, &xmax, &ymax); err != nil {
			return fmt.Errorf("couldn't scan row, %w", err)
		}

		footprintGeom, err := wkb.Unmarshal(geometry)
		if err != nil {
			return fmt.Errorf("tile %s: failed to decode footprint, %w", name, err)
		}
		footprint, ok := footprintGeom.(orb.MultiPolygon)
		if !ok {
			return fmt.Errorf("tile %s: footprint is %s, expected MultiPolygon", name, footprintGeom.GeoJSONType())
		}

		centerGeom, err := wkb.Unmarshal(center)
		if err != nil {
			return fmt.Errorf("tile %s: failed to decode center, %w", name, err)
		}
		centerPoint, ok := centerGeom.(orb.Point)
		if !ok {
			return fmt.Errorf("tile %s: center is %s, expected Point", name, centerGeom.GeoJSONType())
		}

		visitor(idx, Tile{
			Name:      name,
			Footprint: footprint,
			Center:    centerPoint,
			EPSG:      epsg,
			UTMWKT:    utmWKT,
			UTMBounds: orb.Bound{
				Min: orb.Point{xmin, ymin},
				Max: orb.Point{xmax, ymax},
			},
		})
	}

	return rows.Err()
}
