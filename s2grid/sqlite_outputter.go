package s2grid

import (
	"database/sql"
	"fmt"
	"regexp"

	_ "github.com/mattn/go-sqlite3" // Register sqlite3 database driver
	"github.com/paulmach/orb/encoding/wkb"
)

const batchSize = 1000

var reTableName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

type sqliteOutputter struct {
	db         *sql.DB
	txn        *sql.Tx
	batchCount int
	hasTables  bool
}

// NewSqliteOutputter writes grid tables into a single SQLite database, one
// row per tile with WKB geometry blobs, plus a name/value metadata table.
func NewSqliteOutputter(dsn string) (TableOutputter, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	return &sqliteOutputter{db: db}, nil
}

func (o *sqliteOutputter) CreateTables() error {
	if o.hasTables {
		return nil
	}

	for _, name := range []string{TableGrid, TableGridLand} {
		if _, err := o.db.Exec(fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				idx INTEGER NOT NULL,
				tile TEXT NOT NULL,
				geometry BLOB NOT NULL,
				center BLOB NOT NULL,
				epsg INTEGER NOT NULL,
				utm_wkt TEXT NOT NULL,
				utm_xmin REAL NOT NULL,
				utm_ymin REAL NOT NULL,
				utm_xmax REAL NOT NULL,
				utm_ymax REAL NOT NULL
			);
			CREATE UNIQUE INDEX IF NOT EXISTS %s_tile ON %s (tile);
		`, name, name, name)); err != nil {
			return err
		}
	}

	if _, err := o.db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			name TEXT,
			value TEXT
		);
		CREATE UNIQUE INDEX IF NOT EXISTS name ON metadata (name);
		PRAGMA synchronous=OFF;
	`); err != nil {
		return err
	}

	o.hasTables = true
	return nil
}

func (o *sqliteOutputter) WriteTable(name string, table *Table) error {
	if !reTableName.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}

	if err := o.CreateTables(); err != nil {
		return err
	}

	insert := fmt.Sprintf(`INSERT OR REPLACE INTO %s
		(idx, tile, geometry, center, epsg, utm_wkt, utm_xmin, utm_ymin, utm_xmax, utm_ymax)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`, name)

	for i, tile := range table.Tiles {
		if o.txn == nil {
			tx, err := o.db.Begin()
			if err != nil {
				return err
			}
			o.txn = tx
		}

		geometry, err := wkb.Marshal(tile.Footprint)
		if err != nil {
			return fmt.Errorf("tile %s: failed to encode footprint, %w", tile.Name, err)
		}

		center, err := wkb.Marshal(tile.Center)
		if err != nil {
			return fmt.Errorf("tile %s: failed to encode center, %w", tile.Name, err)
		}

		_, err = o.txn.Exec(insert,
			i, tile.Name, geometry, center, tile.EPSG, tile.UTMWKT,
			tile.UTMBounds.Min.X(), tile.UTMBounds.Min.Y(),
			tile.UTMBounds.Max.X(), tile.UTMBounds.Max.Y())
		if err != nil {
			return err
		}

		o.batchCount++
		if o.batchCount%batchSize == 0 {
			if err := o.txn.Commit(); err != nil {
				return err
			}
			o.batchCount = 0
			o.txn = nil
		}
	}

	return nil
}

func (o *sqliteOutputter) SetMetadata(name string, value string) error {
	if err := o.CreateTables(); err != nil {
		return err
	}

	if o.txn != nil {
		_, err := o.txn.Exec("INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?);", name, value)
		return err
	}

	_, err := o.db.Exec("INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?);", name, value)
	return err
}

func (o *sqliteOutputter) Close() error {
	var err error

	if o.txn != nil {
		err = o.txn.Commit()
	}

	if o.db != nil {
		if err2 := o.db.Close(); err2 != nil {
			err = err2
		}
	}

	return err
}
