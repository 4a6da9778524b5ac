package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

type dialect struct {
	driver string
	create string
	get    string
	set    string
}

var dialects = map[string]dialect{
	"mysql": {
		driver: "mysql",
		create: "CREATE TABLE IF NOT EXISTS %s (k VARCHAR(191) NOT NULL PRIMARY KEY, v LONGBLOB NOT NULL)",
		get:    "SELECT v FROM %s WHERE k = ?",
		set:    "INSERT INTO %s (k, v) VALUES (?, ?) ON DUPLICATE KEY UPDATE v = VALUES(v)",
	},
	"postgres": {
		driver: "postgres",
		create: "CREATE TABLE IF NOT EXISTS %s (k VARCHAR(191) NOT NULL PRIMARY KEY, v BYTEA NOT NULL)",
		get:    "SELECT v FROM %s WHERE k = $1",
		set:    "INSERT INTO %s (k, v) VALUES ($1, $2) ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v",
	},
}

type sqlStore struct {
	db     *sql.DB
	getSQL string
	setSQL string
}

// NewSQLStore opens a relational database and keeps values in a two-column table.
// driver is "mysql" or "postgres".
func NewSQLStore(driver, dsn, table string) (KV, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s, err := newSQLStore(db, d, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func newSQLStore(db *sql.DB, d dialect, table string) (*sqlStore, error) {
	if table == "" {
		table = defaultBucket
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	if _, err := db.Exec(fmt.Sprintf(d.create, table)); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}

	return &sqlStore{
		db:     db,
		getSQL: fmt.Sprintf(d.get, table),
		setSQL: fmt.Sprintf(d.set, table),
	}, nil
}

// Get implements KV.
func (s *sqlStore) Get(key string) ([]byte, error) {
	var v []byte
	if err := s.db.QueryRow(s.getSQL, key).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return v, nil
}

// Set implements KV.
func (s *sqlStore) Set(key string, value []byte) error {
	if _, err := s.db.Exec(s.setSQL, key, value); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
