package ranks

import (
	"database/sql"
	"fmt"
	"time"

	// tell sql to use sqlite
	_ "modernc.org/sqlite"
)

// Record is the last known state of one player.
type Record struct {
	Username  string
	LastEHB   float64
	Rank      string
	UpdatedAt time.Time
}

// Store keeps Records between fetches, keyed by username.
type Store interface {
	Load() (map[string]Record, error)
	Save(records []Record) error
	Close() error
}

// SQLiteStore is a Store backed by a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the rank database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; also keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS player_ranks (username TEXT NOT NULL PRIMARY KEY,
				last_ehb REAL,
				rank TEXT,
				updated_s INT)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("Error creating player_ranks table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load() (map[string]Record, error) {
	rows, err := s.db.Query(`SELECT username, last_ehb, rank, updated_s FROM player_ranks`)
	if err != nil {
		return nil, fmt.Errorf("Error loading ranks: %w", err)
	}
	defer rows.Close()

	out := map[string]Record{}
	for rows.Next() {
		var r Record
		var rank sql.NullString
		var updated int64
		if err := rows.Scan(&r.Username, &r.LastEHB, &rank, &updated); err != nil {
			return nil, fmt.Errorf("Error scanning rank row: %w", err)
		}
		r.Rank = rank.String
		if r.Rank == "" {
			r.Rank = Unknown
		}
		r.UpdatedAt = time.Unix(updated, 0).UTC()
		out[r.Username] = r
	}
	return out, rows.Err()
}

// Save upserts records in one transaction.
func (s *SQLiteStore) Save(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO player_ranks(username, last_ehb, rank, updated_s) VALUES(?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET last_ehb = excluded.last_ehb, rank = excluded.rank, updated_s = excluded.updated_s`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("Error preparing rank upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(r.Username, r.LastEHB, r.Rank, r.UpdatedAt.Unix()); err != nil {
			tx.Rollback()
			return fmt.Errorf("Error saving rank for %s: %w", r.Username, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// MemStore is an in-memory Store; used when no database path is configured.
type MemStore struct {
	records map[string]Record
}

func NewMemStore() *MemStore {
	return &MemStore{records: map[string]Record{}}
}

func (m *MemStore) Load() (map[string]Record, error) {
	out := make(map[string]Record, len(m.records))
	for k, v := range m.records {
		out[k] = v
	}
	return out, nil
}

func (m *MemStore) Save(records []Record) error {
	for _, r := range records {
		m.records[r.Username] = r
	}
	return nil
}

func (m *MemStore) Close() error { return nil }
