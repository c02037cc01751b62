package presence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // CGO-free SQLite

	"github.com/collabware/livecursor/internal/location"
)

// DurableStore persists durable presence records ("user X was at location L
// at time T") in SQLite. Ephemeral cursor traffic never touches it; live
// cursor observers subscribe with ExcludeDurable.
type DurableStore struct {
	db *sql.DB
}

func OpenDurableStore(path string) (*DurableStore, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open durable presence database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DurableStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS durable_presence(
	  id            INTEGER PRIMARY KEY,
	  group_id      TEXT    NOT NULL,
	  user_id       TEXT    NOT NULL,
	  location_json TEXT    NOT NULL CHECK (json_valid(location_json)),
	  ts_utc        INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_durable_group_user ON durable_presence(group_id, user_id);
	CREATE INDEX IF NOT EXISTS idx_durable_ts         ON durable_presence(ts_utc);
	`)
	if err != nil {
		return fmt.Errorf("create durable presence tables: %w", err)
	}
	return nil
}

func (ds *DurableStore) Close() error {
	return ds.db.Close()
}

// Set records a durable presence entry.
func (ds *DurableStore) Set(groupID, userID string, loc location.Location, ts time.Time) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}

	_, err = ds.db.Exec(
		`INSERT INTO durable_presence(group_id, user_id, location_json, ts_utc) VALUES(?, ?, ?, ?)`,
		groupID, userID, string(data), ts.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert durable presence: %w", err)
	}
	return nil
}

// NewestMatching returns the user's most recent durable record whose
// location matches the matcher, or nil if there is none.
func (ds *DurableStore) NewestMatching(groupID, userID string, matcher location.Location, partial bool) (*DurableRecord, error) {
	rows, err := ds.db.Query(
		`SELECT location_json, ts_utc FROM durable_presence
		 WHERE group_id = ? AND user_id = ? ORDER BY ts_utc DESC`,
		groupID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query durable presence: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if matchesLocation(rec.Location, matcher, partial) {
			return rec, nil
		}
	}
	return nil, rows.Err()
}

// UsersMatching returns the IDs of users in the group with at least one
// durable record matching the matcher.
func (ds *DurableStore) UsersMatching(groupID string, matcher location.Location, partial bool) ([]string, error) {
	rows, err := ds.db.Query(
		`SELECT user_id, location_json, ts_utc FROM durable_presence WHERE group_id = ?`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("query durable presence: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var ids []string
	for rows.Next() {
		var userID, locJSON string
		var ts int64
		if err := rows.Scan(&userID, &locJSON, &ts); err != nil {
			return nil, fmt.Errorf("scan durable presence: %w", err)
		}
		if seen[userID] {
			continue
		}
		var loc location.Location
		if err := json.Unmarshal([]byte(locJSON), &loc); err != nil {
			return nil, fmt.Errorf("decode durable location: %w", err)
		}
		if matchesLocation(loc, matcher, partial) {
			seen[userID] = true
			ids = append(ids, userID)
		}
	}
	return ids, rows.Err()
}

func scanRecord(rows *sql.Rows) (*DurableRecord, error) {
	var locJSON string
	var ts int64
	if err := rows.Scan(&locJSON, &ts); err != nil {
		return nil, fmt.Errorf("scan durable presence: %w", err)
	}
	var loc location.Location
	if err := json.Unmarshal([]byte(locJSON), &loc); err != nil {
		return nil, fmt.Errorf("decode durable location: %w", err)
	}
	return &DurableRecord{Location: loc, Timestamp: time.UnixMilli(ts)}, nil
}
