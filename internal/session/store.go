package session

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists sessions and their points.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates or opens the session database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		plant_name TEXT NOT NULL,
		device_id TEXT NOT NULL,
		creator_id TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finalized INTEGER NOT NULL DEFAULT 0,
		blob_id TEXT,
		blob_url TEXT
	);

	CREATE TABLE IF NOT EXISTS points (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		at DATETIME NOT NULL,
		deviation REAL NOT NULL,
		user_text TEXT NOT NULL DEFAULT '',
		companion_text TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (session_id, seq),
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);
	CREATE INDEX IF NOT EXISTS idx_points_session ON points(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save writes the transcript and all its points, replacing any prior copy of
// the same session.
func (s *Store) Save(t *Transcript) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	finalized := 0
	if t.Finalized() {
		finalized = 1
	}
	_, err = tx.Exec(`
		INSERT INTO sessions (id, plant_name, device_id, creator_id, started_at, finalized)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET finalized = excluded.finalized`,
		t.ID, t.PlantName, t.DeviceID, t.CreatorID, t.StartedAt, finalized)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM points WHERE session_id = ?`, t.ID); err != nil {
		return fmt.Errorf("clear points: %w", err)
	}
	for i, p := range t.Points() {
		_, err := tx.Exec(`
			INSERT INTO points (session_id, seq, at, deviation, user_text, companion_text)
			VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, i, p.At, p.Deviation, p.UserText, p.CompanionText)
		if err != nil {
			return fmt.Errorf("save point %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Load reconstructs a transcript by id.
func (s *Store) Load(id string) (*Transcript, error) {
	t := &Transcript{}
	var finalized int
	err := s.db.QueryRow(`
		SELECT id, plant_name, device_id, creator_id, started_at, finalized
		FROM sessions WHERE id = ?`, id).
		Scan(&t.ID, &t.PlantName, &t.DeviceID, &t.CreatorID, &t.StartedAt, &finalized)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT at, deviation, user_text, companion_text
		FROM points WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load points: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.At, &p.Deviation, &p.UserText, &p.CompanionText); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		t.points = append(t.points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	t.finalized = finalized == 1
	return t, nil
}

// SessionInfo is a row of the session listing.
type SessionInfo struct {
	ID        string
	PlantName string
	StartedAt time.Time
	Finalized bool
	BlobID    string
}

// List returns known sessions, newest first.
func (s *Store) List() ([]SessionInfo, error) {
	rows, err := s.db.Query(`
		SELECT id, plant_name, started_at, finalized, COALESCE(blob_id, '')
		FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var finalized int
		if err := rows.Scan(&info.ID, &info.PlantName, &info.StartedAt, &finalized, &info.BlobID); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		info.Finalized = finalized == 1
		out = append(out, info)
	}
	return out, rows.Err()
}

// RecordUpload attaches an upload result to a stored session. The identifier
// is written once and never recomputed.
func (s *Store) RecordUpload(sessionID, blobID, url string) error {
	res, err := s.db.Exec(`UPDATE sessions SET blob_id = ?, blob_url = ? WHERE id = ?`,
		blobID, url, sessionID)
	if err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return nil
}

// Upload returns the stored upload reference for a session, if any.
func (s *Store) Upload(sessionID string) (blobID, url string, err error) {
	err = s.db.QueryRow(`SELECT COALESCE(blob_id, ''), COALESCE(blob_url, '') FROM sessions WHERE id = ?`,
		sessionID).Scan(&blobID, &url)
	if err == sql.ErrNoRows {
		return "", "", fmt.Errorf("session %s not found", sessionID)
	}
	return blobID, url, err
}
