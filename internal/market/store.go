// Package market keeps the app-local marketplace of transcript listings.
// Listings wrap an immutable upload reference with mutable metadata; there is
// no settlement layer, status changes are purely local.
package market

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"florafi/internal/chat"
	"florafi/internal/logging"
	"florafi/internal/storage"
)

// Listing statuses.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusSold      = "sold"
)

// Listing is one marketplace entry.
type Listing struct {
	ID          string
	Title       string
	Description string
	Price       float64
	BlobID      string
	URL         string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store persists listings.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates or opens the marketplace database under stateDir.
func NewStore(stateDir string) (*Store, error) {
	dbPath := filepath.Join(stateDir, "market.db")

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

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		price REAL NOT NULL,
		blob_id TEXT NOT NULL,
		url TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Create builds a listing from an analysis and an upload result.
func (s *Store) Create(analysis *chat.Analysis, upload *storage.UploadResult) (*Listing, error) {
	now := time.Now()
	l := &Listing{
		ID:          uuid.NewString(),
		Title:       analysis.Title,
		Description: analysis.Description,
		Price:       analysis.Price,
		BlobID:      upload.BlobID,
		URL:         upload.URL,
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.Exec(`
		INSERT INTO listings (id, title, description, price, blob_id, url, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Title, l.Description, l.Price, l.BlobID, l.URL, l.Status, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}
	logging.Market("created listing %s: %q price=%.0f blob=%s", l.ID, l.Title, l.Price, l.BlobID)
	return l, nil
}

// List returns listings, optionally filtered by status, newest first.
func (s *Store) List(status string) ([]Listing, error) {
	query := `SELECT id, title, description, price, blob_id, url, status, created_at, updated_at
		FROM listings`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var out []Listing
	for rows.Next() {
		var l Listing
		if err := rows.Scan(&l.ID, &l.Title, &l.Description, &l.Price, &l.BlobID, &l.URL, &l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Get returns a listing by id.
func (s *Store) Get(id string) (*Listing, error) {
	var l Listing
	err := s.db.QueryRow(`SELECT id, title, description, price, blob_id, url, status, created_at, updated_at
		FROM listings WHERE id = ?`, id).
		Scan(&l.ID, &l.Title, &l.Description, &l.Price, &l.BlobID, &l.URL, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("listing %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return &l, nil
}

// UpdateStatus moves a listing between draft, published, and sold.
func (s *Store) UpdateStatus(id, status string) error {
	switch status {
	case StatusDraft, StatusPublished, StatusSold:
	default:
		return fmt.Errorf("unknown listing status %q", status)
	}
	res, err := s.db.Exec(`UPDATE listings SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("listing %s not found", id)
	}
	logging.Market("listing %s -> %s", id, status)
	return nil
}

// Count returns the number of listings.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM listings`).Scan(&n)
	return n, err
}

// Seed populates an empty store with demo listings so the marketplace view
// has something to show before any transcript is published. No-op when
// listings already exist.
func (s *Store) Seed() error {
	n, err := s.Count()
	if err != nil || n > 0 {
		return err
	}
	demo := []struct {
		analysis chat.Analysis
		upload   storage.UploadResult
	}{
		{
			chat.Analysis{Title: "First Touch", Description: "A monstera meets its first visitor. Gentle taps, big feelings.", Price: 12},
			storage.UploadResult{BlobID: "demo-first-touch", URL: "about:demo#first-touch"},
		},
		{
			chat.Analysis{Title: "Midnight Watering", Description: "A sleepy fern discusses hydration at 2am.", Price: 8},
			storage.UploadResult{BlobID: "demo-midnight", URL: "about:demo#midnight"},
		},
		{
			chat.Analysis{Title: "Leaf Five, Day One", Description: "A pothos celebrates new growth with anyone who will listen.", Price: 21},
			storage.UploadResult{BlobID: "demo-leaf-five", URL: "about:demo#leaf-five"},
		},
	}
	for _, d := range demo {
		l, err := s.Create(&d.analysis, &d.upload)
		if err != nil {
			return err
		}
		if err := s.UpdateStatus(l.ID, StatusPublished); err != nil {
			return err
		}
	}
	logging.Market("seeded %d demo listings", len(demo))
	return nil
}
