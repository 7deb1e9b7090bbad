// Package session records a live companion conversation as an append-only
// transcript, persists it, and hands finalized transcripts to export and
// upload.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Append errors.
var (
	// ErrFinalized means the transcript was frozen; nothing more may be
	// appended.
	ErrFinalized = errors.New("session: transcript is finalized")

	// ErrOutOfOrder means a point's timestamp precedes the previous one.
	ErrOutOfOrder = errors.New("session: point timestamp precedes transcript tail")
)

// Point is one moment of the session: the sensor deviation at that time and
// at most one utterance. Interactions record the user's text and the
// companion's reply as separate points.
type Point struct {
	At            time.Time
	Deviation     float64
	UserText      string
	CompanionText string
}

// HasUtterance reports whether the point carries any text. Pure sensor
// samples do not.
func (p Point) HasUtterance() bool {
	return p.UserText != "" || p.CompanionText != ""
}

// Transcript is the append-only session record. Timestamps are
// non-decreasing; Finalize freezes it permanently.
type Transcript struct {
	ID        string
	PlantName string
	DeviceID  string
	CreatorID string
	StartedAt time.Time

	mu        sync.Mutex
	points    []Point
	finalized bool
}

// NewTranscript starts an empty transcript with a fresh identifier.
func NewTranscript(plantName, deviceID, creatorID string) *Transcript {
	return &Transcript{
		ID:        uuid.NewString(),
		PlantName: plantName,
		DeviceID:  deviceID,
		CreatorID: creatorID,
		StartedAt: time.Now(),
	}
}

// Append records a point. Rejected after Finalize and when the timestamp
// runs backwards relative to the tail.
func (t *Transcript) Append(p Point) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalized {
		return ErrFinalized
	}
	if n := len(t.points); n > 0 && p.At.Before(t.points[n-1].At) {
		return ErrOutOfOrder
	}
	t.points = append(t.points, p)
	return nil
}

// Finalize freezes the transcript. Idempotent.
func (t *Transcript) Finalize() {
	t.mu.Lock()
	t.finalized = true
	t.mu.Unlock()
}

// Finalized reports whether the transcript is frozen.
func (t *Transcript) Finalized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finalized
}

// Points returns a copy of the recorded points.
func (t *Transcript) Points() []Point {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Point, len(t.points))
	copy(out, t.points)
	return out
}

// Len returns the number of recorded points.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.points)
}
