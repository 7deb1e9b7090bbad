package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"florafi/internal/chat"
	"florafi/internal/logging"
	"florafi/internal/sensor"
	"florafi/internal/storage"
)

// ErrEnded is returned by Interact after End.
var ErrEnded = errors.New("session: ended")

// ManagerConfig wires a live session together.
type ManagerConfig struct {
	PlantName string
	DeviceID  string
	CreatorID string

	Source sensor.Source
	Chat   chat.Client

	// Store persists the transcript when set.
	Store *Store
	// Storage uploads the finalized export when set.
	Storage *storage.Client
	Epochs  int

	BufferSize   int
	SyncInterval time.Duration
}

// Manager runs a live session: the sensor read loop fills a ring buffer, a
// sync loop keeps the latest deviation fresh for the UI and the companion
// persona, and Interact records the conversation as transcript points.
type Manager struct {
	cfg        ManagerConfig
	buffer     *sensor.Buffer
	transcript *Transcript

	mu        sync.Mutex
	history   []chat.Turn
	deviation float64
	ended     bool

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewManager creates a manager; Start begins the loops.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 30 * time.Millisecond
	}
	return &Manager{
		cfg:        cfg,
		buffer:     sensor.NewBuffer(cfg.BufferSize),
		transcript: NewTranscript(cfg.PlantName, cfg.DeviceID, cfg.CreatorID),
	}
}

// Transcript returns the session's transcript.
func (m *Manager) Transcript() *Transcript {
	return m.transcript
}

// Start launches the sensor read loop and the buffer sync loop. The loops
// run until End or ctx cancellation.
func (m *Manager) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	m.group = g

	readings := make(chan sensor.Reading, 64)

	g.Go(func() error {
		defer close(readings)
		err := m.cfg.Source.Run(gctx, readings)
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.SessionError("sensor source stopped: %v", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case r, ok := <-readings:
				if !ok {
					return nil
				}
				m.buffer.Push(r)
			}
		}
	})

	// The sync loop polls the buffer on its own cadence, decoupled from
	// frame arrival.
	g.Go(func() error {
		ticker := time.NewTicker(m.cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if latest, ok := m.buffer.Latest(); ok {
					m.mu.Lock()
					m.deviation = latest.Deviation()
					m.mu.Unlock()
				}
			}
		}
	})

	logging.Session("session %s started: plant=%s sync=%v", m.transcript.ID, m.cfg.PlantName, m.cfg.SyncInterval)
}

// Deviation returns the most recently synced sensor deviation.
func (m *Manager) Deviation() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deviation
}

// Interact records the user's utterance, asks the companion for a reply, and
// records that too. Both points carry the deviation at the time of the call.
func (m *Manager) Interact(ctx context.Context, userText string) (string, error) {
	m.mu.Lock()
	if m.ended {
		m.mu.Unlock()
		return "", ErrEnded
	}
	deviation := m.deviation
	history := append([]chat.Turn{}, m.history...)
	m.mu.Unlock()

	if err := m.transcript.Append(Point{At: time.Now(), Deviation: deviation, UserText: userText}); err != nil {
		return "", err
	}
	history = append(history, chat.Turn{Role: chat.RoleUser, Text: userText})

	reply, err := m.cfg.Chat.Converse(ctx, history)
	if err != nil {
		return "", fmt.Errorf("session: companion reply: %w", err)
	}

	if err := m.transcript.Append(Point{At: time.Now(), Deviation: deviation, CompanionText: reply}); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.history = append(history, chat.Turn{Role: chat.RoleModel, Text: reply})
	m.mu.Unlock()
	return reply, nil
}

// End stops the loops and rejects future interactions. In-flight Interact
// calls are left to finish against their own contexts.
func (m *Manager) End() error {
	m.mu.Lock()
	if m.ended {
		m.mu.Unlock()
		return nil
	}
	m.ended = true
	m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	var err error
	if m.group != nil {
		err = m.group.Wait()
	}
	logging.Session("session %s ended: points=%d", m.transcript.ID, m.transcript.Len())
	return err
}

// Finalize freezes the transcript and persists it when a store is
// configured.
func (m *Manager) Finalize() error {
	m.transcript.Finalize()
	if m.cfg.Store == nil {
		return nil
	}
	if err := m.cfg.Store.Save(m.transcript); err != nil {
		return fmt.Errorf("session: persist transcript: %w", err)
	}
	return nil
}

// Upload exports the finalized transcript and stores it, recording the
// resulting reference next to the session. The blob id is recorded once;
// repeated uploads of the same payload come back alreadyCertified with the
// same id.
func (m *Manager) Upload(ctx context.Context) (*storage.UploadResult, error) {
	if m.cfg.Storage == nil {
		return nil, errors.New("session: no storage client configured")
	}
	if !m.transcript.Finalized() {
		return nil, errors.New("session: transcript not finalized")
	}

	body, err := ExportString(m.transcript, time.Now())
	if err != nil {
		return nil, err
	}
	result, err := m.cfg.Storage.Store(ctx, []byte(body), m.cfg.Epochs)
	if err != nil {
		return nil, err
	}
	if err := m.cfg.Storage.Certify(ctx, result.BlobID); err != nil {
		logging.SessionError("certify %s: %v", result.BlobID, err)
	}

	if m.cfg.Store != nil {
		if err := m.cfg.Store.RecordUpload(m.transcript.ID, result.BlobID, result.URL); err != nil {
			logging.SessionError("record upload: %v", err)
		}
	}
	logging.Session("session %s uploaded: blob=%s", m.transcript.ID, result.BlobID)
	return result, nil
}
