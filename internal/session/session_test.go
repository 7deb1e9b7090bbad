package session

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"florafi/internal/chat"
	"florafi/internal/sensor"
)

func TestTranscriptAppendOrdering(t *testing.T) {
	tr := NewTranscript("Fern", "sim", "creator-1")
	base := time.Now()

	if err := tr.Append(Point{At: base, UserText: "hi"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := tr.Append(Point{At: base.Add(time.Second)}); err != nil {
		t.Fatalf("Append later: %v", err)
	}
	// Equal timestamps are allowed; only regressions are rejected.
	if err := tr.Append(Point{At: base.Add(time.Second)}); err != nil {
		t.Fatalf("Append equal: %v", err)
	}
	if err := tr.Append(Point{At: base}); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("backwards append err = %v, want ErrOutOfOrder", err)
	}
	if tr.Len() != 3 {
		t.Errorf("Len = %d, want 3", tr.Len())
	}
}

func TestTranscriptFinalize(t *testing.T) {
	tr := NewTranscript("Fern", "sim", "creator-1")
	tr.Finalize()
	tr.Finalize() // idempotent
	if !tr.Finalized() {
		t.Error("Finalized = false after Finalize")
	}
	if err := tr.Append(Point{At: time.Now(), UserText: "late"}); !errors.Is(err, ErrFinalized) {
		t.Errorf("append after finalize err = %v, want ErrFinalized", err)
	}
	if tr.Len() != 0 {
		t.Error("append after finalize must not record")
	}
}

func TestExportLineCount(t *testing.T) {
	tr := NewTranscript("Fern", "ttyUSB0", "creator-1")
	base := time.Now()
	points := []Point{
		{At: base, Deviation: 1, UserText: "hello plant"},
		{At: base.Add(time.Second), Deviation: 2, CompanionText: "hello friend"},
		{At: base.Add(2 * time.Second), Deviation: 3}, // sensor only, no line
		{At: base.Add(3 * time.Second), Deviation: 4, UserText: "still there?"},
	}
	for _, p := range points {
		if err := tr.Append(p); err != nil {
			t.Fatal(err)
		}
	}
	tr.Finalize()

	out, err := ExportString(tr, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ExportString: %v", err)
	}

	parts := strings.SplitN(out, "\n\n", 2)
	if len(parts) != 2 {
		t.Fatalf("export missing header separator:\n%s", out)
	}
	header, body := parts[0], parts[1]

	for _, want := range []string{"Generated: 2026-03-01T09:00:00Z", "Plant: Fern", "Device: ttyUSB0", "Creator: creator-1", "Session: " + tr.ID} {
		if !strings.Contains(header, want) {
			t.Errorf("header missing %q:\n%s", want, header)
		}
	}

	lines := strings.Split(strings.TrimRight(body, "\n"), "\n")
	utterances := 0
	for _, p := range points {
		if p.HasUtterance() {
			utterances++
		}
	}
	if len(lines) != utterances {
		t.Errorf("body lines = %d, want %d (one per utterance-bearing point)", len(lines), utterances)
	}
	if !strings.Contains(body, "you: hello plant") || !strings.Contains(body, "plant: hello friend") {
		t.Errorf("body missing utterances:\n%s", body)
	}
}

func TestStoreRoundtrip(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	tr := NewTranscript("Fern", "sim", "creator-1")
	base := time.Now().Truncate(time.Second)
	tr.Append(Point{At: base, Deviation: 1.5, UserText: "hi"})
	tr.Append(Point{At: base.Add(time.Second), Deviation: 1.5, CompanionText: "hey"})
	tr.Finalize()

	if err := store.Save(tr); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(tr.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.PlantName != "Fern" || loaded.CreatorID != "creator-1" {
		t.Errorf("loaded = %+v", loaded)
	}
	if !loaded.Finalized() {
		t.Error("loaded transcript lost finalized flag")
	}
	points := loaded.Points()
	if len(points) != 2 {
		t.Fatalf("loaded %d points, want 2", len(points))
	}
	if points[0].UserText != "hi" || points[1].CompanionText != "hey" {
		t.Errorf("points = %+v", points)
	}

	infos, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 1 || infos[0].ID != tr.ID {
		t.Errorf("List = %+v", infos)
	}

	if err := store.RecordUpload(tr.ID, "blob-9", "https://agg/v1/blob-9"); err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}
	blobID, url, err := store.Upload(tr.ID)
	if err != nil || blobID != "blob-9" || url != "https://agg/v1/blob-9" {
		t.Errorf("Upload = %s %s %v", blobID, url, err)
	}

	if err := store.RecordUpload("nope", "b", "u"); err == nil {
		t.Error("RecordUpload on unknown session should fail")
	}
	if _, err := store.Load("nope"); err == nil {
		t.Error("Load on unknown session should fail")
	}
}

// scriptedChat returns canned replies in order.
type scriptedChat struct {
	replies []string
	calls   int
}

func (s *scriptedChat) Converse(_ context.Context, history []chat.Turn) (string, error) {
	if s.calls >= len(s.replies) {
		return "", errors.New("out of replies")
	}
	reply := s.replies[s.calls]
	s.calls++
	return reply, nil
}

func (s *scriptedChat) Analyze(context.Context, string) (*chat.Analysis, error) {
	return &chat.Analysis{Title: "t", Description: "d", Price: 1}, nil
}

func TestManagerInteractAndEnd(t *testing.T) {
	// The opencensus stats worker is started in an init() of a transitive
	// genai dependency and cannot be stopped.
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))

	m := NewManager(ManagerConfig{
		PlantName:    "Fern",
		DeviceID:     "sim",
		CreatorID:    "creator-1",
		Source:       sensor.NewSimSource(time.Millisecond),
		Chat:         &scriptedChat{replies: []string{"hello!", "still here"}},
		SyncInterval: time.Millisecond,
	})

	ctx := context.Background()
	m.Start(ctx)

	// Let the sync loop observe at least one reading.
	deadline := time.Now().Add(2 * time.Second)
	for m.Deviation() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	reply, err := m.Interact(ctx, "hi plant")
	if err != nil {
		t.Fatalf("Interact: %v", err)
	}
	if reply != "hello!" {
		t.Errorf("reply = %q", reply)
	}
	if m.Transcript().Len() != 2 {
		t.Errorf("transcript len = %d, want 2 (user + companion)", m.Transcript().Len())
	}

	if err := m.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	if _, err := m.Interact(ctx, "anyone?"); !errors.Is(err, ErrEnded) {
		t.Errorf("Interact after End err = %v, want ErrEnded", err)
	}
	// End again is a no-op.
	if err := m.End(); err != nil {
		t.Errorf("second End: %v", err)
	}
}

func TestManagerUploadRequiresFinalize(t *testing.T) {
	m := NewManager(ManagerConfig{
		PlantName: "Fern",
		Source:    sensor.NewSimSource(time.Millisecond),
		Chat:      &scriptedChat{},
	})
	if _, err := m.Upload(context.Background()); err == nil {
		t.Error("Upload without storage client should fail")
	}
}
