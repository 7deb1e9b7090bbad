package market

import (
	"testing"

	"github.com/stretchr/testify/require"

	"florafi/internal/chat"
	"florafi/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)

	l, err := s.Create(
		&chat.Analysis{Title: "Quiet Morning", Description: "Dew and small talk.", Price: 15},
		&storage.UploadResult{BlobID: "abc123", URL: "https://agg/v1/abc123"},
	)
	require.NoError(t, err)
	require.NotEmpty(t, l.ID)
	require.Equal(t, StatusDraft, l.Status)

	got, err := s.Get(l.ID)
	require.NoError(t, err)
	require.Equal(t, "Quiet Morning", got.Title)
	require.Equal(t, "abc123", got.BlobID)
	require.Equal(t, 15.0, got.Price)

	_, err = s.Get("missing")
	require.Error(t, err)
}

func TestListFilteredByStatus(t *testing.T) {
	s := newTestStore(t)

	a, err := s.Create(&chat.Analysis{Title: "A", Description: "d", Price: 1},
		&storage.UploadResult{BlobID: "b1", URL: "u1"})
	require.NoError(t, err)
	_, err = s.Create(&chat.Analysis{Title: "B", Description: "d", Price: 2},
		&storage.UploadResult{BlobID: "b2", URL: "u2"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus(a.ID, StatusPublished))

	all, err := s.List("")
	require.NoError(t, err)
	require.Len(t, all, 2)

	published, err := s.List(StatusPublished)
	require.NoError(t, err)
	require.Len(t, published, 1)
	require.Equal(t, a.ID, published[0].ID)
}

func TestUpdateStatus(t *testing.T) {
	s := newTestStore(t)

	l, err := s.Create(&chat.Analysis{Title: "A", Description: "d", Price: 1},
		&storage.UploadResult{BlobID: "b", URL: "u"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus(l.ID, StatusPublished))
	require.NoError(t, s.UpdateStatus(l.ID, StatusSold))

	got, err := s.Get(l.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSold, got.Status)

	require.Error(t, s.UpdateStatus(l.ID, "haunted"))
	require.Error(t, s.UpdateStatus("missing", StatusSold))
}

func TestSeed(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Seed())
	n, err := s.Count()
	require.NoError(t, err)
	require.Greater(t, n, 0)

	// Seeding again must not duplicate.
	require.NoError(t, s.Seed())
	n2, err := s.Count()
	require.NoError(t, err)
	require.Equal(t, n, n2)

	published, err := s.List(StatusPublished)
	require.NoError(t, err)
	require.Len(t, published, n)
}
