package metadatastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordSessionPersistsRow(t *testing.T) {
	s := newTestStore(t)
	firstDetected := time.Date(2026, 7, 31, 13, 5, 9, 0, time.UTC)

	err := s.RecordSession(context.Background(), "front-desk", "sess-1",
		"file:///recordings/sess-1.ogg", firstDetected, 4096, "audio/ogg")
	require.NoError(t, err)

	var userID, blobURL, mime string
	var size int64
	row := s.db.QueryRow(`SELECT user_id, blob_url, size_bytes, mime FROM sessions WHERE session_id = ?`, "sess-1")
	require.NoError(t, row.Scan(&userID, &blobURL, &size, &mime))
	require.Equal(t, "front-desk", userID)
	require.Equal(t, "file:///recordings/sess-1.ogg", blobURL)
	require.Equal(t, int64(4096), size)
	require.Equal(t, "audio/ogg", mime)
}

func TestRecordSessionUpsertsOnRetry(t *testing.T) {
	s := newTestStore(t)
	firstDetected := time.Now()

	require.NoError(t, s.RecordSession(context.Background(), "u", "sess-2", "url-1", firstDetected, 10, "audio/ogg"))
	require.NoError(t, s.RecordSession(context.Background(), "u", "sess-2", "url-2", firstDetected, 20, "audio/ogg"))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE session_id = ?`, "sess-2").Scan(&count))
	require.Equal(t, 1, count)

	var blobURL string
	require.NoError(t, s.db.QueryRow(`SELECT blob_url FROM sessions WHERE session_id = ?`, "sess-2").Scan(&blobURL))
	require.Equal(t, "url-2", blobURL)
}

func TestNewIsIdempotentAcrossReopens(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/meta.db"

	s1, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s1.RecordSession(context.Background(), "u", "sess-3", "url", time.Now(), 1, "audio/ogg"))
	require.NoError(t, s1.Close())

	s2, err := New(path)
	require.NoError(t, err)
	defer s2.Close()

	var count int
	require.NoError(t, s2.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count))
	require.Equal(t, 1, count)
}
