// Package blobstore implements external.BlobStore by writing each
// session's encoded blob to a local directory tree, using
// github.com/google/uuid (already in the retrieval pack via
// agalue-sherpa-voice-assistant) to mint collision-free object names.
package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store persists blobs under a root directory, one file per upload. It is
// a local stand-in for the networked object store a real deployment would
// point at instead (spec.md §6 leaves the BlobStore backend unspecified).
type Store struct {
	root    string
	baseURL string // e.g. "file:///var/lib/pagingd/recordings" — reported back as the stored URL
}

// New prepares root (creating it if necessary) for use as a blob store.
// baseURL prefixes every returned URL; pass "" to get the stored file's
// path instead (root joined with the file name).
func New(root, baseURL string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: prepare root %q: %w", root, err)
	}
	return &Store{root: root, baseURL: baseURL}, nil
}

// Upload implements external.BlobStore. path is the caller-supplied
// filename (see internal/save's naming pattern); a random suffix is
// inserted ahead of the extension to keep retried uploads of the same
// session from colliding.
func (s *Store) Upload(ctx context.Context, blob []byte, path string, sessionID string) (string, error) {
	ext := filepath.Ext(path)
	name := fmt.Sprintf("%s-%s%s", path[:len(path)-len(ext)], uuid.NewString(), ext)
	full := filepath.Join(s.root, name)

	tmp := full + ".part"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return "", fmt.Errorf("blobstore: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("blobstore: finalize %q: %w", full, err)
	}

	if s.baseURL == "" {
		return full, nil
	}
	return s.baseURL + "/" + name, nil
}
