// Package session implements the call-session metadata store (C4 in
// spec.md §4's component table): id, first-detection timestamp, ordered
// batch list, and playback/close bookkeeping. Owned exclusively by the
// coordinator; a single writer appends batches and closes sessions in the
// order those events occurred (spec.md §5's single-writer/single-reader
// rule), mirrored here on the teacher's own mutex-guarded Room fields.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/fieldops/pagingcore/internal/batch"
)

// CloseReason is one of the three ways a session ends (spec.md §3).
type CloseReason string

const (
	ClosedSilenceTimeout CloseReason = "silence-timeout"
	ClosedAborted        CloseReason = "aborted"
	ClosedMonitoringStop CloseReason = "monitoring-stopped"
)

// Session is the container for one call (spec.md §3).
type Session struct {
	ID              string
	FirstDetectedAt time.Time
	TimezoneID      string
	Mime            string // encoder mime type, e.g. "audio/ogg"
	FirstBatchID    string
	Batches         []batch.Batch

	PlaybackStartedAt *time.Time
	PlaybackEndedAt   *time.Time

	closedAt     *int64 // monotonic ms
	ClosedReason CloseReason
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool { return s.closedAt != nil }

// Registry owns every session for the lifetime of one monitoring run.
// Exactly one writer (the coordinator) mutates it; readers (the save
// worker, status endpoints) take a copy under the lock.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Open creates a new session. Per spec.md §3, first_detected_at precedes
// every batch sealed in the session.
func (r *Registry) Open(id string, firstDetectedAt time.Time, timezoneID, mime string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &Session{ID: id, FirstDetectedAt: firstDetectedAt, TimezoneID: timezoneID, Mime: mime}
	r.sessions[id] = s
	return s
}

// AppendBatch appends a sealed batch to its session, enforcing the
// monotonically-increasing-by-sealed_at invariant (spec.md §8). Returns an
// error if the session is already closed (§3: "every batch references a
// session whose closed_at is unset at seal time").
func (r *Registry) AppendBatch(b batch.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[b.SessionID]
	if !ok {
		return fmt.Errorf("append batch: unknown session %q", b.SessionID)
	}
	if s.Closed() {
		return fmt.Errorf("append batch: session %q already closed", b.SessionID)
	}
	if n := len(s.Batches); n > 0 && b.SealedAt <= s.Batches[n-1].SealedAt {
		return fmt.Errorf("append batch: sealed_at %d not strictly increasing after %d", b.SealedAt, s.Batches[n-1].SealedAt)
	}
	if s.FirstBatchID == "" {
		s.FirstBatchID = b.ID
	}
	s.Batches = append(s.Batches, b)
	return nil
}

// Close marks a session closed exactly once. closedAtMS must be >= every
// batch's sealed_at (spec.md §8).
func (r *Registry) Close(id string, closedAtMS int64, reason CloseReason) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("close session: unknown session %q", id)
	}
	if s.Closed() {
		return s, nil // idempotent: abort() may close an already-closed session
	}
	closedAt := closedAtMS
	s.closedAt = &closedAt
	s.ClosedReason = reason
	return s, nil
}

// MarkPlaybackStarted and MarkPlaybackEnded record playback bookkeeping
// used only for observability; they do not affect save/close semantics.
func (r *Registry) MarkPlaybackStarted(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.PlaybackStartedAt == nil {
		t := at
		s.PlaybackStartedAt = &t
	}
}

func (r *Registry) MarkPlaybackEnded(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		t := at
		s.PlaybackEndedAt = &t
	}
}

// Get returns a shallow copy of the session, or false if unknown.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Forget removes a session from the registry (called once it has been
// enqueued for save or dropped — spec.md §3: "never both").
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}
