// Package save implements the bounded, retrying save queue (C8 in spec.md
// §4.7): a single background worker that drains finished sessions FIFO,
// retries with back-off on upload failure, and drops the oldest queued
// item on overflow. Filenames are rendered with
// github.com/lestrrat-go/strftime, the same library the pack's ham-radio
// sibling (doismellburning-samoyed) uses for human-facing timestamps.
package save

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/strftime"

	"github.com/fieldops/pagingcore/internal/external"
	"github.com/fieldops/pagingcore/internal/session"
)

// filenamePattern matches spec.md §6's
// "recording-YYYY-MM-DD_HH-MM-SS-{AM|PM}.<ext>" format.
const filenamePattern = "recording-%Y-%m-%d_%I-%M-%S-%p"

// Item is one queued, possibly-retried session awaiting upload.
type Item struct {
	Session       session.Session
	RetryCount    int
	LastAttemptAt int64 // monotonic ms
}

// Worker drains the save queue. The zero value is not usable; use New().
type Worker struct {
	blob   external.BlobStore
	meta   external.MetadataStore
	clock  external.Clock
	logger external.Logger
	userID string

	maxItems int
	backoff  time.Duration

	mu    sync.Mutex
	queue []Item
	wake  chan struct{}

	// onResult, if set, is notified after every terminal upload attempt
	// (success, or a permanent failure that is dropped). It is not called
	// for a transient failure that is about to be retried. Used by the
	// coordinator to maintain its Stats() counters.
	onResult func(ok bool)
}

// SetResultHook registers a callback invoked after every terminal upload
// attempt. Must be called before Run starts, and is not safe for
// concurrent use with Run.
func (w *Worker) SetResultHook(fn func(ok bool)) {
	w.onResult = fn
}

// New constructs a save Worker.
func New(blob external.BlobStore, meta external.MetadataStore, clock external.Clock, logger external.Logger, userID string, maxItems int, backoff time.Duration) *Worker {
	return &Worker{
		blob:     blob,
		meta:     meta,
		clock:    clock,
		logger:   logger,
		userID:   userID,
		maxItems: maxItems,
		backoff:  backoff,
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue adds a closed session to the back of the queue. If the queue is
// already at MaxSaveSessions, the oldest queued item is dropped (spec.md
// §3, §4.7, §8).
func (w *Worker) Enqueue(s session.Session) {
	w.mu.Lock()
	if len(w.queue) >= w.maxItems {
		dropped := w.queue[0]
		w.queue = w.queue[1:]
		w.logger.Warn("save queue overflow: dropping oldest session", "dropped_session_id", dropped.Session.ID, "new_session_id", s.ID)
	}
	w.queue = append(w.queue, Item{Session: s})
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Len returns the current queue depth.
func (w *Worker) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Run drains the queue until ctx is cancelled. Each failed upload is
// retried from the back of the queue after Backoff (spec.md §4.7); this
// means only one item is attempted per backoff interval, by design (a
// single background task, per spec.md §5).
func (w *Worker) Run(ctx context.Context) {
	for {
		item, ok := w.popFront()
		if !ok {
			select {
			case <-w.wake:
				continue
			case <-ctx.Done():
				return
			}
		}

		if err := w.attempt(ctx, item); err != nil {
			item.RetryCount++
			item.LastAttemptAt = w.clock.MonotonicMS()
			w.logger.Warn("session upload failed, retrying", "session_id", item.Session.ID, "retry_count", item.RetryCount, "error", err)
			w.mu.Lock()
			w.queue = append(w.queue, item)
			w.mu.Unlock()

			select {
			case <-time.After(w.backoff):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Worker) popFront() (Item, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return Item{}, false
	}
	item := w.queue[0]
	w.queue = w.queue[1:]
	return item, true
}

func (w *Worker) attempt(ctx context.Context, item Item) error {
	s := item.Session
	blob, mime := BuildBlob(s)
	filename, err := Filename(s.FirstDetectedAt, extForMime(mime))
	if err != nil {
		return fmt.Errorf("render filename: %w", err)
	}

	url, err := w.blob.Upload(ctx, blob, filename, s.ID)
	if err != nil {
		var perm *external.PermanentError
		if asPermanent(err, &perm) {
			w.logger.Error("session upload failed permanently, dropping", "session_id", s.ID, "error", perm.Err)
			w.notifyResult(false)
			return nil
		}
		return err
	}

	if err := w.meta.RecordSession(ctx, w.userID, s.ID, url, s.FirstDetectedAt, int64(len(blob)), mime); err != nil {
		// Non-fatal: the recording is still reachable via url (spec.md §7).
		w.logger.Warn("metadata write failed after successful upload", "session_id", s.ID, "url", url, "error", err)
	}
	w.notifyResult(true)
	return nil
}

func (w *Worker) notifyResult(ok bool) {
	if w.onResult != nil {
		w.onResult(ok)
	}
}

func asPermanent(err error, target **external.PermanentError) bool {
	pe, ok := err.(*external.PermanentError)
	if ok {
		*target = pe
	}
	return ok
}

// BuildBlob combines a session's batches into one encoded byte run, per
// spec.md §4.7: a single-batch session shortcuts to that batch's own
// already-init-segment-prefixed EncodedBytes; a multi-batch session
// concatenates RawChunks so the init segment is embedded only once.
func BuildBlob(s session.Session) (blob []byte, mime string) {
	mime = s.Mime
	if mime == "" {
		mime = "audio/ogg"
	}
	if len(s.Batches) == 1 {
		return s.Batches[0].EncodedBytes, mime
	}
	var out []byte
	for i, b := range s.Batches {
		if i == 0 {
			// The init segment is the common prefix every batch's
			// EncodedBytes carries; take it once from the first batch.
			initLen := len(b.EncodedBytes) - sumLens(b.RawChunks)
			if initLen > 0 {
				out = append(out, b.EncodedBytes[:initLen]...)
			}
		}
		for _, c := range b.RawChunks {
			out = append(out, c...)
		}
	}
	return out, mime
}

func sumLens(chunks [][]byte) int {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	return n
}

// Filename renders spec.md §6's recording-YYYY-MM-DD_HH-MM-SS-{AM|PM}
// format in the session's timezone, with the given extension appended.
func Filename(t time.Time, ext string) (string, error) {
	rendered, err := strftime.Format(filenamePattern, t)
	if err != nil {
		return "", err
	}
	return rendered + "." + ext, nil
}

func extForMime(mime string) string {
	switch {
	case strings.Contains(mime, "opus"):
		return "opus"
	case strings.Contains(mime, "ogg"):
		return "ogg"
	case strings.Contains(mime, "webm"):
		return "webm"
	case strings.Contains(mime, "m4a"), strings.Contains(mime, "mp4"):
		return "m4a"
	default:
		return "ogg"
	}
}
