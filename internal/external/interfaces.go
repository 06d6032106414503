// Package external declares the consumer contracts the call coordinator
// depends on but never implements: capture, speaker-fleet control, blob
// storage, metadata storage, and logging. Concrete adapters live under
// pkg/adapters; the coordinator and its components import only this
// package.
package external

import (
	"context"
	"time"
)

// EncodedFragment is one chunk of encoder output, delivered in capture order.
type EncodedFragment struct {
	Data []byte
	// Monotonic is the capture-side monotonic millisecond timestamp at which
	// this fragment was produced.
	Monotonic int64
}

// CaptureTap is the platform audio source. PCM() carries mono float32
// samples in [-1, 1] at SampleRate(); Fragments() carries encoder output as
// it becomes available, with no reordering relative to capture time.
type CaptureTap interface {
	SampleRate() int
	PCM() <-chan []float32
	Fragments() <-chan EncodedFragment
	// RequestFlush asks the platform encoder to seal and emit its current
	// fragment immediately. It does not block for the fragment to arrive.
	RequestFlush()
	// PreRoll returns a short run of encoded silence, captured once at
	// monitoring start, used to prefix a saved session's blob.
	PreRoll(ctx context.Context) ([]byte, error)
	// MimeType identifies the encoder output format (e.g. "audio/ogg").
	MimeType() string
	Close() error
}

// SpeakerResult is the per-speaker outcome of a zone-set call.
type SpeakerResult struct {
	SpeakerID string
	Err       error
}

// SpeakerFleet sets the receive zone address on a set of networked
// loudspeakers. SetZone is idempotent per target and gives no ordering
// guarantee between concurrent calls on disjoint speaker sets.
type SpeakerFleet interface {
	SetZone(ctx context.Context, speakerIDs []string, zoneAddress string) []SpeakerResult
}

// BlobStore persists a finished session's encoded blob.
type BlobStore interface {
	Upload(ctx context.Context, blob []byte, path string, sessionID string) (url string, err error)
}

// PermanentError marks an upload failure the save worker must not retry.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// MetadataStore records a completed session's metadata after a successful
// upload. Failure here does not invalidate the upload.
type MetadataStore interface {
	RecordSession(ctx context.Context, userID, sessionID, blobURL string, firstDetectedAt time.Time, size int64, mime string) error
}

// Clock supplies monotonic milliseconds for timers and wall-clock time
// (with an explicit timezone) for session timestamps and filenames.
// Timer deadlines must never be derived from wall-clock time.
type Clock interface {
	MonotonicMS() int64
	Now(timezoneID string) (time.Time, error)
}

// Logger is a non-blocking structured event sink. A full sink drops events
// rather than stalling the caller.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}
