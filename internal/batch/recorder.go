package batch

import (
	"context"
	"time"

	"github.com/fieldops/pagingcore/internal/external"
)

// pollInterval is how often the seal-policy clock is checked while a batch
// is open. Small enough that MIN/TARGET/MAX boundaries (spec.md §4.3) are
// never missed by more than a tick.
const pollInterval = 20 * time.Millisecond

// residualWait bounds how long Run waits for the recorder's final fragment
// after a stop signal before sealing whatever was collected. The encoder is
// expected to flush promptly; this guards against a stuck encoder per
// spec.md §7's "encoder fault" policy (the session still closes).
const residualWait = 2 * time.Second

// Recorder runs a platform encoder in continuous mode and seals batches on
// the word-boundary/duration policy in spec.md §4.3.
type Recorder struct {
	tap    external.CaptureTap
	clock  external.Clock
	logger external.Logger
	idGen  func() string

	minMS, targetMS, maxMS int64
}

// New constructs a Recorder. idGen mints unique batch ids (the coordinator
// supplies a uuid.NewString-backed generator in production).
func New(tap external.CaptureTap, clock external.Clock, logger external.Logger, minMS, targetMS, maxMS int64, idGen func() string) *Recorder {
	return &Recorder{tap: tap, clock: clock, logger: logger, minMS: minMS, targetMS: targetMS, maxMS: maxMS, idGen: idGen}
}

// sealDecision is the pure seal-policy check, factored out of Run so it is
// unit-testable without a real clock or encoder.
func (r *Recorder) sealDecision(elapsedMS int64, silentNow bool) (seal bool, reason string) {
	if elapsedMS < r.minMS {
		return false, ""
	}
	if elapsedMS >= r.maxMS {
		return true, "max"
	}
	if elapsedMS >= r.targetMS && silentNow {
		return true, "target"
	}
	return false, ""
}

// Run drives one session's batching from session-open to session-close. It
// reads encoder fragments from the tap, seals batches onto out in sealed
// order, and returns once the residual batch following a stop signal has
// been sealed (or discarded, if empty). initSegment is prefixed once per
// batch into EncodedBytes only — never into RawChunks, which save (§4.7)
// concatenates without re-embedding it.
func (r *Recorder) Run(ctx context.Context, sessionID string, initSegment []byte, isSustained func() bool, stop <-chan struct{}, out chan<- Batch) {
	var chunks [][]byte
	batchStart := r.clock.MonotonicMS()
	stopping := false
	awaitingFlush := false
	var residualDeadline <-chan time.Time

	seal := func(reason string) {
		defer func() {
			chunks = nil
			awaitingFlush = false
		}()
		if len(chunks) == 0 {
			r.logger.Debug("discarding empty batch seal", "session_id", sessionID, "reason", reason)
			return
		}
		encoded := make([]byte, 0, len(initSegment))
		encoded = append(encoded, initSegment...)
		for _, c := range chunks {
			encoded = append(encoded, c...)
		}
		b := Batch{
			ID:           r.idGen(),
			SessionID:    sessionID,
			SealedAt:     r.clock.MonotonicMS(),
			DurationMS:   r.clock.MonotonicMS() - batchStart,
			EncodedBytes: encoded,
			RawChunks:    chunks,
		}
		select {
		case out <- b:
		case <-ctx.Done():
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case frag, ok := <-r.tap.Fragments():
			if !ok {
				return
			}
			chunks = append(chunks, frag.Data)
			if !awaitingFlush {
				continue
			}
			if stopping {
				seal("silence-timeout")
				return
			}
			seal("target-or-max")
			batchStart = r.clock.MonotonicMS()

		case <-stop:
			if stopping {
				continue
			}
			stopping = true
			if !awaitingFlush {
				awaitingFlush = true
				r.tap.RequestFlush()
			}
			residualDeadline = time.After(residualWait)

		case <-residualDeadline:
			seal("silence-timeout")
			return

		case <-ticker.C:
			if stopping || awaitingFlush {
				continue
			}
			elapsed := r.clock.MonotonicMS() - batchStart
			doSeal, _ := r.sealDecision(elapsed, !isSustained())
			if doSeal {
				awaitingFlush = true
				r.tap.RequestFlush()
			}
		}
	}
}
