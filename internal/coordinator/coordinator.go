// Package coordinator implements the central façade (C9 in spec.md §4.8):
// an explicit state machine that binds the level detector, ring buffer,
// batch recorder, hardware state machine, silence/idle controller,
// playback worker, and save worker into one call lifecycle. It is the
// only component that observes cross-component state directly — every
// other package exposes message-passing endpoints, per spec.md §9's
// "callback-driven event model" redesign note.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fieldops/pagingcore/internal/batch"
	"github.com/fieldops/pagingcore/internal/config"
	"github.com/fieldops/pagingcore/internal/external"
	"github.com/fieldops/pagingcore/internal/hardware"
	"github.com/fieldops/pagingcore/internal/leveldetector"
	"github.com/fieldops/pagingcore/internal/playback"
	"github.com/fieldops/pagingcore/internal/ringbuffer"
	"github.com/fieldops/pagingcore/internal/save"
	"github.com/fieldops/pagingcore/internal/session"
	"github.com/fieldops/pagingcore/internal/silence"
)

// State is one of the five call-lifecycle states. Saving is not a state of
// its own: a closed session is enqueued for save as the coordinator returns
// to Idle.
type State int

const (
	Idle State = iota
	Recording
	PlaybackArmed
	Playing
	Draining
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case PlaybackArmed:
		return "playback-armed"
	case Playing:
		return "playing"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time observability snapshot (SPEC_FULL.md §3.4),
// the paging domain's analogue of the teacher's Room.Stats() counters.
// Unlike the teacher's reset-on-read counters, these accumulate for the
// life of the process; a status endpoint polls them repeatedly rather
// than differencing since-last-call.
type Stats struct {
	State               string
	ActiveSessionID     string
	SessionsStarted     uint64
	SessionsSaved       uint64
	SessionsAborted     uint64
	BatchesSealed       uint64
	SaveFailures        uint64
	SaveQueueDepth      int
	HardwareTransitions uint64
}

// Coordinator owns C1-C8 for the lifetime of one monitoring run. The zero
// value is not usable; use New().
type Coordinator struct {
	cfg    config.Config
	tap    external.CaptureTap
	clock  external.Clock
	logger external.Logger
	idGen  func() string

	ring       *ringbuffer.RingBuffer
	detector   *leveldetector.Detector
	recorder   *batch.Recorder
	hw         *hardware.Machine
	silenceCtl *silence.Controller
	registry   *session.Registry
	playback   *playback.Worker
	saveWorker *save.Worker

	initSegment []byte

	sessionsStarted     atomic.Uint64
	sessionsSaved       atomic.Uint64
	sessionsAborted     atomic.Uint64
	batchesSealed       atomic.Uint64
	saveFailures        atomic.Uint64
	hardwareTransitions atomic.Uint64

	mu              sync.Mutex
	state           State
	sessionID       string
	sessionAborted  bool
	recorderRunning bool
	recorderCancel  context.CancelFunc
	stopCh          chan struct{}
	playbackIdle    bool
}

// New constructs a Coordinator in the Idle state. wallHourFn supplies the
// current hour-of-day in the session timezone, used by the playback
// worker's ramp time-of-day window (spec.md §4.6 step 3).
func New(cfg config.Config, tap external.CaptureTap, fleet external.SpeakerFleet, blob external.BlobStore, meta external.MetadataStore, clock external.Clock, logger external.Logger, idGen func() string, wallHourFn func() int) *Coordinator {
	c := &Coordinator{
		cfg:      cfg,
		tap:      tap,
		clock:    clock,
		logger:   logger,
		idGen:    idGen,
		registry: session.New(),
	}
	// wallClockMS is shared by the ring buffer and the playback worker so
	// FirstSampleEpochMS and the Audio TTL comparison always use the same
	// time base (spec.md §4.6 step 2); the output callback's own monotonic
	// counter must never be compared against it.
	wallClockMS := func() int64 {
		now, err := clock.Now(cfg.TimezoneID)
		if err != nil {
			return 0
		}
		return now.UnixMilli()
	}
	c.ring = ringbuffer.New(cfg.SampleRate*int(cfg.RingBufferDuration.Seconds()), wallClockMS)
	c.detector = leveldetector.New(cfg.AudioThreshold, cfg.SustainDuration.Milliseconds())
	c.recorder = batch.New(tap, clock, logger, cfg.MinBatchDuration.Milliseconds(), cfg.TargetBatchDuration.Milliseconds(), cfg.MaxBatchDuration.Milliseconds(), idGen)
	c.hw = hardware.New(fleet, speakerIDs(cfg.Speakers), cfg.ActiveZoneAddress, cfg.IdleZoneAddress, logger)
	c.silenceCtl = silence.New(cfg.DisableDelay.Milliseconds(), cfg.HardwareIdleDelay.Milliseconds())
	c.saveWorker = save.New(blob, meta, clock, logger, cfg.UserID, cfg.MaxSaveSessions, cfg.RetryBackoff)
	c.saveWorker.SetResultHook(c.onSaveResult)
	c.playback = playback.New(c.ring, c.hw, cfg.SampleRate, cfg, wallHourFn, wallClockMS, c.onPlaybackIdle)
	return c
}

func (c *Coordinator) onSaveResult(ok bool) {
	if !ok {
		c.saveFailures.Add(1)
	}
}

func speakerIDs(speakers []config.Speaker) []string {
	ids := make([]string, len(speakers))
	for i, sp := range speakers {
		ids[i] = sp.ID
	}
	return ids
}

// Playback returns the worker the audio-output callback must drive
// directly; the coordinator never calls NextCallback itself (spec.md §5:
// the output callback runs on a dedicated real-time-ish thread).
func (c *Coordinator) Playback() *playback.Worker { return c.playback }

// Run drives the coordinator until ctx is cancelled or the capture tap
// closes. It captures the monitoring-lifetime init segment once (spec.md
// glossary: "captured once at monitoring start"), then processes PCM
// frames and periodic timers. Returns when the capture device is lost,
// per spec.md §7's propagation policy ("only abort() ... or loss of the
// capture device itself, terminates monitoring").
func (c *Coordinator) Run(ctx context.Context) error {
	preroll, err := c.tap.PreRoll(ctx)
	if err != nil {
		return fmt.Errorf("capture unavailable: %w", err)
	}
	c.initSegment = preroll

	go c.saveWorker.Run(ctx)

	ticker := time.NewTicker(c.cfg.IdleCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case frame, ok := <-c.tap.PCM():
			if !ok {
				return fmt.Errorf("capture tap closed")
			}
			c.ring.Push(frame)
			level := leveldetector.RMSToLevel(leveldetector.RMS(frame))
			c.handleLevelEvent(ctx, c.detector.Process(level, c.clock.MonotonicMS()))

		case <-ticker.C:
			c.tick(ctx, c.clock.MonotonicMS())
		}
	}
}

func (c *Coordinator) handleLevelEvent(ctx context.Context, ev leveldetector.Event) {
	now := c.clock.MonotonicMS()

	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.Detected {
		c.silenceCtl.OnAudioDetected()
		c.playback.NotifyAudioObserved()
		if c.state == Idle {
			c.startSessionLocked(ctx, now)
		}
		return
	}

	// ev.Silence
	switch c.state {
	case Recording, PlaybackArmed, Playing:
		c.silenceCtl.OnSilence(now)
	}
}

// startSessionLocked must be called with mu held. Session id is minted at
// Recording entry (spec.md §4.8) and carried by every batch until close.
// Hardware activation and recorder start both run concurrently with the
// caller's return, satisfying "Recording never waits for playback or
// hardware" (spec.md §4.8 contracts).
func (c *Coordinator) startSessionLocked(ctx context.Context, now int64) {
	sessionID := c.idGen()
	wallNow, err := c.clock.Now(c.cfg.TimezoneID)
	if err != nil {
		wallNow = time.Now()
	}
	c.registry.Open(sessionID, wallNow, c.cfg.TimezoneID, c.tap.MimeType())
	c.sessionsStarted.Add(1)

	c.sessionID = sessionID
	c.sessionAborted = false
	c.recorderRunning = true
	c.playbackIdle = false
	c.state = Recording

	recorderCtx, cancel := context.WithCancel(ctx)
	c.recorderCancel = cancel
	stopCh := make(chan struct{})
	c.stopCh = stopCh

	out := make(chan batch.Batch, 4)
	go c.runRecorder(recorderCtx, sessionID, stopCh, out)
	go c.consumeBatches(sessionID, out)
	go func() {
		alreadyActive := c.hw.State() == hardware.Active
		if err := c.hw.EnsureActive(recorderCtx); err != nil {
			c.logger.Warn("hardware activation did not complete", "session_id", sessionID, "error", err)
			return
		}
		if !alreadyActive {
			c.hardwareTransitions.Add(1)
		}
	}()

	// The triggering PCM frame was already pushed to the ring buffer before
	// this event was processed, so playback is immediately armed rather than
	// waiting for a subsequent frame (spec.md §4.8: "Recording -> PlaybackArmed
	// -- first frame captured").
	c.state = PlaybackArmed
}

func (c *Coordinator) runRecorder(ctx context.Context, sessionID string, stop <-chan struct{}, out chan<- batch.Batch) {
	defer close(out)
	c.recorder.Run(ctx, sessionID, c.initSegment, c.detector.Sustained, stop, out)
}

func (c *Coordinator) consumeBatches(sessionID string, in <-chan batch.Batch) {
	for b := range in {
		if err := c.registry.AppendBatch(b); err != nil {
			c.logger.Error("append batch failed", "session_id", sessionID, "batch_id", b.ID, "error", err)
			continue
		}
		c.batchesSealed.Add(1)
	}
	c.finishSession(sessionID)
}

// finishSession closes out a session once its recorder goroutine has
// returned (residual flushed, or cancelled by Abort). It is idempotent
// with respect to a concurrent Abort() call: whichever of the two closes
// the session first in the registry wins the reason, and only a
// non-aborted close is enqueued for save (spec.md §4.8: "Any -- abort()
// --> Idle (no save)").
func (c *Coordinator) finishSession(sessionID string) {
	now := c.clock.MonotonicMS()
	s, err := c.registry.Close(sessionID, now, session.ClosedSilenceTimeout)

	c.mu.Lock()
	if c.sessionID == sessionID {
		c.recorderRunning = false
		c.state = Idle
		c.sessionID = ""
		c.recorderCancel = nil
		c.stopCh = nil
		c.silenceCtl.ArmHardwareIdle(now)
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("close session failed", "session_id", sessionID, "error", err)
		return
	}
	defer c.registry.Forget(sessionID)

	if s.ClosedReason == session.ClosedAborted {
		c.sessionsAborted.Add(1)
		return
	}
	c.sessionsSaved.Add(1)
	c.saveWorker.Enqueue(*s)
}

// tick runs the periodic (<=100ms) checks in spec.md §4.4 and §4.8:
// PlaybackArmed -> Playing once hardware is Active, silence-deadline
// expiry begins draining, and hardware-idle-deadline expiry evaluates the
// deactivation predicate.
func (c *Coordinator) tick(ctx context.Context, now int64) {
	c.mu.Lock()

	if c.state == PlaybackArmed && c.hw.State() == hardware.Active {
		c.state = Playing
	}

	if c.silenceCtl.SilenceExpired(now) {
		c.silenceCtl.ConsumeSilenceExpiry()
		c.beginDrainingLocked()
	}

	var deactivate bool
	if c.silenceCtl.HardwareIdleExpired(now) {
		c.silenceCtl.ConsumeHardwareIdleExpiry()
		deactivate = c.idlePredicateLocked()
	}
	c.mu.Unlock()

	if deactivate {
		go func() {
			if err := c.hw.Deactivate(ctx); err != nil {
				c.logger.Warn("hardware deactivation did not complete", "error", err)
				return
			}
			c.hardwareTransitions.Add(1)
		}()
	}
}

// beginDrainingLocked must be called with mu held. It signals the batch
// recorder to stop; finishSession runs once the recorder's residual
// fragment is sealed (spec.md §4.3 "stopping batching").
func (c *Coordinator) beginDrainingLocked() {
	if c.state == Idle || c.state == Draining {
		return
	}
	c.state = Draining
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
}

// idlePredicateLocked must be called with mu held. It mirrors spec.md
// §4.4's hardware-idle predicate: "(!batching) AND (playback_worker_idle
// OR ring_buffer_drain < 2s) AND (batch_queue empty)". The batch queue is
// drained synchronously by consumeBatches as each batch arrives, so
// "not recorderRunning" already implies it is empty.
func (c *Coordinator) idlePredicateLocked() bool {
	if c.recorderRunning {
		return false
	}
	shortDrain := c.ring.Available() < c.cfg.SampleRate*2
	return c.playbackIdle || shortDrain
}

func (c *Coordinator) onPlaybackIdle() {
	c.mu.Lock()
	c.playbackIdle = true
	c.mu.Unlock()
}

// Abort idempotently cancels any in-flight session and forces the
// coordinator back to Idle without saving that session: it closes the
// session as aborted before stopping the recorder, forces the hardware
// state machine to Idle, and clears the ring buffer. It does not touch the
// save queue: sessions already enqueued for save, including one whose
// upload is in progress, are still uploaded.
func (c *Coordinator) Abort() {
	c.mu.Lock()
	if c.state == Idle {
		c.mu.Unlock()
		c.hw.Abort()
		return
	}
	sessionID := c.sessionID
	cancel := c.recorderCancel
	c.sessionAborted = true
	c.mu.Unlock()

	// Close as aborted before cancelling the recorder, so finishSession
	// (which runs once the recorder returns) finds the session already
	// closed and does not enqueue it.
	if sessionID != "" {
		if _, err := c.registry.Close(sessionID, c.clock.MonotonicMS(), session.ClosedAborted); err != nil {
			c.logger.Error("abort: close session failed", "session_id", sessionID, "error", err)
		}
	}
	c.hw.Abort()
	if cancel != nil {
		cancel()
	}
	c.ring.Clear()

	c.mu.Lock()
	if c.sessionID == sessionID {
		c.state = Idle
		c.sessionID = ""
		c.recorderRunning = false
		c.recorderCancel = nil
		c.stopCh = nil
	}
	c.mu.Unlock()
}

// Stats returns a point-in-time observability snapshot (SPEC_FULL.md
// §3.4), consumed by cmd/pagingd's /status endpoint.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	st := c.state
	sessionID := c.sessionID
	c.mu.Unlock()

	return Stats{
		State:               st.String(),
		ActiveSessionID:     sessionID,
		SessionsStarted:     c.sessionsStarted.Load(),
		SessionsSaved:       c.sessionsSaved.Load(),
		SessionsAborted:     c.sessionsAborted.Load(),
		BatchesSealed:       c.batchesSealed.Load(),
		SaveFailures:        c.saveFailures.Load(),
		SaveQueueDepth:      c.saveWorker.Len(),
		HardwareTransitions: c.hardwareTransitions.Load(),
	}
}
