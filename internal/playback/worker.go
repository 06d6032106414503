// Package playback implements the live playback worker (C6 in spec.md
// §4.6): a fixed-size output callback that drains the PCM ring buffer into
// a continuous output stream, enforcing the Audio TTL, an optional
// pre-roll delay with volume ramp, and idle detection. The worker never
// performs I/O, logging, or anything that can block — per spec.md §5 it
// is driven directly by the real-time audio callback, so NextCallback must
// stay allocation-light and non-blocking.
package playback

import (
	"github.com/fieldops/pagingcore/internal/config"
	"github.com/fieldops/pagingcore/internal/hardware"
	"github.com/fieldops/pagingcore/internal/ringbuffer"
)

// Worker is driven once per audio output callback via NextCallback. Not
// safe for concurrent calls to NextCallback from multiple goroutines — it
// is meant to be called from exactly one real-time audio thread, matching
// spec.md §5's single-consumer rule for the ring buffer.
type Worker struct {
	ring *ringbuffer.RingBuffer
	hw   *hardware.Machine

	sampleRate  int
	callback    int
	delayMS     int64
	maxAgeMS    int64
	emptyLimit  int
	ramp        config.RampConfig
	wallHourFn  func() int   // returns current hour-of-day in the session timezone
	wallClockMS func() int64 // wall-clock epoch ms, same time base as RingBuffer.FirstSampleEpochMS

	onIdle func()

	started     bool
	sawNonZero  bool
	rampApplied bool
	rampStartMS int64
	emptyCount  int
}

// New constructs a Worker. onIdle is invoked (from within NextCallback, so
// it must not block) once the ring buffer has been empty for
// EmptyCallbacksToIdle consecutive callbacks while the recorder is not
// batching. wallClockMS must use the same time base as the RingBuffer's own
// nowMS source (wall-clock epoch, not the audio callback's monotonic
// counter), since the Audio TTL compares against FirstSampleEpochMS.
func New(ring *ringbuffer.RingBuffer, hw *hardware.Machine, sampleRate int, cfg config.Config, wallHourFn func() int, wallClockMS func() int64, onIdle func()) *Worker {
	return &Worker{
		ring:        ring,
		hw:          hw,
		sampleRate:  sampleRate,
		callback:    cfg.CallbackSize,
		delayMS:     cfg.PlaybackDelay.Milliseconds(),
		maxAgeMS:    cfg.MaxAudioAge.Milliseconds(),
		emptyLimit:  cfg.EmptyCallbacksToIdle,
		ramp:        cfg.Ramp,
		wallHourFn:  wallHourFn,
		wallClockMS: wallClockMS,
		onIdle:      onIdle,
	}
}

// NotifyAudioObserved records that at least one non-zero sample has been
// seen this session, satisfying step 3's pre-roll gate in spec.md §4.6.
// Called by the coordinator when the level detector reports detected audio.
func (w *Worker) NotifyAudioObserved() {
	w.sawNonZero = true
}

// NextCallback runs steps 1-5 of spec.md §4.6 for one output period and
// returns exactly CallbackSize samples to write to the output device. nowMS
// is a monotonic counter local to the output callback, used only for the
// pre-roll/ramp timing in steps 3-4; it is never compared against the ring
// buffer's wall-clock epoch. recording is true while the batch recorder
// currently holds an open batch (used only for the idle predicate in step 5).
func (w *Worker) NextCallback(nowMS int64, recording bool) []float32 {
	if w.hw.State() != hardware.Active {
		return silence(w.callback)
	}

	if first := w.ring.FirstSampleEpochMS(); first != 0 && w.wallClockMS()-first > w.maxAgeMS {
		w.ring.Clear()
		w.resetSessionState()
		return silence(w.callback)
	}

	if !w.started {
		needed := (w.sampleRate * int(w.delayMS)) / 1000
		if w.ring.Available() < needed || !w.sawNonZero {
			return silence(w.callback)
		}
		w.started = true
		w.maybeApplyRamp(nowMS)
	}

	wasEmpty := w.ring.Available() == 0
	raw := w.ring.Pull(w.callback)
	for i, s := range raw {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		raw[i] = s * w.currentGain(nowMS)
	}

	if wasEmpty {
		w.emptyCount++
	} else {
		w.emptyCount = 0
	}
	if w.emptyCount >= w.emptyLimit && !recording {
		w.onIdle()
		w.resetSessionState()
	}

	return raw
}

func (w *Worker) maybeApplyRamp(nowMS int64) {
	if !w.ramp.Enabled || w.rampApplied {
		return
	}
	if w.ramp.WindowStartHour != w.ramp.WindowEndHour {
		hour := w.wallHourFn()
		if !inWindow(hour, w.ramp.WindowStartHour, w.ramp.WindowEndHour) {
			return
		}
	}
	w.rampApplied = true
	w.rampStartMS = nowMS
}

func inWindow(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end // window wraps past midnight
}

func (w *Worker) currentGain(nowMS int64) float32 {
	if !w.rampApplied {
		return 1.0
	}
	durMS := w.ramp.Duration.Milliseconds()
	if durMS <= 0 {
		return float32(w.ramp.TargetVolume)
	}
	elapsed := nowMS - w.rampStartMS
	if elapsed <= 0 {
		return float32(w.ramp.StartVolume)
	}
	if elapsed >= durMS {
		return float32(w.ramp.TargetVolume)
	}
	frac := float64(elapsed) / float64(durMS)
	return float32(w.ramp.StartVolume + (w.ramp.TargetVolume-w.ramp.StartVolume)*frac)
}

// resetSessionState is called on a TTL flush and on idle detection. Per
// spec.md §9's resolution of the ramp/TTL open question, the next
// first-audio event after this reset is treated as a new session for ramp
// purposes.
func (w *Worker) resetSessionState() {
	w.started = false
	w.sawNonZero = false
	w.rampApplied = false
	w.rampStartMS = 0
	w.emptyCount = 0
}

func silence(n int) []float32 {
	return make([]float32, n)
}
