// Package hardware implements the Idle/Activating/Active/Deactivating
// control plane for the remote speaker fleet (C5 in spec.md §4.5). It
// follows this exercise's own redesign note (spec.md §9): cancellation is
// an explicit context.CancelFunc per in-flight transition rather than a
// boolean flag, and state is only ever read or mutated with the Machine's
// mutex held — the same discipline the teacher uses for Room's
// mutex-guarded fields.
package hardware

import (
	"context"
	"sync"

	"github.com/fieldops/pagingcore/internal/external"
)

// State is one of the four control-plane states in spec.md §3.
type State int

const (
	Idle State = iota
	Activating
	Active
	Deactivating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Activating:
		return "activating"
	case Active:
		return "active"
	case Deactivating:
		return "deactivating"
	default:
		return "unknown"
	}
}

// Machine drives zone-switching for a fixed set of linked speakers. The
// zero value is not usable; use New().
type Machine struct {
	fleet      external.SpeakerFleet
	speakerIDs []string
	activeZone string
	idleZone   string
	logger     external.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{} // non-nil while a transition is in flight
}

// New constructs a Machine in the Idle state.
func New(fleet external.SpeakerFleet, speakerIDs []string, activeZone, idleZone string, logger external.Logger) *Machine {
	return &Machine{
		fleet:      fleet,
		speakerIDs: speakerIDs,
		activeZone: activeZone,
		idleZone:   idleZone,
		logger:     logger,
		state:      Idle,
	}
}

// State returns the current control-plane state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EnsureActive drives the machine toward Active, per the transition table
// in spec.md §4.5, and blocks until it arrives or ctx is done. If Abort
// cancels the activation it is waiting on, it returns context.Canceled and
// leaves the machine Idle. Calling it twice back-to-back issues at most one
// activation fan-out (spec.md §8).
func (m *Machine) EnsureActive(ctx context.Context) error {
	for {
		m.mu.Lock()
		switch m.state {
		case Active:
			m.mu.Unlock()
			return nil

		case Activating:
			done := m.done
			m.mu.Unlock()
			if err := waitOrCtx(ctx, done); err != nil {
				return err
			}
			m.mu.Lock()
			aborted := m.state == Idle
			m.mu.Unlock()
			if aborted {
				return context.Canceled
			}
			continue

		case Deactivating:
			// Cancel the in-flight deactivation and re-run activation
			// immediately; do not wait for the aborted goroutine, which
			// will recognise it has been superseded and leave state alone.
			if m.cancel != nil {
				m.cancel()
			}
			m.startTransitionLocked(Activating, m.activeZone)
			m.mu.Unlock()
			continue

		case Idle:
			m.startTransitionLocked(Activating, m.activeZone)
			m.mu.Unlock()
			continue
		}
	}
}

// Deactivate drives the machine toward Idle. Activating is not cancelled by
// Deactivate (spec.md §4.5 defines no such transition); the caller waits
// for whichever transition is currently in flight and returns once it
// settles. It does not retry if that transition turns out to be a
// concurrent EnsureActive that reactivated the fleet instead — a caller
// that still wants Idle after that race must call Deactivate again, which
// mirrors how the silence/idle controller (§4.4) actually uses this
// method: it re-evaluates its idle predicate on its own timer rather than
// looping here.
func (m *Machine) Deactivate(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case Idle:
		m.mu.Unlock()
		return nil

	case Active:
		m.startTransitionLocked(Deactivating, m.idleZone)
		done := m.done
		m.mu.Unlock()
		return waitOrCtx(ctx, done)

	default: // Activating or Deactivating: wait for it to settle.
		done := m.done
		m.mu.Unlock()
		return waitOrCtx(ctx, done)
	}
}

// Abort idempotently cancels any in-flight transition and forces Idle.
// State is Idle by the time Abort returns (spec.md §5, §8).
func (m *Machine) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
	m.state = Idle
	m.cancel = nil
	m.done = nil
}

func waitOrCtx(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startTransitionLocked must be called with mu held. It fans the zone-set
// call out to every linked speaker concurrently; per-speaker failures are
// logged and do not block the transition from committing (spec.md §4.5,
// §7: "best-effort fan-out").
func (m *Machine) startTransitionLocked(to State, zone string) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.state = to
	m.cancel = cancel
	m.done = done

	go func() {
		defer close(done)
		results := m.fleet.SetZone(ctx, m.speakerIDs, zone)
		for _, res := range results {
			if res.Err != nil {
				m.logger.Warn("hardware transition: speaker failed", "speaker_id", res.SpeakerID, "error", res.Err)
			}
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.done != done {
			// A newer transition has already superseded this one
			// (Deactivating->Activating race, or Abort()); leave state alone.
			return
		}
		if to == Activating {
			m.state = Active
		} else {
			m.state = Idle
		}
		m.cancel = nil
	}()
}
