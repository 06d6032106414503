package hardware

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fieldops/pagingcore/internal/external"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type fakeFleet struct {
	calls    int32
	delay    time.Duration
	failOne  bool
}

func (f *fakeFleet) SetZone(ctx context.Context, speakerIDs []string, zone string) []external.SpeakerResult {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}
	out := make([]external.SpeakerResult, len(speakerIDs))
	for i, id := range speakerIDs {
		var err error
		if f.failOne && i == 0 {
			err = context.DeadlineExceeded
		}
		out[i] = external.SpeakerResult{SpeakerID: id, Err: err}
	}
	return out
}

func TestEnsureActiveReachesActive(t *testing.T) {
	f := &fakeFleet{}
	m := New(f, []string{"sp1", "sp2"}, "239.0.0.1", "239.0.0.2", noopLogger{})
	if err := m.EnsureActive(context.Background()); err != nil {
		t.Fatalf("EnsureActive: %v", err)
	}
	if m.State() != Active {
		t.Fatalf("state = %v, want Active", m.State())
	}
}

func TestPerSpeakerFailureStillCommits(t *testing.T) {
	f := &fakeFleet{failOne: true}
	m := New(f, []string{"sp1", "sp2"}, "z1", "z2", noopLogger{})
	if err := m.EnsureActive(context.Background()); err != nil {
		t.Fatalf("EnsureActive: %v", err)
	}
	if m.State() != Active {
		t.Fatalf("aggregate transition should commit despite a per-speaker failure")
	}
}

func TestEnsureActiveTwiceIssuesOneTransition(t *testing.T) {
	f := &fakeFleet{delay: 20 * time.Millisecond}
	m := New(f, []string{"sp1"}, "z1", "z2", noopLogger{})

	done := make(chan error, 2)
	go func() { done <- m.EnsureActive(context.Background()) }()
	time.Sleep(2 * time.Millisecond)
	go func() { done <- m.EnsureActive(context.Background()) }()

	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("EnsureActive: %v", err)
		}
	}
	if got := atomic.LoadInt32(&f.calls); got != 1 {
		t.Fatalf("fleet.SetZone called %d times, want 1", got)
	}
}

func TestDeactivatingRaceCancelsAndReactivates(t *testing.T) {
	f := &fakeFleet{delay: 50 * time.Millisecond}
	m := New(f, []string{"sp1"}, "active-zone", "idle-zone", noopLogger{})

	if err := m.EnsureActive(context.Background()); err != nil {
		t.Fatalf("initial EnsureActive: %v", err)
	}

	deactivateErr := make(chan error, 1)
	go func() { deactivateErr <- m.Deactivate(context.Background()) }()
	time.Sleep(5 * time.Millisecond) // let Deactivate enter Deactivating

	if m.State() != Deactivating {
		t.Fatalf("expected Deactivating mid-transition, got %v", m.State())
	}

	if err := m.EnsureActive(context.Background()); err != nil {
		t.Fatalf("racing EnsureActive: %v", err)
	}
	if m.State() != Active {
		t.Fatalf("expected Active after cancelling deactivation and reactivating, got %v", m.State())
	}

	<-deactivateErr // the stale Deactivate call should also return (ctx was not cancelled, so nil)
}

func TestAbortForcesIdle(t *testing.T) {
	f := &fakeFleet{delay: 100 * time.Millisecond}
	m := New(f, []string{"sp1"}, "z1", "z2", noopLogger{})

	go m.EnsureActive(context.Background())
	time.Sleep(5 * time.Millisecond)
	if m.State() != Activating {
		t.Fatalf("expected Activating, got %v", m.State())
	}

	m.Abort()
	if m.State() != Idle {
		t.Fatalf("Abort should force Idle immediately, got %v", m.State())
	}

	// Give the superseded goroutine time to return; it must not clobber Idle.
	time.Sleep(120 * time.Millisecond)
	if m.State() != Idle {
		t.Fatalf("superseded transition clobbered Abort's Idle state: %v", m.State())
	}
}
