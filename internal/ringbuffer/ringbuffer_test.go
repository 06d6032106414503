package ringbuffer

import (
	"testing"

	"pgregory.net/rapid"
)

func fakeClock(ms int64) func() int64 {
	return func() int64 { return ms }
}

func TestPushPullRoundTrip(t *testing.T) {
	rb := New(8, fakeClock(1000))
	rb.Push([]float32{1, 2, 3, 4})
	if got := rb.Available(); got != 4 {
		t.Fatalf("available = %d, want 4", got)
	}
	out := rb.Pull(4)
	want := []float32{1, 2, 3, 4}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("Pull()[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestPullShortReturnsZeroPadded(t *testing.T) {
	rb := New(8, fakeClock(0))
	rb.Push([]float32{9, 9})
	out := rb.Pull(5)
	if len(out) != 5 {
		t.Fatalf("len = %d, want 5", len(out))
	}
	if out[0] != 9 || out[1] != 9 {
		t.Fatalf("oldest samples not preserved: %v", out)
	}
	for _, s := range out[2:] {
		if s != 0 {
			t.Fatalf("expected silence padding, got %v", out)
		}
	}
}

func TestPushOverwritesOldestOnOverflow(t *testing.T) {
	rb := New(4, fakeClock(0))
	rb.Push([]float32{1, 2, 3, 4})
	rb.Push([]float32{5, 6})
	out := rb.Pull(4)
	want := []float32{3, 4, 5, 6}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("Pull() = %v, want %v", out, want)
		}
	}
}

func TestFirstSampleEpochTracksEmptyToNonEmptyTransition(t *testing.T) {
	now := int64(1000)
	rb := New(4, func() int64 { return now })
	if rb.FirstSampleEpochMS() != 0 {
		t.Fatalf("expected 0 epoch for empty buffer")
	}
	rb.Push([]float32{1})
	if rb.FirstSampleEpochMS() != 1000 {
		t.Fatalf("epoch not set on empty->non-empty transition")
	}
	now = 2000
	rb.Push([]float32{2}) // still non-empty; epoch should not move
	if rb.FirstSampleEpochMS() != 1000 {
		t.Fatalf("epoch moved on a push into a non-empty buffer")
	}
	rb.Clear()
	if rb.FirstSampleEpochMS() != 0 {
		t.Fatalf("Clear did not reset epoch")
	}
}

func TestClear(t *testing.T) {
	rb := New(4, fakeClock(0))
	rb.Push([]float32{1, 2, 3})
	rb.Clear()
	if rb.Available() != 0 {
		t.Fatalf("Available() after Clear = %d, want 0", rb.Available())
	}
	out := rb.Pull(3)
	for _, s := range out {
		if s != 0 {
			t.Fatalf("expected silence after clear, got %v", out)
		}
	}
}

// TestCountPlusFreeEqualsCapacity is the quantified invariant from spec.md §8:
// for all states, count + free == capacity.
func TestCountPlusFreeEqualsCapacity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 64).Draw(t, "capacity")
		rb := New(capacity, fakeClock(0))

		ops := rapid.SliceOfN(rapid.IntRange(-32, 32), 0, 50).Draw(t, "ops")
		for _, n := range ops {
			if n >= 0 {
				samples := make([]float32, n)
				rb.Push(samples)
			} else {
				rb.Pull(-n)
			}
			count := rb.Available()
			free := rb.Capacity() - count
			if count+free != rb.Capacity() {
				t.Fatalf("count+free = %d, want capacity %d", count+free, rb.Capacity())
			}
			if count < 0 || count > rb.Capacity() {
				t.Fatalf("count %d out of bounds [0, %d]", count, rb.Capacity())
			}
		}
	})
}
