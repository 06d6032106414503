package leveldetector

import "testing"

func TestSustainZeroTriggersImmediately(t *testing.T) {
	d := New(5, 0)
	ev := d.Process(40, 100)
	if !ev.Detected || ev.Silence {
		t.Fatalf("expected immediate detection with sustain=0, got %+v", ev)
	}
}

func TestDebounceRequiresSustainWindow(t *testing.T) {
	d := New(5, 50)
	ev := d.Process(40, 1000)
	if ev.Detected {
		t.Fatalf("expected no detection before sustain window elapses")
	}
	if !ev.Silence {
		t.Fatalf("expected exactly one of Detected/Silence; got %+v", ev)
	}

	ev = d.Process(40, 1049)
	if ev.Detected {
		t.Fatalf("sustain window not yet elapsed at t=1049")
	}

	ev = d.Process(40, 1050)
	if !ev.Detected {
		t.Fatalf("expected detection once sustain window elapses")
	}
}

func TestDropBelowThresholdClearsWatermark(t *testing.T) {
	d := New(5, 50)
	d.Process(40, 1000)
	d.Process(40, 1060) // now sustained
	ev := d.Process(1, 1070)
	if !ev.Silence || ev.Detected {
		t.Fatalf("expected silence once level drops, got %+v", ev)
	}
	if d.Sustained() {
		t.Fatalf("sustained should clear on drop below threshold")
	}

	// Re-crossing threshold must re-arm the sustain window, not reuse the
	// old watermark.
	ev = d.Process(40, 1071)
	if ev.Detected {
		t.Fatalf("re-crossing threshold should not be immediately sustained")
	}
}

func TestExactlyOneEventPerTick(t *testing.T) {
	d := New(5, 0)
	for _, level := range []int{0, 3, 5, 6, 40, 100} {
		ev := d.Process(level, 0)
		if ev.Detected == ev.Silence {
			t.Fatalf("level %d produced Detected=%v Silence=%v, want exactly one", level, ev.Detected, ev.Silence)
		}
	}
}

func TestRMSToLevelClampsAndRounds(t *testing.T) {
	cases := []struct {
		rms  float64
		want int
	}{
		{0, 0},
		{1, 100},
		{0.5, 50},
		{-1, 0},
		{2, 100},
	}
	for _, c := range cases {
		if got := RMSToLevel(c.rms); got != c.want {
			t.Errorf("RMSToLevel(%v) = %d, want %d", c.rms, got, c.want)
		}
	}
}
