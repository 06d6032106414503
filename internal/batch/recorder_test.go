package batch

import "testing"

func newTestRecorder() *Recorder {
	return New(nil, nil, nil, 4500, 5000, 6500, func() string { return "id" })
}

func TestSealDecisionNeverBeforeMin(t *testing.T) {
	r := newTestRecorder()
	if seal, _ := r.sealDecision(4000, true); seal {
		t.Fatalf("sealed before MIN_BATCH_MS")
	}
}

func TestSealDecisionTargetRequiresSilence(t *testing.T) {
	r := newTestRecorder()
	if seal, _ := r.sealDecision(5000, false); seal {
		t.Fatalf("sealed at target while still speaking")
	}
	seal, reason := r.sealDecision(5000, true)
	if !seal || reason != "target" {
		t.Fatalf("expected target seal at elapsed=target and silent, got seal=%v reason=%q", seal, reason)
	}
}

func TestSealDecisionMaxForcesRegardlessOfSpeech(t *testing.T) {
	r := newTestRecorder()
	seal, reason := r.sealDecision(6500, false)
	if !seal || reason != "max" {
		t.Fatalf("expected forced max seal, got seal=%v reason=%q", seal, reason)
	}
}

func TestSealDecisionWordBoundaryScenario(t *testing.T) {
	// spec.md §8 scenario 3: audio 0-4800, silence 4800-5200, audio from 5200.
	// Seal should occur once elapsed>=target(5000) AND silent, i.e. at 5000ms,
	// not before (at 4800 we are below target) and not forced at max.
	r := newTestRecorder()
	if seal, _ := r.sealDecision(4800, false); seal {
		t.Fatalf("must not seal before target even if min elapsed")
	}
	if seal, _ := r.sealDecision(4999, true); seal {
		t.Fatalf("must not seal before target even if silent")
	}
	seal, reason := r.sealDecision(5000, true)
	if !seal || reason != "target" {
		t.Fatalf("expected word-boundary target seal at t=5000, got seal=%v reason=%q", seal, reason)
	}
}
