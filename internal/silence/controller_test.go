package silence

import "testing"

func TestSilenceArmsOnFirstSilenceOnly(t *testing.T) {
	c := New(8000, 12000)
	c.OnSilence(1000) // arms deadline at 9000
	c.OnSilence(5000) // should not move it
	if !c.SilenceExpired(9000) {
		t.Fatalf("expected expiry at t=9000")
	}
	if c.SilenceExpired(8999) {
		t.Fatalf("should not expire before deadline")
	}
}

func TestAudioDetectedClearsBothDeadlines(t *testing.T) {
	c := New(8000, 12000)
	c.OnSilence(1000)
	c.ArmHardwareIdle(1000)
	c.OnAudioDetected()
	if c.SilenceExpired(100000) || c.HardwareIdleExpired(100000) {
		t.Fatalf("deadlines should be cleared by OnAudioDetected")
	}
}

func TestConsumeDisarmsExactlyOnce(t *testing.T) {
	c := New(8000, 12000)
	c.OnSilence(0)
	if !c.SilenceExpired(8000) {
		t.Fatalf("expected expiry")
	}
	c.ConsumeSilenceExpiry()
	if c.SilenceExpired(999999) {
		t.Fatalf("expiry should not re-fire after consumption")
	}
}

func TestHardwareIdleScenario(t *testing.T) {
	// spec.md §8 scenario 4: hardware idle grace is 12s; a new burst at
	// t=12000 after a session ending near t=11500 should land inside grace.
	c := New(8000, 12000)
	c.ArmHardwareIdle(11500)
	if c.HardwareIdleExpired(12000) {
		t.Fatalf("hardware idle should not have expired yet at t=12000")
	}
	if !c.HardwareIdleExpired(23500) {
		t.Fatalf("hardware idle should have expired by t=23500")
	}
}
