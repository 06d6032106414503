package config

import "testing"

func TestValidateAcceptsDefault(t *testing.T) {
	cfg := Default()
	cfg.ActiveZoneAddress = "a"
	cfg.IdleZoneAddress = "b"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate(Default()) = %v, want nil", err)
	}
}

func TestValidateRejectsOutOfOrderBatchDurations(t *testing.T) {
	cfg := Default()
	cfg.ActiveZoneAddress, cfg.IdleZoneAddress = "a", "b"
	cfg.TargetBatchDuration = cfg.MinBatchDuration - 1
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate() = nil, want error for target < min")
	}
}

func TestValidateRejectsMissingZoneAddresses(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate() = nil, want error for empty zone addresses")
	}
}

func TestValidateRejectsUnknownTimezone(t *testing.T) {
	cfg := Default()
	cfg.ActiveZoneAddress, cfg.IdleZoneAddress = "a", "b"
	cfg.TimezoneID = "Not/ARealZone"
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate() = nil, want error for unknown timezone")
	}
}

func TestValidateRejectsIdleCheckPeriodOver100ms(t *testing.T) {
	cfg := Default()
	cfg.ActiveZoneAddress, cfg.IdleZoneAddress = "a", "b"
	cfg.IdleCheckPeriod = 200_000_000 // 200ms, in time.Duration nanoseconds
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate() = nil, want error for idle check period over 100ms")
	}
}
