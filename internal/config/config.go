// Package config defines the single immutable value the coordinator is
// constructed with. Nothing under internal/coordinator or its component
// packages reads an environment variable, a flag, or a file: the viper
// loader in this package (load.go), called from cmd/pagingd, does that and
// hands the result over as a Config (see SPEC_FULL.md §1.2).
package config

import (
	"errors"
	"fmt"
	"time"
)

// Speaker identifies one networked loudspeaker the hardware state machine
// can activate or idle.
type Speaker struct {
	ID string
	// VolumeOverride, when non-zero, is a per-speaker gain multiplier applied
	// alongside the zone address by the reference speaker client
	// (SPEC_FULL.md §3.3). The core never interprets this value itself.
	VolumeOverride float64
}

// Config is the coordinator's complete, immutable configuration.
type Config struct {
	// Capture
	SampleRate int

	// Level detector (C2)
	AudioThreshold     int           // 0-100
	SustainDuration    time.Duration // debounce before "sustained" is true

	// Batch recorder (C3)
	MinBatchDuration    time.Duration
	TargetBatchDuration time.Duration
	MaxBatchDuration    time.Duration

	// Silence / idle controller (C7)
	DisableDelay     time.Duration // silence timeout before session close
	HardwareIdleDelay time.Duration // grace period before hardware deactivates
	IdleCheckPeriod  time.Duration // ≤100ms periodic check cadence

	// Hardware state machine (C5)
	ActiveZoneAddress string
	IdleZoneAddress   string
	Speakers          []Speaker

	// Playback worker (C6)
	RingBufferDuration   time.Duration // 60s per spec
	CallbackSize         int           // samples per output callback, e.g. 4096
	PlaybackDelay        time.Duration // pre-roll wait before first output
	MaxAudioAge          time.Duration // Audio TTL
	EmptyCallbacksToIdle int           // successive empty callbacks before worker reports idle
	Ramp                 RampConfig

	// Save worker (C8)
	MaxSaveSessions int
	RetryBackoff    time.Duration

	// Session (C4)
	TimezoneID string
	UserID     string // passed through to the metadata store
}

// RampConfig controls the optional volume ramp applied to the first audio
// of a session (SPEC_FULL.md / spec.md §4.6 step 3).
type RampConfig struct {
	Enabled           bool
	StartVolume       float64
	TargetVolume      float64
	Duration          time.Duration
	WindowStartHour   int // inclusive, 0-23; ignored if WindowStartHour == WindowEndHour
	WindowEndHour     int // exclusive, 0-23
}

// Default returns the literal constants named throughout spec.md §4 and §8,
// suitable as a starting point for cmd/pagingd's cobra/viper layering.
func Default() Config {
	return Config{
		SampleRate:          48000,
		AudioThreshold:      5,
		SustainDuration:     50 * time.Millisecond,
		MinBatchDuration:    4500 * time.Millisecond,
		TargetBatchDuration: 5000 * time.Millisecond,
		MaxBatchDuration:    6500 * time.Millisecond,
		DisableDelay:        8000 * time.Millisecond,
		HardwareIdleDelay:   12 * time.Second,
		IdleCheckPeriod:     100 * time.Millisecond,
		RingBufferDuration:  60 * time.Second,
		CallbackSize:        4096,
		PlaybackDelay:       4000 * time.Millisecond,
		MaxAudioAge:         60 * time.Second,
		EmptyCallbacksToIdle: 20,
		MaxSaveSessions:      100,
		RetryBackoff:         5 * time.Second,
		TimezoneID:           "UTC",
		Ramp: RampConfig{
			Enabled:      false,
			StartVolume:  0.3,
			TargetVolume: 1.0,
			Duration:     2 * time.Second,
		},
	}
}

// Validate rejects a Config whose values would make the coordinator's
// invariants impossible to hold, following
// ColonelBlimp-cwdecoder/internal/config.Settings.Validate's style of
// collecting every violation before returning.
func Validate(c Config) error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate))
	}
	if c.AudioThreshold < 0 || c.AudioThreshold > 100 {
		errs = append(errs, fmt.Errorf("audio_threshold must be 0-100, got %d", c.AudioThreshold))
	}
	if c.MinBatchDuration <= 0 || c.TargetBatchDuration < c.MinBatchDuration || c.MaxBatchDuration < c.TargetBatchDuration {
		errs = append(errs, fmt.Errorf("batch durations must satisfy 0 < min (%v) <= target (%v) <= max (%v)",
			c.MinBatchDuration, c.TargetBatchDuration, c.MaxBatchDuration))
	}
	if c.DisableDelay <= 0 {
		errs = append(errs, fmt.Errorf("disable_delay_ms must be positive, got %v", c.DisableDelay))
	}
	if c.IdleCheckPeriod <= 0 || c.IdleCheckPeriod > 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("idle_check_ms must be in (0, 100ms], got %v", c.IdleCheckPeriod))
	}
	if c.ActiveZoneAddress == "" || c.IdleZoneAddress == "" {
		errs = append(errs, errors.New("active_zone_address and idle_zone_address must both be set"))
	}
	if c.CallbackSize <= 0 {
		errs = append(errs, fmt.Errorf("callback_size must be positive, got %d", c.CallbackSize))
	}
	if c.MaxSaveSessions <= 0 {
		errs = append(errs, fmt.Errorf("max_save_sessions must be positive, got %d", c.MaxSaveSessions))
	}
	if _, err := time.LoadLocation(c.TimezoneID); err != nil {
		errs = append(errs, fmt.Errorf("timezone_id %q: %w", c.TimezoneID, err))
	}
	if c.Ramp.Enabled && (c.Ramp.StartVolume < 0 || c.Ramp.TargetVolume < c.Ramp.StartVolume) {
		errs = append(errs, fmt.Errorf("ramp_start_volume (%v) must be >= 0 and <= ramp_target_volume (%v)",
			c.Ramp.StartVolume, c.Ramp.TargetVolume))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
