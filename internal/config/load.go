package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// AppName names the XDG config subdirectory, following
// ColonelBlimp-cwdecoder/internal/config's own Init/ensureConfigExists
// pattern for a single-binary audio tool.
const AppName = "pagingd"

// fileSettings is the subset of Config that comes from a config file or
// flags rather than being computed at runtime (e.g. Speakers, which Load
// takes as an argument and which have no viper key).
type fileSettings struct {
	SampleRate          int     `mapstructure:"sample_rate"`
	AudioThreshold      int     `mapstructure:"audio_threshold"`
	SustainMS           int     `mapstructure:"sustain_ms"`
	MinBatchMS          int     `mapstructure:"min_batch_ms"`
	TargetBatchMS       int     `mapstructure:"target_batch_ms"`
	MaxBatchMS          int     `mapstructure:"max_batch_ms"`
	DisableDelayMS      int     `mapstructure:"disable_delay_ms"`
	HardwareIdleMS      int     `mapstructure:"hardware_idle_ms"`
	IdleCheckMS         int     `mapstructure:"idle_check_ms"`
	ActiveZoneAddress   string  `mapstructure:"active_zone_address"`
	IdleZoneAddress     string  `mapstructure:"idle_zone_address"`
	RingBufferSeconds   int     `mapstructure:"ring_buffer_seconds"`
	CallbackSize        int     `mapstructure:"callback_size"`
	PlaybackDelayMS     int     `mapstructure:"playback_delay_ms"`
	MaxAudioAgeSeconds  int     `mapstructure:"max_audio_age_seconds"`
	EmptyCallbacksIdle  int     `mapstructure:"empty_callbacks_to_idle"`
	MaxSaveSessions     int     `mapstructure:"max_save_sessions"`
	RetryBackoffSeconds int     `mapstructure:"retry_backoff_seconds"`
	TimezoneID          string  `mapstructure:"timezone_id"`
	UserID              string  `mapstructure:"user_id"`
	RampEnabled         bool    `mapstructure:"ramp_enabled"`
	RampStartVolume     float64 `mapstructure:"ramp_start_volume"`
	RampTargetVolume    float64 `mapstructure:"ramp_target_volume"`
	RampSeconds         int     `mapstructure:"ramp_seconds"`

	DBPath         string `mapstructure:"db_path"`
	RecordingsDir  string `mapstructure:"recordings_dir"`
	BlobBaseURL    string `mapstructure:"blob_base_url"`
	StatusAddr     string `mapstructure:"status_addr"`
	DiscoveryOnly  bool   `mapstructure:"discovery_only"`
}

// InitDefaults seeds viper with every key's default. cmd/pagingd calls it
// from its cobra.OnInitialize(initConfig) hook, per ColonelBlimp's own
// ordering, which runs after the flags have been bound in init().
func InitDefaults() {
	d := Default()
	viper.SetDefault("sample_rate", d.SampleRate)
	viper.SetDefault("audio_threshold", d.AudioThreshold)
	viper.SetDefault("sustain_ms", d.SustainDuration.Milliseconds())
	viper.SetDefault("min_batch_ms", d.MinBatchDuration.Milliseconds())
	viper.SetDefault("target_batch_ms", d.TargetBatchDuration.Milliseconds())
	viper.SetDefault("max_batch_ms", d.MaxBatchDuration.Milliseconds())
	viper.SetDefault("disable_delay_ms", d.DisableDelay.Milliseconds())
	viper.SetDefault("hardware_idle_ms", d.HardwareIdleDelay.Milliseconds())
	viper.SetDefault("idle_check_ms", d.IdleCheckPeriod.Milliseconds())
	viper.SetDefault("active_zone_address", "paging.internal:active")
	viper.SetDefault("idle_zone_address", "paging.internal:idle")
	viper.SetDefault("ring_buffer_seconds", int(d.RingBufferDuration.Seconds()))
	viper.SetDefault("callback_size", d.CallbackSize)
	viper.SetDefault("playback_delay_ms", d.PlaybackDelay.Milliseconds())
	viper.SetDefault("max_audio_age_seconds", int(d.MaxAudioAge.Seconds()))
	viper.SetDefault("empty_callbacks_to_idle", d.EmptyCallbacksToIdle)
	viper.SetDefault("max_save_sessions", d.MaxSaveSessions)
	viper.SetDefault("retry_backoff_seconds", int(d.RetryBackoff.Seconds()))
	viper.SetDefault("timezone_id", d.TimezoneID)
	viper.SetDefault("user_id", "front-desk")
	viper.SetDefault("ramp_enabled", d.Ramp.Enabled)
	viper.SetDefault("ramp_start_volume", d.Ramp.StartVolume)
	viper.SetDefault("ramp_target_volume", d.Ramp.TargetVolume)
	viper.SetDefault("ramp_seconds", int(d.Ramp.Duration.Seconds()))

	viper.SetDefault("db_path", "pagingd.db")
	viper.SetDefault("recordings_dir", "recordings")
	viper.SetDefault("blob_base_url", "")
	viper.SetDefault("status_addr", ":8090")
	viper.SetDefault("discovery_only", false)
}

// Init loads the config file, creating a default one in the XDG config
// directory on first run (ColonelBlimp-cwdecoder/internal/config.Init).
func Init() error {
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	appConfigDir := filepath.Join(configDir, AppName)
	viper.AddConfigPath(appConfigDir)
	viper.SetConfigName("config")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
		// No config file anywhere on the search path: seed one in the XDG
		// config dir so the operator has something to edit, then read it
		// back (ColonelBlimp-cwdecoder/internal/config.Init's own
		// first-run behavior).
		if err := ensureConfigExists(appConfigDir); err != nil {
			return err
		}
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func ensureConfigExists(configDir string) error {
	configFile := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configFile); err == nil {
		return nil
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

const defaultConfigYAML = `# pagingd configuration

audio_threshold: 5
db_path: pagingd.db
recordings_dir: recordings
status_addr: ":8090"
timezone_id: UTC
user_id: front-desk
`

// Load renders the currently bound viper state into a Config. Speakers
// are supplied by the caller (cmd/pagingd passes the set found by
// pkg/adapters/discovery) since they are a runtime-discovered list, not a
// scalar.
func Load(speakers []Speaker) (Config, error) {
	var fs fileSettings
	if err := viper.Unmarshal(&fs); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg := Config{
		SampleRate:           fs.SampleRate,
		AudioThreshold:       fs.AudioThreshold,
		SustainDuration:      msDuration(fs.SustainMS),
		MinBatchDuration:     msDuration(fs.MinBatchMS),
		TargetBatchDuration:  msDuration(fs.TargetBatchMS),
		MaxBatchDuration:     msDuration(fs.MaxBatchMS),
		DisableDelay:         msDuration(fs.DisableDelayMS),
		HardwareIdleDelay:    msDuration(fs.HardwareIdleMS),
		IdleCheckPeriod:      msDuration(fs.IdleCheckMS),
		ActiveZoneAddress:    fs.ActiveZoneAddress,
		IdleZoneAddress:      fs.IdleZoneAddress,
		Speakers:             speakers,
		RingBufferDuration:   secDuration(fs.RingBufferSeconds),
		CallbackSize:         fs.CallbackSize,
		PlaybackDelay:        msDuration(fs.PlaybackDelayMS),
		MaxAudioAge:          secDuration(fs.MaxAudioAgeSeconds),
		EmptyCallbacksToIdle: fs.EmptyCallbacksIdle,
		MaxSaveSessions:      fs.MaxSaveSessions,
		RetryBackoff:         secDuration(fs.RetryBackoffSeconds),
		TimezoneID:           fs.TimezoneID,
		UserID:               fs.UserID,
		Ramp: RampConfig{
			Enabled:      fs.RampEnabled,
			StartVolume:  fs.RampStartVolume,
			TargetVolume: fs.RampTargetVolume,
			Duration:     secDuration(fs.RampSeconds),
		},
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Runtime returns the non-domain settings cmd/pagingd needs that don't
// belong on Config itself (file paths, network addresses).
type Runtime struct {
	DBPath        string
	RecordingsDir string
	BlobBaseURL   string
	StatusAddr    string
	DiscoveryOnly bool
}

// LoadRuntime mirrors Load for the settings outside Config's scope.
func LoadRuntime() (Runtime, error) {
	var fs fileSettings
	if err := viper.Unmarshal(&fs); err != nil {
		return Runtime{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return Runtime{
		DBPath:        fs.DBPath,
		RecordingsDir: fs.RecordingsDir,
		BlobBaseURL:   fs.BlobBaseURL,
		StatusAddr:    fs.StatusAddr,
		DiscoveryOnly: fs.DiscoveryOnly,
	}, nil
}

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
func secDuration(s int) time.Duration { return time.Duration(s) * time.Second }
