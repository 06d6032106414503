package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
}

func TestLoadAppliesDefaultsWithoutAConfigFile(t *testing.T) {
	resetViper()
	InitDefaults()

	cfg, err := Load([]Speaker{{ID: "lobby"}})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", cfg.SampleRate)
	}
	if len(cfg.Speakers) != 1 || cfg.Speakers[0].ID != "lobby" {
		t.Errorf("Speakers = %+v, want one speaker %q", cfg.Speakers, "lobby")
	}
}

func TestInitCreatesDefaultConfigFileOnFirstRun(t *testing.T) {
	resetViper()
	InitDefaults()

	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if _, err := os.Stat(viper.ConfigFileUsed()); err != nil {
		t.Errorf("config file not found after Init: %v", err)
	}
}

func TestLoadRuntimeReadsStatusAddr(t *testing.T) {
	resetViper()
	InitDefaults()

	rt, err := LoadRuntime()
	if err != nil {
		t.Fatalf("LoadRuntime() error = %v", err)
	}
	if rt.StatusAddr != ":8090" {
		t.Errorf("StatusAddr = %q, want %q", rt.StatusAddr, ":8090")
	}
}
