package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/JeanRibes/step-sequencer/music"

	charmlog "github.com/charmbracelet/log"
)

func TestLoadConfigMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("got %+v, want defaults", cfg)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
ports:
  input: "MPC clock"
sequencer:
  channel: 20
  velocity: 90
  pulses_per_step: 3
  note_off_channel: current
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ports.Input != "MPC clock" || cfg.Ports.Output != "step-sequencer" {
		t.Errorf("ports = %+v", cfg.Ports)
	}
	if cfg.LogLevel() != charmlog.DebugLevel {
		t.Errorf("log level = %v", cfg.LogLevel())
	}
	params, err := cfg.Parameters()
	if err != nil {
		t.Fatal(err)
	}
	want := music.Parameters{Velocity: 90, Channel: 16, PulsesPerStep: 3, NoteOffChannel: music.ChannelAtNoteOff}
	if params != want {
		t.Errorf("got %+v, want %+v", params, want)
	}
}

func TestConfigBadPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sequencer.NoteOffChannel = "sometimes"
	if _, err := cfg.Parameters(); err == nil {
		t.Error("expected an error")
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("ports: [oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected a parse error")
	}
}
