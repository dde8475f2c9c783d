package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Clear any env vars that might interfere
	envVars := []string{
		"STEMJAM_PORT", "STEMJAM_DB", "STEMJAM_TRACK_DIR",
		"STEMJAM_PRECOUNT_BEATS", "STEMJAM_METRONOME", "STEMJAM_LOCAL_OUTPUT",
		"STEMJAM_STREAM_BITRATE", "STEMJAM_JAM_MODE", "STEMJAM_JAM_CODE",
		"STEMJAM_JAM_HOST", "STEMJAM_HEARTBEAT_SECONDS",
		"STEMJAM_DRIFT_THRESHOLD", "STEMJAM_HOST_WAIT_SECONDS",
	}
	for _, k := range envVars {
		os.Unsetenv(k)
	}

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.DBPath != "./data/stemjam.db" {
		t.Errorf("DBPath = %q, want default", cfg.DBPath)
	}
	if cfg.TrackDir != "./tracks" {
		t.Errorf("TrackDir = %q, want './tracks'", cfg.TrackDir)
	}
	if cfg.PrecountBeats != 4 {
		t.Errorf("PrecountBeats = %d, want 4", cfg.PrecountBeats)
	}
	if cfg.Metronome {
		t.Error("Metronome default should be off")
	}
	if !cfg.LocalOutput {
		t.Error("LocalOutput default should be on")
	}
	if cfg.StreamBitrate != 192 {
		t.Errorf("StreamBitrate = %d, want 192", cfg.StreamBitrate)
	}
	if cfg.JamMode != "" {
		t.Errorf("JamMode = %q, want empty", cfg.JamMode)
	}
	if cfg.Heartbeat != 5*time.Second {
		t.Errorf("Heartbeat = %v, want 5s", cfg.Heartbeat)
	}
	if cfg.DriftThreshold != 0.5 {
		t.Errorf("DriftThreshold = %f, want 0.5", cfg.DriftThreshold)
	}
	if cfg.HostWait != 10*time.Second {
		t.Errorf("HostWait = %v, want 10s", cfg.HostWait)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STEMJAM_PORT", "3000")
	t.Setenv("STEMJAM_DB", "/tmp/test.db")
	t.Setenv("STEMJAM_TRACK_DIR", "/music/stems")
	t.Setenv("STEMJAM_PRECOUNT_BEATS", "8")
	t.Setenv("STEMJAM_METRONOME", "true")
	t.Setenv("STEMJAM_LOCAL_OUTPUT", "false")
	t.Setenv("STEMJAM_STREAM_BITRATE", "128")
	t.Setenv("STEMJAM_JAM_MODE", "guest")
	t.Setenv("STEMJAM_JAM_CODE", "abcd1234")
	t.Setenv("STEMJAM_JAM_HOST", "ws://10.0.0.2:8080/ws")
	t.Setenv("STEMJAM_HEARTBEAT_SECONDS", "2")
	t.Setenv("STEMJAM_DRIFT_THRESHOLD", "0.25")
	t.Setenv("STEMJAM_HOST_WAIT_SECONDS", "30")

	cfg := Load()

	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want env override", cfg.DBPath)
	}
	if cfg.TrackDir != "/music/stems" {
		t.Errorf("TrackDir = %q, want env override", cfg.TrackDir)
	}
	if cfg.PrecountBeats != 8 {
		t.Errorf("PrecountBeats = %d, want 8", cfg.PrecountBeats)
	}
	if !cfg.Metronome {
		t.Error("Metronome env override not applied")
	}
	if cfg.LocalOutput {
		t.Error("LocalOutput env override not applied")
	}
	if cfg.StreamBitrate != 128 {
		t.Errorf("StreamBitrate = %d, want 128", cfg.StreamBitrate)
	}
	if cfg.JamMode != "guest" || cfg.JamCode != "abcd1234" {
		t.Errorf("jam settings = %q/%q", cfg.JamMode, cfg.JamCode)
	}
	if cfg.JamHostURL != "ws://10.0.0.2:8080/ws" {
		t.Errorf("JamHostURL = %q", cfg.JamHostURL)
	}
	if cfg.Heartbeat != 2*time.Second {
		t.Errorf("Heartbeat = %v, want 2s", cfg.Heartbeat)
	}
	if cfg.DriftThreshold != 0.25 {
		t.Errorf("DriftThreshold = %f, want 0.25", cfg.DriftThreshold)
	}
	if cfg.HostWait != 30*time.Second {
		t.Errorf("HostWait = %v, want 30s", cfg.HostWait)
	}
}

func TestEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("STEMJAM_PORT", "not-a-number")
	cfg := Load()
	if cfg.Port != 8080 {
		t.Errorf("Invalid int env should fallback to default: got %d, want 8080", cfg.Port)
	}
}

func TestEnvBoolInvalidFallsBack(t *testing.T) {
	t.Setenv("STEMJAM_LOCAL_OUTPUT", "maybe")
	cfg := Load()
	if !cfg.LocalOutput {
		t.Error("Invalid bool env should fallback to default")
	}
}
