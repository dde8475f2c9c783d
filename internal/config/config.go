package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port   int
	DBPath string

	// Library
	TrackDir string // one subdirectory per track, stems as audio files inside

	// Playback
	PrecountBeats int  // count-in length before stems start
	Metronome     bool // click on beats while playing
	LocalOutput   bool // play the mix on the local audio device

	// Monitor stream
	StreamBitrate int // mp3 bitrate, kbit/s

	// Jam session
	JamMode        string        // "", "host" or "guest"
	JamCode        string        // session code (host: generated when empty)
	JamHostURL     string        // guest: ws://host:port/ws
	Heartbeat      time.Duration // host: sync interval
	DriftThreshold float64       // guest: seconds of drift before a corrective seek
	HostWait       time.Duration // guest: countdown after the host disappears
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port:   envInt("STEMJAM_PORT", 8080),
		DBPath: envStr("STEMJAM_DB", "./data/stemjam.db"),

		TrackDir: envStr("STEMJAM_TRACK_DIR", "./tracks"),

		PrecountBeats: envInt("STEMJAM_PRECOUNT_BEATS", 4),
		Metronome:     envBool("STEMJAM_METRONOME", false),
		LocalOutput:   envBool("STEMJAM_LOCAL_OUTPUT", true),

		StreamBitrate: envInt("STEMJAM_STREAM_BITRATE", 192),

		JamMode:        envStr("STEMJAM_JAM_MODE", ""),
		JamCode:        envStr("STEMJAM_JAM_CODE", ""),
		JamHostURL:     envStr("STEMJAM_JAM_HOST", ""),
		Heartbeat:      time.Duration(envInt("STEMJAM_HEARTBEAT_SECONDS", 5)) * time.Second,
		DriftThreshold: envFloat("STEMJAM_DRIFT_THRESHOLD", 0.5),
		HostWait:       time.Duration(envInt("STEMJAM_HOST_WAIT_SECONDS", 10)) * time.Second,
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
