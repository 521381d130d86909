package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Settings contains runtime configuration for the service.
type Settings struct {
	ListenAddr string
	DataDir    string
	BGMDir     string

	FFmpegPath   string
	FFprobePath  string
	WhisperPath  string
	WhisperModel string

	WatermarkText string

	CompletedRetention time.Duration
	FailedRetention    time.Duration
	ToolTimeout        time.Duration
	MaxConcurrent      int
	ThumbnailSeek      float64
}

// JobsDir is where durable job records live.
func (s Settings) JobsDir() string { return filepath.Join(s.DataDir, "jobs") }

// WorkDir holds per-job temporary files.
func (s Settings) WorkDir() string { return filepath.Join(s.DataDir, "work") }

// UploadsDir holds resolved input files awaiting their pipeline.
func (s Settings) UploadsDir() string { return filepath.Join(s.DataDir, "uploads") }

// OutputsDir holds final artifacts served by the download endpoint.
func (s Settings) OutputsDir() string { return filepath.Join(s.DataDir, "outputs") }

// Load builds Settings from environment variables, falling back to
// defaults for anything unset or unparsable.
func Load() Settings {
	return Settings{
		ListenAddr: envString("SHORTSTACK_ADDR", ":8080"),
		DataDir:    envString("SHORTSTACK_DATA_DIR", "./data"),
		BGMDir:     envString("SHORTSTACK_BGM_DIR", "./bgm"),

		FFmpegPath:   envString("SHORTSTACK_FFMPEG", "ffmpeg"),
		FFprobePath:  envString("SHORTSTACK_FFPROBE", "ffprobe"),
		WhisperPath:  envString("SHORTSTACK_WHISPER", "whisper"),
		WhisperModel: envString("SHORTSTACK_WHISPER_MODEL", "tiny"),

		WatermarkText: envString("SHORTSTACK_WATERMARK", "ShortStack"),

		CompletedRetention: envDuration("SHORTSTACK_RETENTION", 60*time.Second),
		FailedRetention:    envDuration("SHORTSTACK_FAILED_RETENTION", 0),
		ToolTimeout:        envDuration("SHORTSTACK_TOOL_TIMEOUT", 10*time.Minute),
		MaxConcurrent:      envInt("SHORTSTACK_MAX_CONCURRENT", 4),
		ThumbnailSeek:      envFloat("SHORTSTACK_THUMBNAIL_SEEK", 0.30),
	}
}

// envString returns a trimmed environment value or the fallback when unset.
func envString(key, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

// envDuration parses a Go duration string, using fallback for invalid input.
func envDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// envInt parses a positive integer, using fallback for invalid input.
func envInt(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// envFloat parses a fraction in (0,1), using fallback for invalid input.
func envFloat(key string, fallback float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f <= 0 || f >= 1 {
		return fallback
	}
	return f
}
