package diagnostics

import (
	"errors"
	"os"
	"testing"

	"github.com/shirou/gopsutil/v4/disk"

	"shortstack/internal/config"
	"shortstack/internal/domain"
)

func testSettings(dataDir, bgmDir string) config.Settings {
	return config.Settings{
		DataDir:     dataDir,
		BGMDir:      bgmDir,
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		WhisperPath: "whisper",
	}
}

func newPassingChecker(t *testing.T) *Checker {
	t.Helper()
	return NewCheckerForTests(
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		os.Stat,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
		func(string) (*disk.UsageStat, error) {
			return &disk.UsageStat{Free: 10 << 30, UsedPercent: 40}, nil
		},
	)
}

// TestRunAllPass checks a healthy environment reports no failures.
func TestRunAllPass(t *testing.T) {
	checker := newPassingChecker(t)
	report := checker.Run(testSettings(t.TempDir(), t.TempDir()))

	if report.HasFailures {
		t.Fatalf("report has failures: %+v", report.Items)
	}
	for _, item := range report.Items {
		if item.Status != domain.DiagnosticStatusPass {
			t.Fatalf("item %s status = %s, want pass", item.ID, item.Status)
		}
	}
}

// TestMissingFFmpegFails checks a missing transcoder is a hard failure.
func TestMissingFFmpegFails(t *testing.T) {
	checker := newPassingChecker(t)
	checker.lookPath = func(name string) (string, error) {
		if name == "ffmpeg" {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + name, nil
	}

	report := checker.Run(testSettings(t.TempDir(), t.TempDir()))
	if !report.HasFailures {
		t.Fatal("missing ffmpeg should be a failure")
	}
}

// TestMissingWhisperWarnsOnly checks the soft transcription dependency.
func TestMissingWhisperWarnsOnly(t *testing.T) {
	checker := newPassingChecker(t)
	checker.lookPath = func(name string) (string, error) {
		if name == "whisper" {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + name, nil
	}

	report := checker.Run(testSettings(t.TempDir(), t.TempDir()))
	if report.HasFailures {
		t.Fatal("missing whisper must not fail the report")
	}

	found := false
	for _, item := range report.Items {
		if item.ID == "tool_whisper" {
			found = true
			if item.Status != domain.DiagnosticStatusWarn {
				t.Fatalf("whisper status = %s, want warn", item.Status)
			}
		}
	}
	if !found {
		t.Fatal("whisper check missing from report")
	}
}

// TestMissingFFprobeWarnsOnly checks ffprobe is advisory: metadata
// probing runs through ffmpeg, so its absence must not gate health.
func TestMissingFFprobeWarnsOnly(t *testing.T) {
	checker := newPassingChecker(t)
	checker.lookPath = func(name string) (string, error) {
		if name == "ffprobe" {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + name, nil
	}

	report := checker.Run(testSettings(t.TempDir(), t.TempDir()))
	if report.HasFailures {
		t.Fatal("missing ffprobe must not fail the report")
	}

	for _, item := range report.Items {
		if item.ID == "tool_ffprobe" && item.Status != domain.DiagnosticStatusWarn {
			t.Fatalf("ffprobe status = %s, want warn", item.Status)
		}
	}
}

// TestMissingBGMDirWarnsOnly checks an absent pool is legal.
func TestMissingBGMDirWarnsOnly(t *testing.T) {
	checker := newPassingChecker(t)
	report := checker.Run(testSettings(t.TempDir(), "/no/such/bgm"))

	if report.HasFailures {
		t.Fatal("missing BGM directory must not fail the report")
	}
}

// TestLowDiskSpaceWarns checks the low-water disk warning.
func TestLowDiskSpaceWarns(t *testing.T) {
	checker := newPassingChecker(t)
	checker.diskUsage = func(string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Free: 100 << 20, UsedPercent: 99}, nil
	}

	report := checker.Run(testSettings(t.TempDir(), t.TempDir()))
	for _, item := range report.Items {
		if item.ID == "disk_space" && item.Status != domain.DiagnosticStatusWarn {
			t.Fatalf("disk_space status = %s, want warn", item.Status)
		}
	}
}
