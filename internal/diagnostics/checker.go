// Package diagnostics validates external tools and required filesystem
// resources at startup and for the health endpoint.
package diagnostics

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"shortstack/internal/config"
	"shortstack/internal/domain"
)

// lowDiskThreshold is the free-space level below which processing large
// videos becomes risky.
const lowDiskThreshold = 1 << 30 // 1 GiB

// Checker runs startup checks with injectable OS dependencies.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	diskUsage  func(string) (*disk.UsageStat, error)
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		diskUsage:  disk.Usage,
	}
}

// Run executes all checks and returns a combined report. Only ffmpeg and
// the data directory are load-bearing: metadata probing goes through
// ffmpeg itself, transcription soft-fails, and an empty BGM pool degrades
// output without failing jobs, so ffprobe, whisper, and the BGM directory
// report warnings.
func (c *Checker) Run(settings config.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool(settings.FFmpegPath, domain.DiagnosticStatusFail),
		c.checkTool(settings.FFprobePath, domain.DiagnosticStatusWarn),
		c.checkTool(settings.WhisperPath, domain.DiagnosticStatusWarn),
		c.checkDataDir(settings.DataDir),
		c.checkBGMDir(settings.BGMDir),
		c.checkDiskSpace(settings.DataDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a CLI executable is on PATH.
func (c *Checker) checkTool(name string, missing domain.DiagnosticStatus) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  missing,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    "Install it and ensure the binary is available on PATH.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkDataDir validates data directory existence and write access.
func (c *Checker) checkDataDir(dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "data_dir",
		Name: "Data directory",
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create data directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Data directory is not writable: %s", dir)
		item.Hint = "Job records and artifacts are stored here; it must be writable."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// checkBGMDir reports on the background music pool. An absent or empty
// pool is legal; jobs then run with unmixed audio.
func (c *Checker) checkBGMDir(dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "bgm_dir",
		Name: "BGM directory",
	}

	info, err := c.stat(dir)
	if err != nil {
		item.Status = domain.DiagnosticStatusWarn
		if errors.Is(err, os.ErrNotExist) {
			item.Message = fmt.Sprintf("BGM directory does not exist: %s", dir)
		} else {
			item.Message = fmt.Sprintf("Cannot access BGM directory: %s", dir)
		}
		item.Hint = "Jobs will run without background music until tracks are available."
		return item
	}
	if !info.IsDir() {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("BGM path is not a directory: %s", dir)
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("BGM directory available: %s", dir)
	return item
}

// checkDiskSpace warns when the data volume is running low.
func (c *Checker) checkDiskSpace(dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "disk_space",
		Name: "Disk space",
	}

	usage, err := c.diskUsage(dir)
	if err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Cannot determine disk usage for: %s", dir)
		return item
	}

	if usage.Free < lowDiskThreshold {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Low disk space: %d MiB free", usage.Free>>20)
		item.Hint = "Video processing needs headroom for intermediate files."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("%d MiB free (%.1f%% used)", usage.Free>>20, usage.UsedPercent)
	return item
}

// NewCheckerForTests creates a checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	diskUsage func(string) (*disk.UsageStat, error),
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		diskUsage:  diskUsage,
	}
}
