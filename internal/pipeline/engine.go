// Package pipeline drives one job through the ordered transformation
// stages, persisting a progress checkpoint after every completed stage.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"shortstack/internal/domain"
	"shortstack/internal/media"
)

// Adapter is the slice of the media shell adapter the engine drives.
type Adapter interface {
	Probe(ctx context.Context, path string) (domain.MediaInfo, error)
	ExtractAudio(ctx context.Context, input, output string) error
	MixAudio(ctx context.Context, primary, bgm, output string) error
	Merge(ctx context.Context, inputA, inputB string, layout domain.Layout, duration float64, output string) error
	BurnSubtitles(ctx context.Context, input, subtitlePath, output string) error
	FinalMux(ctx context.Context, video, audio, output string) error
	Thumbnail(ctx context.Context, input string, duration float64, output string) error
	Transcribe(ctx context.Context, audioPath, outputDir string) media.Transcription
}

// MusicPool supplies background music tracks.
type MusicPool interface {
	Pick() (string, bool)
}

// Recorder is the slice of the job record store the engine mutates. Every
// call persists before the new state becomes observable.
type Recorder interface {
	Get(id string) (domain.Job, error)
	MarkProcessing(id string) error
	SetProgress(id string, progress int) error
	MarkCompleted(id string, result *domain.Result) error
	MarkFailed(id, message string) error
}

// Options configures an Engine.
type Options struct {
	Store      Recorder
	Adapter    Adapter
	Music      MusicPool
	WorkDir    string
	OutputsDir string
	Logger     hclog.Logger
}

// Engine executes merge pipelines. Stages within one job are strictly
// sequential; pipelines for different jobs run concurrently with no shared
// state beyond the store and the filesystem.
type Engine struct {
	store      Recorder
	adapter    Adapter
	music      MusicPool
	workDir    string
	outputsDir string
	logger     hclog.Logger
}

// New constructs an engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Engine{
		store:      opts.Store,
		adapter:    opts.Adapter,
		music:      opts.Music,
		workDir:    opts.WorkDir,
		outputsDir: opts.OutputsDir,
		logger:     logger,
	}
}

// Run executes the full pipeline for one job. Hard failures mark the job
// failed with the tool's raw diagnostic and freeze progress at the last
// recorded checkpoint; temporary files are cleaned up regardless of the
// outcome.
func (e *Engine) Run(ctx context.Context, jobID string) {
	job, err := e.store.Get(jobID)
	if err != nil {
		e.logger.Error("pipeline started for unknown job", "job", jobID, "error", err)
		return
	}

	workDir := filepath.Join(e.workDir, jobID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		e.fail(jobID, fmt.Errorf("create work directory: %w", err))
		return
	}
	defer e.cleanup(jobID, workDir, job.InputAPath, job.InputBPath)

	// Stage: mark processing (progress 10).
	if err := e.store.MarkProcessing(jobID); err != nil {
		e.logger.Error("cannot mark job processing", "job", jobID, "error", err)
		return
	}

	// Probe input A to establish the target duration.
	infoA, err := e.adapter.Probe(ctx, job.InputAPath)
	if err != nil {
		e.fail(jobID, err)
		return
	}

	// Stage: extract input A audio (progress 20).
	audioPath := filepath.Join(workDir, "audio.wav")
	if err := e.adapter.ExtractAudio(ctx, job.InputAPath, audioPath); err != nil {
		e.fail(jobID, err)
		return
	}
	if !e.checkpoint(jobID, 20) {
		return
	}

	// Stage: transcription, best effort (progress 30).
	transcription := e.adapter.Transcribe(ctx, audioPath, workDir)
	if !e.checkpoint(jobID, 30) {
		return
	}

	// Stage: background music mix (progress 40). An empty pool means the
	// audio passes through unmixed.
	finalAudio := audioPath
	if track, ok := e.music.Pick(); ok {
		mixedPath := filepath.Join(workDir, "mixed.m4a")
		if err := e.adapter.MixAudio(ctx, audioPath, track, mixedPath); err != nil {
			e.fail(jobID, err)
			return
		}
		finalAudio = mixedPath
	} else {
		e.logger.Info("bgm pool empty, audio passes through unmixed", "job", jobID)
	}
	if !e.checkpoint(jobID, 40) {
		return
	}

	// Stage: layout merge (progress 60).
	mergedPath := filepath.Join(workDir, "merged.mp4")
	if err := e.adapter.Merge(ctx, job.InputAPath, job.InputBPath, job.Layout, infoA.Duration, mergedPath); err != nil {
		e.fail(jobID, err)
		return
	}
	if !e.checkpoint(jobID, 60) {
		return
	}

	// Stage: subtitle burn-in (progress 75); pass through when absent.
	videoPath := mergedPath
	if transcription.Available {
		subtitledPath := filepath.Join(workDir, "subtitled.mp4")
		if err := e.adapter.BurnSubtitles(ctx, mergedPath, transcription.SubtitlePath, subtitledPath); err != nil {
			e.fail(jobID, err)
			return
		}
		videoPath = subtitledPath
	}
	if !e.checkpoint(jobID, 75) {
		return
	}

	// Stage: final mux with watermark and audio replacement (progress 90).
	finalName := "short_" + jobID + ".mp4"
	finalPath := filepath.Join(e.outputsDir, finalName)
	if err := e.adapter.FinalMux(ctx, videoPath, finalAudio, finalPath); err != nil {
		e.fail(jobID, err)
		return
	}
	if !e.checkpoint(jobID, 90) {
		return
	}

	// Stage: thumbnail, final metadata, and inline payloads (progress 100).
	thumbName := "thumb_" + jobID + ".jpg"
	thumbPath := filepath.Join(e.outputsDir, thumbName)
	if err := e.adapter.Thumbnail(ctx, job.InputAPath, infoA.Duration, thumbPath); err != nil {
		e.fail(jobID, err)
		return
	}

	finalInfo, err := e.adapter.Probe(ctx, finalPath)
	if err != nil {
		e.fail(jobID, err)
		return
	}

	videoBase64, err := encodeFile(finalPath)
	if err != nil {
		e.fail(jobID, fmt.Errorf("encode final video: %w", err))
		return
	}
	thumbBase64, err := encodeFile(thumbPath)
	if err != nil {
		e.fail(jobID, fmt.Errorf("encode thumbnail: %w", err))
		return
	}

	result := &domain.Result{
		VideoFile:     finalName,
		ThumbnailFile: thumbName,
		VideoBase64:   videoBase64,
		ThumbBase64:   thumbBase64,
		Metadata:      finalInfo,
		SubtitleText:  readSubtitleText(transcription),
	}

	if err := e.store.MarkCompleted(jobID, result); err != nil {
		e.logger.Error("cannot mark job completed", "job", jobID, "error", err)
		return
	}
	e.logger.Info("job completed", "job", jobID, "duration", finalInfo.Duration)
}

// checkpoint persists a completed-stage progress value. Persistence
// happens before the next stage starts, so a poller always sees progress
// consistent with completed stages.
func (e *Engine) checkpoint(jobID string, progress int) bool {
	if err := e.store.SetProgress(jobID, progress); err != nil {
		e.logger.Error("cannot persist progress checkpoint", "job", jobID, "progress", progress, "error", err)
		return false
	}
	return true
}

// fail marks the job failed with the underlying tool diagnostic.
func (e *Engine) fail(jobID string, err error) {
	message := diagnostic(err)
	if err := e.store.MarkFailed(jobID, message); err != nil {
		e.logger.Error("cannot mark job failed", "job", jobID, "error", err)
		return
	}
	e.logger.Warn("job failed", "job", jobID, "error", message)
}

// cleanup removes the job's inputs and working directory. Failures are
// logged, never escalated to job status.
func (e *Engine) cleanup(jobID, workDir string, inputs ...string) {
	for _, path := range inputs {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("cannot remove input file", "job", jobID, "path", path, "error", err)
		}
	}
	if err := os.RemoveAll(workDir); err != nil {
		e.logger.Warn("cannot remove work directory", "job", jobID, "path", workDir, "error", err)
	}
}

// diagnostic extracts the raw tool stderr when available. The text is
// surfaced unmodified as the job's error field.
func diagnostic(err error) string {
	var toolErr *media.ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Diagnostic()
	}
	if errors.Is(err, context.Canceled) {
		return "job cancelled"
	}
	return err.Error()
}

// encodeFile loads a file and base64-encodes it for inline delivery.
func encodeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// readSubtitleText loads the subtitle text for the result payload; an
// unavailable transcription yields the empty string.
func readSubtitleText(tr media.Transcription) string {
	if !tr.Available {
		return ""
	}
	data, err := os.ReadFile(tr.SubtitlePath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
