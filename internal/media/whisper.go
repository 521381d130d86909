package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// Transcription is the outcome of the speech-to-text stage. Absence of
// subtitles is a degraded result, not an error: callers branch on
// Available and can never mistake a missing transcript for a failure.
type Transcription struct {
	Available    bool
	SubtitlePath string
	Log          CommandLog
}

// Transcribe runs the whisper CLI over an audio file with the fixed
// lightweight model tier, expecting an SRT file in the output directory.
// Every failure mode — binary missing, non-zero exit, missing output — is
// absorbed into an unavailable Transcription. This stage never blocks the
// pipeline.
func (a *Adapter) Transcribe(ctx context.Context, audioPath, outputDir string) Transcription {
	log, runErr := a.runner.Run(ctx, a.whisperPath, buildWhisperArgs(audioPath, a.whisperModel, outputDir)...)
	if runErr != nil {
		a.logger.Warn("transcription unavailable, continuing without subtitles",
			"command", a.whisperPath, "exit", log.ExitCode)
		return Transcription{Log: log}
	}

	subtitlePath := filepath.Join(outputDir, subtitleFileName(audioPath))
	data, err := os.ReadFile(subtitlePath)
	if err != nil || len(strings.TrimSpace(string(data))) == 0 {
		a.logger.Warn("transcription produced no usable subtitle file", "path", subtitlePath)
		return Transcription{Log: log}
	}

	return Transcription{
		Available:    true,
		SubtitlePath: subtitlePath,
		Log:          log,
	}
}

// buildWhisperArgs builds whisper CLI args for SRT export.
func buildWhisperArgs(audioPath, model, outputDir string) []string {
	return []string{
		audioPath,
		"--model", model,
		"--output_format", "srt",
		"--output_dir", outputDir,
	}
}

// subtitleFileName maps an audio file name to whisper's SRT output name.
func subtitleFileName(audioPath string) string {
	base := filepath.Base(audioPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".srt"
}
