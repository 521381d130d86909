package media

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"shortstack/internal/domain"
)

// Options configures the external tool adapter.
type Options struct {
	FFmpegPath    string
	WhisperPath   string
	WhisperModel  string
	WatermarkText string
	ThumbnailSeek float64
	ToolTimeout   time.Duration
	Logger        hclog.Logger
}

// Adapter invokes the external transcoding and transcription tools and
// translates their output into structured results.
type Adapter struct {
	ffmpegPath    string
	whisperPath   string
	whisperModel  string
	watermarkText string
	thumbnailSeek float64
	logger        hclog.Logger
	runner        Runner
	stat          func(name string) (os.FileInfo, error)
}

// NewAdapter constructs the production adapter with OS dependencies.
func NewAdapter(opts Options) *Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	seek := opts.ThumbnailSeek
	if seek <= 0 || seek >= 1 {
		seek = 0.30
	}

	return &Adapter{
		ffmpegPath:    opts.FFmpegPath,
		whisperPath:   opts.WhisperPath,
		whisperModel:  opts.WhisperModel,
		watermarkText: opts.WatermarkText,
		thumbnailSeek: seek,
		logger:        logger,
		runner:        NewExecRunner(opts.ToolTimeout),
		stat:          os.Stat,
	}
}

// Probe extracts media metadata by invoking ffmpeg with only an input and
// no output. ffmpeg exits non-zero, and its diagnostic stream is parsed
// for duration, dimensions, frame rate, and audio bitrate. File size is
// read from the filesystem, independent of tool output.
func (a *Adapter) Probe(ctx context.Context, path string) (domain.MediaInfo, error) {
	fileInfo, err := a.stat(path)
	if err != nil {
		return domain.MediaInfo{}, &ToolError{
			Op:      "probe",
			Message: fmt.Sprintf("cannot access media file: %s", path),
			Err:     err,
		}
	}

	log, runErr := a.runner.Run(ctx, a.ffmpegPath, buildProbeArgs(path)...)
	// A non-zero exit is the expected outcome here; the probe only fails
	// hard when the tool produced no diagnostics to mine.
	if strings.TrimSpace(log.Stderr) == "" {
		return domain.MediaInfo{}, &ToolError{
			Op:      "probe",
			Message: "ffmpeg produced no diagnostic output",
			Log:     log,
			Err:     runErr,
		}
	}

	info := parseMediaInfo(log.Stderr)
	info.FileSize = fileInfo.Size()
	return info, nil
}

// ExtractAudio demuxes the primary audio track to 16 kHz mono PCM WAV.
func (a *Adapter) ExtractAudio(ctx context.Context, input, output string) error {
	return a.transform(ctx, "extract_audio", buildExtractAudioArgs(input, output), output)
}

// MixAudio blends the primary track at full volume with a BGM track at 25%,
// trimmed to the shorter input.
func (a *Adapter) MixAudio(ctx context.Context, primary, bgm, output string) error {
	return a.transform(ctx, "mix_audio", buildMixArgs(primary, bgm, output), output)
}

// Merge scales and pads both inputs to half the target frame, loops input B
// to cover input A's duration, stacks them per layout, and trims the result
// to input A's duration.
func (a *Adapter) Merge(ctx context.Context, inputA, inputB string, layout domain.Layout, duration float64, output string) error {
	return a.transform(ctx, "merge", buildMergeArgs(inputA, inputB, layout, duration, output), output)
}

// BurnSubtitles renders a subtitle file onto the video stream.
func (a *Adapter) BurnSubtitles(ctx context.Context, input, subtitlePath, output string) error {
	return a.transform(ctx, "burn_subtitles", buildBurnArgs(input, subtitlePath, output), output)
}

// FinalMux draws the watermark over the video, replaces its audio with the
// mixed track, and encodes the final container.
func (a *Adapter) FinalMux(ctx context.Context, video, audio, output string) error {
	return a.transform(ctx, "final_mux", buildMuxArgs(video, audio, a.watermarkText, output), output)
}

// Thumbnail emits one frame as a JPEG, seeking to the configured fraction
// of the given duration.
func (a *Adapter) Thumbnail(ctx context.Context, input string, duration float64, output string) error {
	seek := duration * a.thumbnailSeek
	if seek < 0 {
		seek = 0
	}
	return a.transform(ctx, "thumbnail", buildThumbnailArgs(input, seek, output), output)
}

// transform runs one ffmpeg invocation that must produce an output file.
func (a *Adapter) transform(ctx context.Context, op string, args []string, output string) error {
	log, runErr := a.runner.Run(ctx, a.ffmpegPath, args...)
	if runErr != nil {
		a.logger.Error("ffmpeg invocation failed", "op", op, "exit", log.ExitCode)
		return &ToolError{
			Op:      op,
			Message: "ffmpeg invocation failed",
			Log:     log,
			Err:     runErr,
		}
	}

	if _, err := a.stat(output); err != nil {
		return &ToolError{
			Op:      op,
			Message: "ffmpeg completed but output file is missing",
			Log:     log,
			Err:     err,
		}
	}

	a.logger.Debug("ffmpeg invocation completed", "op", op, "output", output)
	return nil
}

// buildProbeArgs asks ffmpeg to describe an input without transforming it.
func buildProbeArgs(input string) []string {
	return []string{"-hide_banner", "-i", input}
}

// buildExtractAudioArgs produces mono 16k PCM WAV from the primary track.
func buildExtractAudioArgs(input, output string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", input,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		output,
	}
}

// buildMixArgs mixes primary audio at 100% with BGM at 25%, shorter wins.
func buildMixArgs(primary, bgm, output string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", primary,
		"-i", bgm,
		"-filter_complex",
		"[0:a]volume=1.0[a0];[1:a]volume=0.25[a1];[a0][a1]amix=inputs=2:duration=first[aout]",
		"-map", "[aout]",
		"-c:a", "aac",
		output,
	}
}

// buildMergeArgs builds the layout merge filter graph. Input B is looped so
// it always covers input A's duration before the trim.
func buildMergeArgs(inputA, inputB string, layout domain.Layout, duration float64, output string) []string {
	halfW, halfH := domain.FrameWidth, domain.FrameHeight/2
	stack := "vstack"
	if layout == domain.LayoutStackHorizontal {
		halfW, halfH = domain.FrameWidth/2, domain.FrameHeight
		stack = "hstack"
	}

	pane := func(idx int, label string) string {
		return fmt.Sprintf(
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1[%s]",
			idx, halfW, halfH, halfW, halfH, label,
		)
	}
	graph := fmt.Sprintf("%s;%s;[va][vb]%s=inputs=2[v]", pane(0, "va"), pane(1, "vb"), stack)

	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputA,
		"-stream_loop", "-1",
		"-i", inputB,
		"-filter_complex", graph,
		"-map", "[v]",
		"-t", formatSeconds(duration),
		"-an",
		"-c:v", "libx264",
		"-preset", "veryfast",
		output,
	}
}

// buildBurnArgs renders subtitles onto the video stream.
func buildBurnArgs(input, subtitlePath, output string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", input,
		"-vf", "subtitles=filename=" + escapeFilterPath(subtitlePath),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-an",
		output,
	}
}

// buildMuxArgs applies the watermark and replaces audio in one encode. The
// watermark is anchored bottom-right, translucent, with a backing box, and
// stays visible for the full duration.
func buildMuxArgs(video, audio, watermark, output string) []string {
	drawtext := fmt.Sprintf(
		"drawtext=text='%s':fontsize=28:fontcolor=white@0.6:box=1:boxcolor=black@0.35:boxborderw=8:x=w-tw-24:y=h-th-24",
		escapeDrawtext(watermark),
	)

	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", video,
		"-i", audio,
		"-filter_complex", "[0:v]" + drawtext + "[v]",
		"-map", "[v]",
		"-map", "1:a",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-c:a", "aac",
		"-shortest",
		output,
	}
}

// buildThumbnailArgs seeks into the input and emits a single JPEG frame.
func buildThumbnailArgs(input string, seek float64, output string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-ss", formatSeconds(seek),
		"-i", input,
		"-frames:v", "1",
		"-q:v", "3",
		output,
	}
}

// formatSeconds renders a duration argument with centisecond precision.
func formatSeconds(seconds float64) string {
	return fmt.Sprintf("%.2f", seconds)
}

// escapeFilterPath escapes characters that terminate ffmpeg filter options.
func escapeFilterPath(path string) string {
	replacer := strings.NewReplacer(`\`, `\\`, ":", `\:`, "'", `\'`)
	return replacer.Replace(path)
}

// escapeDrawtext escapes text interpolated into a drawtext expression.
func escapeDrawtext(text string) string {
	replacer := strings.NewReplacer(`\`, `\\`, "'", `\'`, ":", `\:`, "%", `\%`)
	return replacer.Replace(text)
}

// NewAdapterForTests constructs an adapter with injectable dependencies.
func NewAdapterForTests(
	ffmpegPath string,
	whisperPath string,
	runner Runner,
	stat func(name string) (os.FileInfo, error),
) *Adapter {
	return &Adapter{
		ffmpegPath:    ffmpegPath,
		whisperPath:   whisperPath,
		whisperModel:  "tiny",
		watermarkText: "ShortStack",
		thumbnailSeek: 0.30,
		logger:        hclog.NewNullLogger(),
		runner:        runner,
		stat:          stat,
	}
}
