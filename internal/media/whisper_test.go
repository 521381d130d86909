package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// TestTranscribeSuccess checks the happy path produces an available result.
func TestTranscribeSuccess(t *testing.T) {
	outputDir := t.TempDir()
	audioPath := filepath.Join(t.TempDir(), "speech.wav")

	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (CommandLog, error) {
			if name != "whisper-custom" {
				t.Fatalf("command name = %q, want whisper-custom", name)
			}
			if args[0] != audioPath {
				t.Fatalf("first arg = %q, want audio path", args[0])
			}
			mustWriteFile(t, filepath.Join(outputDir, "speech.srt"),
				"1\n00:00:00,000 --> 00:00:02,000\nhello\n")
			return CommandLog{Command: name, Args: args}, nil
		},
	}

	adapter := NewAdapterForTests("ffmpeg", "whisper-custom", runner, os.Stat)
	tr := adapter.Transcribe(context.Background(), audioPath, outputDir)

	if !tr.Available {
		t.Fatal("transcription should be available")
	}
	if tr.SubtitlePath != filepath.Join(outputDir, "speech.srt") {
		t.Fatalf("subtitle path = %q", tr.SubtitlePath)
	}
}

// TestTranscribeToolFailureIsSoft checks any tool failure degrades to an
// unavailable result instead of an error.
func TestTranscribeToolFailureIsSoft(t *testing.T) {
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (CommandLog, error) {
			return CommandLog{Command: name, ExitCode: -1}, errors.New("whisper: command not found")
		},
	}

	adapter := NewAdapterForTests("ffmpeg", "whisper", runner, os.Stat)
	tr := adapter.Transcribe(context.Background(), "speech.wav", t.TempDir())

	if tr.Available {
		t.Fatal("transcription should be unavailable after a tool failure")
	}
	if tr.SubtitlePath != "" {
		t.Fatalf("subtitle path = %q, want empty", tr.SubtitlePath)
	}
}

// TestTranscribeMissingOutputIsSoft checks a clean exit without an SRT file
// degrades instead of failing.
func TestTranscribeMissingOutputIsSoft(t *testing.T) {
	adapter := NewAdapterForTests("ffmpeg", "whisper", &fakeRunner{}, os.Stat)
	tr := adapter.Transcribe(context.Background(), "speech.wav", t.TempDir())

	if tr.Available {
		t.Fatal("transcription should be unavailable without an SRT file")
	}
}

// TestTranscribeEmptySubtitleIsSoft checks a blank SRT file counts as absent.
func TestTranscribeEmptySubtitleIsSoft(t *testing.T) {
	outputDir := t.TempDir()
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (CommandLog, error) {
			mustWriteFile(t, filepath.Join(outputDir, "speech.srt"), "   \n")
			return CommandLog{Command: name}, nil
		},
	}

	adapter := NewAdapterForTests("ffmpeg", "whisper", runner, os.Stat)
	tr := adapter.Transcribe(context.Background(), "speech.wav", outputDir)

	if tr.Available {
		t.Fatal("blank subtitle file should be treated as absent")
	}
}
