package media

import "testing"

const sampleDiag = `Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'input.mp4':
  Metadata:
    major_brand     : isom
  Duration: 00:01:23.45, start: 0.000000, bitrate: 4451 kb/s
  Stream #0:0[0x1](und): Video: h264 (High) (avc1 / 0x31637661), yuv420p(tv, bt709), 1920x1080 [SAR 1:1 DAR 16:9], 4322 kb/s, 29.97 fps, 29.97 tbr, 30k tbn (default)
  Stream #0:1[0x2](und): Audio: aac (LC) (mp4a / 0x6134706D), 44100 Hz, stereo, fltp, 128 kb/s (default)
At least one output file must be specified`

// TestParseMediaInfo checks all fields are mined from the diagnostics.
func TestParseMediaInfo(t *testing.T) {
	info := parseMediaInfo(sampleDiag)

	if want := 83.45; info.Duration != want {
		t.Fatalf("duration = %v, want %v", info.Duration, want)
	}
	if info.Width != 1920 || info.Height != 1080 {
		t.Fatalf("dimensions = %dx%d, want 1920x1080", info.Width, info.Height)
	}
	if info.FPS != 29.97 {
		t.Fatalf("fps = %v, want 29.97", info.FPS)
	}
	if info.AudioBitrate != 128 {
		t.Fatalf("audio bitrate = %d, want 128", info.AudioBitrate)
	}
	if info.AspectRatio != "16:9" {
		t.Fatalf("aspect ratio = %q, want 16:9", info.AspectRatio)
	}
}

// TestParseMediaInfoMissingFieldsDefaultZero checks unparsable output.
func TestParseMediaInfoMissingFieldsDefaultZero(t *testing.T) {
	info := parseMediaInfo("some unrelated tool chatter")

	if info.Duration != 0 || info.Width != 0 || info.Height != 0 {
		t.Fatalf("info = %+v, want zero values", info)
	}
	if info.FPS != 0 || info.AudioBitrate != 0 {
		t.Fatalf("info = %+v, want zero values", info)
	}
	if info.AspectRatio != "" {
		t.Fatalf("aspect ratio = %q, want empty", info.AspectRatio)
	}
}

// TestAspectRatioReduction checks ratio reduction for portrait output.
func TestAspectRatioReduction(t *testing.T) {
	if got := aspectRatio(1080, 1920); got != "9:16" {
		t.Fatalf("aspectRatio(1080,1920) = %q, want 9:16", got)
	}
	if got := aspectRatio(0, 1080); got != "" {
		t.Fatalf("aspectRatio(0,1080) = %q, want empty", got)
	}
}
