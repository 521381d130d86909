package media

import (
	"regexp"
	"strconv"

	"shortstack/internal/domain"
)

// The probe deliberately asks ffmpeg to do no work and mines its
// self-description from the diagnostic stream. These patterns are the only
// place that text format is known.
var (
	durationPattern = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2})\.(\d+)`)
	videoPattern    = regexp.MustCompile(`Video:.*?(\d{2,5})x(\d{2,5})`)
	fpsPattern      = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*fps`)
	audioPattern    = regexp.MustCompile(`Audio:.*?(\d+)\s*kb/s`)
)

// parseMediaInfo extracts duration, dimensions, frame rate, and audio
// bitrate from ffmpeg's diagnostic output. Fields not found default to
// zero; file size is filled in by the caller from the filesystem.
func parseMediaInfo(diag string) domain.MediaInfo {
	var info domain.MediaInfo

	if m := durationPattern.FindStringSubmatch(diag); m != nil {
		hours, _ := strconv.Atoi(m[1])
		minutes, _ := strconv.Atoi(m[2])
		seconds, _ := strconv.Atoi(m[3])
		fraction, _ := strconv.ParseFloat("0."+m[4], 64)
		info.Duration = float64(hours*3600+minutes*60+seconds) + fraction
	}

	if m := videoPattern.FindStringSubmatch(diag); m != nil {
		info.Width, _ = strconv.Atoi(m[1])
		info.Height, _ = strconv.Atoi(m[2])
	}

	if m := fpsPattern.FindStringSubmatch(diag); m != nil {
		info.FPS, _ = strconv.ParseFloat(m[1], 64)
	}

	if m := audioPattern.FindStringSubmatch(diag); m != nil {
		info.AudioBitrate, _ = strconv.Atoi(m[1])
	}

	info.AspectRatio = aspectRatio(info.Width, info.Height)
	return info
}

// aspectRatio reduces pixel dimensions to a ratio string like "16:9".
func aspectRatio(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	d := gcd(width, height)
	return strconv.Itoa(width/d) + ":" + strconv.Itoa(height/d)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
