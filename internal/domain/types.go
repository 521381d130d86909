package domain

import (
	"fmt"
	"time"
)

// JobStatus tracks the lifecycle of a single merge job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether a status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Layout selects how the two inputs are arranged inside the output frame.
type Layout string

const (
	LayoutStackVertical   Layout = "stack_vertical"
	LayoutStackHorizontal Layout = "stack_horizontal"
)

// ParseLayout validates a user-supplied layout value.
func ParseLayout(raw string) (Layout, error) {
	switch Layout(raw) {
	case LayoutStackVertical:
		return LayoutStackVertical, nil
	case LayoutStackHorizontal:
		return LayoutStackHorizontal, nil
	default:
		return "", fmt.Errorf("unsupported layout: %q", raw)
	}
}

// Platform names the delivery target. Only the vertical short-form
// 1080x1920 platform is supported.
type Platform string

const PlatformTikTok Platform = "tiktok"

// ParsePlatform validates a user-supplied platform value.
func ParsePlatform(raw string) (Platform, error) {
	if Platform(raw) != PlatformTikTok {
		return "", fmt.Errorf("unsupported platform: %q", raw)
	}
	return PlatformTikTok, nil
}

// Output frame dimensions shared by every supported layout.
const (
	FrameWidth  = 1080
	FrameHeight = 1920
)

// MediaInfo holds metadata extracted from a media file.
type MediaInfo struct {
	Duration     float64 `json:"duration"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	FPS          float64 `json:"fps"`
	AudioBitrate int     `json:"audio_bitrate"`
	AspectRatio  string  `json:"aspect_ratio"`
	FileSize     int64   `json:"file_size"`
}

// Result is the payload of a completed job.
type Result struct {
	VideoFile     string    `json:"video_file"`
	ThumbnailFile string    `json:"thumbnail_file"`
	VideoBase64   string    `json:"video_base64"`
	ThumbBase64   string    `json:"thumbnail_base64"`
	Metadata      MediaInfo `json:"metadata"`
	SubtitleText  string    `json:"subtitle_text"`
}

// Job is one request to merge two videos, tracked to a terminal outcome.
// Exactly one of Result/Error is set, and only once the status is terminal.
type Job struct {
	ID          string    `json:"id"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	Layout      Layout    `json:"layout"`
	InputAPath  string    `json:"input_a_path"`
	InputBPath  string    `json:"input_b_path"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Result      *Result   `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
}
