// Package inputs normalizes the three supported input forms — inline
// base64 payload, multipart upload, remote URL — into local file paths.
package inputs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// ErrNoInput is returned when a slot carries none of the three forms.
var ErrNoInput = errors.New("no input provided")

// Slot is one named input carrying at most one source. When several are
// present the resolver applies a fixed precedence: inline > upload > URL.
type Slot struct {
	Inline string
	File   *multipart.FileHeader
	URL    string
}

// Empty reports whether the slot carries no source at all.
func (s Slot) Empty() bool {
	return strings.TrimSpace(s.Inline) == "" && s.File == nil && strings.TrimSpace(s.URL) == ""
}

// Resolver materializes slot contents as files under a working directory.
type Resolver struct {
	dir    string
	client *http.Client
	logger hclog.Logger
}

// NewResolver creates a resolver writing temp files under dir.
func NewResolver(dir string, logger hclog.Logger) *Resolver {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Resolver{
		dir:    dir,
		client: &http.Client{Timeout: 2 * time.Minute},
		logger: logger,
	}
}

// Resolve produces a local file containing the slot's video bytes. All
// failures here are synchronous client errors: no job exists yet.
func (r *Resolver) Resolve(ctx context.Context, name string, slot Slot) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create input directory: %w", err)
	}

	switch {
	case strings.TrimSpace(slot.Inline) != "":
		return r.resolveInline(name, slot.Inline)
	case slot.File != nil:
		return r.resolveUpload(name, slot.File)
	case strings.TrimSpace(slot.URL) != "":
		return r.resolveURL(ctx, name, slot.URL)
	default:
		return "", ErrNoInput
	}
}

// resolveInline decodes a base64 payload, stripping any data-URI prefix.
func (r *Resolver) resolveInline(name, payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if idx := strings.Index(payload, "base64,"); idx >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[idx+len("base64,"):]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decode %s payload: %w", name, err)
	}

	path, file, err := r.createTemp(name)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write %s payload: %w", name, err)
	}
	return path, nil
}

// resolveUpload streams a multipart part to a local file.
func (r *Resolver) resolveUpload(name string, header *multipart.FileHeader) (string, error) {
	src, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open %s upload: %w", name, err)
	}
	defer src.Close()

	path, file, err := r.createTemp(name)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := io.Copy(file, src); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("store %s upload: %w", name, err)
	}
	return path, nil
}

// resolveURL stream-downloads a remote file. Network errors and non-2xx
// responses are hard errors surfaced before any job is created.
func (r *Resolver) resolveURL(ctx context.Context, name, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build %s request: %w", name, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download %s: unexpected status %s", name, resp.Status)
	}

	path, file, err := r.createTemp(name)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("store %s download: %w", name, err)
	}
	return path, nil
}

// createTemp opens a fresh slot-scoped file in the working directory.
func (r *Resolver) createTemp(name string) (string, *os.File, error) {
	file, err := os.CreateTemp(r.dir, name+"-*.mp4")
	if err != nil {
		return "", nil, fmt.Errorf("create %s temp file: %w", name, err)
	}
	return file.Name(), file, nil
}
