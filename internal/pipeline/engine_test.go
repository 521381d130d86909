package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"shortstack/internal/domain"
	"shortstack/internal/media"
	"shortstack/internal/store"
)

// fakeAdapter simulates the media tools, writing output files so the
// finalize stage can load them.
type fakeAdapter struct {
	t *testing.T

	calls       []string
	failOn      string
	failDiag    string
	noSubtitles bool
	probeInfo   domain.MediaInfo
}

func (f *fakeAdapter) record(op, output string) error {
	f.calls = append(f.calls, op)
	if f.failOn == op {
		return &media.ToolError{
			Op:      op,
			Message: "ffmpeg invocation failed",
			Log:     media.CommandLog{Command: "ffmpeg", ExitCode: 1, Stderr: f.failDiag},
			Err:     errors.New("exit status 1"),
		}
	}
	if output != "" {
		if err := os.WriteFile(output, []byte(op+"-bytes"), 0o644); err != nil {
			f.t.Fatalf("write fake output %s: %v", output, err)
		}
	}
	return nil
}

func (f *fakeAdapter) Probe(ctx context.Context, path string) (domain.MediaInfo, error) {
	if err := f.record("probe", ""); err != nil {
		return domain.MediaInfo{}, err
	}
	return f.probeInfo, nil
}

func (f *fakeAdapter) ExtractAudio(ctx context.Context, input, output string) error {
	return f.record("extract_audio", output)
}

func (f *fakeAdapter) MixAudio(ctx context.Context, primary, bgm, output string) error {
	return f.record("mix_audio", output)
}

func (f *fakeAdapter) Merge(ctx context.Context, a, b string, layout domain.Layout, duration float64, output string) error {
	return f.record("merge", output)
}

func (f *fakeAdapter) BurnSubtitles(ctx context.Context, input, subtitlePath, output string) error {
	return f.record("burn_subtitles", output)
}

func (f *fakeAdapter) FinalMux(ctx context.Context, video, audio, output string) error {
	return f.record("final_mux", output)
}

func (f *fakeAdapter) Thumbnail(ctx context.Context, input string, duration float64, output string) error {
	return f.record("thumbnail", output)
}

func (f *fakeAdapter) Transcribe(ctx context.Context, audioPath, outputDir string) media.Transcription {
	f.calls = append(f.calls, "transcribe")
	if f.noSubtitles {
		return media.Transcription{}
	}
	subtitlePath := filepath.Join(outputDir, "audio.srt")
	if err := os.WriteFile(subtitlePath, []byte("1\n00:00:00,000 --> 00:00:01,000\nhi\n"), 0o644); err != nil {
		f.t.Fatalf("write fake subtitle: %v", err)
	}
	return media.Transcription{Available: true, SubtitlePath: subtitlePath}
}

// fixedPool always returns the same track.
type fixedPool struct {
	track string
}

func (p fixedPool) Pick() (string, bool) { return p.track, p.track != "" }

// progressRecorder wraps the real store and records checkpoint order.
type progressRecorder struct {
	*store.Store
	progress []int
}

func (r *progressRecorder) SetProgress(id string, progress int) error {
	if err := r.Store.SetProgress(id, progress); err != nil {
		return err
	}
	r.progress = append(r.progress, progress)
	return nil
}

type fixture struct {
	engine  *Engine
	store   *progressRecorder
	adapter *fakeAdapter
	inputA  string
	inputB  string
	workDir string
	outDir  string
	jobID   string
}

func newFixture(t *testing.T, adapter *fakeAdapter, pool MusicPool) *fixture {
	t.Helper()

	root := t.TempDir()
	workDir := filepath.Join(root, "work")
	outDir := filepath.Join(root, "outputs")
	for _, dir := range []string{workDir, outDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	st, err := store.New(store.Options{
		Dir:                filepath.Join(root, "jobs"),
		OutputsDir:         outDir,
		CompletedRetention: time.Hour,
	})
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(st.Close)
	recorder := &progressRecorder{Store: st}

	inputA := filepath.Join(root, "input_a.mp4")
	inputB := filepath.Join(root, "input_b.mp4")
	for _, path := range []string{inputA, inputB} {
		if err := os.WriteFile(path, []byte("input"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	job := domain.Job{
		ID:         "job-1",
		Status:     domain.JobStatusQueued,
		Layout:     domain.LayoutStackVertical,
		InputAPath: inputA,
		InputBPath: inputB,
		CreatedAt:  time.Now().UTC(),
	}
	if err := recorder.Put(job); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	adapter.t = t
	adapter.probeInfo = domain.MediaInfo{Duration: 12.5, Width: 1080, Height: 1920}

	engine := New(Options{
		Store:      recorder,
		Adapter:    adapter,
		Music:      pool,
		WorkDir:    workDir,
		OutputsDir: outDir,
	})

	return &fixture{
		engine:  engine,
		store:   recorder,
		adapter: adapter,
		inputA:  inputA,
		inputB:  inputB,
		workDir: workDir,
		outDir:  outDir,
		jobID:   job.ID,
	}
}

// TestRunCompletesJob checks the full happy path with BGM and subtitles.
func TestRunCompletesJob(t *testing.T) {
	fx := newFixture(t, &fakeAdapter{}, fixedPool{track: "bgm.mp3"})
	fx.engine.Run(context.Background(), fx.jobID)

	job, err := fx.store.Get(fx.jobID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q (error=%q), want completed", job.Status, job.Error)
	}
	if job.Progress != 100 {
		t.Fatalf("progress = %d, want 100", job.Progress)
	}
	if job.Result == nil {
		t.Fatal("completed job must carry a result")
	}
	if job.Result.VideoFile != "short_job-1.mp4" || job.Result.ThumbnailFile != "thumb_job-1.jpg" {
		t.Fatalf("result files = %q / %q", job.Result.VideoFile, job.Result.ThumbnailFile)
	}
	if job.Result.SubtitleText == "" {
		t.Fatal("subtitle text should be populated")
	}

	want := base64.StdEncoding.EncodeToString([]byte("final_mux-bytes"))
	if job.Result.VideoBase64 != want {
		t.Fatalf("inline video payload = %q", job.Result.VideoBase64)
	}

	wantProgress := []int{20, 30, 40, 60, 75, 90}
	if len(fx.store.progress) != len(wantProgress) {
		t.Fatalf("checkpoints = %v, want %v", fx.store.progress, wantProgress)
	}
	for i, p := range wantProgress {
		if fx.store.progress[i] != p {
			t.Fatalf("checkpoints = %v, want %v", fx.store.progress, wantProgress)
		}
	}
}

// TestRunCleansUpTemporaries checks inputs and work dir are removed.
func TestRunCleansUpTemporaries(t *testing.T) {
	fx := newFixture(t, &fakeAdapter{}, fixedPool{track: "bgm.mp3"})
	fx.engine.Run(context.Background(), fx.jobID)

	if _, err := os.Stat(fx.inputA); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("input A should be deleted after the run")
	}
	if _, err := os.Stat(fx.inputB); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("input B should be deleted after the run")
	}
	if _, err := os.Stat(filepath.Join(fx.workDir, fx.jobID)); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("work directory should be deleted after the run")
	}
	if _, err := os.Stat(filepath.Join(fx.outDir, "short_job-1.mp4")); err != nil {
		t.Fatal("final artifact must survive cleanup")
	}
}

// TestRunHardFailureFreezesProgress checks a merge failure marks the job
// failed with the raw diagnostic and progress frozen at the last stage.
func TestRunHardFailureFreezesProgress(t *testing.T) {
	adapter := &fakeAdapter{failOn: "merge", failDiag: "input_b.mp4: Invalid data found"}
	fx := newFixture(t, adapter, fixedPool{track: "bgm.mp3"})
	fx.engine.Run(context.Background(), fx.jobID)

	job, _ := fx.store.Get(fx.jobID)
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %q, want failed", job.Status)
	}
	if job.Error != "input_b.mp4: Invalid data found" {
		t.Fatalf("error = %q, want raw diagnostic", job.Error)
	}
	if job.Progress != 40 {
		t.Fatalf("progress = %d, want frozen at 40", job.Progress)
	}
	if job.Result != nil {
		t.Fatal("failed job must not carry a result")
	}
}

// TestRunWithoutTranscription checks the soft-failure path: no subtitles,
// no burn-in, job still completes with empty subtitle text.
func TestRunWithoutTranscription(t *testing.T) {
	adapter := &fakeAdapter{noSubtitles: true}
	fx := newFixture(t, adapter, fixedPool{track: "bgm.mp3"})
	fx.engine.Run(context.Background(), fx.jobID)

	job, _ := fx.store.Get(fx.jobID)
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q (error=%q), want completed", job.Status, job.Error)
	}
	if job.Result.SubtitleText != "" {
		t.Fatalf("subtitle text = %q, want empty", job.Result.SubtitleText)
	}
	for _, call := range adapter.calls {
		if call == "burn_subtitles" {
			t.Fatal("burn_subtitles must not run without a subtitle file")
		}
	}
}

// TestRunWithEmptyMusicPool checks audio passes through unmixed.
func TestRunWithEmptyMusicPool(t *testing.T) {
	adapter := &fakeAdapter{}
	fx := newFixture(t, adapter, fixedPool{})
	fx.engine.Run(context.Background(), fx.jobID)

	job, _ := fx.store.Get(fx.jobID)
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q (error=%q), want completed", job.Status, job.Error)
	}
	for _, call := range adapter.calls {
		if call == "mix_audio" {
			t.Fatal("mix_audio must not run with an empty pool")
		}
	}
}

// TestRunProbeFailureFailsEarly checks a probe failure aborts before any
// checkpoint beyond the processing mark.
func TestRunProbeFailureFailsEarly(t *testing.T) {
	adapter := &fakeAdapter{failOn: "probe", failDiag: "no such file"}
	fx := newFixture(t, adapter, fixedPool{})
	fx.engine.Run(context.Background(), fx.jobID)

	job, _ := fx.store.Get(fx.jobID)
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %q, want failed", job.Status)
	}
	if job.Progress != 10 {
		t.Fatalf("progress = %d, want 10", job.Progress)
	}
}
