// Package store implements the durable job record store: one JSON record
// per job on disk, a write-through in-memory index, load-on-start recovery,
// and retention-based reclamation of terminal jobs.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"shortstack/internal/domain"
)

// ErrNotFound is returned when no record exists for a job id.
var ErrNotFound = errors.New("job not found")

// ErrTerminal is returned when a mutation targets a terminal job.
var ErrTerminal = errors.New("job already terminal")

// Options configures a Store.
type Options struct {
	// Dir holds one <id>.json record per job.
	Dir string
	// OutputsDir holds final artifacts; reclamation deletes them.
	OutputsDir string
	// CompletedRetention is how long completed jobs survive.
	CompletedRetention time.Duration
	// FailedRetention is how long failed jobs survive; zero keeps them
	// indefinitely.
	FailedRetention time.Duration
	Logger          hclog.Logger
}

// Store is the concurrency-safe job record store. Every mutation persists
// to disk before it becomes visible in the index, so recovery can rebuild
// the index purely from durable records.
type Store struct {
	dir        string
	outputsDir string
	completed  time.Duration
	failed     time.Duration
	logger     hclog.Logger
	now        func() time.Time

	mu   sync.RWMutex
	jobs map[string]domain.Job

	timerMu sync.Mutex
	timers  map[string]*time.Timer
	closed  bool
}

// New creates a store and its backing directories.
func New(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if opts.OutputsDir != "" {
		if err := os.MkdirAll(opts.OutputsDir, 0o755); err != nil {
			return nil, fmt.Errorf("create outputs directory: %w", err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Store{
		dir:        opts.Dir,
		outputsDir: opts.OutputsDir,
		completed:  opts.CompletedRetention,
		failed:     opts.FailedRetention,
		logger:     logger,
		now:        time.Now,
		jobs:       make(map[string]domain.Job),
		timers:     make(map[string]*time.Timer),
	}, nil
}

// Load rebuilds the in-memory index from durable records. Terminal jobs
// past their retention window are reclaimed immediately; the rest get a
// reclamation timer recomputed from their completion time.
func (s *Store) Load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read store directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable job record", "path", path, "error", err)
			continue
		}

		var job domain.Job
		if err := json.Unmarshal(data, &job); err != nil {
			s.logger.Warn("skipping corrupt job record", "path", path, "error", err)
			continue
		}
		if job.ID == "" {
			s.logger.Warn("skipping job record without id", "path", path)
			continue
		}

		s.mu.Lock()
		s.jobs[job.ID] = job
		s.mu.Unlock()

		if job.Status.Terminal() {
			s.scheduleReclaim(job)
		}
	}

	s.logger.Info("job store recovered", "jobs", s.Len())
	return nil
}

// Put persists a job record and then updates the index.
func (s *Store) Put(job domain.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	if err := s.persist(job); err != nil {
		return err
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return nil
}

// Get returns a snapshot of one job.
func (s *Store) Get(id string) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, ErrNotFound
	}
	return job, nil
}

// List returns snapshots of all known jobs.
func (s *Store) List() []domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	return out
}

// Len returns the number of indexed jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Delete removes a record from disk and the index and cancels any pending
// reclamation timer. Artifacts are not touched.
func (s *Store) Delete(id string) error {
	s.cancelReclaim(id)

	if err := os.Remove(s.recordPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove job record: %w", err)
	}

	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
	return nil
}

// MarkProcessing transitions a queued job to processing at progress 10.
func (s *Store) MarkProcessing(id string) error {
	return s.mutate(id, func(job *domain.Job) error {
		job.Status = domain.JobStatusProcessing
		job.Progress = 10
		return nil
	})
}

// SetProgress records a completed-stage checkpoint. Progress never
// decreases; regressions are rejected.
func (s *Store) SetProgress(id string, progress int) error {
	return s.mutate(id, func(job *domain.Job) error {
		if progress < job.Progress {
			return fmt.Errorf("progress cannot decrease: %d -> %d", job.Progress, progress)
		}
		job.Progress = progress
		return nil
	})
}

// MarkCompleted finalizes a job with its result and schedules reclamation.
func (s *Store) MarkCompleted(id string, result *domain.Result) error {
	err := s.mutate(id, func(job *domain.Job) error {
		job.Status = domain.JobStatusCompleted
		job.Progress = 100
		job.CompletedAt = s.now().UTC()
		job.Result = result
		job.Error = ""
		return nil
	})
	if err != nil {
		return err
	}

	if job, getErr := s.Get(id); getErr == nil {
		s.scheduleReclaim(job)
	}
	return nil
}

// MarkFailed finalizes a job with the raw diagnostic message. Progress is
// left at the last successfully recorded checkpoint.
func (s *Store) MarkFailed(id, message string) error {
	err := s.mutate(id, func(job *domain.Job) error {
		job.Status = domain.JobStatusFailed
		job.CompletedAt = s.now().UTC()
		job.Error = message
		job.Result = nil
		return nil
	})
	if err != nil {
		return err
	}

	if job, getErr := s.Get(id); getErr == nil {
		s.scheduleReclaim(job)
	}
	return nil
}

// Close cancels all pending reclamation timers.
func (s *Store) Close() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	s.closed = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// mutate applies fn to a copy of the stored job, persists it, and only
// then publishes it to the index. Terminal jobs reject all mutations.
func (s *Store) mutate(id string, fn func(*domain.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return ErrTerminal
	}

	if err := fn(&job); err != nil {
		return err
	}
	if err := s.persist(job); err != nil {
		return err
	}

	s.jobs[id] = job
	return nil
}

// persist writes the record atomically: temp file in the same directory,
// then rename over the final path.
func (s *Store) persist(job domain.Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+job.ID+"-*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write job record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close job record: %w", err)
	}

	if err := os.Rename(tmpPath, s.recordPath(job.ID)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("publish job record: %w", err)
	}
	return nil
}

// recordPath is the durable location of one job record.
func (s *Store) recordPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}
