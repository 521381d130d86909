package store

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"shortstack/internal/domain"
)

// retentionFor returns the configured window for a terminal status. A zero
// window means the record is never reclaimed automatically.
func (s *Store) retentionFor(status domain.JobStatus) time.Duration {
	switch status {
	case domain.JobStatusCompleted:
		return s.completed
	case domain.JobStatusFailed:
		return s.failed
	default:
		return 0
	}
}

// scheduleReclaim arms (or re-arms) the reclamation timer for a terminal
// job. The deadline is recomputed from CompletedAt, so timers survive
// restarts. Records already past their window are reclaimed immediately.
func (s *Store) scheduleReclaim(job domain.Job) {
	retention := s.retentionFor(job.Status)
	if retention <= 0 || !job.Status.Terminal() {
		return
	}

	deadline := job.CompletedAt.Add(retention)
	remaining := deadline.Sub(s.now())
	if remaining <= 0 {
		s.reclaim(job.ID)
		return
	}

	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.closed {
		return
	}
	if existing, ok := s.timers[job.ID]; ok {
		existing.Stop()
	}
	id := job.ID
	s.timers[id] = time.AfterFunc(remaining, func() { s.reclaim(id) })
}

// cancelReclaim drops any pending timer for a job.
func (s *Store) cancelReclaim(id string) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
}

// reclaim deletes a terminal job's artifacts and its record. Artifact
// deletion failures are logged, never escalated.
func (s *Store) reclaim(id string) {
	job, err := s.Get(id)
	if err != nil {
		s.cancelReclaim(id)
		return
	}

	if job.Result != nil && s.outputsDir != "" {
		for _, name := range []string{job.Result.VideoFile, job.Result.ThumbnailFile} {
			if name == "" {
				continue
			}
			path := filepath.Join(s.outputsDir, filepath.Base(name))
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn("failed to remove artifact", "job", id, "path", path, "error", err)
			}
		}
	}

	if err := s.Delete(id); err != nil {
		s.logger.Warn("failed to reclaim job record", "job", id, "error", err)
		return
	}
	s.logger.Info("job reclaimed", "job", id, "status", job.Status)
}
