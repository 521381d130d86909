// Package bgm maintains the pool of background music tracks.
package bgm

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".flac": true,
}

// Pool watches a directory of music tracks and hands out random picks.
// An empty or missing directory is legal: Pick simply reports no track and
// jobs run with unmixed audio.
type Pool struct {
	dir    string
	logger hclog.Logger
	randFn func(n int) int

	mu     sync.RWMutex
	tracks []string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewPool creates a pool over the given directory.
func NewPool(dir string, logger hclog.Logger) *Pool {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Pool{
		dir:    dir,
		logger: logger,
		randFn: rand.Intn,
		done:   make(chan struct{}),
	}
}

// Start performs the initial scan and begins watching the directory for
// changes. Watch setup failures degrade to scan-on-start only.
func (p *Pool) Start() {
	p.rescan()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Warn("bgm watcher unavailable, pool will not refresh", "error", err)
		return
	}
	if err := watcher.Add(p.dir); err != nil {
		p.logger.Warn("cannot watch bgm directory, pool will not refresh", "dir", p.dir, "error", err)
		_ = watcher.Close()
		return
	}

	p.watcher = watcher
	go p.watch()
}

// Close stops the directory watcher.
func (p *Pool) Close() {
	close(p.done)
	if p.watcher != nil {
		_ = p.watcher.Close()
	}
}

// Pick returns one track uniformly at random, or false when the pool is
// empty.
func (p *Pool) Pick() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.tracks) == 0 {
		return "", false
	}
	return p.tracks[p.randFn(len(p.tracks))], true
}

// Len returns the number of known tracks.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tracks)
}

// watch rescans the directory whenever its contents change.
func (p *Pool) watch() {
	for {
		select {
		case <-p.done:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				p.rescan()
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("bgm watcher error", "error", err)
		}
	}
}

// rescan rebuilds the track list from the directory contents.
func (p *Pool) rescan() {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("cannot read bgm directory", "dir", p.dir, "error", err)
		}
		p.setTracks(nil)
		return
	}

	var tracks []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if audioExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			tracks = append(tracks, filepath.Join(p.dir, entry.Name()))
		}
	}
	p.setTracks(tracks)
}

func (p *Pool) setTracks(tracks []string) {
	p.mu.Lock()
	p.tracks = tracks
	p.mu.Unlock()
}
