package knn

import (
	"fmt"
	"path/filepath"
	"sync"

	"embedknn/internal/corpus"
	"embedknn/internal/log"

	"github.com/fsnotify/fsnotify"
)

// snapshotCache keeps the last loaded corpus in memory until the file
// changes on disk. Cached records are shared between queries and must not
// be mutated.
type snapshotCache struct {
	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}

	mu         sync.RWMutex
	records    []corpus.Record
	loaded     bool
	generation uint64
}

func newSnapshotCache(path string) (*snapshotCache, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create corpus watcher: %w", err)
	}
	// Watch the directory so replacements and late creation are seen.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch corpus directory: %w", err)
	}

	s := &snapshotCache{path: abs, watcher: w, done: make(chan struct{})}
	go s.watch()

	log.InfoLogger.Printf("👀 Caching corpus snapshot for %s", abs)
	return s, nil
}

func (s *snapshotCache) watch() {
	defer close(s.done)
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				log.DebugLogger.Printf("knn: corpus event %s %s, dropping snapshot", event.Name, event.Op)
				s.invalidate()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.WarnLogger.Printf("Corpus watcher error: %v", err)
			s.invalidate()
		}
	}
}

func (s *snapshotCache) load() ([]corpus.Record, error) {
	s.mu.RLock()
	if s.loaded {
		records := s.records
		s.mu.RUnlock()
		return records, nil
	}
	gen := s.generation
	s.mu.RUnlock()

	records, err := readCorpus(s.path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	// A change during the read makes this copy stale; serve it once but do not keep it.
	if s.generation == gen {
		s.records = records
		s.loaded = true
	}
	s.mu.Unlock()
	return records, nil
}

func (s *snapshotCache) invalidate() {
	s.mu.Lock()
	s.records = nil
	s.loaded = false
	s.generation++
	s.mu.Unlock()
}

func (s *snapshotCache) close() error {
	err := s.watcher.Close()
	<-s.done
	return err
}
