// Package scribe is the background processing service: it watches the
// recordings directory for finished artifacts, runs them through the
// configured transcription and summarization providers, writes the resulting
// sidecar files and pushes progress to websocket subscribers through a small
// local status API.
package scribe

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"

	"github.com/dstanton/minute/store"
)

// Config for the scribe service. Providers are injected; the service never
// reaches into global settings.
type Config struct {
	// Directory holding finished recording artifacts.
	RecordingsDir string

	// Address of the local status HTTP/websocket API.
	HTTPAddr string

	// Number of concurrent processing workers.
	Workers int

	// Transcriber is required; Summarizer is optional.
	Transcriber Transcriber
	Summarizer  Summarizer
}

// Scribe manages the transcription service.
type Scribe struct {
	config Config
	store  *store.Store

	watcher *fsnotify.Watcher

	// Processed results and live websocket subscribers.
	results     sync.Map // map[string]Result, keyed by artifact base
	subscribers sync.Map // map[*wsConnection]struct{}

	// queueMu serializes enqueue against shutdown so the watcher can never
	// send into a closed queue.
	queueMu     sync.Mutex
	queueClosed bool
	queue       chan Job
	workers     sync.WaitGroup

	server   *http.Server
	upgrader websocket.Upgrader
}

// New creates a new Scribe instance.
func New(cfg Config) (*Scribe, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Transcriber == nil {
		return nil, fmt.Errorf("a transcription provider is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	s := &Scribe{
		config:  cfg,
		store:   store.New(cfg.RecordingsDir),
		watcher: watcher,
		queue:   make(chan Job, 100),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Local desktop service; the API binds to loopback.
				return true
			},
		},
	}

	return s, nil
}

// Start begins the Scribe service: worker pool, directory watcher and the
// status API. It blocks until ctx is cancelled.
func (s *Scribe) Start(ctx context.Context) error {
	for i := 0; i < s.config.Workers; i++ {
		s.workers.Add(1)
		go s.worker(ctx)
	}

	go s.watchRecordings(ctx)

	return s.startHTTP(ctx)
}

// Stop gracefully shuts down the Scribe service.
func (s *Scribe) Stop(ctx context.Context) error {
	s.closeQueue()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out")
	}

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop HTTP server: %w", err)
		}
	}

	if err := s.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close file watcher: %w", err)
	}

	return nil
}

func (s *Scribe) closeQueue() {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if !s.queueClosed {
		s.queueClosed = true
		close(s.queue)
	}
}
