package plugins

import (
	"fmt"
	"sync"
	"time"

	"github.com/lecternhq/lectern/internal/bus"
	"github.com/lecternhq/lectern/internal/pipeline"
	"github.com/lecternhq/lectern/internal/speech"
	"github.com/lecternhq/lectern/internal/store"
)

// Stats is an optional extraction-stage plugin that counts the requests
// flowing through the pipeline and surfaces them through its health report.
// It runs after Normalize so it only sees admissible requests.
type Stats struct {
	mu        sync.Mutex
	requests  int64
	runes     int64
	lastSeen  time.Time
	startedAt time.Time
}

// NewStats creates the plugin.
func NewStats() *Stats {
	return &Stats{}
}

// Descriptor identifies the plugin.
func (s *Stats) Descriptor() pipeline.Descriptor {
	return pipeline.Descriptor{
		ID:       "stats",
		Name:     "Request Stats",
		Version:  "1.0.0",
		Stage:    pipeline.StageExtraction,
		Priority: 90,
		Optional: true,
	}
}

// Init implements pipeline.Plugin.
func (s *Stats) Init(_ *bus.Bus, _ store.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startedAt = time.Now()
	return nil
}

// Process counts the request and passes the event through unchanged.
func (s *Stats) Process(ev *bus.Event, _ *pipeline.Context) (*bus.Event, error) {
	req, ok := ev.Payload.(speech.Request)
	if !ok {
		return ev, nil
	}

	s.mu.Lock()
	s.requests++
	s.runes += int64(len([]rune(req.Text)))
	s.lastSeen = time.Now()
	s.mu.Unlock()

	return ev, nil
}

// Cleanup implements pipeline.Plugin.
func (s *Stats) Cleanup() error {
	return nil
}

// HealthCheck reports the running totals.
func (s *Stats) HealthCheck() pipeline.Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pipeline.Health{
		Healthy: true,
		Detail:  fmt.Sprintf("requests=%d runes=%d", s.requests, s.runes),
	}
}

// Requests returns the number of requests seen.
func (s *Stats) Requests() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}
