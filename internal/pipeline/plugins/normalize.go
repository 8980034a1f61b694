// Package plugins bundles the processing units shipped with lectern.
package plugins

import (
	"errors"
	"strings"

	"github.com/lecternhq/lectern/internal/bus"
	"github.com/lecternhq/lectern/internal/pipeline"
	"github.com/lecternhq/lectern/internal/speech"
	"github.com/lecternhq/lectern/internal/store"
)

// ErrEmptyText is returned when a request carries no speakable text.
var ErrEmptyText = errors.New("request text is empty")

// Normalize is a required extraction-stage plugin that collapses whitespace
// in request text and rejects empty requests.
type Normalize struct{}

// NewNormalize creates the plugin.
func NewNormalize() *Normalize {
	return &Normalize{}
}

// Descriptor identifies the plugin.
func (n *Normalize) Descriptor() pipeline.Descriptor {
	return pipeline.Descriptor{
		ID:       "normalize",
		Name:     "Text Normalizer",
		Version:  "1.0.0",
		Stage:    pipeline.StageExtraction,
		Priority: 10,
	}
}

// Init implements pipeline.Plugin. Normalize has no collaborators to wire.
func (n *Normalize) Init(_ *bus.Bus, _ store.Store) error {
	return nil
}

// Process collapses runs of whitespace and fails the event when nothing is
// left to speak.
func (n *Normalize) Process(ev *bus.Event, _ *pipeline.Context) (*bus.Event, error) {
	req, ok := ev.Payload.(speech.Request)
	if !ok {
		return ev, nil
	}

	text := strings.Join(strings.Fields(req.Text), " ")
	if text == "" {
		return nil, ErrEmptyText
	}

	req.Text = text
	out := *ev
	out.Payload = req
	return &out, nil
}

// Cleanup implements pipeline.Plugin.
func (n *Normalize) Cleanup() error {
	return nil
}

// HealthCheck implements pipeline.Plugin.
func (n *Normalize) HealthCheck() pipeline.Health {
	return pipeline.Health{Healthy: true}
}
