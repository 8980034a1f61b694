// Package pipeline hosts the pluggable processing units that events pass
// through before they reach the speech subsystem. Plugins are ordered by
// (stage, priority) and share a single typed lifecycle: Init, Process,
// Cleanup, HealthCheck.
package pipeline

import (
	"github.com/lecternhq/lectern/internal/bus"
	"github.com/lecternhq/lectern/internal/store"
)

// Stage names a phase of the pipeline that groups plugins.
type Stage string

const (
	// StageExtraction processes incoming request events.
	StageExtraction Stage = "extraction"
	// StageSynthesis processes events around speech generation.
	StageSynthesis Stage = "synthesis"
	// StageRendering processes events bound for presentation collaborators.
	StageRendering Stage = "rendering"
)

// Descriptor identifies a plugin registered with the host. It carries no
// session state.
type Descriptor struct {
	ID       string
	Name     string
	Version  string
	Stage    Stage
	Priority int
	Optional bool
	Config   map[string]any
}

// Health is a plugin's self-reported condition.
type Health struct {
	Healthy bool
	Detail  string
}

// Context carries the collaborators a plugin may use while processing.
type Context struct {
	Stage Stage
	Bus   *bus.Bus
	Store store.Store
}

// Plugin is the single typed interface every processing unit implements.
// Process may transform the event and return a mutated copy, return its
// input unchanged, or return nil to short-circuit processing of that event.
type Plugin interface {
	Descriptor() Descriptor
	Init(b *bus.Bus, st store.Store) error
	Process(ev *bus.Event, pctx *Context) (*bus.Event, error)
	Cleanup() error
	HealthCheck() Health
}
