package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/lecternhq/lectern/internal/bus"
	"github.com/lecternhq/lectern/internal/store"
)

// TopicProcessError is emitted when a required plugin fails mid-pipeline.
// No error ever crosses the bus as a value; failures become events.
const TopicProcessError = "pipeline.error"

var (
	// ErrNotInitialized is returned when Process is called before Init.
	ErrNotInitialized = errors.New("plugin host is not initialized")
	// ErrDuplicatePlugin is returned when a plugin id is registered twice.
	ErrDuplicatePlugin = errors.New("plugin id already registered")
	// ErrAlreadyInitialized is returned when Register or Init is called
	// after a successful Init.
	ErrAlreadyInitialized = errors.New("plugin host is already initialized")
)

// ProcessError is the payload of TopicProcessError events.
type ProcessError struct {
	PluginID string
	EventID  string
	Topic    string
	Err      error
}

// Host registers plugins, sequences them by (stage, priority) and manages
// their lifecycle. A required plugin failing Init aborts startup; a required
// plugin failing Process aborts that event and surfaces a pipeline.error
// event. Optional plugin failures are logged and swallowed.
type Host struct {
	bus   *bus.Bus
	store store.Store

	mu          sync.Mutex
	registered  []Plugin // registration order, used for cleanup
	ordered     []Plugin // (stage, priority) order, used for processing
	excluded    map[string]bool
	initialized bool
}

// NewHost creates a host whose plugins will be initialized with the given
// bus and storage collaborator.
func NewHost(b *bus.Bus, st store.Store) *Host {
	return &Host{
		bus:      b,
		store:    st,
		excluded: make(map[string]bool),
	}
}

// Register adds a plugin. Plugins must be registered before Init.
func (h *Host) Register(p Plugin) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.initialized {
		return ErrAlreadyInitialized
	}
	id := p.Descriptor().ID
	for _, existing := range h.registered {
		if existing.Descriptor().ID == id {
			return fmt.Errorf("%w: %s", ErrDuplicatePlugin, id)
		}
	}
	h.registered = append(h.registered, p)
	return nil
}

// Init sequentially initializes every registered plugin. A required plugin's
// failure is fatal and aborts startup; an optional plugin's failure is logged
// and the plugin is excluded from subsequent processing.
func (h *Host) Init() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.initialized {
		return ErrAlreadyInitialized
	}

	h.ordered = make([]Plugin, len(h.registered))
	copy(h.ordered, h.registered)
	sort.SliceStable(h.ordered, func(i, j int) bool {
		di, dj := h.ordered[i].Descriptor(), h.ordered[j].Descriptor()
		if di.Stage != dj.Stage {
			return di.Stage < dj.Stage
		}
		return di.Priority < dj.Priority
	})

	for _, p := range h.ordered {
		desc := p.Descriptor()
		if err := p.Init(h.bus, h.store); err != nil {
			if !desc.Optional {
				return fmt.Errorf("required plugin %s failed to initialize: %w", desc.ID, err)
			}
			log.Warn("optional plugin failed to initialize, excluding",
				"plugin", desc.ID,
				"error", err)
			h.excluded[desc.ID] = true
			continue
		}
		log.Debug("plugin initialized",
			"plugin", desc.ID,
			"stage", desc.Stage,
			"priority", desc.Priority)
	}

	h.initialized = true
	return nil
}

// Process passes the event through the stage's plugins in priority order.
// The returned bool reports whether the event survived the chain; it is
// false when a plugin short-circuited. A required plugin's failure aborts
// processing of the event, emits a pipeline.error event and returns the
// error.
func (h *Host) Process(stage Stage, ev bus.Event) (bus.Event, bool, error) {
	h.mu.Lock()
	if !h.initialized {
		h.mu.Unlock()
		return ev, false, ErrNotInitialized
	}
	plugins := make([]Plugin, len(h.ordered))
	copy(plugins, h.ordered)
	excluded := make(map[string]bool, len(h.excluded))
	for id := range h.excluded {
		excluded[id] = true
	}
	h.mu.Unlock()

	pctx := &Context{Stage: stage, Bus: h.bus, Store: h.store}
	current := ev

	for _, p := range plugins {
		desc := p.Descriptor()
		if desc.Stage != stage || excluded[desc.ID] {
			continue
		}

		out, err := p.Process(&current, pctx)
		if err != nil {
			if desc.Optional {
				log.Warn("optional plugin failed, continuing",
					"plugin", desc.ID,
					"event", current.ID,
					"error", err)
				continue
			}
			h.bus.Emit(TopicProcessError, ProcessError{
				PluginID: desc.ID,
				EventID:  current.ID,
				Topic:    current.Topic,
				Err:      err,
			})
			return current, false, fmt.Errorf("plugin %s failed processing event %s: %w", desc.ID, current.ID, err)
		}
		if out == nil {
			log.Debug("plugin short-circuited event",
				"plugin", desc.ID,
				"event", current.ID)
			return current, false, nil
		}
		current = *out
	}

	return current, true, nil
}

// HealthCheck aggregates each plugin's self-reported health, keyed by plugin
// id. Plugins excluded at Init report as unhealthy.
func (h *Host) HealthCheck() map[string]Health {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := make(map[string]Health, len(h.registered))
	for _, p := range h.registered {
		id := p.Descriptor().ID
		if h.excluded[id] {
			report[id] = Health{Healthy: false, Detail: "excluded at init"}
			continue
		}
		report[id] = p.HealthCheck()
	}
	return report
}

// Cleanup tears plugins down in reverse registration order. Individual
// failures are logged and collected so every plugin gets a cleanup attempt.
func (h *Host) Cleanup() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for i := len(h.registered) - 1; i >= 0; i-- {
		p := h.registered[i]
		id := p.Descriptor().ID
		if err := p.Cleanup(); err != nil {
			log.Warn("plugin cleanup failed", "plugin", id, "error", err)
			errs = append(errs, fmt.Errorf("plugin %s: %w", id, err))
		}
	}

	h.initialized = false
	return errors.Join(errs...)
}
