package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lecternhq/lectern/internal/bus"
	"github.com/lecternhq/lectern/internal/store"
)

// fakePlugin is a configurable test double for the Plugin interface.
type fakePlugin struct {
	desc    Descriptor
	initErr error
	procErr error
	short   bool
	process func(ev *bus.Event) *bus.Event

	calls    *[]string
	cleanErr error
	health   Health
}

func (f *fakePlugin) Descriptor() Descriptor { return f.desc }

func (f *fakePlugin) Init(*bus.Bus, store.Store) error {
	f.note("init")
	return f.initErr
}

func (f *fakePlugin) Process(ev *bus.Event, _ *Context) (*bus.Event, error) {
	f.note("process")
	if f.procErr != nil {
		return nil, f.procErr
	}
	if f.short {
		return nil, nil
	}
	if f.process != nil {
		return f.process(ev), nil
	}
	return ev, nil
}

func (f *fakePlugin) Cleanup() error {
	f.note("cleanup")
	return f.cleanErr
}

func (f *fakePlugin) HealthCheck() Health {
	if f.health == (Health{}) {
		return Health{Healthy: true}
	}
	return f.health
}

func (f *fakePlugin) note(op string) {
	if f.calls != nil {
		*f.calls = append(*f.calls, f.desc.ID+":"+op)
	}
}

func newFake(id string, stage Stage, priority int, optional bool, calls *[]string) *fakePlugin {
	return &fakePlugin{
		desc: Descriptor{
			ID:       id,
			Name:     id,
			Version:  "1.0.0",
			Stage:    stage,
			Priority: priority,
			Optional: optional,
		},
		calls: calls,
	}
}

func newTestHost(t *testing.T, plugins ...Plugin) (*Host, *bus.Bus) {
	t.Helper()
	b := bus.New()
	h := NewHost(b, store.NewMemory())
	for _, p := range plugins {
		require.NoError(t, h.Register(p))
	}
	return h, b
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	h, _ := newTestHost(t, newFake("p1", StageExtraction, 1, false, nil))

	err := h.Register(newFake("p1", StageSynthesis, 2, false, nil))
	assert.ErrorIs(t, err, ErrDuplicatePlugin)
}

func TestProcessBeforeInit(t *testing.T) {
	h, _ := newTestHost(t, newFake("p1", StageExtraction, 1, false, nil))

	_, _, err := h.Process(StageExtraction, bus.Event{})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestInitRequiredFailureIsFatal(t *testing.T) {
	bad := newFake("bad", StageExtraction, 1, false, nil)
	bad.initErr = errors.New("no model file")
	h, _ := newTestHost(t, bad)

	err := h.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestInitOptionalFailureExcludesPlugin(t *testing.T) {
	var calls []string
	flaky := newFake("flaky", StageExtraction, 1, true, &calls)
	flaky.initErr = errors.New("unavailable")
	sound := newFake("sound", StageExtraction, 2, false, &calls)

	h, _ := newTestHost(t, flaky, sound)
	require.NoError(t, h.Init())

	calls = nil
	_, kept, err := h.Process(StageExtraction, bus.Event{ID: "e1"})
	require.NoError(t, err)
	assert.True(t, kept)
	assert.Equal(t, []string{"sound:process"}, calls, "excluded plugin must not process")

	report := h.HealthCheck()
	assert.False(t, report["flaky"].Healthy)
	assert.Equal(t, "excluded at init", report["flaky"].Detail)
	assert.True(t, report["sound"].Healthy)
}

func TestProcessOrdersByStageThenPriority(t *testing.T) {
	var calls []string
	// Registered out of order on purpose.
	h, _ := newTestHost(t,
		newFake("late", StageExtraction, 50, false, &calls),
		newFake("early", StageExtraction, 10, false, &calls),
		newFake("other", StageSynthesis, 1, false, &calls),
	)
	require.NoError(t, h.Init())

	calls = nil
	_, kept, err := h.Process(StageExtraction, bus.Event{ID: "e1"})
	require.NoError(t, err)
	assert.True(t, kept)
	assert.Equal(t, []string{"early:process", "late:process"}, calls)
}

func TestProcessTransformChain(t *testing.T) {
	add := func(n int) func(ev *bus.Event) *bus.Event {
		return func(ev *bus.Event) *bus.Event {
			out := *ev
			out.Payload = ev.Payload.(int) + n
			return &out
		}
	}
	p1 := newFake("p1", StageExtraction, 1, false, nil)
	p1.process = add(1)
	p2 := newFake("p2", StageExtraction, 2, false, nil)
	p2.process = add(10)

	h, _ := newTestHost(t, p1, p2)
	require.NoError(t, h.Init())

	out, kept, err := h.Process(StageExtraction, bus.Event{ID: "e1", Payload: 0})
	require.NoError(t, err)
	assert.True(t, kept)
	assert.Equal(t, 11, out.Payload)
}

func TestProcessShortCircuit(t *testing.T) {
	var calls []string
	gate := newFake("gate", StageExtraction, 1, false, &calls)
	gate.short = true
	after := newFake("after", StageExtraction, 2, false, &calls)

	h, _ := newTestHost(t, gate, after)
	require.NoError(t, h.Init())

	calls = nil
	_, kept, err := h.Process(StageExtraction, bus.Event{ID: "e1"})
	require.NoError(t, err)
	assert.False(t, kept)
	assert.Equal(t, []string{"gate:process"}, calls)
}

func TestRequiredProcessFailureAbortsAndEmits(t *testing.T) {
	var calls []string
	broken := newFake("broken", StageExtraction, 1, false, &calls)
	broken.procErr = errors.New("mid-pipeline failure")
	after := newFake("after", StageExtraction, 2, false, &calls)

	h, b := newTestHost(t, broken, after)
	require.NoError(t, h.Init())

	var emitted []ProcessError
	b.Subscribe(TopicProcessError, func(ev bus.Event) error {
		emitted = append(emitted, ev.Payload.(ProcessError))
		return nil
	})

	calls = nil
	_, kept, err := h.Process(StageExtraction, bus.Event{ID: "e1", Topic: "t"})
	require.Error(t, err)
	assert.False(t, kept)
	assert.Equal(t, []string{"broken:process"}, calls, "later plugins must not run")

	require.Len(t, emitted, 1)
	assert.Equal(t, "broken", emitted[0].PluginID)
	assert.Equal(t, "e1", emitted[0].EventID)
	assert.ErrorIs(t, emitted[0].Err, broken.procErr)
}

func TestOptionalProcessFailureIsSwallowed(t *testing.T) {
	var calls []string
	flaky := newFake("flaky", StageExtraction, 1, true, &calls)
	flaky.procErr = errors.New("transient")
	after := newFake("after", StageExtraction, 2, false, &calls)

	h, b := newTestHost(t, flaky, after)
	require.NoError(t, h.Init())

	var emitted int
	b.Subscribe(TopicProcessError, func(bus.Event) error {
		emitted++
		return nil
	})

	calls = nil
	_, kept, err := h.Process(StageExtraction, bus.Event{ID: "e1"})
	require.NoError(t, err)
	assert.True(t, kept)
	assert.Equal(t, []string{"flaky:process", "after:process"}, calls)
	assert.Zero(t, emitted)
}

func TestCleanupReverseOrderToleratesFailures(t *testing.T) {
	var calls []string
	first := newFake("first", StageExtraction, 1, false, &calls)
	second := newFake("second", StageExtraction, 2, false, &calls)
	second.cleanErr = errors.New("stuck")
	third := newFake("third", StageSynthesis, 1, false, &calls)

	h, _ := newTestHost(t, first, second, third)
	require.NoError(t, h.Init())

	calls = nil
	err := h.Cleanup()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second")
	assert.Equal(t, []string{"third:cleanup", "second:cleanup", "first:cleanup"}, calls)
}

func TestHealthCheckAggregates(t *testing.T) {
	sick := newFake("sick", StageExtraction, 1, false, nil)
	sick.health = Health{Healthy: false, Detail: "engine missing"}
	well := newFake("well", StageExtraction, 2, false, nil)

	h, _ := newTestHost(t, sick, well)
	require.NoError(t, h.Init())

	report := h.HealthCheck()
	require.Len(t, report, 2)
	assert.False(t, report["sick"].Healthy)
	assert.Equal(t, "engine missing", report["sick"].Detail)
	assert.True(t, report["well"].Healthy)
}
