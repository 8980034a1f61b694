package speech

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lecternhq/lectern/internal/bus"
	"github.com/lecternhq/lectern/internal/pipeline"
	"github.com/lecternhq/lectern/internal/store"
)

// StateKey is the fixed store key the aggregate counters persist under.
const StateKey = "queue-manager-state"

// OverflowPolicy selects what happens when the pending queue is full.
type OverflowPolicy int

const (
	// OverflowReject refuses the incoming request.
	OverflowReject OverflowPolicy = iota
	// OverflowEvictLowest drops the worst pending entry to make room.
	OverflowEvictLowest
)

// Config holds tunables for the session queue manager.
type Config struct {
	// StopPrevious enables single-flight mode: a new request immediately
	// cancels the current session. When false, requests queue behind the
	// current session ordered by (priority desc, timestamp asc).
	StopPrevious bool

	// MaxQueueSize bounds the pending queue in queue mode. Zero or
	// negative means unbounded.
	MaxQueueSize int

	// SessionTimeout is the age at which the stale-session sweep
	// force-stops a non-terminal session.
	SessionTimeout time.Duration

	// GraceDelay is how long a terminal session stays readable in the
	// slot before auto-clear.
	GraceDelay time.Duration

	// SweepInterval is the period of the stale-session sweep.
	SweepInterval time.Duration

	// PersistState enables counter persistence and restore.
	PersistState bool

	// PersistDebounce collapses bursts of state writes.
	PersistDebounce time.Duration

	// Overflow is the pending queue overflow policy.
	Overflow OverflowPolicy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		StopPrevious:    true,
		MaxQueueSize:    10,
		SessionTimeout:  5 * time.Minute,
		GraceDelay:      time.Second,
		SweepInterval:   time.Minute,
		PersistState:    true,
		PersistDebounce: 250 * time.Millisecond,
	}
}

// PersistedState is the record written under StateKey.
type PersistedState struct {
	TotalProcessed int64     `json:"totalProcessed"`
	TotalStopped   int64     `json:"totalStopped"`
	LastActivity   time.Time `json:"lastActivity"`
}

// Stats is a point-in-time snapshot of manager counters.
type Stats struct {
	TotalProcessed int64
	TotalStopped   int64
	TotalErrors    int64
	PendingLen     int
	LastActivity   time.Time
}

// Processor runs a request event through the plugin pipeline before
// admission. The bool reports whether the event survived the chain.
type Processor interface {
	Process(stage pipeline.Stage, ev bus.Event) (bus.Event, bool, error)
}

// Manager owns the current-session slot. It subscribes to request and
// lifecycle events, admits or supersedes requests, and persists aggregate
// counters through the storage collaborator. Every state transition runs
// under the manager's lock, so transitions never interleave; storage writes
// are fire-and-forget and never block admission or cancellation.
type Manager struct {
	cfg   Config
	bus   *bus.Bus
	store store.Store
	proc  Processor

	mu           sync.Mutex
	current      *Session
	pending      pendingQueue
	processed    int64
	stopped      int64
	errs         int64
	lastActivity time.Time

	clearTask   *task
	persistTask *task
	sweepDone   chan struct{}
	started     bool
	closed      bool
}

// NewManager creates a manager. Call Start to restore counters, subscribe to
// bus topics and begin the stale-session sweep.
func NewManager(b *bus.Bus, st store.Store, cfg Config) *Manager {
	if cfg.GraceDelay <= 0 {
		cfg.GraceDelay = time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.PersistDebounce <= 0 {
		cfg.PersistDebounce = 250 * time.Millisecond
	}
	return &Manager{
		cfg:       cfg,
		bus:       b,
		store:     st,
		sweepDone: make(chan struct{}),
	}
}

// UseProcessor routes incoming request events through the plugin pipeline's
// extraction stage before admission. Must be called before Start.
func (m *Manager) UseProcessor(p Processor) {
	m.proc = p
}

// Start restores persisted counters, subscribes to the request and lifecycle
// topics and starts the recurring stale-session sweep. In-flight sessions
// are never restored; a prior audio context cannot outlive a restart.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return fmt.Errorf("manager already started")
	}
	m.started = true
	m.mu.Unlock()

	if m.cfg.PersistState {
		m.restoreState()
	}

	m.bus.Subscribe(TopicRequest, m.onRequest)
	m.bus.Subscribe(TopicStarted, m.onStarted)
	m.bus.Subscribe(TopicCompleted, m.onCompleted)
	m.bus.Subscribe(TopicError, m.onError)

	go m.sweepLoop()
	return nil
}

// Current returns a copy of the session occupying the slot, if any.
func (m *Manager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Session{}, false
	}
	return *m.current, true
}

// PendingLen returns the number of queued entries.
func (m *Manager) PendingLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.Len()
}

// GetStats returns a snapshot of the manager counters.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		TotalProcessed: m.processed,
		TotalStopped:   m.stopped,
		TotalErrors:    m.errs,
		PendingLen:     m.pending.Len(),
		LastActivity:   m.lastActivity,
	}
}

// Enqueue admits a request. In stop-previous mode the current session is
// superseded synchronously: the stop command, stopped notification, new
// session install and synthesize event are all emitted before this call
// returns, with no I/O in between. In queue mode the request waits in the
// pending queue while a session is active.
func (m *Manager) Enqueue(req Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	if m.cfg.StopPrevious {
		if m.current != nil {
			m.supersedeLocked()
		}
		m.installLocked(req)
		return
	}

	if m.current == nil && m.pending.Len() == 0 {
		m.installLocked(req)
		return
	}

	if m.cfg.MaxQueueSize > 0 && m.pending.Len() >= m.cfg.MaxQueueSize {
		switch m.cfg.Overflow {
		case OverflowEvictLowest:
			if evicted := m.pending.evictLowest(); evicted != nil {
				log.Debug("pending queue full, evicting",
					"request", evicted.Request.ID,
					"priority", evicted.Priority)
				m.bus.Emit(TopicRejected, RejectedMsg{
					RequestID: evicted.Request.ID,
					Reason:    "evicted",
				})
			}
		default:
			log.Debug("pending queue full, rejecting", "request", req.ID)
			m.bus.Emit(TopicRejected, RejectedMsg{
				RequestID: req.ID,
				Reason:    "queue full",
			})
			return
		}
	}

	m.pending.push(req, time.Now())
	m.touchLocked()
}

// StopCurrent explicitly stops the session occupying the slot. With no
// current session it emits nothing and raises no error.
func (m *Manager) StopCurrent() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}
	if m.current.Status.Terminal() {
		// Already finished, just free the slot early.
		m.clearSlotLocked()
		m.promoteLocked()
		return
	}
	m.forceStopLocked(ReasonManual)
	m.promoteLocked()
}

// PauseCurrent pauses the current session. Only valid from playing;
// otherwise a silent no-op.
func (m *Manager) PauseCurrent() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || !m.current.CanPause() {
		return
	}
	m.current.transition(StatusPaused)
	m.current.PausedTime = time.Now()
	m.bus.Emit(TopicPaused, PausedMsg{
		SessionID: m.current.SessionID,
		Progress:  m.current.Progress,
	})
	m.touchLocked()
}

// ResumeCurrent resumes a paused session. Only valid from paused; otherwise
// a silent no-op.
func (m *Manager) ResumeCurrent() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || !m.current.CanResume() {
		return
	}
	m.current.transition(StatusPlaying)
	m.current.ResumeTime = time.Now()
	m.bus.Emit(TopicResumed, ResumedMsg{SessionID: m.current.SessionID})
	m.touchLocked()
}

// Cleanup cancels all scheduled tasks, stops the sweep, drops pending
// entries and performs a final synchronous counter flush.
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.sweepDone)
	m.clearTask.cancel()
	m.clearTask = nil
	m.persistTask.cancel()
	m.persistTask = nil
	m.pending.clear()
	m.current = nil
	snapshot := m.persistedLocked()
	persist := m.cfg.PersistState
	m.mu.Unlock()

	if persist {
		m.writeState(snapshot)
	}
	return nil
}

// Event handlers. Each compares the event's session id against the current
// session before mutating anything; mismatches are expected under
// supersession races and ignored silently.

func (m *Manager) onRequest(ev bus.Event) error {
	req, ok := ev.Payload.(Request)
	if !ok {
		return fmt.Errorf("unexpected request payload %T", ev.Payload)
	}

	if m.proc != nil {
		out, kept, err := m.proc.Process(pipeline.StageExtraction, ev)
		if err != nil {
			// The host already surfaced a pipeline.error event.
			return err
		}
		if !kept {
			log.Debug("request dropped by pipeline", "request", req.ID)
			return nil
		}
		if processed, ok := out.Payload.(Request); ok {
			req = processed
		}
	}

	m.Enqueue(req)
	return nil
}

func (m *Manager) onStarted(ev bus.Event) error {
	msg, ok := ev.Payload.(StartedMsg)
	if !ok {
		return fmt.Errorf("unexpected started payload %T", ev.Payload)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.matchesCurrentLocked(msg.SessionID) {
		log.Debug("ignoring stale started", "session", msg.SessionID)
		return nil
	}
	if m.current.Status == StatusQueued {
		m.current.transition(StatusPlaying)
		m.touchLocked()
	}
	return nil
}

func (m *Manager) onCompleted(ev bus.Event) error {
	msg, ok := ev.Payload.(CompletedMsg)
	if !ok {
		return fmt.Errorf("unexpected completed payload %T", ev.Payload)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.matchesCurrentLocked(msg.SessionID) {
		log.Debug("ignoring stale completed", "session", msg.SessionID)
		return nil
	}

	m.current.transition(StatusCompleted)
	m.current.Progress = 1.0
	m.touchLocked()

	if !m.cfg.StopPrevious && m.pending.Len() > 0 {
		// Promote immediately; the grace window only matters when the
		// slot would otherwise sit occupied by a terminal session.
		m.clearSlotLocked()
		m.promoteLocked()
		return nil
	}
	m.scheduleClearLocked()
	return nil
}

func (m *Manager) onError(ev bus.Event) error {
	msg, ok := ev.Payload.(ErrorMsg)
	if !ok {
		return fmt.Errorf("unexpected error payload %T", ev.Payload)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.matchesCurrentLocked(msg.SessionID) {
		log.Debug("ignoring stale error", "session", msg.SessionID)
		return nil
	}

	log.Warn("synthesis failed",
		"session", msg.SessionID,
		"error", msg.Err)

	sid := m.current.SessionID
	m.bus.Emit(TopicStop, StopCommand{SessionID: sid})
	m.current.transition(StatusStopped)
	m.errs++
	m.clearSlotLocked()
	m.bus.Emit(TopicStopped, StoppedMsg{SessionID: sid, Reason: ReasonError})
	m.touchLocked()
	m.promoteLocked()
	return nil
}

// matchesCurrentLocked is the stale-session guard: completion and start
// signals from superseded work must never touch the new current session.
func (m *Manager) matchesCurrentLocked(sessionID string) bool {
	return m.current != nil && !m.current.Status.Terminal() &&
		m.current.SessionID == sessionID
}

// supersedeLocked ends the current session in favor of an incoming request.
// The stopped notification for the old session is emitted strictly before
// the started notification for the new one.
func (m *Manager) supersedeLocked() {
	if m.current.Status.Terminal() {
		// Completed session waiting out its grace window; no stop
		// command or counter for work that already finished.
		m.clearSlotLocked()
		return
	}
	m.forceStopLocked(ReasonSuperseded)
}

// forceStopLocked ends the current non-terminal session: stop command out,
// stopped counter up, stopped notification out, slot cleared.
func (m *Manager) forceStopLocked(reason StopReason) {
	sid := m.current.SessionID
	m.bus.Emit(TopicStop, StopCommand{SessionID: sid})
	m.current.transition(StatusStopped)
	m.stopped++
	m.clearSlotLocked()
	m.bus.Emit(TopicStopped, StoppedMsg{SessionID: sid, Reason: reason})
	m.touchLocked()
}

// installLocked constructs a queued session from the request, makes it
// current and forwards it to the synthesis collaborator. Everything here is
// synchronous; no I/O happens before the processed counter is bumped.
func (m *Manager) installLocked(req Request) {
	s := newSession(req, time.Now())
	m.current = s
	m.clearTask.cancel()
	m.clearTask = nil

	m.bus.Emit(TopicPlaybackStarted, PlaybackStartedMsg{
		SessionID: s.SessionID,
		SourceID:  s.SourceID,
	})
	m.bus.Emit(TopicSynthesize, SynthesizeMsg{
		SessionID: s.SessionID,
		Text:      s.Text,
		Voice:     s.VoiceID,
		Speed:     s.Speed,
	})
	m.processed++
	m.touchLocked()

	log.Debug("session installed",
		"session", s.SessionID,
		"source", s.SourceID,
		"priority", s.Priority)
}

// promoteLocked installs the best pending entry when the slot is free.
func (m *Manager) promoteLocked() {
	if m.cfg.StopPrevious || m.current != nil {
		return
	}
	if entry := m.pending.pop(); entry != nil {
		m.installLocked(entry.Request)
	}
}

// clearSlotLocked frees the slot and cancels any scheduled auto-clear.
func (m *Manager) clearSlotLocked() {
	m.current = nil
	m.clearTask.cancel()
	m.clearTask = nil
}

// scheduleClearLocked arms the grace-window auto-clear so observers can read
// the terminal status before the slot frees.
func (m *Manager) scheduleClearLocked() {
	m.clearTask.cancel()
	sid := m.current.SessionID
	m.clearTask = schedule(m.cfg.GraceDelay, func() {
		m.clearAfterGrace(sid)
	})
}

func (m *Manager) clearAfterGrace(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.current == nil || m.current.SessionID != sessionID ||
		!m.current.Status.Terminal() {
		return
	}
	m.clearSlotLocked()
	m.promoteLocked()
}

// sweepLoop periodically force-stops stale sessions until Cleanup.
func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.sweepDone:
			return
		case <-ticker.C:
			m.sweepStale(time.Now())
		}
	}
}

// sweepStale force-stops the current session when it is non-terminal and
// older than the session timeout.
func (m *Manager) sweepStale(now time.Time) {
	if m.cfg.SessionTimeout <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.current == nil || m.current.Status.Terminal() {
		return
	}
	if now.Sub(m.current.StartTime) <= m.cfg.SessionTimeout {
		return
	}

	log.Warn("force-stopping stale session",
		"session", m.current.SessionID,
		"age", now.Sub(m.current.StartTime))
	m.forceStopLocked(ReasonTimeout)
	m.promoteLocked()
}

// Persistence. Writes are debounced and fire-and-forget: the scheduled task
// runs in its own goroutine, so the synchronous admission and cancellation
// paths never wait on storage.

func (m *Manager) touchLocked() {
	m.lastActivity = time.Now()
	if !m.cfg.PersistState || m.closed {
		return
	}
	if m.persistTask == nil {
		m.persistTask = schedule(m.cfg.PersistDebounce, m.flushState)
	}
}

func (m *Manager) flushState() {
	m.mu.Lock()
	m.persistTask = nil
	if m.closed {
		m.mu.Unlock()
		return
	}
	snapshot := m.persistedLocked()
	m.mu.Unlock()

	m.writeState(snapshot)
}

func (m *Manager) persistedLocked() PersistedState {
	return PersistedState{
		TotalProcessed: m.processed,
		TotalStopped:   m.stopped,
		LastActivity:   m.lastActivity,
	}
}

func (m *Manager) writeState(state PersistedState) {
	buf, err := json.Marshal(state)
	if err != nil {
		log.Warn("unable to encode manager state", "error", err)
		return
	}
	if err := m.store.Set(StateKey, buf); err != nil {
		log.Warn("unable to persist manager state", "error", err)
	}
}

func (m *Manager) restoreState() {
	buf, ok, err := m.store.Get(StateKey)
	if err != nil {
		log.Warn("unable to read persisted manager state", "error", err)
		return
	}
	if !ok {
		return
	}

	var state PersistedState
	if err := json.Unmarshal(buf, &state); err != nil {
		log.Warn("discarding corrupt manager state", "error", err)
		return
	}

	m.mu.Lock()
	m.processed = state.TotalProcessed
	m.stopped = state.TotalStopped
	m.lastActivity = state.LastActivity
	m.mu.Unlock()

	log.Debug("restored manager state",
		"processed", state.TotalProcessed,
		"stopped", state.TotalStopped)
}
