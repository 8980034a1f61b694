// Package synth contains the loopback synthesis collaborator used for local
// runs and integration tests. It consumes synthesize events, simulates
// generation time from the text length, and reports lifecycle events back
// over the bus the way a real engine process would.
package synth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lecternhq/lectern/internal/bus"
	"github.com/lecternhq/lectern/internal/speech"
)

// Loopback simulates a speech engine. Each synthesize event runs in its own
// goroutine; a stop command for the session cancels it cooperatively.
type Loopback struct {
	bus      *bus.Bus
	baseWord time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

// NewLoopback creates a collaborator that simulates roughly baseWord of
// audio per word at speed 1.0.
func NewLoopback(b *bus.Bus, baseWord time.Duration) *Loopback {
	if baseWord <= 0 {
		baseWord = 150 * time.Millisecond
	}
	return &Loopback{
		bus:      b,
		baseWord: baseWord,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start subscribes to the synthesize and stop topics.
func (l *Loopback) Start() {
	l.bus.Subscribe(speech.TopicSynthesize, l.onSynthesize)
	l.bus.Subscribe(speech.TopicStop, l.onStop)
}

// Close cancels all in-flight sessions and waits for their goroutines.
func (l *Loopback) Close() {
	l.mu.Lock()
	l.closed = true
	for _, cancel := range l.cancels {
		cancel()
	}
	l.cancels = make(map[string]context.CancelFunc)
	l.mu.Unlock()

	l.wg.Wait()
}

func (l *Loopback) onSynthesize(ev bus.Event) error {
	msg, ok := ev.Payload.(speech.SynthesizeMsg)
	if !ok {
		return nil
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancels[msg.SessionID] = cancel
	l.wg.Add(1)
	l.mu.Unlock()

	go l.run(ctx, msg)
	return nil
}

func (l *Loopback) onStop(ev bus.Event) error {
	cmd, ok := ev.Payload.(speech.StopCommand)
	if !ok {
		return nil
	}

	l.mu.Lock()
	cancel, ok := l.cancels[cmd.SessionID]
	if ok {
		delete(l.cancels, cmd.SessionID)
	}
	l.mu.Unlock()

	if ok {
		cancel()
	}
	return nil
}

func (l *Loopback) run(ctx context.Context, msg speech.SynthesizeMsg) {
	defer l.wg.Done()
	defer l.forget(msg.SessionID)

	// Lifecycle events go out asynchronously, never from inside the
	// manager's emit path.
	l.bus.Emit(speech.TopicStarted, speech.StartedMsg{SessionID: msg.SessionID})

	select {
	case <-ctx.Done():
		log.Debug("synthesis canceled", "session", msg.SessionID)
		return
	case <-time.After(l.estimate(msg.Text, msg.Speed)):
	}

	l.bus.Emit(speech.TopicCompleted, speech.CompletedMsg{SessionID: msg.SessionID})
}

func (l *Loopback) forget(sessionID string) {
	l.mu.Lock()
	delete(l.cancels, sessionID)
	l.mu.Unlock()
}

// estimate approximates speaking time from word count and speed.
func (l *Loopback) estimate(text string, speed float64) time.Duration {
	if speed <= 0 {
		speed = 1.0
	}
	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	d := time.Duration(float64(words) * float64(l.baseWord) / speed)
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}
