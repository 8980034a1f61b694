package speech

import (
	"testing"
	"time"
)

func TestNewSessionDefaults(t *testing.T) {
	now := time.Now()
	req := Request{
		ID:       "req-1",
		SourceID: "doc-1",
		Text:     "hello world",
		Voice:    "en_US-amy-medium",
		Priority: PriorityHigh,
	}

	s := newSession(req, now)

	if s.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if s.Status != StatusQueued {
		t.Errorf("status = %v, want %v", s.Status, StatusQueued)
	}
	if s.SourceID != "doc-1" {
		t.Errorf("source id = %q, want %q", s.SourceID, "doc-1")
	}
	if s.Speed != 1.0 {
		t.Errorf("unset speed = %v, want default 1.0", s.Speed)
	}
	if s.Priority != PriorityHigh {
		t.Errorf("priority = %v, want %v", s.Priority, PriorityHigh)
	}
	if !s.StartTime.Equal(now) {
		t.Errorf("start time = %v, want %v", s.StartTime, now)
	}
}

func TestNewSessionUniqueIDs(t *testing.T) {
	now := time.Now()
	a := newSession(Request{}, now)
	b := newSession(Request{}, now)
	if a.SessionID == b.SessionID {
		t.Errorf("session ids must not repeat, both %q", a.SessionID)
	}
}

func TestSessionTransitions(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		ok   bool
	}{
		{"queued to playing", StatusQueued, StatusPlaying, true},
		{"queued to stopped", StatusQueued, StatusStopped, true},
		{"queued to completed", StatusQueued, StatusCompleted, true},
		{"queued to paused", StatusQueued, StatusPaused, false},
		{"playing to paused", StatusPlaying, StatusPaused, true},
		{"playing to stopped", StatusPlaying, StatusStopped, true},
		{"playing to completed", StatusPlaying, StatusCompleted, true},
		{"playing to queued", StatusPlaying, StatusQueued, false},
		{"paused to playing", StatusPaused, StatusPlaying, true},
		{"paused to stopped", StatusPaused, StatusStopped, true},
		{"paused to completed", StatusPaused, StatusCompleted, true},
		{"stopped is terminal", StatusStopped, StatusPlaying, false},
		{"completed is terminal", StatusCompleted, StatusQueued, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{Status: tt.from}
			got := s.transition(tt.to)
			if got != tt.ok {
				t.Errorf("transition(%v) from %v = %v, want %v", tt.to, tt.from, got, tt.ok)
			}
			want := tt.from
			if tt.ok {
				want = tt.to
			}
			if s.Status != want {
				t.Errorf("status after transition = %v, want %v", s.Status, want)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusQueued, false},
		{StatusPlaying, false},
		{StatusPaused, false},
		{StatusStopped, true},
		{StatusCompleted, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%v.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusQueued, "queued"},
		{StatusPlaying, "playing"},
		{StatusPaused, "paused"},
		{StatusStopped, "stopped"},
		{StatusCompleted, "completed"},
		{Status(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestCanPauseCanResume(t *testing.T) {
	tests := []struct {
		status    Status
		canPause  bool
		canResume bool
	}{
		{StatusQueued, false, false},
		{StatusPlaying, true, false},
		{StatusPaused, false, true},
		{StatusStopped, false, false},
		{StatusCompleted, false, false},
	}

	for _, tt := range tests {
		s := &Session{Status: tt.status}
		if got := s.CanPause(); got != tt.canPause {
			t.Errorf("%v: CanPause() = %v, want %v", tt.status, got, tt.canPause)
		}
		if got := s.CanResume(); got != tt.canResume {
			t.Errorf("%v: CanResume() = %v, want %v", tt.status, got, tt.canResume)
		}
	}
}
