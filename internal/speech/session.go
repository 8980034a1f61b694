// Package speech implements the session queue manager: the state machine
// that arbitrates which single synthesis request is currently active. At most
// one session is non-terminal at any instant when stop-previous mode is
// active.
package speech

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a session.
type Status int

const (
	// StatusQueued means the session holds the slot but audio has not
	// started yet.
	StatusQueued Status = iota
	// StatusPlaying means the synthesis collaborator reported start.
	StatusPlaying
	// StatusPaused means playback is paused.
	StatusPaused
	// StatusStopped is terminal: the session was ended before completing.
	StatusStopped
	// StatusCompleted is terminal: the session finished normally.
	StatusCompleted
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusStopped:
		return "stopped"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusCompleted
}

// validTransitions holds the allowed status graph. Transitions are monotone
// except the paused/playing cycle.
var validTransitions = map[Status][]Status{
	StatusQueued:    {StatusPlaying, StatusStopped, StatusCompleted},
	StatusPlaying:   {StatusPaused, StatusStopped, StatusCompleted},
	StatusPaused:    {StatusPlaying, StatusStopped, StatusCompleted},
	StatusStopped:   {},
	StatusCompleted: {},
}

// Session is one synthesis/playback attempt from request to terminal
// outcome. Only the Manager mutates a session, always under its lock.
type Session struct {
	SessionID  string
	SourceID   string
	Status     Status
	Text       string
	VoiceID    string
	Speed      float64
	Priority   Priority
	Progress   float64
	StartTime  time.Time
	PausedTime time.Time
	ResumeTime time.Time
}

// newSession builds a queued session from a request. Session identifiers are
// never reused.
func newSession(req Request, now time.Time) *Session {
	speed := req.Speed
	if speed <= 0 {
		speed = 1.0
	}
	return &Session{
		SessionID: uuid.NewString(),
		SourceID:  req.SourceID,
		Status:    StatusQueued,
		Text:      req.Text,
		VoiceID:   req.Voice,
		Speed:     speed,
		Priority:  req.Priority,
		StartTime: now,
	}
}

// transition moves the session to the target status if the status graph
// allows it and reports whether it happened.
func (s *Session) transition(to Status) bool {
	for _, allowed := range validTransitions[s.Status] {
		if allowed == to {
			s.Status = to
			return true
		}
	}
	return false
}

// CanPause reports whether the session may be paused.
func (s *Session) CanPause() bool {
	return s.Status == StatusPlaying
}

// CanResume reports whether the session may be resumed.
func (s *Session) CanResume() bool {
	return s.Status == StatusPaused
}
