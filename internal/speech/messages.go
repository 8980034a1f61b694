package speech

// Bus topics consumed and produced by the session queue manager. Lifecycle
// topics (speech.*) are shared with the synthesis collaborator; playback.*
// topics are notifications for presentation collaborators.
const (
	// TopicRequest carries incoming Request payloads.
	TopicRequest = "speech.request"
	// TopicStarted is emitted by the synthesis collaborator when audio for
	// a session begins playing.
	TopicStarted = "speech.started"
	// TopicCompleted is emitted by the synthesis collaborator when a
	// session finishes.
	TopicCompleted = "speech.completed"
	// TopicError is emitted by the synthesis collaborator on failure.
	TopicError = "speech.error"
	// TopicStop carries stop commands for a specific session. Downstream
	// collaborators are expected to observe it and abort their own work;
	// cancellation is cooperative, never forcible.
	TopicStop = "speech.stop"
	// TopicSynthesize forwards an admitted session to the synthesis
	// collaborator.
	TopicSynthesize = "speech.synthesize"

	// TopicPlaybackStarted announces that a new session took the slot.
	TopicPlaybackStarted = "playback.started"
	// TopicStopped announces that a session left the slot before
	// completing, with the reason.
	TopicStopped = "playback.stopped"
	// TopicPaused announces that the current session was paused.
	TopicPaused = "playback.paused"
	// TopicResumed announces that the current session resumed.
	TopicResumed = "playback.resumed"
	// TopicRejected announces that a request was refused or evicted by the
	// pending queue's overflow policy.
	TopicRejected = "playback.rejected"
)

// Priority orders pending queue entries. Higher priorities dequeue first.
type Priority int

const (
	// PriorityLow is for background reading.
	PriorityLow Priority = iota
	// PriorityNormal is the default.
	PriorityNormal
	// PriorityHigh is for user-initiated navigation.
	PriorityHigh
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// StopReason explains why a session was stopped.
type StopReason string

const (
	// ReasonSuperseded means a newer request replaced the session.
	ReasonSuperseded StopReason = "superseded"
	// ReasonManual means an explicit stop call ended the session.
	ReasonManual StopReason = "manual"
	// ReasonError means the synthesis collaborator reported a failure.
	ReasonError StopReason = "error"
	// ReasonTimeout means the stale-session sweep force-stopped it.
	ReasonTimeout StopReason = "timeout"
)

// Request is the payload of TopicRequest events.
type Request struct {
	ID       string
	SourceID string
	Text     string
	Voice    string
	Speed    float64
	Priority Priority
}

// StartedMsg is the payload of TopicStarted events.
type StartedMsg struct {
	SessionID string
}

// CompletedMsg is the payload of TopicCompleted events.
type CompletedMsg struct {
	SessionID string
}

// ErrorMsg is the payload of TopicError events.
type ErrorMsg struct {
	SessionID string
	Err       error
}

// StopCommand is the payload of TopicStop events.
type StopCommand struct {
	SessionID string
}

// SynthesizeMsg is the payload of TopicSynthesize events.
type SynthesizeMsg struct {
	SessionID string
	Text      string
	Voice     string
	Speed     float64
}

// PlaybackStartedMsg is the payload of TopicPlaybackStarted events.
type PlaybackStartedMsg struct {
	SessionID string
	SourceID  string
}

// StoppedMsg is the payload of TopicStopped events.
type StoppedMsg struct {
	SessionID string
	Reason    StopReason
}

// PausedMsg is the payload of TopicPaused events.
type PausedMsg struct {
	SessionID string
	Progress  float64
}

// ResumedMsg is the payload of TopicResumed events.
type ResumedMsg struct {
	SessionID string
}

// RejectedMsg is the payload of TopicRejected events.
type RejectedMsg struct {
	RequestID string
	Reason    string
}
