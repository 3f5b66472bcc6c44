package types

import "time"

type SessionState string

const (
	SessionStateQueued           SessionState = "queued"
	SessionStatePlanning         SessionState = "planning"
	SessionStateAwaitingApproval SessionState = "awaiting_approval"
	SessionStateInProgress       SessionState = "in_progress"
	SessionStateCompleted        SessionState = "completed"
	SessionStateFailed           SessionState = "failed"
	SessionStateCancelled        SessionState = "cancelled"
)

// Terminal reports whether the server will produce no further activity for
// a session in this state. Polling halts on terminal states.
func (s SessionState) Terminal() bool {
	switch s {
	case SessionStateCompleted, SessionStateFailed, SessionStateCancelled:
		return true
	default:
		return false
	}
}

type Session struct {
	ID        string       `json:"id"`
	Title     string       `json:"title,omitempty"`
	Prompt    string       `json:"prompt,omitempty"`
	State     SessionState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt *time.Time   `json:"updated_at,omitempty"`
}
