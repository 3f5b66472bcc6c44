package types

import "time"

type ActivityKind string

const (
	ActivityAgentMessage     ActivityKind = "agent_message"
	ActivityUserMessage      ActivityKind = "user_message"
	ActivityPlanGenerated    ActivityKind = "plan_generated"
	ActivityPlanApproved     ActivityKind = "plan_approved"
	ActivityProgressUpdate   ActivityKind = "progress_update"
	ActivitySessionCompleted ActivityKind = "session_completed"
	ActivitySessionFailed    ActivityKind = "session_failed"
)

// Activity is one event in a session feed. The server assigns the ID and it
// is stable across re-fetches, which is what window deduplication relies on.
type Activity struct {
	ID        string       `json:"id"`
	Kind      ActivityKind `json:"kind"`
	CreatedAt time.Time    `json:"created_at"`
	Text      string       `json:"text,omitempty"`
	PlanID    string       `json:"plan_id,omitempty"`
	Diff      string       `json:"diff,omitempty"`
	Output    string       `json:"output,omitempty"`
}

// Known reports whether the kind is one this client renders natively.
// Servers may ship kinds newer than this build; those render as raw text.
func (k ActivityKind) Known() bool {
	switch k {
	case ActivityAgentMessage, ActivityUserMessage, ActivityPlanGenerated,
		ActivityPlanApproved, ActivityProgressUpdate,
		ActivitySessionCompleted, ActivitySessionFailed:
		return true
	default:
		return false
	}
}
