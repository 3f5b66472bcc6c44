package client

import "vantage/internal/types"

type SessionsResponse struct {
	Sessions []*types.Session `json:"sessions"`
}

type CreateSessionRequest struct {
	Title  string `json:"title,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

// ActivityPage is one slice of the forward-only feed. NextCursor, when
// present, fetches the page strictly after this one; its absence marks the
// frontier at fetch time.
type ActivityPage struct {
	Activities []types.Activity `json:"activities"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type SendMessageRequest struct {
	Text string `json:"text"`
}

type SendMessageResponse struct {
	OK         bool   `json:"ok"`
	ActivityID string `json:"activity_id,omitempty"`
}

type ApprovePlanRequest struct {
	PlanID string `json:"plan_id,omitempty"`
}
