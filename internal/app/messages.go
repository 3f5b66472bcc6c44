package app

import (
	"vantage/internal/types"
)

type sessionsMsg struct {
	sessions []*types.Session
	err      error
}

type positionedMsg struct {
	sessionID string
	err       error
}

type feedUpdatedMsg struct {
	sessionID string
}

type caughtUpMsg struct {
	sessionID string
	appended  int
	err       error
}

type olderLoadedMsg struct {
	sessionID string
	prepended int
	err       error
}

type sentMsg struct {
	sessionID string
	err       error
}

type planApprovedMsg struct {
	sessionID string
	planID    string
	err       error
}

type clipboardResultMsg struct {
	success string
	err     error
}
