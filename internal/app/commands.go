package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"vantage/internal/feed"
)

func fetchSessionsCmd(api SessionAPI) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
		defer cancel()
		sessions, err := api.ListSessions(ctx)
		return sessionsMsg{sessions: sessions, err: err}
	}
}

func positionCmd(ctx context.Context, engine *feed.Engine, sessionID string) tea.Cmd {
	return func() tea.Msg {
		err := engine.Position(ctx)
		return positionedMsg{sessionID: sessionID, err: err}
	}
}

func catchUpCmd(ctx context.Context, engine *feed.Engine, sessionID string) tea.Cmd {
	return func() tea.Msg {
		appended, err := engine.CatchUp(ctx)
		return caughtUpMsg{sessionID: sessionID, appended: appended, err: err}
	}
}

func loadOlderCmd(ctx context.Context, engine *feed.Engine, sessionID string) tea.Cmd {
	return func() tea.Msg {
		prepended, err := engine.LoadOlder(ctx)
		return olderLoadedMsg{sessionID: sessionID, prepended: prepended, err: err}
	}
}

func sendMessageCmd(api SessionAPI, sessionID, text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := api.SendMessage(ctx, sessionID, text)
		return sentMsg{sessionID: sessionID, err: err}
	}
}

func approvePlanCmd(api SessionAPI, sessionID, planID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := api.ApprovePlan(ctx, sessionID, planID)
		return planApprovedMsg{sessionID: sessionID, planID: planID, err: err}
	}
}

// waitForFeedCmd re-arms after every feedUpdatedMsg; the engine coalesces
// bursts into single signals.
func waitForFeedCmd(ctx context.Context, engine *feed.Engine, sessionID string) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case <-engine.Updates():
			return feedUpdatedMsg{sessionID: sessionID}
		}
	}
}

func copyToClipboardCmd(text, success string) tea.Cmd {
	return func() tea.Msg {
		_, err := copyTextToClipboard(text)
		return clipboardResultMsg{success: success, err: err}
	}
}
