package app

import (
	"context"

	"vantage/internal/client"
	"vantage/internal/feed"
	"vantage/internal/types"
)

// SessionAPI is the slice of the remote client the UI depends on.
type SessionAPI interface {
	ListSessions(ctx context.Context) ([]*types.Session, error)
	GetSession(ctx context.Context, id string) (*types.Session, error)
	ListActivities(ctx context.Context, sessionID string, pageSize int, cursor string) (*client.ActivityPage, error)
	SendMessage(ctx context.Context, sessionID, text string) (*client.SendMessageResponse, error)
	ApprovePlan(ctx context.Context, sessionID, planID string) error
}

// apiFetcher adapts the REST client to the feed engine's page contract.
type apiFetcher struct {
	api SessionAPI
}

func (f apiFetcher) FetchPage(ctx context.Context, sessionID string, pageSize int, cursor string) (*feed.Page, error) {
	page, err := f.api.ListActivities(ctx, sessionID, pageSize, cursor)
	if err != nil {
		return nil, err
	}
	return &feed.Page{
		Activities: page.Activities,
		NextCursor: page.NextCursor,
	}, nil
}

func sessionStatusFunc(api SessionAPI, sessionID string) feed.StatusFunc {
	return func(ctx context.Context) (types.SessionState, error) {
		session, err := api.GetSession(ctx, sessionID)
		if err != nil {
			return "", err
		}
		return session.State, nil
	}
}
