package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vantage/internal/types"
)

func act(id string) types.Activity {
	return types.Activity{
		ID:        id,
		Kind:      types.ActivityAgentMessage,
		Text:      "text " + id,
		CreatedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]*Page
	errs  map[string]error
	calls []string

	// gate, when set, blocks each fetch until released; started receives
	// the cursor before blocking.
	gate    chan struct{}
	started chan string
}

func (f *fakeFetcher) FetchPage(ctx context.Context, sessionID string, pageSize int, cursor string) (*Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cursor)
	page := f.pages[cursor]
	err := f.errs[cursor]
	f.mu.Unlock()

	if f.started != nil {
		f.started <- cursor
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if page == nil {
		return &Page{}, nil
	}
	return &Page{Activities: append([]types.Activity{}, page.Activities...), NextCursor: page.NextCursor}, nil
}

func (f *fakeFetcher) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

type fakeHistory struct {
	mu      sync.Mutex
	entries map[string]*types.HistoryEntry
	saves   int
	loadErr error
	saveErr error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{entries: map[string]*types.HistoryEntry{}}
}

func (h *fakeHistory) Load(ctx context.Context, sessionID string) (*types.HistoryEntry, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loadErr != nil {
		return nil, false, h.loadErr
	}
	entry, ok := h.entries[sessionID]
	if !ok {
		return nil, false, nil
	}
	return types.CloneHistoryEntry(entry), true, nil
}

func (h *fakeHistory) Save(ctx context.Context, sessionID string, entry *types.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.saveErr != nil {
		return h.saveErr
	}
	h.saves++
	h.entries[sessionID] = types.CloneHistoryEntry(entry)
	return nil
}

func newTestEngine(fetcher Fetcher, history HistoryStore) *Engine {
	return NewEngine(Options{
		SessionID: "sess-1",
		PageSize:  100,
		Fetcher:   fetcher,
		History:   history,
	})
}

func windowIDs(snap Snapshot) []string {
	ids := make([]string, 0, len(snap.Window))
	for _, a := range snap.Window {
		ids = append(ids, a.ID)
	}
	return ids
}

func assertIDs(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("window = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("window = %v, want %v", got, want)
		}
	}
}

func assertCursors(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("cursors = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("cursors = %v, want %v", got, want)
		}
	}
}

// Scenario: fresh session, three pages, last page has no forward cursor.
func TestPositionFreshSessionWalksAllPages(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]*Page{
		"":   {Activities: []types.Activity{act("a1"), act("a2")}, NextCursor: "c1"},
		"c1": {Activities: []types.Activity{act("a3")}, NextCursor: "c2"},
		"c2": {Activities: []types.Activity{act("a4")}},
	}}
	history := newFakeHistory()
	e := newTestEngine(fetcher, history)

	if err := e.Position(context.Background()); err != nil {
		t.Fatalf("Position: %v", err)
	}

	assertCursors(t, fetcher.callLog(), []string{"", "c1", "c2"})
	snap := e.Snapshot()
	if snap.TopIndex != 0 || snap.BottomIndex != 2 || snap.LedgerLen != 3 {
		t.Fatalf("position = (%d,%d) ledger=%d", snap.TopIndex, snap.BottomIndex, snap.LedgerLen)
	}
	assertIDs(t, windowIDs(snap), []string{"a1", "a2", "a3", "a4"})
	if snap.MoreHistory {
		t.Fatalf("fresh walk starts at index 0, no more history")
	}
	if snap.State != StateSteady {
		t.Fatalf("state = %s", snap.State)
	}

	saved := history.entries["sess-1"]
	if saved == nil {
		t.Fatalf("positioning should persist the ledger")
	}
	assertCursors(t, saved.CursorLedger, []string{"", "c1", "c2"})
	if saved.LastActivityTimestamp == "" {
		t.Fatalf("persisted entry should carry the newest activity timestamp")
	}
}

// Scenario: returning session with cached ledger ["", "c1", "c2"]; server
// grew a fourth page since last visit.
func TestPositionWithCacheStartsAtNewestKnownCursor(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]*Page{
		"c2": {Activities: []types.Activity{act("a5")}, NextCursor: "c3"},
		"c3": {},
	}}
	history := newFakeHistory()
	history.entries["sess-1"] = &types.HistoryEntry{CursorLedger: []string{"", "c1", "c2"}}
	e := newTestEngine(fetcher, history)

	if err := e.Position(context.Background()); err != nil {
		t.Fatalf("Position: %v", err)
	}

	assertCursors(t, fetcher.callLog(), []string{"c2", "c3"})
	snap := e.Snapshot()
	if snap.TopIndex != 2 || snap.BottomIndex != 3 || snap.LedgerLen != 4 {
		t.Fatalf("position = (%d,%d) ledger=%d", snap.TopIndex, snap.BottomIndex, snap.LedgerLen)
	}
	if !snap.MoreHistory {
		t.Fatalf("older pages remain, more history should be available")
	}
	assertIDs(t, windowIDs(snap), []string{"a5"})
	assertCursors(t, history.entries["sess-1"].CursorLedger, []string{"", "c1", "c2", "c3"})
}

// Scenario: loadOlder steps topIndex back one ledger slot per call and is a
// no-op at index 0.
func TestLoadOlderPrependsAndStopsAtStart(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]*Page{
		"":   {Activities: []types.Activity{act("a1")}, NextCursor: "c1"},
		"c1": {Activities: []types.Activity{act("a3")}, NextCursor: "c2"},
		"c2": {Activities: []types.Activity{act("a5")}},
	}}
	history := newFakeHistory()
	history.entries["sess-1"] = &types.HistoryEntry{CursorLedger: []string{"", "c1", "c2"}}
	e := newTestEngine(fetcher, history)

	if err := e.Position(context.Background()); err != nil {
		t.Fatalf("Position: %v", err)
	}

	n, err := e.LoadOlder(context.Background())
	if err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	if n != 1 {
		t.Fatalf("prepended %d, want 1", n)
	}
	snap := e.Snapshot()
	if snap.TopIndex != 1 {
		t.Fatalf("topIndex = %d, want 1", snap.TopIndex)
	}
	assertIDs(t, windowIDs(snap), []string{"a3", "a5"})

	if _, err := e.LoadOlder(context.Background()); err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	snap = e.Snapshot()
	if snap.TopIndex != 0 || snap.MoreHistory {
		t.Fatalf("topIndex = %d moreHistory=%v", snap.TopIndex, snap.MoreHistory)
	}
	assertIDs(t, windowIDs(snap), []string{"a1", "a3", "a5"})

	before := len(fetcher.callLog())
	n, err = e.LoadOlder(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("LoadOlder at start = (%d, %v), want no-op", n, err)
	}
	if len(fetcher.callLog()) != before {
		t.Fatalf("no fetch should be issued at topIndex 0")
	}
}

func TestCatchUpIsIdempotentWithNoNewData(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]*Page{
		"":   {Activities: []types.Activity{act("a1")}, NextCursor: "c1"},
		"c1": {Activities: []types.Activity{act("a2")}},
	}}
	e := newTestEngine(fetcher, newFakeHistory())
	if err := e.Position(context.Background()); err != nil {
		t.Fatalf("Position: %v", err)
	}
	first := e.Snapshot()

	n, err := e.CatchUp(context.Background())
	if err != nil {
		t.Fatalf("CatchUp: %v", err)
	}
	if n != 0 {
		t.Fatalf("appended %d activities with no new data", n)
	}
	second := e.Snapshot()
	assertIDs(t, windowIDs(second), windowIDs(first))
	if second.TopIndex != first.TopIndex || second.BottomIndex != first.BottomIndex || second.LedgerLen != first.LedgerLen {
		t.Fatalf("traversal position changed: %+v vs %+v", second, first)
	}
}

func TestWindowDeduplicatesAcrossOverlappingPages(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]*Page{
		"":   {Activities: []types.Activity{act("a1"), act("a2")}, NextCursor: "c1"},
		"c1": {Activities: []types.Activity{act("a2"), act("a3")}},
	}}
	e := newTestEngine(fetcher, newFakeHistory())
	if err := e.Position(context.Background()); err != nil {
		t.Fatalf("Position: %v", err)
	}
	assertIDs(t, windowIDs(e.Snapshot()), []string{"a1", "a2", "a3"})
}

func TestOperationsAreSerialized(t *testing.T) {
	fetcher := &fakeFetcher{
		pages:   map[string]*Page{"": {Activities: []types.Activity{act("a1")}}},
		gate:    make(chan struct{}),
		started: make(chan string, 8),
	}
	e := newTestEngine(fetcher, newFakeHistory())

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Position(context.Background())
	}()
	<-fetcher.started

	if _, err := e.CatchUp(context.Background()); !errors.Is(err, ErrOperationInFlight) {
		t.Fatalf("concurrent CatchUp error = %v, want ErrOperationInFlight", err)
	}
	if _, err := e.LoadOlder(context.Background()); !errors.Is(err, ErrOperationInFlight) {
		t.Fatalf("concurrent LoadOlder error = %v, want ErrOperationInFlight", err)
	}

	close(fetcher.gate)
	if err := <-errCh; err != nil {
		t.Fatalf("Position: %v", err)
	}
	if e.Busy() {
		t.Fatalf("engine should be idle after positioning")
	}
}

func TestCatchUpAbortsOnFetchFailureWithoutCorruptingLedger(t *testing.T) {
	fetchErr := errors.New("boom")
	fetcher := &fakeFetcher{
		pages: map[string]*Page{
			"": {Activities: []types.Activity{act("a1")}, NextCursor: "c1"},
		},
		errs: map[string]error{"c1": fetchErr},
	}
	history := newFakeHistory()
	e := newTestEngine(fetcher, history)

	err := e.Position(context.Background())
	if !errors.Is(err, fetchErr) {
		t.Fatalf("Position error = %v, want wrapped fetch error", err)
	}

	snap := e.Snapshot()
	// The first page committed; the failed fetch advanced nothing.
	assertIDs(t, windowIDs(snap), []string{"a1"})
	if snap.BottomIndex != 1 || snap.LedgerLen != 2 {
		t.Fatalf("bottomIndex=%d ledger=%d after abort", snap.BottomIndex, snap.LedgerLen)
	}
	if history.saves != 0 {
		t.Fatalf("aborted loop should not persist")
	}

	// The engine stays usable: fix the server and retry the same trigger.
	fetcher.mu.Lock()
	delete(fetcher.errs, "c1")
	fetcher.pages["c1"] = &Page{Activities: []types.Activity{act("a2")}}
	fetcher.mu.Unlock()

	if _, err := e.CatchUp(context.Background()); err != nil {
		t.Fatalf("retry CatchUp: %v", err)
	}
	assertIDs(t, windowIDs(e.Snapshot()), []string{"a1", "a2"})
	if history.saves != 1 {
		t.Fatalf("successful catch-up should persist once, got %d", history.saves)
	}
}

func TestPositionTreatsHistoryLoadErrorAsMiss(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]*Page{
		"": {Activities: []types.Activity{act("a1")}},
	}}
	history := newFakeHistory()
	history.loadErr = errors.New("disk unhappy")
	e := newTestEngine(fetcher, history)

	if err := e.Position(context.Background()); err != nil {
		t.Fatalf("Position: %v", err)
	}
	assertCursors(t, fetcher.callLog(), []string{""})
}

func TestPositionedAfterFirstPageWhileLoopStillRunning(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: map[string]*Page{
			"":   {Activities: []types.Activity{act("a1")}, NextCursor: "c1"},
			"c1": {Activities: []types.Activity{act("a2")}},
		},
		gate:    make(chan struct{}),
		started: make(chan string, 8),
	}
	e := newTestEngine(fetcher, newFakeHistory())

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Position(context.Background())
	}()

	<-fetcher.started        // first fetch in flight
	fetcher.gate <- struct{}{} // release it
	<-fetcher.started        // second fetch requested, first page applied

	snap := e.Snapshot()
	if !snap.Positioned {
		t.Fatalf("first page should release the loading state mid-loop")
	}
	assertIDs(t, windowIDs(snap), []string{"a1"})
	if !e.Busy() {
		t.Fatalf("loop should still be in flight")
	}

	fetcher.gate <- struct{}{}
	if err := <-errCh; err != nil {
		t.Fatalf("Position: %v", err)
	}
	assertIDs(t, windowIDs(e.Snapshot()), []string{"a1", "a2"})
}

func TestCatchUpStopsWhenViewTornDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &fakeFetcher{
		pages: map[string]*Page{
			"":   {Activities: []types.Activity{act("a1")}, NextCursor: "c1"},
			"c1": {Activities: []types.Activity{act("a2")}},
		},
		gate:    make(chan struct{}),
		started: make(chan string, 8),
	}
	e := newTestEngine(fetcher, newFakeHistory())

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Position(ctx)
	}()
	<-fetcher.started
	fetcher.gate <- struct{}{}
	<-fetcher.started
	cancel()

	err := <-errCh
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Position error = %v, want context.Canceled", err)
	}
	// Only the page applied before cancellation is visible.
	assertIDs(t, windowIDs(e.Snapshot()), []string{"a1"})
}

func TestCatchUpHandlesAlreadyKnownForwardCursor(t *testing.T) {
	// An overlapping response can return a cursor the ledger already holds;
	// bottom jumps to it instead of appending a duplicate.
	fetcher := &fakeFetcher{pages: map[string]*Page{
		"c1": {Activities: []types.Activity{act("a3")}, NextCursor: "c2"},
		"c2": {Activities: []types.Activity{act("a4")}},
	}}
	history := newFakeHistory()
	history.entries["sess-1"] = &types.HistoryEntry{CursorLedger: []string{"", "c1", "c2"}}
	e := newTestEngine(fetcher, history)

	// Cache hit positions at c2; force bottom back to c1 via a fresh walk
	// is not possible here, so drive the overlap directly: position at c2,
	// then feed c2 a response pointing at itself.
	fetcher.pages["c2"] = &Page{Activities: []types.Activity{act("a4")}, NextCursor: "c2"}
	if err := e.Position(context.Background()); err != nil {
		t.Fatalf("Position: %v", err)
	}
	snap := e.Snapshot()
	if snap.LedgerLen != 3 {
		t.Fatalf("ledger grew on duplicate cursor: %d", snap.LedgerLen)
	}
	if snap.BottomIndex != 2 {
		t.Fatalf("bottomIndex = %d, want 2", snap.BottomIndex)
	}
	assertIDs(t, windowIDs(snap), []string{"a4"})
}
