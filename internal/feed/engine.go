package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"vantage/internal/logging"
	"vantage/internal/types"
)

// ErrOperationInFlight is returned when a catch-up or older-load trigger
// arrives while another window operation is running. It is a skip signal,
// not a failure: the in-flight operation already covers the trigger.
var ErrOperationInFlight = errors.New("feed: operation already in flight")

type State int

const (
	StateUninitialized State = iota
	StatePositioning
	StateSteady
	StateCatchingUp
	StateLoadingOlder
)

func (s State) String() string {
	switch s {
	case StatePositioning:
		return "positioning"
	case StateSteady:
		return "steady"
	case StateCatchingUp:
		return "catching_up"
	case StateLoadingOlder:
		return "loading_older"
	default:
		return "uninitialized"
	}
}

// Page is one fetched slice of the feed. An empty NextCursor marks the
// frontier: the newest data the server had at fetch time.
type Page struct {
	Activities []types.Activity
	NextCursor string
}

// Fetcher is the single remote call the engine drives. No retries here;
// the engine aborts the current loop on failure and the caller re-triggers.
type Fetcher interface {
	FetchPage(ctx context.Context, sessionID string, pageSize int, cursor string) (*Page, error)
}

// HistoryStore is the slice of the store the engine needs. Load misses and
// save failures are never fatal to traversal.
type HistoryStore interface {
	Load(ctx context.Context, sessionID string) (*types.HistoryEntry, bool, error)
	Save(ctx context.Context, sessionID string, entry *types.HistoryEntry) error
}

type Options struct {
	SessionID string
	PageSize  int
	Fetcher   Fetcher
	History   HistoryStore
	Processor Processor
	Logger    logging.Logger
}

// Engine reconciles the forward-only cursor feed with a chat window:
// it owns the cursor ledger, the (topIndex, bottomIndex) traversal
// position, and the deduplicated activity window for one session view.
//
// All window operations are fully serialized: positioning, catch-up and
// older-load never interleave their window updates. Redundant triggers
// while an operation runs return ErrOperationInFlight.
type Engine struct {
	sessionID string
	pageSize  int
	fetcher   Fetcher
	history   HistoryStore
	proc      Processor
	log       logging.Logger

	mu          sync.Mutex
	busy        bool
	state       State
	ledger      *Ledger
	top         int
	bottom      int
	window      []types.Activity
	seen        map[string]struct{}
	moreHistory bool
	positioned  bool
	lastTS      string

	updates chan struct{}
}

func NewEngine(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	proc := opts.Processor
	if proc == nil {
		proc = Passthrough()
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Engine{
		sessionID: opts.SessionID,
		pageSize:  pageSize,
		fetcher:   opts.Fetcher,
		history:   opts.History,
		proc:      proc,
		log:       log.With(logging.F("session", opts.SessionID)),
		state:     StateUninitialized,
		ledger:    NewLedger(),
		seen:      map[string]struct{}{},
		updates:   make(chan struct{}, 1),
	}
}

// Snapshot is a copied view of the engine for rendering. The window slice
// is owned by the caller.
type Snapshot struct {
	State       State
	Window      []types.Activity
	TopIndex    int
	BottomIndex int
	LedgerLen   int
	MoreHistory bool
	Positioned  bool
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		State:       e.state,
		Window:      append([]types.Activity{}, e.window...),
		TopIndex:    e.top,
		BottomIndex: e.bottom,
		LedgerLen:   e.ledger.Len(),
		MoreHistory: e.moreHistory,
		Positioned:  e.positioned,
	}
}

// Updates signals coalesced window changes; receivers re-read Snapshot.
func (e *Engine) Updates() <-chan struct{} {
	return e.updates
}

func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// Position establishes the initial traversal position for the session view
// and catches up to the server frontier. With a usable cached ledger the
// window opens at the newest known page; otherwise the whole history is
// walked from the start cursor, which is the unavoidable cost of an empty
// cache.
func (e *Engine) Position(ctx context.Context) error {
	if err := e.begin(StatePositioning); err != nil {
		return err
	}
	defer e.end()

	entry, ok, err := e.history.Load(ctx, e.sessionID)
	if err != nil {
		e.log.Warn("history load failed; treating as miss", logging.F("err", err))
		ok = false
	}

	e.mu.Lock()
	e.window = nil
	e.seen = map[string]struct{}{}
	e.positioned = false
	if ok && len(entry.CursorLedger) > 1 {
		ledger, ledgerErr := NewLedgerFrom(entry.CursorLedger)
		if ledgerErr != nil {
			ledger = NewLedger()
		}
		e.ledger = ledger
		e.top = ledger.Len() - 1
		e.bottom = e.top
		e.lastTS = entry.LastActivityTimestamp
	} else {
		e.ledger = NewLedger()
		e.top = 0
		e.bottom = 0
		e.lastTS = ""
	}
	e.moreHistory = e.top > 0
	e.mu.Unlock()
	e.notify()

	if _, err := e.catchUpLoop(ctx); err != nil {
		return err
	}
	return nil
}

// CatchUp advances bottomIndex to the server frontier, appending each new
// page to the window. Invoking it with no new server-side data changes
// nothing. Returns the number of activities appended.
func (e *Engine) CatchUp(ctx context.Context) (int, error) {
	if err := e.begin(StateCatchingUp); err != nil {
		return 0, err
	}
	defer e.end()
	return e.catchUpLoop(ctx)
}

// LoadOlder materializes one more page of history above the window using
// the cursor below topIndex. A call with no history left is a no-op.
// Returns the number of activities prepended.
func (e *Engine) LoadOlder(ctx context.Context) (int, error) {
	if err := e.begin(StateLoadingOlder); err != nil {
		return 0, err
	}
	defer e.end()

	e.mu.Lock()
	if e.top == 0 {
		e.mu.Unlock()
		return 0, nil
	}
	cursor, err := e.ledger.At(e.top - 1)
	e.mu.Unlock()
	if err != nil {
		return 0, err
	}

	page, err := e.fetcher.FetchPage(ctx, e.sessionID, e.pageSize, cursor)
	if err != nil {
		e.log.Warn("older-load fetch failed", logging.F("err", err))
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	activities := e.proc.Process(page.Activities)

	e.mu.Lock()
	fresh := make([]types.Activity, 0, len(activities))
	for _, act := range activities {
		if _, dup := e.seen[act.ID]; dup {
			continue
		}
		e.seen[act.ID] = struct{}{}
		fresh = append(fresh, act)
	}
	e.window = append(fresh, e.window...)
	e.top--
	e.moreHistory = e.top > 0
	prepended := len(fresh)
	e.mu.Unlock()
	e.notify()

	e.persist(ctx)
	return prepended, nil
}

// catchUpLoop fetches forward in strict cursor order until the server
// returns no cursor. Pages apply in fetch order; the next page is never
// requested before the previous page's cursor is known. Only cursors from
// fully successful fetches reach the ledger.
func (e *Engine) catchUpLoop(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		e.mu.Lock()
		cursor, err := e.ledger.At(e.bottom)
		e.mu.Unlock()
		if err != nil {
			return total, err
		}

		page, err := e.fetcher.FetchPage(ctx, e.sessionID, e.pageSize, cursor)
		if err != nil {
			e.log.Warn("catch-up fetch failed", logging.F("cursor", cursor), logging.F("err", err))
			return total, err
		}
		if err := ctx.Err(); err != nil {
			// View torn down mid-loop; do not mutate state for it.
			return total, err
		}
		activities := e.proc.Process(page.Activities)

		e.mu.Lock()
		for _, act := range activities {
			if _, dup := e.seen[act.ID]; dup {
				continue
			}
			e.seen[act.ID] = struct{}{}
			e.window = append(e.window, act)
			if !act.CreatedAt.IsZero() {
				e.lastTS = act.CreatedAt.UTC().Format(time.RFC3339Nano)
			}
			total++
		}
		e.positioned = true
		advanced := false
		if page.NextCursor != "" {
			if idx, known := e.ledger.Index(page.NextCursor); known {
				// Overlapping fetch returned a cursor we already hold;
				// jump bottom forward instead of re-appending.
				if idx > e.bottom {
					e.bottom = idx
					advanced = true
				}
			} else {
				e.ledger.Append(page.NextCursor)
				e.bottom = e.ledger.Len() - 1
				advanced = true
			}
		}
		e.mu.Unlock()
		e.notify()

		if page.NextCursor == "" || !advanced {
			break
		}
	}

	e.persist(ctx)
	return total, nil
}

// persist mirrors the ledger and newest timestamp to the history cache.
// Best effort: a failed save costs a colder start next mount, nothing else.
func (e *Engine) persist(ctx context.Context) {
	e.mu.Lock()
	entry := &types.HistoryEntry{
		CursorLedger:          e.ledger.Cursors(),
		LastActivityTimestamp: e.lastTS,
	}
	e.mu.Unlock()
	if err := e.history.Save(ctx, e.sessionID, entry); err != nil {
		e.log.Warn("history save failed", logging.F("err", err))
	}
}

func (e *Engine) begin(op State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return ErrOperationInFlight
	}
	e.busy = true
	e.state = op
	return nil
}

func (e *Engine) end() {
	e.mu.Lock()
	e.busy = false
	e.state = StateSteady
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) notify() {
	select {
	case e.updates <- struct{}{}:
	default:
	}
}
