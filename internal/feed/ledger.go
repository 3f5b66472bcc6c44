package feed

import (
	"errors"
	"fmt"
)

// ErrOutOfRange reports a ledger index outside [0, Len). Hitting it means a
// bookkeeping bug, not a recoverable runtime condition.
var ErrOutOfRange = errors.New("feed: ledger index out of range")

// Ledger is the ordered, deduplicated record of every pagination cursor
// discovered for a session. Index 0 is always the empty start-of-session
// cursor; the last index is the most-forward cursor known. It only grows.
//
// Ledger is not safe for concurrent use; the Engine owns one per session
// view and guards it.
type Ledger struct {
	cursors []string
	index   map[string]int
}

func NewLedger() *Ledger {
	return &Ledger{
		cursors: []string{""},
		index:   map[string]int{"": 0},
	}
}

// NewLedgerFrom rebuilds a ledger from a persisted snapshot. The snapshot
// must be non-empty and start with the empty cursor; duplicates are dropped
// preserving first occurrence.
func NewLedgerFrom(cursors []string) (*Ledger, error) {
	if len(cursors) == 0 {
		return nil, errors.New("feed: ledger snapshot is empty")
	}
	if cursors[0] != "" {
		return nil, errors.New("feed: ledger snapshot missing start cursor")
	}
	l := NewLedger()
	for _, cursor := range cursors[1:] {
		l.Append(cursor)
	}
	return l, nil
}

// Append records a newly discovered cursor. Re-appending a known cursor is
// a no-op. Returns the ledger length.
func (l *Ledger) Append(cursor string) int {
	if _, ok := l.index[cursor]; ok {
		return len(l.cursors)
	}
	l.index[cursor] = len(l.cursors)
	l.cursors = append(l.cursors, cursor)
	return len(l.cursors)
}

func (l *Ledger) At(i int) (string, error) {
	if i < 0 || i >= len(l.cursors) {
		return "", fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(l.cursors))
	}
	return l.cursors[i], nil
}

// Index returns the position of a known cursor.
func (l *Ledger) Index(cursor string) (int, bool) {
	i, ok := l.index[cursor]
	return i, ok
}

func (l *Ledger) Len() int {
	return len(l.cursors)
}

// Cursors returns a snapshot copy suitable for persisting.
func (l *Ledger) Cursors() []string {
	return append([]string{}, l.cursors...)
}
