package types

// HistoryEntry is the persisted pagination record for one session: every
// cursor discovered so far plus the timestamp of the newest activity seen.
// It is a rebuildable cache, not a source of truth.
type HistoryEntry struct {
	CursorLedger          []string `json:"cursor_ledger"`
	LastActivityTimestamp string   `json:"last_activity_timestamp,omitempty"`
	LastUpdateTime        int64    `json:"last_update_time"`
}

// Valid reports whether the entry is structurally usable: a non-empty
// ledger whose first cursor is the empty start-of-session token.
func (e *HistoryEntry) Valid() bool {
	if e == nil || len(e.CursorLedger) == 0 {
		return false
	}
	return e.CursorLedger[0] == ""
}

func CloneHistoryEntry(e *HistoryEntry) *HistoryEntry {
	if e == nil {
		return nil
	}
	clone := *e
	clone.CursorLedger = append([]string{}, e.CursorLedger...)
	return &clone
}
