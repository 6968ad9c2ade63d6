package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// HistoryEntry is one recorded status transition.
type HistoryEntry struct {
	Timestamp time.Time `json:"ts"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Reason    string    `json:"reason"`
}

// History is the append-only status log of a user.
type History []HistoryEntry

// Append returns h with e added. The timestamp is clamped to the last entry
// so the log never goes backwards.
func (h History) Append(e HistoryEntry) History {
	e.Timestamp = e.Timestamp.UTC()
	if n := len(h); n > 0 && e.Timestamp.Before(h[n-1].Timestamp) {
		e.Timestamp = h[n-1].Timestamp
	}
	out := make(History, len(h), len(h)+1)
	copy(out, h)
	return append(out, e)
}

// Ordered reports whether timestamps are non-decreasing.
func (h History) Ordered() bool {
	for i := 1; i < len(h); i++ {
		if h[i].Timestamp.Before(h[i-1].Timestamp) {
			return false
		}
	}
	return true
}

// Last returns the most recent entry.
func (h History) Last() (HistoryEntry, bool) {
	if len(h) == 0 {
		return HistoryEntry{}, false
	}
	return h[len(h)-1], true
}

// EncodeHistory serializes the log for storage; nil encodes as an empty array.
func EncodeHistory(h History) (string, error) {
	if h == nil {
		h = History{}
	}
	b, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("encode history: %w", err)
	}
	return string(b), nil
}

// DecodeHistory parses a stored log. Empty input yields an empty log.
func DecodeHistory(s string) (History, error) {
	if s == "" {
		return History{}, nil
	}
	var h History
	if err := json.Unmarshal([]byte(s), &h); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return h, nil
}
