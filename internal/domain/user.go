package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvariant marks a user record that must not be persisted.
var ErrInvariant = errors.New("user invariant violated")

// User is one trial participant, keyed by the Telegram user id.
type User struct {
	ID                int64
	ChatID            int64
	Status            Status
	TrialStartedAt    *time.Time // UTC, nullable
	TrialExpiresAt    *time.Time // UTC, set iff TrialStartedAt is set
	LastReminderAt    *time.Time // UTC, nullable
	FeedbackGiven     bool
	ExtensionUsed     bool
	FeedbackMessageID *int       // outstanding feedback prompt, nullable
	PendingStartAt    *time.Time // deferred begin not yet fired
	// ContentDeliveredAt is the claim taken when course content was handed
	// out for the current window. Nil means nothing is delivered or pending.
	ContentDeliveredAt *time.Time
	StatusHistory      History
	CreatedAt          time.Time // UTC
}

// NewUser returns a fresh record with default status.
func NewUser(id, chatID int64, now time.Time) *User {
	return &User{
		ID:        id,
		ChatID:    chatID,
		Status:    StatusNew,
		CreatedAt: now.UTC(),
	}
}

// Validate checks the record-level invariants.
func (u *User) Validate() error {
	if u.ID == 0 {
		return fmt.Errorf("%w: empty user id", ErrInvariant)
	}
	if _, err := ParseStatus(string(u.Status)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	if (u.TrialStartedAt == nil) != (u.TrialExpiresAt == nil) {
		return fmt.Errorf("%w: trial_started_at and trial_expires_at must be set together", ErrInvariant)
	}
	if !u.StatusHistory.Ordered() {
		return fmt.Errorf("%w: status history out of order", ErrInvariant)
	}
	return nil
}

// DaysLeft returns whole days until the trial expires, truncated toward zero.
// ok is false when the user has no trial.
func (u *User) DaysLeft(now time.Time) (days int, ok bool) {
	if u.TrialExpiresAt == nil {
		return 0, false
	}
	return int(u.TrialExpiresAt.Sub(now) / (24 * time.Hour)), true
}

// Clone returns a deep copy so decisions never alias the stored record.
func (u *User) Clone() User {
	c := *u
	c.TrialStartedAt = cloneTime(u.TrialStartedAt)
	c.TrialExpiresAt = cloneTime(u.TrialExpiresAt)
	c.LastReminderAt = cloneTime(u.LastReminderAt)
	c.PendingStartAt = cloneTime(u.PendingStartAt)
	c.ContentDeliveredAt = cloneTime(u.ContentDeliveredAt)
	if u.FeedbackMessageID != nil {
		id := *u.FeedbackMessageID
		c.FeedbackMessageID = &id
	}
	c.StatusHistory = append(History(nil), u.StatusHistory...)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr is a small helper for optional timestamps.
func TimePtr(t time.Time) *time.Time {
	v := t.UTC()
	return &v
}

// IntPtr is a small helper for optional message handles.
func IntPtr(v int) *int { return &v }
