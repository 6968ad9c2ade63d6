// Package lifecycle decides trial state transitions.
//
// The engine is pure: given a user snapshot, an event and the current instant
// it returns a Decision holding the post-transition record, the side effects
// to run after commit and the history entry to append. Calls outside an
// event's precondition return OutcomeSkipped and leave the record untouched.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/ChuprinaDaria/yoga-bot/internal/domain"
)

// Config holds the lifecycle durations.
type Config struct {
	TrialDuration      time.Duration
	ReminderEvery      time.Duration
	ExtensionDuration  time.Duration
	PromptCleanupAfter time.Duration
}

// DefaultConfig mirrors the production course: 15 days, a reminder every
// 3 days, one extra day, prompt removed a day after the extension ends.
func DefaultConfig() Config {
	return Config{
		TrialDuration:      15 * 24 * time.Hour,
		ReminderEvery:      3 * 24 * time.Hour,
		ExtensionDuration:  24 * time.Hour,
		PromptCleanupAfter: 24 * time.Hour,
	}
}

// staleClaimAfter is how long a content claim without any tracked artifact
// blocks a forced redelivery.
const staleClaimAfter = 15 * time.Minute

// Engine evaluates lifecycle events.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Input carries the event and its arguments.
type Input struct {
	Event Event
	Now   time.Time
	// Force starts the trial without a due pending start, and redelivers
	// content to an active user who holds no artifacts and no live claim.
	Force bool
	// HasArtifacts reports whether the user still holds delivered content.
	HasArtifacts bool
}

// Decide evaluates in against u. It never mutates u.
func (e *Engine) Decide(u domain.User, in Input) Decision {
	now := in.Now.UTC()
	tr, ok := TransitionFor(u.Status, in.Event)
	if !ok {
		return skip(u, in.Event, "precondition not met: status %s does not accept %s", u.Status, in.Event)
	}

	next := u.Clone()
	switch in.Event {
	case EventBegin:
		return e.begin(next, tr, in, now)
	case EventRemind:
		return e.remind(next, tr, now)
	case EventExpire:
		return e.expire(next, tr, now)
	case EventFeedbackPositive, EventFeedbackNegative:
		return e.feedback(next, tr, now)
	case EventExtend:
		return e.extend(next, tr, now)
	case EventCloseExtension:
		return e.closeExtension(next, tr, now)
	}
	return Decision{Event: in.Event, Outcome: OutcomeFailed, Reason: "unknown event", User: u}
}

// ReleaseContentClaim drops the delivery claim taken at claimedAt when no
// content could be delivered, so a later forced begin may retry. A claim
// replaced by a newer one is left alone.
func ReleaseContentClaim(u domain.User, claimedAt time.Time) (domain.User, bool) {
	if u.ContentDeliveredAt == nil || !u.ContentDeliveredAt.Equal(claimedAt) {
		return u, false
	}
	next := u.Clone()
	next.ContentDeliveredAt = nil
	return next, true
}

// RecordPrompt stores the handle of a freshly sent feedback prompt. It
// re-validates against the current record because the send happens after
// the expiry was committed.
func RecordPrompt(u domain.User, messageID int) (domain.User, bool) {
	if u.Status != domain.StatusTrialExpired || u.FeedbackGiven || u.FeedbackMessageID != nil {
		return u, false
	}
	next := u.Clone()
	next.FeedbackMessageID = domain.IntPtr(messageID)
	return next, true
}

func (e *Engine) begin(u domain.User, tr Transition, in Input, now time.Time) Decision {
	if u.Status == domain.StatusTrialActive {
		if in.Force && !in.HasArtifacts {
			if c := u.ContentDeliveredAt; c != nil && now.Sub(*c) < staleClaimAfter {
				return skip(u, in.Event, "content delivery in progress since %s", c.Format(time.RFC3339))
			}
			u.PendingStartAt = nil
			u.ContentDeliveredAt = domain.TimePtr(now)
			return Decision{
				Event:   in.Event,
				Outcome: OutcomeOK,
				Reason:  "content_redelivered",
				User:    u,
				Effects: []Effect{{Kind: EffectDeliverContent}},
			}
		}
		return skip(u, in.Event, "trial already active")
	}

	if !in.Force {
		if u.PendingStartAt == nil {
			return skip(u, in.Event, "no pending start")
		}
		if now.Before(*u.PendingStartAt) {
			return skip(u, in.Event, "pending start due at %s", u.PendingStartAt.Format(time.RFC3339))
		}
	}

	var effects []Effect
	if u.FeedbackMessageID != nil {
		effects = append(effects, Effect{Kind: EffectDeletePrompt, MessageID: *u.FeedbackMessageID})
	}
	u.TrialStartedAt = domain.TimePtr(now)
	u.TrialExpiresAt = domain.TimePtr(now.Add(e.cfg.TrialDuration))
	u.LastReminderAt = domain.TimePtr(now)
	u.PendingStartAt = nil
	u.FeedbackGiven = false
	u.FeedbackMessageID = nil
	u.ContentDeliveredAt = domain.TimePtr(now)
	effects = append(effects,
		Effect{Kind: EffectSend, Notice: NoticeCourseIntro},
		Effect{Kind: EffectDeliverContent},
	)
	return commit(u, tr, now, tr.Reason, effects)
}

func (e *Engine) remind(u domain.User, tr Transition, now time.Time) Decision {
	last := u.LastReminderAt
	if last == nil {
		last = u.TrialStartedAt
	}
	if last == nil || u.TrialExpiresAt == nil {
		return skip(u, tr.Event, "no trial window")
	}
	if now.Sub(*last) < e.cfg.ReminderEvery {
		return skip(u, tr.Event, "reminder not due")
	}
	days, _ := u.DaysLeft(now)
	if days <= 0 {
		return skip(u, tr.Event, "no whole days left")
	}
	u.LastReminderAt = domain.TimePtr(now)
	d := commit(u, tr, now, "", []Effect{{Kind: EffectSend, Notice: NoticeReminder, DaysLeft: days}})
	d.Reason = "reminder_sent"
	return d
}

func (e *Engine) expire(u domain.User, tr Transition, now time.Time) Decision {
	if u.TrialExpiresAt == nil {
		return skip(u, tr.Event, "no trial window")
	}
	if now.Before(*u.TrialExpiresAt) {
		return skip(u, tr.Event, "trial not expired yet")
	}
	switch {
	case !u.FeedbackGiven:
		return commit(u, tr, now, ReasonCourseExpired, []Effect{
			{Kind: EffectSend, Notice: NoticeFeedbackPrompt, RecordPrompt: true},
		})
	case u.ExtensionUsed:
		return commit(u, tr, now, ReasonExtensionExpired, nil)
	}
	return skip(u, tr.Event, "feedback already given")
}

func (e *Engine) feedback(u domain.User, tr Transition, now time.Time) Decision {
	if u.FeedbackMessageID == nil {
		return skip(u, tr.Event, "no feedback prompt outstanding")
	}
	if u.FeedbackGiven {
		return skip(u, tr.Event, "feedback already given")
	}
	prompt := *u.FeedbackMessageID
	u.FeedbackGiven = true
	if tr.Event == EventFeedbackPositive {
		u.FeedbackMessageID = nil
		return commit(u, tr, now, tr.Reason, []Effect{
			{Kind: EffectEditPrompt, Notice: NoticePositiveOffer, MessageID: prompt},
		})
	}
	d := commit(u, tr, now, "", []Effect{
		{Kind: EffectEditPrompt, Notice: NoticeExtensionOffer, MessageID: prompt},
	})
	d.Reason = "negative_course_feedback"
	return d
}

func (e *Engine) extend(u domain.User, tr Transition, now time.Time) Decision {
	if u.ExtensionUsed {
		return skip(u, tr.Event, "extension already used")
	}
	if !u.FeedbackGiven {
		return skip(u, tr.Event, "feedback not given")
	}
	if u.TrialStartedAt == nil {
		return skip(u, tr.Event, "no trial window")
	}
	u.ExtensionUsed = true
	u.TrialExpiresAt = domain.TimePtr(now.Add(e.cfg.ExtensionDuration))
	u.ContentDeliveredAt = domain.TimePtr(now)
	var effects []Effect
	if u.FeedbackMessageID != nil {
		effects = append(effects, Effect{Kind: EffectEditPrompt, Notice: NoticeExtensionGranted, MessageID: *u.FeedbackMessageID})
	} else {
		effects = append(effects, Effect{Kind: EffectSend, Notice: NoticeExtensionGranted})
	}
	effects = append(effects, Effect{Kind: EffectDeliverContent})
	return commit(u, tr, now, tr.Reason, effects)
}

func (e *Engine) closeExtension(u domain.User, tr Transition, now time.Time) Decision {
	if !u.ExtensionUsed {
		return skip(u, tr.Event, "extension not used")
	}
	if u.FeedbackMessageID == nil {
		return skip(u, tr.Event, "no feedback prompt to remove")
	}
	if u.TrialExpiresAt == nil {
		return skip(u, tr.Event, "no trial window")
	}
	if !extensionWindow(u.StatusHistory) {
		return skip(u, tr.Event, "prompt does not belong to an extension")
	}
	if now.Before(u.TrialExpiresAt.Add(e.cfg.PromptCleanupAfter)) {
		return skip(u, tr.Event, "extension cleanup not due")
	}
	prompt := *u.FeedbackMessageID
	u.FeedbackMessageID = nil
	d := commit(u, tr, now, "", []Effect{
		{Kind: EffectDeletePrompt, MessageID: prompt},
		{Kind: EffectSend, Notice: NoticeClosing},
	})
	d.Reason = "extension_prompt_removed"
	return d
}

// extensionWindow reports whether the current trial window is the extension.
// A restart after an extension keeps ExtensionUsed set, so the flag alone
// does not tell the windows apart.
func extensionWindow(h domain.History) bool {
	last, ok := h.Last()
	if !ok {
		return false
	}
	return last.Reason == ReasonExtensionUsed || last.Reason == ReasonExtensionExpired
}

func commit(u domain.User, tr Transition, now time.Time, reason string, effects []Effect) Decision {
	from := u.Status
	u.Status = tr.To
	d := Decision{
		Event:   tr.Event,
		Outcome: OutcomeOK,
		Reason:  reason,
		Effects: effects,
	}
	if reason != "" && from != tr.To {
		entry := domain.HistoryEntry{Timestamp: now, From: from, To: tr.To, Reason: reason}
		u.StatusHistory = u.StatusHistory.Append(entry)
		last, _ := u.StatusHistory.Last()
		d.History = &last
	}
	d.User = u
	return d
}

func skip(u domain.User, ev Event, format string, args ...any) Decision {
	return Decision{
		Event:   ev,
		Outcome: OutcomeSkipped,
		Reason:  fmt.Sprintf(format, args...),
		User:    u,
	}
}
