package lifecycle

import "github.com/ChuprinaDaria/yoga-bot/internal/domain"

// Outcome is the typed result of one engine operation.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Notice identifies an outbound text the caller renders.
type Notice int

const (
	NoticeCourseIntro Notice = iota + 1
	NoticeReminder
	NoticeFeedbackPrompt
	NoticePositiveOffer
	NoticeExtensionOffer
	NoticeExtensionGranted
	NoticeClosing
)

// EffectKind is a side effect to run after the state change is committed.
type EffectKind int

const (
	// EffectSend sends a notice to the user's chat.
	EffectSend EffectKind = iota + 1
	// EffectEditPrompt rewrites the feedback prompt in place.
	EffectEditPrompt
	// EffectDeletePrompt removes the feedback prompt from the chat.
	EffectDeletePrompt
	// EffectDeliverContent pushes catalog items and records artifacts.
	EffectDeliverContent
)

// Effect is one side effect of a decision.
type Effect struct {
	Kind      EffectKind
	Notice    Notice
	DaysLeft  int
	MessageID int
	// RecordPrompt asks the caller to store the sent handle as the
	// outstanding feedback prompt.
	RecordPrompt bool
}

// Decision is what the engine computed for (user, event, now).
type Decision struct {
	Event   Event
	Outcome Outcome
	Reason  string
	// User is the post-transition record; equal to the input on Skipped.
	User    domain.User
	Effects []Effect
	History *domain.HistoryEntry
}

// Applied reports whether the decision mutates the record.
func (d Decision) Applied() bool { return d.Outcome == OutcomeOK }
