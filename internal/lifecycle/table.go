package lifecycle

import "github.com/ChuprinaDaria/yoga-bot/internal/domain"

// Event is something that may move a user through the trial lifecycle.
type Event int

const (
	EventBegin Event = iota + 1
	EventRemind
	EventExpire
	EventFeedbackPositive
	EventFeedbackNegative
	EventExtend
	EventCloseExtension
)

var eventNames = map[Event]string{
	EventBegin:            "begin_trial",
	EventRemind:           "sweep_reminder",
	EventExpire:           "sweep_expiry",
	EventFeedbackPositive: "feedback_positive",
	EventFeedbackNegative: "feedback_negative",
	EventExtend:           "grant_extension",
	EventCloseExtension:   "post_extension_cleanup",
}

func (e Event) String() string {
	if n, ok := eventNames[e]; ok {
		return n
	}
	return "unknown"
}

// History reasons.
const (
	ReasonTrialStarted     = "trial_started"
	ReasonTrialRestarted   = "trial_restarted"
	ReasonCourseExpired    = "course_expired"
	ReasonExtensionExpired = "extension_expired"
	ReasonPositiveFeedback = "positive_course_feedback"
	ReasonExtensionUsed    = "extension_used"
)

// Transition is a single allowed edge. Reason is empty for edges that keep
// the status and therefore write no history.
type Transition struct {
	From   domain.Status
	Event  Event
	To     domain.Status
	Reason string
}

var transitionsTable = []Transition{
	{From: domain.StatusNew, Event: EventBegin, To: domain.StatusTrialActive, Reason: ReasonTrialStarted},
	{From: domain.StatusTrialExpired, Event: EventBegin, To: domain.StatusTrialActive, Reason: ReasonTrialRestarted},
	{From: domain.StatusTrialActive, Event: EventBegin, To: domain.StatusTrialActive},

	{From: domain.StatusTrialActive, Event: EventRemind, To: domain.StatusTrialActive},
	{From: domain.StatusTrialActive, Event: EventExpire, To: domain.StatusTrialExpired, Reason: ReasonCourseExpired},

	{From: domain.StatusTrialExpired, Event: EventFeedbackPositive, To: domain.StatusOpen, Reason: ReasonPositiveFeedback},
	{From: domain.StatusTrialExpired, Event: EventFeedbackNegative, To: domain.StatusTrialExpired},
	{From: domain.StatusTrialExpired, Event: EventExtend, To: domain.StatusTrialActive, Reason: ReasonExtensionUsed},

	{From: domain.StatusTrialActive, Event: EventCloseExtension, To: domain.StatusTrialActive},
	{From: domain.StatusTrialExpired, Event: EventCloseExtension, To: domain.StatusTrialExpired},
}

// TransitionFor returns the edge for a status and event.
func TransitionFor(from domain.Status, ev Event) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}
