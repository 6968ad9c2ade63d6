package domain

import "fmt"

// Status is the lifecycle state of a participant.
type Status string

const (
	StatusNew          Status = "new"
	StatusTrialActive  Status = "trial_active"
	StatusTrialExpired Status = "trial_expired"
	StatusOpen         Status = "open"   // converted after positive feedback
	StatusActive       Status = "active" // paying
	StatusAdmin        Status = "admin"  // privilege flag, outside trial logic
)

var allStatuses = []Status{
	StatusNew, StatusTrialActive, StatusTrialExpired, StatusOpen, StatusActive, StatusAdmin,
}

// Statuses returns every known status in display order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus validates a persisted status value.
func ParseStatus(s string) (Status, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func (s Status) String() string { return string(s) }
