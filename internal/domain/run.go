package domain

import "time"

// RunKind names a maintenance sweep.
type RunKind string

const (
	RunDaily   RunKind = "daily"
	RunPurge   RunKind = "purge"
	RunCleanup RunKind = "cleanup"
)

// MaintenanceRun is the audit record of one sweep.
type MaintenanceRun struct {
	ID         string
	Kind       RunKind
	StartedAt  time.Time
	FinishedAt time.Time
	Scanned    int
	Applied    int
	Skipped    int
	Failed     int
}
