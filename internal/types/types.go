// Package types defines shared domain types for the lookup tracker.
package types

import (
	"strings"
	"time"
)

// Terminal statuses assigned locally when the tracker, not the provider,
// decided the outcome of a job.
const (
	StatusError   = "ERROR"
	StatusTimeout = "TIMEOUT"
)

// pendingStatuses is the fixed set of provider statuses that mean the lookup
// is still being processed. Anything else the provider reports is terminal.
var pendingStatuses = map[string]struct{}{
	"PENDING":     {},
	"IN_PROGRESS": {},
	"PROCESSING":  {},
	"QUEUED":      {},
	"RUNNING":     {},
	"WAITING":     {},
}

// IsPending reports whether a provider status (case-insensitive) is in the
// pending set. The empty status is not pending; callers decide how to treat
// a payload with no recognizable status.
func IsPending(status string) bool {
	_, ok := pendingStatuses[strings.ToUpper(status)]
	return ok
}

// NormalizeStatus upper-cases a provider status for comparison and storage.
func NormalizeStatus(status string) string {
	return strings.ToUpper(strings.TrimSpace(status))
}

// DefaultPollSchedule is the reference backoff sequence between polls.
var DefaultPollSchedule = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
}

// ClampAttempt clamps a persisted attempt index into [0, scheduleLen-1] so a
// corrupted or out-of-range value can neither crash the scheduler nor skip
// the schedule.
func ClampAttempt(attempt, scheduleLen int) int {
	if attempt < 0 {
		return 0
	}
	if attempt > scheduleLen-1 {
		return scheduleLen - 1
	}
	return attempt
}

// ServiceError represents a structured error returned by the HTTP API.
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return e.Code + ": " + e.Message
}
