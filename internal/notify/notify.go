// Package notify delivers terminal outcome messages to requesters.
// Delivery failures are logged by the caller, never retried: once a job is
// durably marked done, a lost notification is recovered through the manual
// result check, not an automatic resend.
package notify

import (
	"context"

	"github.com/lookup-tracker/internal/logging"
)

// Notifier delivers a human-readable message to a requester address.
type Notifier interface {
	Notify(ctx context.Context, requester, message string) error
}

// LogNotifier writes notifications to the log. Used when no chat transport is
// configured and in tests.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a notifier backed by the structured logger.
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the message with its destination.
func (n *LogNotifier) Notify(_ context.Context, requester, message string) error {
	n.logger.WithFields(map[string]interface{}{
		"requester": requester,
	}).Info(message)
	return nil
}
