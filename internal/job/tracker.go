// Package job implements the lookup job lifecycle: submission, scheduled
// polling with bounded backoff, terminal transitions, and resume after a
// process restart.
package job

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/lookup-tracker/internal/adapter"
	"github.com/lookup-tracker/internal/logging"
	"github.com/lookup-tracker/internal/models"
	"github.com/lookup-tracker/internal/notify"
	"github.com/lookup-tracker/internal/scheduler"
	"github.com/lookup-tracker/internal/types"
)

// ErrAlreadyResumed is returned when Resume is called more than once in the
// same process. A second resume would arm duplicate tasks for the same jobs.
var ErrAlreadyResumed = errors.New("pending jobs already resumed")

// maxMessagePayload bounds how much of a result payload is inlined into a
// notification; the rest is reachable through the manual check path.
const maxMessagePayload = 3800

// Provider is the slice of the provider client the tracker needs.
type Provider interface {
	Submit(ctx context.Context, params map[string]string) (*adapter.SubmitResult, error)
	Poll(ctx context.Context, searchID string) (*adapter.PollResult, error)
}

// Store is the durable job table. It is the only source of truth used to
// resume after a restart.
type Store interface {
	InsertPending(ctx context.Context, searchID, chatID string) error
	RecordAttempt(ctx context.Context, searchID string, attempt int, status string) error
	MarkDone(ctx context.Context, searchID string, status string) error
	ListPending(ctx context.Context) ([]*models.LookupJob, error)
}

// ResultCache keeps terminal payloads for the manual check path. Optional.
type ResultCache interface {
	Put(ctx context.Context, searchID string, payload json.RawMessage) error
	Get(ctx context.Context, searchID string) (json.RawMessage, error)
}

// TrackerConfig wires the tracker's collaborators.
type TrackerConfig struct {
	Provider  Provider
	Store     Store
	Scheduler *scheduler.Scheduler
	Notifier  notify.Notifier
	Cache     ResultCache           // optional
	Schedule  []time.Duration       // defaults to types.DefaultPollSchedule
	Logger    *logging.Logger
}

// Tracker drives each lookup job from submission to exactly one terminal
// outcome notification.
type Tracker struct {
	provider Provider
	store    Store
	sched    *scheduler.Scheduler
	notifier notify.Notifier
	cache    ResultCache
	schedule []time.Duration
	logger   *logging.Logger

	mu      sync.Mutex
	resumed bool
}

// NewTracker creates a tracker from its collaborators.
func NewTracker(cfg *TrackerConfig) (*Tracker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("tracker configuration is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}

	schedule := cfg.Schedule
	if len(schedule) == 0 {
		schedule = types.DefaultPollSchedule
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &Tracker{
		provider: cfg.Provider,
		store:    cfg.Store,
		sched:    cfg.Scheduler,
		notifier: cfg.Notifier,
		cache:    cfg.Cache,
		schedule: schedule,
		logger:   logger,
	}, nil
}

// Schedule returns the backoff schedule in use.
func (t *Tracker) Schedule() []time.Duration {
	return t.schedule
}

// Submit sends a lookup request to the provider and, when a job identifier is
// acknowledged, persists a pending row and arms the first poll. An empty
// returned id with a nil error means the provider accepted the request but no
// identifier could be extracted; nothing is tracked and the caller should
// point the requester at the manual check path.
func (t *Tracker) Submit(ctx context.Context, params map[string]string, requester string) (string, error) {
	res, err := t.provider.Submit(ctx, params)
	if err != nil {
		return "", err
	}

	if res.SearchID == "" {
		t.logger.WithFields(map[string]interface{}{
			"requester": requester,
			"status":    res.Status,
		}).Warn("Submission acknowledged without a search id")
		return "", nil
	}

	if err := t.store.InsertPending(ctx, res.SearchID, requester); err != nil {
		// The provider accepted the request; surface the id so the caller can
		// still recover the result manually.
		return res.SearchID, fmt.Errorf("job %s submitted but not tracked: %w", res.SearchID, err)
	}

	t.logger.WithFields(map[string]interface{}{
		"searchId":  res.SearchID,
		"requester": requester,
	}).Info("Lookup submitted, polling armed")

	t.armPoll(res.SearchID, requester, 0)
	return res.SearchID, nil
}

// Resume re-arms polling for every non-terminal row in the store. It must be
// called once per process start, before new submissions are accepted; a
// second call returns ErrAlreadyResumed and arms nothing.
func (t *Tracker) Resume(ctx context.Context) error {
	t.mu.Lock()
	if t.resumed {
		t.mu.Unlock()
		return ErrAlreadyResumed
	}
	t.resumed = true
	t.mu.Unlock()

	jobs, err := t.store.ListPending(ctx)
	if err != nil {
		t.mu.Lock()
		t.resumed = false
		t.mu.Unlock()
		return fmt.Errorf("failed to load pending jobs: %w", err)
	}

	for _, j := range jobs {
		attempt := types.ClampAttempt(j.Attempt, len(t.schedule))
		t.armPoll(j.SearchID, j.ChatID, attempt)
	}

	t.logger.WithFields(map[string]interface{}{
		"count": len(jobs),
	}).Info("Resumed pending lookup jobs")

	return nil
}

// CheckResult fetches the current payload for a job on demand, bypassing the
// scheduler. Recently finalized results are served from the cache; anything
// else goes straight to the provider.
func (t *Tracker) CheckResult(ctx context.Context, searchID string) (json.RawMessage, error) {
	if t.cache != nil {
		payload, err := t.cache.Get(ctx, searchID)
		if err != nil {
			t.logger.WithError(err).Warn("Result cache read failed")
		} else if payload != nil {
			return payload, nil
		}
	}

	res, err := t.provider.Poll(ctx, searchID)
	if err != nil {
		return nil, err
	}
	return res.Raw, nil
}

// armPoll schedules the next poll for a job. The scheduler holds at most one
// task per search id, and a new task is only armed here after the previous
// poll has been fully processed, so polls for one job never overlap.
func (t *Tracker) armPoll(searchID, requester string, attempt int) {
	delay := t.schedule[attempt]
	t.sched.Schedule(searchID, delay, func(ctx context.Context) {
		t.handlePoll(ctx, searchID, requester, attempt)
	})
}

// handlePoll interprets one poll outcome and either finalizes the job or
// advances it one step through the backoff schedule. The same four branches
// serve fresh and resumed jobs.
func (t *Tracker) handlePoll(ctx context.Context, searchID, requester string, attempt int) {
	lastIndex := len(t.schedule) - 1
	status := ""

	res, err := t.provider.Poll(ctx, searchID)
	switch {
	case err != nil:
		if attempt >= lastIndex {
			message := fmt.Sprintf("❌ Result check failed for %s: %v. Check the result manually.", searchID, err)
			t.finalize(ctx, searchID, requester, types.StatusError, message, nil)
			return
		}
		// Transient miss before the schedule is exhausted: log and fall
		// through to the ordinary reschedule path.
		t.logger.WithFields(map[string]interface{}{
			"searchId": searchID,
			"attempt":  attempt,
			"error":    err.Error(),
		}).Warn("Poll failed, will retry on schedule")

	case res.Status != "" && !types.IsPending(res.Status):
		message := fmt.Sprintf("✅ Result ready for %s:\n%s", searchID, prettyPayload(res.Raw))
		t.finalize(ctx, searchID, requester, res.Status, message, res.Raw)
		return

	default:
		// Still pending, or no recognizable status in the payload yet.
		status = res.Status
	}

	next := attempt + 1
	if next >= len(t.schedule) {
		message := fmt.Sprintf("⚠️ Timed out waiting for %s. Check the result manually.", searchID)
		t.finalize(ctx, searchID, requester, types.StatusTimeout, message, nil)
		return
	}

	if err := t.store.RecordAttempt(ctx, searchID, next, status); err != nil {
		t.logger.WithError(err).WithField("searchId", searchID).Error("Failed to record poll attempt")
	}

	t.armPoll(searchID, requester, next)
}

// finalize performs the write-once terminal transition: the row is durably
// marked done first, then exactly one notification is sent for the
// transition. If the mark cannot be persisted the notification is withheld,
// so a restart still sees the job as pending and retries it.
func (t *Tracker) finalize(ctx context.Context, searchID, requester, status, message string, payload json.RawMessage) {
	if err := t.store.MarkDone(ctx, searchID, status); err != nil {
		t.logger.WithError(err).WithFields(map[string]interface{}{
			"searchId": searchID,
			"status":   status,
		}).Error("Failed to mark job done, withholding notification")
		return
	}

	if payload != nil && t.cache != nil {
		if err := t.cache.Put(ctx, searchID, payload); err != nil {
			t.logger.WithError(err).WithField("searchId", searchID).Warn("Failed to cache terminal result")
		}
	}

	t.logger.WithFields(map[string]interface{}{
		"searchId": searchID,
		"status":   status,
	}).Info("Lookup finalized")

	if err := t.notifier.Notify(ctx, requester, message); err != nil {
		t.logger.WithError(err).WithFields(map[string]interface{}{
			"searchId":  searchID,
			"requester": requester,
		}).Error("Failed to deliver terminal notification")
	}
}

// prettyPayload renders a result payload for a notification, indented and
// truncated to at most maxMessagePayload bytes. The cut backs off to a rune
// boundary so a multibyte character is never split.
func prettyPayload(raw json.RawMessage) string {
	var buf bytes.Buffer
	text := string(raw)
	if err := json.Indent(&buf, raw, "", "  "); err == nil {
		text = buf.String()
	}
	if len(text) > maxMessagePayload {
		cut := maxMessagePayload
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "\n… (truncated)"
	}
	return text
}
