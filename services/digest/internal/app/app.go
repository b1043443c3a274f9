// Package app implements the daily applications digest: every job
// application not yet notified is grouped by the recruiter it belongs to,
// each recruiter with a registered device gets one push stating the count,
// and every fetched application is then marked notified.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/Elias24978/safety-app/internal/metrics"
	"github.com/Elias24978/safety-app/pkg/domain"
	"github.com/Elias24978/safety-app/pkg/push"
	"github.com/Elias24978/safety-app/pkg/pushtoken"
	"github.com/Elias24978/safety-app/pkg/recordstore"
	"github.com/Elias24978/safety-app/pkg/schema"
)

const (
	defaultTimeout = 10 * time.Minute
	lockTTL        = 26 * time.Hour

	notificationTitle = "Nuevas postulaciones"
	notificationBody  = "Tienes %d nueva(s) postulación(es). Revisa los nuevos candidatos que aplicaron a tus vacantes."
	notificationType  = "applications_digest"
)

// Run outcomes, also used as the metrics label.
const (
	OutcomeCompleted   = "completed"
	OutcomeEmpty       = "empty"
	OutcomeLocked      = "locked"
	OutcomeLockFailed  = "lock_failed"
	OutcomeFetchFailed = "fetch_failed"
	OutcomeMarkFailed  = "mark_failed"
)

// Config wires the digest dependencies.
type Config struct {
	Records recordstore.Store
	Schema  schema.Schema
	Tokens  pushtoken.Store
	Sender  push.Sender
	// Lock is optional. Without it every replica runs the digest.
	Lock     RunLock
	Location *time.Location
	Timeout  time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// Job runs the digest.
type Job struct {
	records  recordstore.Store
	schema   schema.Schema
	tokens   pushtoken.Store
	sender   push.Sender
	lock     RunLock
	location *time.Location
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Report summarizes one run.
type Report struct {
	Outcome    string
	Fetched    int
	Recipients int
	Sent       int
	Skipped    int
	Failed     int
	Marked     int
	Batches    int
}

// New validates cfg and builds a Job.
func New(cfg Config) (*Job, error) {
	if cfg.Records == nil {
		return nil, errors.New("digest: record store is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("digest: push token store is required")
	}
	if cfg.Sender == nil {
		return nil, errors.New("digest: push sender is required")
	}
	if err := cfg.Schema.Validate(); err != nil {
		return nil, err
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Job{
		records:  cfg.Records,
		schema:   cfg.Schema,
		tokens:   cfg.Tokens,
		sender:   cfg.Sender,
		lock:     cfg.Lock,
		location: loc,
		timeout:  timeout,
		logger:   logger.With("job", "applications_digest"),
		now:      now,
	}, nil
}

// Run executes one digest. It never fails: problems are logged and
// reflected in the returned Report.
func (j *Job) Run(ctx context.Context) Report {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	report := j.run(ctx)
	elapsed := time.Since(start)
	metrics.ObserveDigestRun(report.Outcome, elapsed)
	metrics.AddDigestPushes(report.Sent, report.Skipped, report.Failed)
	metrics.AddDigestMarked(report.Marked)
	j.logger.Info("digest finished",
		"outcome", report.Outcome,
		"fetched", report.Fetched,
		"recipients", report.Recipients,
		"sent", report.Sent,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"marked", report.Marked,
		"batches", report.Batches,
		"duration_ms", elapsed.Milliseconds(),
	)
	return report
}

func (j *Job) run(ctx context.Context) Report {
	var report Report
	if j.lock != nil {
		key := j.now().In(j.location).Format("2006-01-02")
		acquired, err := j.lock.Acquire(ctx, key, lockTTL)
		if err != nil {
			j.logger.Error("digest lock failed", "date", key, "err", err)
			report.Outcome = OutcomeLockFailed
			return report
		}
		if !acquired {
			j.logger.Info("digest already ran", "date", key)
			report.Outcome = OutcomeLocked
			return report
		}
	}

	apps, err := j.fetchPending(ctx)
	if err != nil {
		j.logger.Error("digest fetch failed", "err", err)
		report.Outcome = OutcomeFetchFailed
		return report
	}
	report.Fetched = len(apps)
	if len(apps) == 0 {
		report.Outcome = OutcomeEmpty
		return report
	}

	counts := groupByRecipient(apps)
	report.Recipients = len(counts)
	for _, recipient := range sortedRecipients(counts) {
		switch err := j.notify(ctx, recipient, counts[recipient]); {
		case err == nil:
			report.Sent++
		case errors.Is(err, errNoToken):
			report.Skipped++
		default:
			j.logger.Error("digest notify failed", "recipient_id", recipient, "err", err)
			report.Failed++
		}
	}

	marked, batches, err := j.markNotified(ctx, apps)
	report.Marked = marked
	report.Batches = batches
	if err != nil {
		j.logger.Error("digest mark failed", "marked", marked, "pending", len(apps)-marked, "err", err)
		report.Outcome = OutcomeMarkFailed
		return report
	}
	report.Outcome = OutcomeCompleted
	return report
}

func (j *Job) fetchPending(ctx context.Context) ([]domain.Application, error) {
	f := j.schema.Applications.Fields
	recs, err := j.records.Select(ctx, j.schema.Applications.Table, recordstore.SelectOptions{
		Filter: recordstore.IsFalse(f.Notified),
		Fields: []string{f.RecipientID},
	})
	if err != nil {
		return nil, fmt.Errorf("select pending applications: %w", err)
	}
	apps := make([]domain.Application, 0, len(recs))
	for _, rec := range recs {
		apps = append(apps, domain.Application{ID: rec.ID, RecipientID: rec.FirstString(f.RecipientID)})
	}
	return apps, nil
}

var errNoToken = errors.New("recipient has no push token")

func (j *Job) notify(ctx context.Context, recipient string, count int) error {
	token, ok, err := j.tokens.Lookup(ctx, recipient)
	if err != nil {
		return fmt.Errorf("lookup token: %w", err)
	}
	if !ok {
		return errNoToken
	}
	n := NewNotification(recipient, token, count, j.now())
	if err := j.sender.Send(ctx, n); err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	return nil
}

// markNotified updates apps in chunks of recordstore.MaxBatchSize. The
// first failing chunk stops the remaining ones.
func (j *Job) markNotified(ctx context.Context, apps []domain.Application) (marked, batches int, err error) {
	field := j.schema.Applications.Fields.Notified
	for start := 0; start < len(apps); start += recordstore.MaxBatchSize {
		end := min(start+recordstore.MaxBatchSize, len(apps))
		updates := make([]recordstore.RecordUpdate, 0, end-start)
		for _, a := range apps[start:end] {
			updates = append(updates, recordstore.RecordUpdate{ID: a.ID, Fields: map[string]any{field: true}})
		}
		batches++
		if _, err := j.records.Update(ctx, j.schema.Applications.Table, updates); err != nil {
			return marked, batches, fmt.Errorf("update chunk %d: %w", batches, err)
		}
		marked += len(updates)
	}
	return marked, batches, nil
}

// NewNotification builds the digest push for one recipient.
func NewNotification(recipient, token string, count int, now time.Time) domain.Notification {
	return domain.Notification{
		RecipientID: recipient,
		Token:       token,
		Title:       notificationTitle,
		Body:        fmt.Sprintf(notificationBody, count),
		Data: map[string]string{
			"type":  notificationType,
			"count": strconv.Itoa(count),
		},
		CreatedAt: now.UTC(),
	}
}

// groupByRecipient counts applications per recipient. Applications without
// a recipient are left out.
func groupByRecipient(apps []domain.Application) map[string]int {
	counts := make(map[string]int)
	for _, a := range apps {
		if a.RecipientID == "" {
			continue
		}
		counts[a.RecipientID]++
	}
	return counts
}

func sortedRecipients(counts map[string]int) []string {
	out := make([]string, 0, len(counts))
	for id := range counts {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
