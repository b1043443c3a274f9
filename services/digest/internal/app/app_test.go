package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Elias24978/safety-app/pkg/domain"
	"github.com/Elias24978/safety-app/pkg/pushtoken"
	"github.com/Elias24978/safety-app/pkg/recordstore"
	"github.com/Elias24978/safety-app/pkg/schema"
)

const applicationsTable = "Aplicaciones"

type recordingSender struct {
	mu   sync.Mutex
	sent []domain.Notification
	fail map[string]error
}

func (s *recordingSender) Send(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[n.RecipientID]; err != nil {
		return err
	}
	s.sent = append(s.sent, n)
	return nil
}

// failingUpdates fails the nth Update call (1-based).
type failingUpdates struct {
	recordstore.Store
	failOn int
	calls  int
}

func (f *failingUpdates) Update(ctx context.Context, table string, updates []recordstore.RecordUpdate) ([]recordstore.Record, error) {
	f.calls++
	if f.calls == f.failOn {
		return nil, errors.New("INVALID_REQUEST_UNKNOWN")
	}
	return f.Store.Update(ctx, table, updates)
}

type fixture struct {
	records *recordstore.MemoryStore
	tokens  *pushtoken.MemoryStore
	sender  *recordingSender
}

func newFixture() fixture {
	records := recordstore.NewMemoryStore()
	records.AddTable(applicationsTable)
	return fixture{
		records: records,
		tokens:  pushtoken.NewMemoryStore(),
		sender:  &recordingSender{fail: map[string]error{}},
	}
}

func (f fixture) job(t *testing.T, store recordstore.Store, lock RunLock) *Job {
	t.Helper()
	if store == nil {
		store = f.records
	}
	job, err := New(Config{
		Records: store,
		Schema:  schema.Default(),
		Tokens:  f.tokens,
		Sender:  f.sender,
		Lock:    lock,
		Now:     func() time.Time { return time.Date(2025, 5, 2, 15, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return job
}

func (f fixture) addApplication(id, recipient string, notified bool) {
	fields := map[string]any{"Notificacion_Enviada": notified}
	if recipient != "" {
		fields["UserID_Reclutador_Vacante"] = []string{recipient}
	}
	f.records.Put(applicationsTable, recordstore.NewRecord(id, fields))
}

func (f fixture) notifiedCount() int {
	n := 0
	recs, _ := f.records.Select(context.Background(), applicationsTable, recordstore.SelectOptions{})
	for _, rec := range recs {
		if rec.Bool("Notificacion_Enviada") {
			n++
		}
	}
	return n
}

func (f fixture) updateCalls() int {
	n := 0
	for _, c := range f.records.Calls() {
		if c.Op == "update" {
			n++
		}
	}
	return n
}

func TestRunWithNothingPendingHasNoSideEffects(t *testing.T) {
	f := newFixture()
	f.addApplication("app01", "rec-a", true)
	_ = f.tokens.Save(context.Background(), "rec-a", "tok-a")

	report := f.job(t, nil, nil).Run(context.Background())
	if report.Outcome != OutcomeEmpty || report.Fetched != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(f.sender.sent) != 0 || f.updateCalls() != 0 {
		t.Fatalf("expected no pushes or updates, got %d pushes %d updates", len(f.sender.sent), f.updateCalls())
	}
}

func TestRunGroupsByRecipientAndMarksInChunks(t *testing.T) {
	f := newFixture()
	// 12 for rec-a, 8 for rec-b, 3 for rec-c, 2 without recipient.
	n := 0
	add := func(recipient string, count int) {
		for i := 0; i < count; i++ {
			n++
			f.addApplication(fmt.Sprintf("app%02d", n), recipient, false)
		}
	}
	add("rec-a", 12)
	add("rec-b", 8)
	add("rec-c", 3)
	add("", 2)
	f.addApplication("old01", "rec-a", true)
	for _, id := range []string{"rec-a", "rec-b", "rec-c"} {
		_ = f.tokens.Save(context.Background(), id, "tok-"+id)
	}

	report := f.job(t, nil, nil).Run(context.Background())
	if report.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s", report.Outcome)
	}
	if report.Fetched != 25 || report.Recipients != 3 || report.Sent != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Batches != 3 || f.updateCalls() != 3 {
		t.Fatalf("expected 3 update chunks, got report=%d calls=%d", report.Batches, f.updateCalls())
	}
	if report.Marked != 25 || f.notifiedCount() != 26 {
		t.Fatalf("marked = %d, notified = %d", report.Marked, f.notifiedCount())
	}

	want := map[string]int{"rec-a": 12, "rec-b": 8, "rec-c": 3}
	for i, n := range f.sender.sent {
		if i > 0 && f.sender.sent[i-1].RecipientID >= n.RecipientID {
			t.Fatalf("recipients not in sorted order")
		}
		if n.Token != "tok-"+n.RecipientID {
			t.Fatalf("token = %q for %s", n.Token, n.RecipientID)
		}
		if !strings.Contains(n.Body, fmt.Sprintf("Tienes %d nueva(s)", want[n.RecipientID])) {
			t.Fatalf("body %q does not state count %d", n.Body, want[n.RecipientID])
		}
		if n.Data["count"] != fmt.Sprint(want[n.RecipientID]) {
			t.Fatalf("data count = %q", n.Data["count"])
		}
	}
}

func TestRunSkipsRecipientsWithoutToken(t *testing.T) {
	f := newFixture()
	f.addApplication("app01", "rec-a", false)
	f.addApplication("app02", "rec-b", false)
	_ = f.tokens.Save(context.Background(), "rec-b", "tok-b")

	report := f.job(t, nil, nil).Run(context.Background())
	if report.Sent != 1 || report.Skipped != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if f.notifiedCount() != 2 {
		t.Fatalf("expected both applications marked, got %d", f.notifiedCount())
	}
}

func TestRunContinuesAfterLookupAndSendFailures(t *testing.T) {
	f := newFixture()
	f.addApplication("app01", "rec-a", false)
	f.addApplication("app02", "rec-b", false)
	f.addApplication("app03", "rec-c", false)
	for _, id := range []string{"rec-a", "rec-b", "rec-c"} {
		_ = f.tokens.Save(context.Background(), id, "tok-"+id)
	}
	f.tokens.FailLookup("rec-a", errors.New("redis down"))
	f.sender.fail["rec-b"] = errors.New("registration-token-not-registered")

	report := f.job(t, nil, nil).Run(context.Background())
	if report.Outcome != OutcomeCompleted || report.Sent != 1 || report.Failed != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0].RecipientID != "rec-c" {
		t.Fatalf("unexpected pushes %+v", f.sender.sent)
	}
	if f.notifiedCount() != 3 {
		t.Fatalf("expected all marked, got %d", f.notifiedCount())
	}
}

func TestRunStopsAfterFailingChunk(t *testing.T) {
	f := newFixture()
	for i := 1; i <= 25; i++ {
		f.addApplication(fmt.Sprintf("app%02d", i), "rec-a", false)
	}
	store := &failingUpdates{Store: f.records, failOn: 2}

	report := f.job(t, store, nil).Run(context.Background())
	if report.Outcome != OutcomeMarkFailed {
		t.Fatalf("outcome = %s", report.Outcome)
	}
	if store.calls != 2 || report.Batches != 2 || report.Marked != 10 {
		t.Fatalf("expected stop after second chunk: calls=%d report=%+v", store.calls, report)
	}
	if f.notifiedCount() != 10 {
		t.Fatalf("notified = %d, want 10", f.notifiedCount())
	}
}

func TestRunFetchFailureSendsNothing(t *testing.T) {
	f := newFixture()
	f.addApplication("app01", "rec-a", false)
	_ = f.tokens.Save(context.Background(), "rec-a", "tok-a")
	f.records.FailTable(applicationsTable, errors.New("AUTHENTICATION_REQUIRED"))

	report := f.job(t, nil, nil).Run(context.Background())
	if report.Outcome != OutcomeFetchFailed || len(f.sender.sent) != 0 {
		t.Fatalf("unexpected report %+v sent=%d", report, len(f.sender.sent))
	}
}

func TestRunLockPreventsSecondRunSameDay(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	lock := NewRedisRunLock(client, "")

	f := newFixture()
	f.addApplication("app01", "rec-a", false)
	_ = f.tokens.Save(context.Background(), "rec-a", "tok-a")

	first := f.job(t, nil, lock).Run(context.Background())
	if first.Outcome != OutcomeCompleted {
		t.Fatalf("first outcome = %s", first.Outcome)
	}
	f.addApplication("app02", "rec-a", false)
	second := f.job(t, nil, lock).Run(context.Background())
	if second.Outcome != OutcomeLocked || len(f.sender.sent) != 1 {
		t.Fatalf("second run not locked: %+v sent=%d", second, len(f.sender.sent))
	}
	if !mr.Exists("safety:digest:lock:2025-05-02") {
		t.Fatalf("expected lock key for run date, keys=%v", mr.Keys())
	}
}

func TestRunLockErrorSkipsRun(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	f := newFixture()
	f.addApplication("app01", "rec-a", false)
	report := f.job(t, nil, NewRedisRunLock(client, "")).Run(context.Background())
	if report.Outcome != OutcomeLockFailed || len(f.records.Calls()) != 0 {
		t.Fatalf("expected lock failure without store calls: %+v", report)
	}
}

func TestNewNotification(t *testing.T) {
	n := NewNotification("rec-a", "tok", 1, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
	if n.Title == "" || !strings.HasPrefix(n.Body, "Tienes 1 nueva(s) postulación(es).") {
		t.Fatalf("unexpected notification %+v", n)
	}
	if n.Data["type"] != "applications_digest" {
		t.Fatalf("data type = %q", n.Data["type"])
	}
}
