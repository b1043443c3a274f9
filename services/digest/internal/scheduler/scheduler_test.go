package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Elias24978/safety-app/services/digest/internal/app"
)

type blockingRunner struct {
	runs    atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (r *blockingRunner) Run(context.Context) app.Report {
	if r.runs.Add(1) == 1 {
		close(r.started)
	}
	<-r.release
	return app.Report{Outcome: app.OutcomeCompleted}
}

type panickingRunner struct {
	done chan struct{}
}

func (r *panickingRunner) Run(context.Context) app.Report {
	defer close(r.done)
	panic("boom")
}

type countingRunner struct {
	runs atomic.Int32
	done chan struct{}
}

func (r *countingRunner) Run(context.Context) app.Report {
	if r.runs.Add(1) == 1 && r.done != nil {
		close(r.done)
	}
	return app.Report{Outcome: app.OutcomeEmpty}
}

func TestNextRunIsNineInMexicoCity(t *testing.T) {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	s, err := New(Config{}, &countingRunner{})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	after := time.Date(2025, 5, 2, 10, 0, 0, 0, loc)
	next := s.Next(after)
	want := time.Date(2025, 5, 3, 9, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
	if got := s.Next(time.Date(2025, 5, 2, 8, 59, 0, 0, loc)); !got.Equal(time.Date(2025, 5, 2, 9, 0, 0, 0, loc)) {
		t.Fatalf("same-day next = %v", got)
	}
}

func TestCustomSpecAndLocation(t *testing.T) {
	s, err := New(Config{Spec: "30 6 * * 1", Location: time.UTC}, &countingRunner{})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	// 2025-05-02 is a Friday.
	next := s.Next(time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC))
	if want := time.Date(2025, 5, 5, 6, 30, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestInvalidSpec(t *testing.T) {
	if _, err := New(Config{Spec: "every morning", Location: time.UTC}, &countingRunner{}); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := New(Config{Location: time.UTC}, nil); err == nil {
		t.Fatalf("expected runner error")
	}
}

func TestRunOnStart(t *testing.T) {
	runner := &countingRunner{done: make(chan struct{})}
	s, err := New(Config{Location: time.UTC, RunOnStart: true}, runner)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop()
	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not run on start")
	}
}

func TestStopWaitsForRunOnStart(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	s, err := New(Config{Location: time.UTC, RunOnStart: true}, runner)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.Start(context.Background())
	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not run on start")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatalf("Stop returned while the on-start run was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(runner.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return after the run finished")
	}
	if n := runner.runs.Load(); n != 1 {
		t.Fatalf("runs = %d, want 1", n)
	}
}

func TestRunOnStartPanicIsRecovered(t *testing.T) {
	runner := &panickingRunner{done: make(chan struct{})}
	s, err := New(Config{Location: time.UTC, RunOnStart: true}, runner)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.Start(context.Background())
	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not run on start")
	}
	s.Stop()
}
