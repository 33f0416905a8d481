package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"samledger/internal/core"
	"samledger/internal/seed"

	"github.com/robfig/cron/v3"
)

type fakeRunner struct {
	calls  int32
	err    error
	panics bool
}

func (f *fakeRunner) RunReharvestingJob(ctx context.Context) (core.ReharvestReport, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return core.ReharvestReport{}, f.err
	}
	return core.ReharvestReport{Reharvested: 2, Pools: map[string]int{"POOL1": 2}}, nil
}

func TestStartRegistersEntry(t *testing.T) {
	cronEngine := cron.New(cron.WithLocation(time.UTC))
	svc := NewService(&fakeRunner{}, WithCron(cronEngine), WithSchedule("*/5 * * * *"))
	t.Cleanup(svc.Stop)

	if !svc.NextRun().IsZero() {
		t.Fatalf("expected no next run before start")
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(cronEngine.Entries()) != 1 {
		t.Fatalf("expected one cron entry, got %d", len(cronEngine.Entries()))
	}
	next := svc.NextRun()
	if next.IsZero() || next.Minute()%5 != 0 {
		t.Fatalf("unexpected next run %v", next)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	svc := NewService(&fakeRunner{}, WithSchedule("whenever"))
	if err := svc.Start(context.Background()); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := svc.Start(context.Background()); err == nil {
		t.Fatalf("expected start error to stick")
	}
}

func TestRunNowRecordsSuccess(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewService(runner)
	report, err := svc.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run now: %v", err)
	}
	if report.Reharvested != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	state := svc.State()
	if state.Runs != 1 || state.LastStatus != statusSuccess || state.LastRunAt == nil || state.LastReport.Reharvested != 2 {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestRunNowRecordsFailureAndPanic(t *testing.T) {
	runner := &fakeRunner{err: errors.New("store offline")}
	svc := NewService(runner)
	if _, err := svc.RunNow(context.Background()); err == nil {
		t.Fatalf("expected runner error")
	}
	state := svc.State()
	if state.LastStatus != statusFailed || state.LastError != "store offline" {
		t.Fatalf("unexpected state %+v", state)
	}

	runner.err = nil
	runner.panics = true
	if _, err := svc.RunNow(context.Background()); err == nil || err.Error() != "panic: boom" {
		t.Fatalf("expected recovered panic, got %v", err)
	}
	if svc.State().Runs != 2 {
		t.Fatalf("expected two recorded runs")
	}

	if _, err := NewService(nil).RunNow(context.Background()); err == nil {
		t.Fatalf("expected missing runner error")
	}
}

func TestScheduledEntryRunsJob(t *testing.T) {
	runner := &fakeRunner{}
	cronEngine := cron.New(cron.WithLocation(time.UTC))
	svc := NewService(runner, WithCron(cronEngine))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(svc.Stop)

	entry := cronEngine.Entry(svc.entry)
	entry.WrappedJob.Run()
	if atomic.LoadInt32(&runner.calls) != 1 || svc.State().LastStatus != statusSuccess {
		t.Fatalf("expected scheduled job to run once, state %+v", svc.State())
	}
}

func TestRunReturnsWhenContextCancelled(t *testing.T) {
	svc := NewService(&fakeRunner{}, WithStopTimeout(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}

func TestReharvestsSeededLedger(t *testing.T) {
	snapshot, err := seed.Default()
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := NewService(core.NewSeededService(snapshot), WithTimeout(time.Second))
	report, err := svc.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Reharvested != 3 || report.Pools["POOL-PROD1"] != 1 || report.Pools["POOL-PROD3"] != 1 || report.Pools["POOL-PROD6"] != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	again, err := svc.RunNow(context.Background())
	if err != nil || again.Reharvested != 0 {
		t.Fatalf("expected idempotent second run, got %+v %v", again, err)
	}
}
