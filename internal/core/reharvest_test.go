package core_test

import (
	"context"
	"reflect"
	"testing"

	"samledger/internal/core"
	"samledger/pkg/domain"
)

func TestRunReharvestingJob(t *testing.T) {
	svc, store := newLedger(t, ledgerFixture())
	ctx := context.Background()

	report, err := svc.RunReharvestingJob(ctx)
	if err != nil {
		t.Fatalf("reharvest: %v", err)
	}
	if report.Reharvested != 3 {
		t.Fatalf("expected 3 reharvested, got %d", report.Reharvested)
	}
	if !reflect.DeepEqual(report.Pools, map[string]int{"POOL1": 2, "POOL2": 1}) {
		t.Fatalf("unexpected pool deltas %+v", report.Pools)
	}
	if got := mustPool(t, store, "POOL1").AvailableQty; got != 4 {
		t.Fatalf("expected POOL1 availability 4, got %d", got)
	}
	if got := mustPool(t, store, "POOL2").AvailableQty; got != 1 {
		t.Fatalf("expected POOL2 availability 1, got %d", got)
	}

	for _, id := range []string{"A2", "A3", "A4"} {
		a := mustAllocation(t, store, id)
		last := a.History[len(a.History)-1]
		if a.Status != domain.AllocStatusHistory || last.From == nil || *last.From != domain.AllocStatusAwaitingInact || last.To != domain.AllocStatusHistory {
			t.Fatalf("allocation %s not reharvested: %+v", id, a)
		}
		if last.CreatedByID != core.SystemActor.ID || last.Reason != "automatic reharvesting" {
			t.Fatalf("unexpected reharvest attribution %+v", last)
		}
	}
	if a := mustAllocation(t, store, "A1"); a.Status != domain.AllocStatusActive || len(a.History) != 1 {
		t.Fatalf("active allocation must be untouched, got %+v", a)
	}

	audit, err := svc.AuditLog(ctx)
	if err != nil {
		t.Fatalf("audit log: %v", err)
	}
	if len(audit) != 1 || audit[0].Details != "3 licenses reharvested" || audit[0].ID != report.AuditID {
		t.Fatalf("unexpected audit trail %+v", audit)
	}
	if audit[0].Entity != "LicenseReharvesting" || audit[0].EntityID != "JOB" || audit[0].ActorID != core.SystemActor.ID {
		t.Fatalf("unexpected audit entry %+v", audit[0])
	}
	notes := svc.Notifications()
	if len(notes) != 1 || notes[0].Severity != core.NotificationSuccess {
		t.Fatalf("expected one success notification, got %+v", notes)
	}
}

func TestRunReharvestingJobWithNothingEligible(t *testing.T) {
	svc, store := newLedger(t, ledgerFixture())
	ctx := context.Background()
	if _, err := svc.RunReharvestingJob(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	pools := store.ExportState().Pools

	report, err := svc.RunReharvestingJob(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Reharvested != 0 || len(report.Pools) != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
	if !reflect.DeepEqual(pools, store.ExportState().Pools) {
		t.Fatalf("no-op run must not touch pools")
	}
	audit, _ := svc.AuditLog(ctx)
	if len(audit) != 2 || audit[0].Details != "0 licenses reharvested" {
		t.Fatalf("expected a second audit entry reporting 0, got %+v", audit)
	}
	if len(svc.Notifications()) != 2 {
		t.Fatalf("expected a notification per run")
	}
}
