package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"samledger/internal/core"
	"samledger/pkg/domain"
)

func TestPoolCapacityRuleBlocksDrift(t *testing.T) {
	cases := []struct {
		name string
		fn   func(tx domain.Transaction) error
		want string
	}{
		{"allocation without consuming capacity", func(tx domain.Transaction) error {
			_, err := tx.CreateAllocation(alloc("A8", "POOL1", "P1", domain.AllocStatusActive, 50))
			return err
		}, "does not match"},
		{"negative availability", func(tx domain.Transaction) error {
			_, err := tx.UpdatePool("POOL2", func(p *domain.LicensePool) error {
				p.AvailableQty = -1
				return nil
			})
			return err
		}, "negative"},
		{"availability above total", func(tx domain.Transaction) error {
			_, err := tx.UpdatePool("POOL1", func(p *domain.LicensePool) error {
				p.AvailableQty = p.TotalQuantity + 1
				return nil
			})
			return err
		}, "exceeds total"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, store := newLedger(t, ledgerFixture())
			before := store.ExportState()
			_, err := store.RunInTransaction(context.Background(), tc.fn)
			var violation domain.RuleViolationError
			if !errors.As(err, &violation) {
				t.Fatalf("expected rule violation, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %v", tc.want, err)
			}
			if got := violation.Result.Violations[0]; got.Rule != "pool_capacity" || got.Entity != domain.EntityPool {
				t.Fatalf("unexpected violation %+v", got)
			}
			after := store.ExportState()
			if len(after.Allocations) != len(before.Allocations) || after.Pools[0].AvailableQty != before.Pools[0].AvailableQty {
				t.Fatalf("expected state unchanged")
			}
		})
	}
}

func TestPoolCapacityRuleAcceptsBalancedChange(t *testing.T) {
	_, store := newLedger(t, ledgerFixture())
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateAllocation(alloc("A8", "POOL1", "P1", domain.AllocStatusActive, 50)); err != nil {
			return err
		}
		_, err := tx.UpdatePool("POOL1", func(p *domain.LicensePool) error {
			p.AvailableQty--
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("balanced change rejected: %v", err)
	}
	if pool := mustPool(t, store, "POOL1"); pool.AvailableQty != 1 {
		t.Fatalf("expected 1 available, got %d", pool.AvailableQty)
	}
}

type staticView struct {
	pools       []domain.LicensePool
	allocations []domain.LicenseAllocation
}

func (v staticView) ListPools() []domain.LicensePool             { return v.pools }
func (v staticView) ListAllocations() []domain.LicenseAllocation { return v.allocations }
func (v staticView) FindPool(string) (domain.LicensePool, bool)  { return domain.LicensePool{}, false }
func (v staticView) FindAllocation(string) (domain.LicenseAllocation, bool) {
	return domain.LicenseAllocation{}, false
}

func TestPoolCapacityRuleOnlyChecksTouchedPools(t *testing.T) {
	view := staticView{pools: []domain.LicensePool{
		{Base: domain.Base{ID: "BROKEN"}, TotalQuantity: 1, AvailableQty: 5},
		{Base: domain.Base{ID: "OK"}, TotalQuantity: 1, AvailableQty: 1},
	}}
	rule := core.NewPoolCapacityRule()
	res, err := rule.Evaluate(context.Background(), view, nil)
	if err != nil || len(res.Violations) != 0 {
		t.Fatalf("expected no evaluation without changes, got %+v %v", res, err)
	}
	changes := []domain.Change{{Entity: domain.EntityPool, Action: domain.ActionUpdate, After: view.pools[1]}}
	res, err = rule.Evaluate(context.Background(), view, changes)
	if err != nil || len(res.Violations) != 0 {
		t.Fatalf("expected untouched broken pool ignored, got %+v %v", res, err)
	}
	changes = append(changes, domain.Change{Entity: domain.EntityAllocation, Action: domain.ActionCreate,
		After: domain.LicenseAllocation{PoolID: "BROKEN", Status: domain.AllocStatusActive}})
	res, _ = rule.Evaluate(context.Background(), view, changes)
	if len(res.Violations) != 1 || res.Violations[0].EntityID != "BROKEN" || !res.HasBlocking() {
		t.Fatalf("expected broken pool flagged, got %+v", res)
	}
}
