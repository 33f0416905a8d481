package core

import (
	"context"
	"fmt"

	"samledger/pkg/domain"
)

// NewPoolCapacityRule returns the in-transaction rule that keeps every touched
// pool's availability equal to its total minus the allocations holding it.
func NewPoolCapacityRule() domain.Rule {
	return poolCapacityRule{}
}

type poolCapacityRule struct{}

func (poolCapacityRule) Name() string { return "pool_capacity" }

func (r poolCapacityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	touched := touchedPools(changes)
	if len(touched) == 0 {
		return domain.Result{}, nil
	}

	held := make(map[string]int, len(touched))
	for _, alloc := range view.ListAllocations() {
		if _, ok := touched[alloc.PoolID]; ok && alloc.Status.HoldsCapacity() {
			held[alloc.PoolID]++
		}
	}

	res := domain.Result{}
	for _, pool := range view.ListPools() {
		if _, ok := touched[pool.ID]; !ok {
			continue
		}
		var msg string
		switch expected := pool.TotalQuantity - held[pool.ID]; {
		case pool.AvailableQty < 0:
			msg = fmt.Sprintf("pool %s availability is negative: %d", pool.ID, pool.AvailableQty)
		case pool.AvailableQty > pool.TotalQuantity:
			msg = fmt.Sprintf("pool %s availability %d exceeds total %d", pool.ID, pool.AvailableQty, pool.TotalQuantity)
		case pool.AvailableQty != expected:
			msg = fmt.Sprintf("pool %s availability %d does not match total %d minus %d held allocations",
				pool.ID, pool.AvailableQty, pool.TotalQuantity, held[pool.ID])
		default:
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityPool,
			EntityID: pool.ID,
		})
	}
	return res, nil
}

func touchedPools(changes []domain.Change) map[string]struct{} {
	touched := make(map[string]struct{})
	mark := func(v any) {
		switch rec := v.(type) {
		case domain.LicensePool:
			touched[rec.ID] = struct{}{}
		case domain.LicenseAllocation:
			touched[rec.PoolID] = struct{}{}
		}
	}
	for _, change := range changes {
		mark(change.Before)
		mark(change.After)
	}
	return touched
}
