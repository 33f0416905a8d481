package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"samledger/pkg/domain"

	"go.uber.org/zap"
)

// ErrInvalidStatus is returned for status values outside the stored set.
var ErrInvalidStatus = errors.New("invalid allocation status")

// capacityDelta is the change in pool availability caused by moving an
// allocation from one state to another.
func capacityDelta(from, to AllocStatus) int {
	switch {
	case from.HoldsCapacity() && !to.HoldsCapacity():
		return 1
	case !from.HoldsCapacity() && to.HoldsCapacity():
		return -1
	default:
		return 0
	}
}

// UpdateAllocationStatus moves an allocation to status, recording a history
// entry attributed to the acting user. Any stored state may move to any other;
// moving into HISTORY releases a unit of pool capacity and moving out of it
// consumes one. Allocation and pool change together or not at all.
func (s *Service) UpdateAllocationStatus(ctx context.Context, allocationID string, status AllocStatus, reason string) (LicenseAllocation, error) {
	start := time.Now()
	var (
		updated LicenseAllocation
		from    AllocStatus
		delta   int
	)
	err := func() error {
		if !status.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
		}
		actor := s.actorFor(ctx)
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			current, ok := tx.FindAllocation(allocationID)
			if !ok {
				return ErrNotFound{Entity: domain.EntityAllocation, ID: allocationID}
			}
			from = current.Status
			var err error
			updated, err = tx.UpdateAllocation(allocationID, func(a *LicenseAllocation) error {
				prev := a.Status
				a.History = append(a.History, StatusHistory{
					From:        &prev,
					To:          status,
					Reason:      reason,
					CreatedByID: actor.ID,
				})
				a.Status = status
				return nil
			})
			if err != nil {
				return err
			}
			if delta = capacityDelta(from, status); delta == 0 {
				return nil
			}
			_, err = tx.UpdatePool(current.PoolID, func(p *LicensePool) error {
				p.AvailableQty += delta
				return nil
			})
			return err
		})
		return err
	}()
	s.observe(ctx, "update_allocation_status", start, err)
	if err != nil {
		s.logger.Warn("allocation status update rejected",
			zap.String("allocation_id", allocationID),
			zap.String("to", string(status)),
			zap.Error(err))
		return LicenseAllocation{}, err
	}
	s.logger.Info("allocation status updated",
		zap.String("allocation_id", allocationID),
		zap.String("pool_id", updated.PoolID),
		zap.String("from", string(from)),
		zap.String("to", string(status)),
		zap.Int("capacity_delta", delta))
	return updated, nil
}
