package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

const (
	reharvestReason   = "automatic reharvesting"
	reharvestEntity   = "LicenseReharvesting"
	reharvestEntityID = "JOB"
	reharvestAction   = "execute"
)

// ReharvestReport summarizes one reharvesting run.
type ReharvestReport struct {
	Reharvested   int            `json:"reharvested"`
	Pools         map[string]int `json:"pools"`
	AllocationIDs []string       `json:"allocation_ids"`
	AuditID       string         `json:"audit_id"`
}

// RunReharvestingJob moves every allocation awaiting inactivation to HISTORY
// and returns the released units to their pools, one increment per pool. The
// run always writes one audit entry, even when nothing was eligible, and
// raises one notification.
func (s *Service) RunReharvestingJob(ctx context.Context) (ReharvestReport, error) {
	start := time.Now()
	var report ReharvestReport
	_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		report = ReharvestReport{Pools: make(map[string]int), AllocationIDs: []string{}}
		for _, alloc := range tx.Snapshot().ListAllocations() {
			if alloc.Status != AllocStatusAwaitingInact {
				continue
			}
			_, err := tx.UpdateAllocation(alloc.ID, func(a *LicenseAllocation) error {
				from := AllocStatusAwaitingInact
				a.History = append(a.History, StatusHistory{
					From:        &from,
					To:          AllocStatusHistory,
					Reason:      reharvestReason,
					CreatedByID: SystemActor.ID,
				})
				a.Status = AllocStatusHistory
				return nil
			})
			if err != nil {
				return err
			}
			report.Pools[alloc.PoolID]++
			report.AllocationIDs = append(report.AllocationIDs, alloc.ID)
			report.Reharvested++
		}

		if len(report.Pools) > 0 {
			poolIDs := make([]string, 0, len(report.Pools))
			for id := range report.Pools {
				poolIDs = append(poolIDs, id)
			}
			sort.Strings(poolIDs)
			for _, id := range poolIDs {
				released := report.Pools[id]
				if _, err := tx.UpdatePool(id, func(p *LicensePool) error {
					p.AvailableQty += released
					return nil
				}); err != nil {
					return err
				}
			}
		}

		entry, err := tx.AppendAudit(AuditLog{
			ActorID:   SystemActor.ID,
			ActorName: SystemActor.Name,
			Entity:    reharvestEntity,
			EntityID:  reharvestEntityID,
			Action:    reharvestAction,
			Details:   fmt.Sprintf("%d licenses reharvested", report.Reharvested),
		})
		if err != nil {
			return err
		}
		report.AuditID = entry.ID
		return nil
	})
	s.observe(ctx, "run_reharvesting_job", start, err)
	if err != nil {
		s.logger.Warn("reharvesting failed", zap.Error(err))
		return ReharvestReport{}, err
	}
	s.AddNotification(Notification{
		Severity: NotificationSuccess,
		Title:    "Reharvesting complete",
		Message:  fmt.Sprintf("%d licenses reharvested", report.Reharvested),
	})
	s.logger.Info("reharvesting complete",
		zap.Int("reharvested", report.Reharvested),
		zap.Int("pools", len(report.Pools)))
	return report, nil
}
