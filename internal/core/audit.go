package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// AddAudit appends an entry to the audit trail. Actor fields default to the
// acting user.
func (s *Service) AddAudit(ctx context.Context, entry AuditLog) (AuditLog, error) {
	start := time.Now()
	if entry.ActorID == "" {
		actor := s.actorFor(ctx)
		entry.ActorID = actor.ID
		entry.ActorName = actor.Name
	}
	var stored AuditLog
	_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		stored, err = tx.AppendAudit(entry)
		return err
	})
	s.observe(ctx, "add_audit", start, err)
	if err != nil {
		s.logger.Warn("audit append failed", zap.String("entity", entry.Entity), zap.Error(err))
		return AuditLog{}, err
	}
	return stored, nil
}
