package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"samledger/internal/blob"
	"samledger/internal/importer"

	"go.uber.org/zap"
)

// Import sources recorded in allocation history and the audit trail.
const (
	SourceCSV  = "CSV"
	SourceXLSX = "XLSX"
)

const (
	importAuditEntity = "Import"
	importAuditAction = "create_bulk"
	archivePrefix     = "archive/"
)

// ImportDataFromCSV parses comma separated input and imports it. A nil
// mapping is guessed from the header row.
func (s *Service) ImportDataFromCSV(ctx context.Context, r io.Reader, mapping importer.ColumnMapping, dryRun bool) (importer.Result, error) {
	table, err := importer.ParseCSV(r)
	if err != nil {
		s.observe(ctx, "import", time.Now(), err)
		return importer.Result{}, err
	}
	return s.importTable(ctx, SourceCSV, table, mapping, dryRun)
}

// ImportDataFromXLSX imports the first worksheet of an Excel workbook.
func (s *Service) ImportDataFromXLSX(ctx context.Context, r io.Reader, mapping importer.ColumnMapping, dryRun bool) (importer.Result, error) {
	table, err := importer.ParseXLSX(r)
	if err != nil {
		s.observe(ctx, "import", time.Now(), err)
		return importer.Result{}, err
	}
	return s.importTable(ctx, SourceXLSX, table, mapping, dryRun)
}

// ImportTable imports rows that were already parsed, recording them as a CSV import.
func (s *Service) ImportTable(ctx context.Context, table importer.Table, mapping importer.ColumnMapping, dryRun bool) (importer.Result, error) {
	return s.importTable(ctx, SourceCSV, table, mapping, dryRun)
}

// ImportFromBlob imports the export stored under key, choosing the parser by
// extension. A committed import moves the blob under archive/ so the inbox
// only holds pending files.
func (s *Service) ImportFromBlob(ctx context.Context, store blob.Store, key string, mapping importer.ColumnMapping, dryRun bool) (importer.Result, error) {
	info, rc, err := store.Get(ctx, key)
	if err != nil {
		return importer.Result{}, fmt.Errorf("fetch import %s: %w", key, err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return importer.Result{}, fmt.Errorf("read import %s: %w", key, err)
	}

	var result importer.Result
	if strings.EqualFold(path.Ext(key), ".xlsx") {
		result, err = s.ImportDataFromXLSX(ctx, bytes.NewReader(data), mapping, dryRun)
	} else {
		result, err = s.ImportDataFromCSV(ctx, bytes.NewReader(data), mapping, dryRun)
	}
	if err != nil || dryRun || result.OK == 0 {
		return result, err
	}

	archiveKey := archivePrefix + strings.TrimPrefix(key, "/")
	if _, err := store.Put(ctx, archiveKey, bytes.NewReader(data), blob.PutOptions{ContentType: info.ContentType, Metadata: info.Metadata}); err != nil && !errors.Is(err, blob.ErrExists) {
		s.logger.Warn("archive import failed", zap.String("key", key), zap.Error(err))
		return result, nil
	}
	if _, err := store.Delete(ctx, key); err != nil {
		s.logger.Warn("remove imported blob failed", zap.String("key", key), zap.Error(err))
	}
	return result, nil
}

func (s *Service) importTable(ctx context.Context, source string, table importer.Table, mapping importer.ColumnMapping, dryRun bool) (importer.Result, error) {
	start := time.Now()
	if mapping == nil {
		mapping = importer.AutoMap(table.Headers)
	}
	opts := importer.Options{Source: source}
	logger := s.logger.With(zap.String("source", source), zap.Bool("dry_run", dryRun))

	var plan importer.Plan
	if dryRun {
		err := s.store.View(ctx, func(view TransactionView) error {
			plan = importer.Build(view, table, mapping, opts)
			return nil
		})
		s.observe(ctx, "import", start, err)
		if err != nil {
			return importer.Result{}, err
		}
		logImportResult(logger, plan.Result)
		return plan.Result, nil
	}

	actor := s.actorFor(ctx)
	_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		plan = importer.Build(tx.Snapshot(), table, mapping, opts)
		if plan.Result.OK == 0 {
			return nil
		}
		return commitPlan(tx, source, plan, actor)
	})
	s.observe(ctx, "import", start, err)
	if err != nil {
		logger.Warn("import rejected", zap.Error(err))
		return importer.Result{}, err
	}

	res := plan.Result
	if res.OK == 0 {
		logger.Warn("import found no valid rows", zap.Int("errors", len(res.Errors)), zap.Int("duplicates", len(res.Duplicates)))
		s.AddNotification(Notification{
			Severity: NotificationWarning,
			Title:    "Nothing imported",
			Message:  "No valid records to import.",
		})
		return res, nil
	}
	severity := NotificationSuccess
	if len(res.Errors) > 0 {
		severity = NotificationWarning
	}
	s.AddNotification(Notification{
		Severity: severity,
		Title:    "Import complete",
		Message:  fmt.Sprintf("Import complete: %d succeeded, %d errors.", res.OK, len(res.Errors)),
	})
	logImportResult(logger, res)
	return res, nil
}

// commitPlan writes a plan and then recomputes capacity for every pool from
// scratch, so drift in earlier state is corrected as a side effect.
func commitPlan(tx Transaction, source string, plan importer.Plan, actor Actor) error {
	for _, v := range plan.Vendors {
		if _, err := tx.CreateVendor(v); err != nil {
			return err
		}
	}
	for _, p := range plan.Products {
		if _, err := tx.CreateProduct(p); err != nil {
			return err
		}
	}
	for _, p := range plan.People {
		if _, err := tx.CreatePerson(p); err != nil {
			return err
		}
	}
	for _, p := range plan.Pools {
		if _, err := tx.CreatePool(p); err != nil {
			return err
		}
	}
	for _, a := range plan.Allocations {
		for i := range a.History {
			a.History[i].CreatedByID = actor.ID
		}
		if _, err := tx.CreateAllocation(a); err != nil {
			return err
		}
	}

	view := tx.Snapshot()
	held := make(map[string]int)
	for _, a := range view.ListAllocations() {
		if a.Status.HoldsCapacity() {
			held[a.PoolID]++
		}
	}
	increments := plan.PoolIncrements()
	for _, pool := range view.ListPools() {
		total := pool.TotalQuantity + increments[pool.ID]
		available := total - held[pool.ID]
		if total == pool.TotalQuantity && available == pool.AvailableQty {
			continue
		}
		if _, err := tx.UpdatePool(pool.ID, func(p *LicensePool) error {
			p.TotalQuantity = total
			p.AvailableQty = available
			return nil
		}); err != nil {
			return err
		}
	}

	res := plan.Result
	_, err := tx.AppendAudit(AuditLog{
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Entity:    importAuditEntity,
		EntityID:  source,
		Action:    importAuditAction,
		Details: fmt.Sprintf("Import complete. %d succeeded, %d errors, %d duplicates.",
			res.OK, len(res.Errors), len(res.Duplicates)),
	})
	return err
}

func logImportResult(logger *zap.Logger, res importer.Result) {
	logger.Info("import processed",
		zap.Int("ok", res.OK),
		zap.Int("errors", len(res.Errors)),
		zap.Int("warnings", len(res.Warnings)),
		zap.Int("duplicates", len(res.Duplicates)))
}
