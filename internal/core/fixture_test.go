package core_test

import (
	"fmt"
	"testing"
	"time"

	"samledger/internal/core"
	"samledger/internal/infra/persistence/memory"
	"samledger/pkg/domain"

	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func strPtr(v string) *string { return &v }

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func alloc(id, pool, person string, status domain.AllocStatus, cost int64) domain.LicenseAllocation {
	return domain.LicenseAllocation{
		Base:     domain.Base{ID: id},
		PoolID:   pool,
		PersonID: person,
		Status:   status,
		UnitCost: decimal.NewFromInt(cost),
		History:  []domain.StatusHistory{{ID: "h-" + id, To: domain.AllocStatusActive, CreatedAt: fixedNow.Add(-time.Hour)}},
	}
}

// ledgerFixture holds two pools:
//
//	POOL1 (Photoshop, MONTH, total 5): A1 ACTIVE, A2 AWAITING, A3 AWAITING, A6 HISTORY
//	POOL2 (Slack, YEAR, total 2):      A4 AWAITING, A5 ACTIVE (inactive holder), A7 HISTORY
func ledgerFixture() memory.Snapshot {
	a1 := alloc("A1", "POOL1", "P1", domain.AllocStatusActive, 50)
	a1.CostCenterID = strPtr("CC1")
	return memory.Snapshot{
		Vendors:     []domain.Vendor{{Base: domain.Base{ID: "V1"}, Name: "Adobe"}},
		Contracts:   []domain.Contract{{Base: domain.Base{ID: "C1"}, Number: "CT-2024-001", VendorID: "V1"}},
		Departments: []domain.Department{{Base: domain.Base{ID: "D1"}, Name: "Design", Directorate: "Marketing"}},
		CostCenters: []domain.CostCenter{{Base: domain.Base{ID: "CC1"}, Code: "CC100", DepartmentID: strPtr("D1")}},
		Products: []domain.SoftwareProduct{
			{Base: domain.Base{ID: "PROD1"}, Name: "Photoshop", VendorID: strPtr("V1"), UnitCost: decimal.NewFromInt(50), CostPeriod: domain.CostPeriodMonth},
			{Base: domain.Base{ID: "PROD2"}, Name: "Slack", UnitCost: decimal.NewFromInt(10), CostPeriod: domain.CostPeriodYear},
		},
		Pools: []domain.LicensePool{
			{Base: domain.Base{ID: "POOL1"}, ProductID: "PROD1", ContractID: strPtr("C1"), TotalQuantity: 5},
			{Base: domain.Base{ID: "POOL2"}, ProductID: "PROD2", TotalQuantity: 2},
		},
		People: []domain.Person{
			{Base: domain.Base{ID: "P1"}, Email: "jane@x.com", DisplayName: "Jane Doe", DepartmentID: strPtr("D1"), Status: domain.PersonStatusActive},
			{Base: domain.Base{ID: "P2"}, Email: "john@x.com", DisplayName: "John Roe", Status: domain.PersonStatusActive},
			{Base: domain.Base{ID: "P3"}, Email: "old@x.com", DisplayName: "Old Timer", Status: domain.PersonStatusInactive},
		},
		Allocations: []domain.LicenseAllocation{
			a1,
			alloc("A2", "POOL1", "P2", domain.AllocStatusAwaitingInact, 50),
			alloc("A3", "POOL1", "P3", domain.AllocStatusAwaitingInact, 50),
			alloc("A4", "POOL2", "P1", domain.AllocStatusAwaitingInact, 10),
			alloc("A5", "POOL2", "P3", domain.AllocStatusActive, 10),
			alloc("A6", "POOL1", "P2", domain.AllocStatusHistory, 50),
			alloc("A7", "POOL2", "P2", domain.AllocStatusHistory, 10),
		},
		Requests: []domain.SoftwareRequest{
			{Base: domain.Base{ID: "R1"}, RequesterID: "P2", ProductID: "PROD2", Justification: "team chat", Status: domain.RequestStatusPending},
		},
	}
}

func newLedger(t *testing.T, snapshot memory.Snapshot, opts ...core.Option) (*core.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore(core.NewDefaultRulesEngine(),
		memory.WithNowFunc(func() time.Time { return fixedNow }),
		memory.WithIDFunc(sequentialIDs()))
	store.ImportState(snapshot)
	return core.NewService(store, opts...), store
}

func mustPool(t *testing.T, store *memory.Store, id string) domain.LicensePool {
	t.Helper()
	for _, p := range store.ExportState().Pools {
		if p.ID == id {
			return p
		}
	}
	t.Fatalf("pool %s not found", id)
	return domain.LicensePool{}
}

func mustAllocation(t *testing.T, store *memory.Store, id string) domain.LicenseAllocation {
	t.Helper()
	for _, a := range store.ExportState().Allocations {
		if a.ID == id {
			return a
		}
	}
	t.Fatalf("allocation %s not found", id)
	return domain.LicenseAllocation{}
}
