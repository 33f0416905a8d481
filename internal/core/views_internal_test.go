package core

import (
	"errors"
	"testing"

	"samledger/pkg/domain"
)

// brokenView reports every product as missing.
type brokenView struct {
	TransactionView
}

func (brokenView) FindProduct(string) (SoftwareProduct, bool) { return SoftwareProduct{}, false }

func TestPoolDetailsReportsMissingProduct(t *testing.T) {
	_, err := poolDetails(brokenView{}, LicensePool{Base: domain.Base{ID: "POOL9"}, ProductID: "GONE"})
	var integrity IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if integrity.ID != "POOL9" || integrity.Ref != domain.EntityProduct || integrity.RefID != "GONE" {
		t.Fatalf("unexpected integrity error %+v", integrity)
	}
}

func TestClassifyCompliance(t *testing.T) {
	pool := func(total int) PoolWithDetails {
		return PoolWithDetails{LicensePool: LicensePool{TotalQuantity: total}}
	}
	cases := []struct {
		total, allocated int
		want             ComplianceStatus
	}{
		{total: 2, allocated: 3, want: ComplianceRisk},
		{total: 10, allocated: 5, want: ComplianceSavings},
		{total: 4, allocated: 3, want: ComplianceOptimized},
		{total: 0, allocated: 0, want: ComplianceOptimized},
	}
	for _, tc := range cases {
		got := classifyCompliance(pool(tc.total), tc.allocated)
		if got.Status != tc.want || got.Delta != tc.total-tc.allocated {
			t.Fatalf("total=%d allocated=%d: got %+v want %s", tc.total, tc.allocated, got, tc.want)
		}
	}
}

func TestCapacityDelta(t *testing.T) {
	cases := []struct {
		from, to AllocStatus
		want     int
	}{
		{AllocStatusActive, AllocStatusHistory, 1},
		{AllocStatusAwaitingInact, AllocStatusHistory, 1},
		{AllocStatusHistory, AllocStatusActive, -1},
		{AllocStatusActive, AllocStatusAwaitingInact, 0},
		{AllocStatusHistory, AllocStatusHistory, 0},
	}
	for _, tc := range cases {
		if got := capacityDelta(tc.from, tc.to); got != tc.want {
			t.Fatalf("%s -> %s: got %d want %d", tc.from, tc.to, got, tc.want)
		}
	}
}
