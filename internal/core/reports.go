package core

import (
	"context"
	"sort"

	"samledger/pkg/domain"

	"github.com/shopspring/decimal"
)

const (
	otherVendorsBucket  = "Others"
	noCostCenterBucket  = "N/A"
	topCostEntries      = 10
	lowAvailabilityMax  = 5
	lowAvailabilityRate = 0.2
	savingsThreshold    = 0.25
)

var monthsPerYear = decimal.NewFromInt(12)

// CountEntry is one slice of a count breakdown.
type CountEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// CostEntry is one slice of an annualized cost breakdown.
type CostEntry struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Value decimal.Decimal `json:"value"`
}

// Dashboard is the headline summary of the ledger.
type Dashboard struct {
	ActiveAllocations    int               `json:"active_allocations"`
	AwaitingInactivation int               `json:"awaiting_inactivation"`
	AnnualCost           decimal.Decimal   `json:"annual_cost"`
	Products             int               `json:"products"`
	AllocationsByVendor  []CountEntry      `json:"allocations_by_vendor"`
	TopProductsByCost    []CostEntry       `json:"top_products_by_cost"`
	TopCostCentersByCost []CostEntry       `json:"top_cost_centers_by_cost"`
	LowAvailabilityPools []PoolWithDetails `json:"low_availability_pools"`
}

// ComplianceStatus classifies a pool's entitlement against active use.
type ComplianceStatus string

// Compliance classifications.
const (
	ComplianceRisk      ComplianceStatus = "RISK"
	ComplianceSavings   ComplianceStatus = "SAVINGS"
	ComplianceOptimized ComplianceStatus = "OPTIMIZED"
)

// ComplianceEntry compares a pool's total with its ACTIVE allocations.
type ComplianceEntry struct {
	PoolID      string           `json:"pool_id"`
	ProductID   string           `json:"product_id"`
	ProductName string           `json:"product_name"`
	Total       int              `json:"total"`
	Allocated   int              `json:"allocated"`
	Delta       int              `json:"delta"`
	Status      ComplianceStatus `json:"status"`
}

// Reclaim reasons.
const (
	ReclaimMarked       = "marked for inactivation"
	ReclaimInactiveUser = "inactive user"
)

// ReclaimableAllocation is a license that can be returned to its pool.
type ReclaimableAllocation struct {
	AllocationWithDetails
	Reason string `json:"reason"`
}

// annualCost converts an allocation's snapshot cost to a yearly figure.
func annualCost(a AllocationWithDetails) decimal.Decimal {
	if a.Pool.Product.CostPeriod == domain.CostPeriodMonth {
		return a.UnitCost.Mul(monthsPerYear)
	}
	return a.UnitCost
}

// Dashboard summarizes allocations, cost, and pools running out of capacity.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	var out Dashboard
	err := s.project(ctx, "dashboard", func(view TransactionView) error {
		allocations, err := projectAll(view, view.ListAllocations(), allocationDetails)
		if err != nil {
			return err
		}
		pools, err := projectAll(view, view.ListPools(), poolDetails)
		if err != nil {
			return err
		}
		out = buildDashboard(allocations, pools, len(view.ListProducts()))
		return nil
	})
	return out, err
}

func buildDashboard(allocations []AllocationWithDetails, pools []PoolWithDetails, products int) Dashboard {
	d := Dashboard{AnnualCost: decimal.Zero, Products: products}
	vendors := newCountIndex()
	byProduct := newCostIndex()
	byCostCenter := newCostIndex()
	for _, a := range allocations {
		if a.Status == AllocStatusAwaitingInact {
			d.AwaitingInactivation++
		}
		if a.Status != AllocStatusActive {
			continue
		}
		d.ActiveAllocations++
		cost := annualCost(a)
		d.AnnualCost = d.AnnualCost.Add(cost)

		vendor := otherVendorsBucket
		if a.Pool.Product.Vendor != nil {
			vendor = a.Pool.Product.Vendor.Name
		}
		vendors.add(vendor)
		byProduct.add(a.Pool.Product.ID, a.Pool.Product.Name, cost)
		if a.CostCenter != nil {
			byCostCenter.add(a.CostCenter.ID, a.CostCenter.Code, cost)
		} else {
			byCostCenter.add("", noCostCenterBucket, cost)
		}
	}
	d.AllocationsByVendor = vendors.sorted()
	d.TopProductsByCost = byProduct.top(topCostEntries)
	d.TopCostCentersByCost = byCostCenter.top(topCostEntries)
	d.LowAvailabilityPools = lowAvailability(pools)
	return d
}

func lowAvailability(pools []PoolWithDetails) []PoolWithDetails {
	ratio := func(p PoolWithDetails) float64 {
		return float64(p.AvailableQty) / float64(p.TotalQuantity)
	}
	low := []PoolWithDetails{}
	for _, p := range pools {
		if p.TotalQuantity > 0 && ratio(p) < lowAvailabilityRate {
			low = append(low, p)
		}
	}
	sort.SliceStable(low, func(i, j int) bool { return ratio(low[i]) < ratio(low[j]) })
	if len(low) > lowAvailabilityMax {
		low = low[:lowAvailabilityMax]
	}
	return low
}

type countIndex struct {
	order  []string
	counts map[string]int
}

func newCountIndex() *countIndex { return &countIndex{counts: make(map[string]int)} }

func (c *countIndex) add(name string) {
	if _, ok := c.counts[name]; !ok {
		c.order = append(c.order, name)
	}
	c.counts[name]++
}

func (c *countIndex) sorted() []CountEntry {
	out := make([]CountEntry, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, CountEntry{Name: name, Count: c.counts[name]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

type costIndex struct {
	order   []string
	entries map[string]*CostEntry
}

func newCostIndex() *costIndex { return &costIndex{entries: make(map[string]*CostEntry)} }

func (c *costIndex) add(id, name string, value decimal.Decimal) {
	e, ok := c.entries[id]
	if !ok {
		e = &CostEntry{ID: id, Name: name, Value: decimal.Zero}
		c.entries[id] = e
		c.order = append(c.order, id)
	}
	e.Value = e.Value.Add(value)
}

// top returns the n most expensive entries; ties keep first-seen order.
func (c *costIndex) top(n int) []CostEntry {
	out := make([]CostEntry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.entries[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value.GreaterThan(out[j].Value) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Compliance compares each pool's entitlement with its ACTIVE allocations.
func (s *Service) Compliance(ctx context.Context) ([]ComplianceEntry, error) {
	var out []ComplianceEntry
	err := s.project(ctx, "compliance", func(view TransactionView) error {
		pools, err := projectAll(view, view.ListPools(), poolDetails)
		if err != nil {
			return err
		}
		active := make(map[string]int)
		for _, a := range view.ListAllocations() {
			if a.Status == AllocStatusActive {
				active[a.PoolID]++
			}
		}
		out = make([]ComplianceEntry, 0, len(pools))
		for _, p := range pools {
			out = append(out, classifyCompliance(p, active[p.ID]))
		}
		return nil
	})
	return out, err
}

func classifyCompliance(p PoolWithDetails, allocated int) ComplianceEntry {
	entry := ComplianceEntry{
		PoolID:      p.ID,
		ProductID:   p.ProductID,
		ProductName: p.Product.Name,
		Total:       p.TotalQuantity,
		Allocated:   allocated,
		Delta:       p.TotalQuantity - allocated,
		Status:      ComplianceOptimized,
	}
	switch {
	case entry.Delta < 0:
		entry.Status = ComplianceRisk
	case entry.Total > 0 && float64(entry.Delta)/float64(entry.Total) > savingsThreshold:
		entry.Status = ComplianceSavings
	}
	return entry
}

// Reclaimable lists allocations awaiting inactivation and ACTIVE allocations
// still held by inactive people.
func (s *Service) Reclaimable(ctx context.Context) ([]ReclaimableAllocation, error) {
	var out []ReclaimableAllocation
	err := s.project(ctx, "reclaimable", func(view TransactionView) error {
		allocations, err := projectAll(view, view.ListAllocations(), allocationDetails)
		if err != nil {
			return err
		}
		out = []ReclaimableAllocation{}
		for _, a := range allocations {
			switch {
			case a.Status == AllocStatusAwaitingInact:
				out = append(out, ReclaimableAllocation{AllocationWithDetails: a, Reason: ReclaimMarked})
			case a.Status == AllocStatusActive && a.Person.Status == domain.PersonStatusInactive:
				out = append(out, ReclaimableAllocation{AllocationWithDetails: a, Reason: ReclaimInactiveUser})
			}
		}
		return nil
	})
	return out, err
}
