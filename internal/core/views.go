package core

import (
	"context"
	"fmt"
	"time"

	"samledger/pkg/domain"
)

// IntegrityError reports a mandatory reference that does not resolve, such
// as a pool whose product is gone. It signals corrupted ledger state rather
// than bad input.
type IntegrityError struct {
	Entity EntityType
	ID     string
	Ref    EntityType
	RefID  string
}

func (e IntegrityError) Error() string {
	return fmt.Sprintf("%s %s references missing %s %s", e.Entity, e.ID, e.Ref, e.RefID)
}

// ProductWithDetails joins a product with its vendor, when it has one.
type ProductWithDetails struct {
	SoftwareProduct
	Vendor *Vendor `json:"vendor,omitempty"`
}

// PoolWithDetails joins a pool with its product and optional contract.
type PoolWithDetails struct {
	LicensePool
	Product  ProductWithDetails `json:"product"`
	Contract *Contract          `json:"contract,omitempty"`
}

// AllocationWithDetails joins an allocation with its pool, holder, cost
// center, and the holder's department.
type AllocationWithDetails struct {
	LicenseAllocation
	Pool       PoolWithDetails `json:"pool"`
	Person     Person          `json:"person"`
	CostCenter *CostCenter     `json:"cost_center,omitempty"`
	Department *Department     `json:"department,omitempty"`
}

// RequestWithDetails joins a software request with requester and product.
type RequestWithDetails struct {
	SoftwareRequest
	Requester Person          `json:"requester"`
	Product   SoftwareProduct `json:"product"`
}

func productDetails(view TransactionView, p SoftwareProduct) ProductWithDetails {
	out := ProductWithDetails{SoftwareProduct: p}
	if p.VendorID != nil {
		if v, ok := view.FindVendor(*p.VendorID); ok {
			out.Vendor = &v
		}
	}
	return out
}

func poolDetails(view TransactionView, p LicensePool) (PoolWithDetails, error) {
	product, ok := view.FindProduct(p.ProductID)
	if !ok {
		return PoolWithDetails{}, IntegrityError{Entity: domain.EntityPool, ID: p.ID, Ref: domain.EntityProduct, RefID: p.ProductID}
	}
	out := PoolWithDetails{LicensePool: p, Product: productDetails(view, product)}
	if p.ContractID != nil {
		if c, ok := view.FindContract(*p.ContractID); ok {
			out.Contract = &c
		}
	}
	return out, nil
}

func allocationDetails(view TransactionView, a LicenseAllocation) (AllocationWithDetails, error) {
	pool, ok := view.FindPool(a.PoolID)
	if !ok {
		return AllocationWithDetails{}, IntegrityError{Entity: domain.EntityAllocation, ID: a.ID, Ref: domain.EntityPool, RefID: a.PoolID}
	}
	person, ok := view.FindPerson(a.PersonID)
	if !ok {
		return AllocationWithDetails{}, IntegrityError{Entity: domain.EntityAllocation, ID: a.ID, Ref: domain.EntityPerson, RefID: a.PersonID}
	}
	poolView, err := poolDetails(view, pool)
	if err != nil {
		return AllocationWithDetails{}, err
	}
	out := AllocationWithDetails{LicenseAllocation: a, Pool: poolView, Person: person}
	if a.CostCenterID != nil {
		if cc, ok := view.FindCostCenter(*a.CostCenterID); ok {
			out.CostCenter = &cc
		}
	}
	if person.DepartmentID != nil {
		if d, ok := view.FindDepartment(*person.DepartmentID); ok {
			out.Department = &d
		}
	}
	return out, nil
}

func requestDetails(view TransactionView, r SoftwareRequest) (RequestWithDetails, error) {
	requester, ok := view.FindPerson(r.RequesterID)
	if !ok {
		return RequestWithDetails{}, IntegrityError{Entity: domain.EntityRequest, ID: r.ID, Ref: domain.EntityPerson, RefID: r.RequesterID}
	}
	product, ok := view.FindProduct(r.ProductID)
	if !ok {
		return RequestWithDetails{}, IntegrityError{Entity: domain.EntityRequest, ID: r.ID, Ref: domain.EntityProduct, RefID: r.ProductID}
	}
	return RequestWithDetails{SoftwareRequest: r, Requester: requester, Product: product}, nil
}

// projectAll maps every record through build, stopping at the first failure.
func projectAll[T, V any](view TransactionView, records []T, build func(TransactionView, T) (V, error)) ([]V, error) {
	out := make([]V, 0, len(records))
	for _, rec := range records {
		v, err := build(view, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) project(ctx context.Context, operation string, fn func(TransactionView) error) error {
	start := time.Now()
	err := s.store.View(ctx, fn)
	s.observe(ctx, operation, start, err)
	return err
}

// ProductsWithDetails returns every product joined with its vendor.
func (s *Service) ProductsWithDetails(ctx context.Context) ([]ProductWithDetails, error) {
	var out []ProductWithDetails
	err := s.project(ctx, "products_with_details", func(view TransactionView) error {
		products := view.ListProducts()
		out = make([]ProductWithDetails, 0, len(products))
		for _, p := range products {
			out = append(out, productDetails(view, p))
		}
		return nil
	})
	return out, err
}

// PoolsWithDetails returns every pool joined with product and contract.
func (s *Service) PoolsWithDetails(ctx context.Context) ([]PoolWithDetails, error) {
	var out []PoolWithDetails
	err := s.project(ctx, "pools_with_details", func(view TransactionView) error {
		var err error
		out, err = projectAll(view, view.ListPools(), poolDetails)
		return err
	})
	return out, err
}

// AllocationsWithDetails returns every allocation with its joins resolved.
func (s *Service) AllocationsWithDetails(ctx context.Context) ([]AllocationWithDetails, error) {
	var out []AllocationWithDetails
	err := s.project(ctx, "allocations_with_details", func(view TransactionView) error {
		var err error
		out, err = projectAll(view, view.ListAllocations(), allocationDetails)
		return err
	})
	return out, err
}

// RequestsWithDetails returns every software request with requester and product.
func (s *Service) RequestsWithDetails(ctx context.Context) ([]RequestWithDetails, error) {
	var out []RequestWithDetails
	err := s.project(ctx, "requests_with_details", func(view TransactionView) error {
		var err error
		out, err = projectAll(view, view.ListRequests(), requestDetails)
		return err
	})
	return out, err
}
