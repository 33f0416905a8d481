package core

import "context"

func readAll[T any](ctx context.Context, s *Service, list func(TransactionView) []T) ([]T, error) {
	var out []T
	err := s.store.View(ctx, func(view TransactionView) error {
		out = list(view)
		return nil
	})
	return out, err
}

// Vendors returns all vendors.
func (s *Service) Vendors(ctx context.Context) ([]Vendor, error) {
	return readAll(ctx, s, TransactionView.ListVendors)
}

// Contracts returns all contracts.
func (s *Service) Contracts(ctx context.Context) ([]Contract, error) {
	return readAll(ctx, s, TransactionView.ListContracts)
}

// Products returns all software products.
func (s *Service) Products(ctx context.Context) ([]SoftwareProduct, error) {
	return readAll(ctx, s, TransactionView.ListProducts)
}

// Pools returns all license pools.
func (s *Service) Pools(ctx context.Context) ([]LicensePool, error) {
	return readAll(ctx, s, TransactionView.ListPools)
}

// Departments returns all departments.
func (s *Service) Departments(ctx context.Context) ([]Department, error) {
	return readAll(ctx, s, TransactionView.ListDepartments)
}

// CostCenters returns all cost centers.
func (s *Service) CostCenters(ctx context.Context) ([]CostCenter, error) {
	return readAll(ctx, s, TransactionView.ListCostCenters)
}

// People returns all people.
func (s *Service) People(ctx context.Context) ([]Person, error) {
	return readAll(ctx, s, TransactionView.ListPeople)
}

// Allocations returns all allocations, history included.
func (s *Service) Allocations(ctx context.Context) ([]LicenseAllocation, error) {
	return readAll(ctx, s, TransactionView.ListAllocations)
}

// AuditLog returns the audit trail, newest first.
func (s *Service) AuditLog(ctx context.Context) ([]AuditLog, error) {
	return readAll(ctx, s, TransactionView.ListAuditLog)
}

// Requests returns all software requests.
func (s *Service) Requests(ctx context.Context) ([]SoftwareRequest, error) {
	return readAll(ctx, s, TransactionView.ListRequests)
}
