package domain

import (
	"context"
	"time"
)

// Transaction exposes the ledger mutations that a store implementation
// must support within an atomic scope. Records are created or updated, never
// deleted.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time
	CreateVendor(Vendor) (Vendor, error)
	CreateProduct(SoftwareProduct) (SoftwareProduct, error)
	CreatePerson(Person) (Person, error)
	CreatePool(LicensePool) (LicensePool, error)
	UpdatePool(id string, mutator func(*LicensePool) error) (LicensePool, error)
	CreateAllocation(LicenseAllocation) (LicenseAllocation, error)
	UpdateAllocation(id string, mutator func(*LicenseAllocation) error) (LicenseAllocation, error)
	AppendAudit(AuditLog) (AuditLog, error)
	FindPool(id string) (LicensePool, bool)
	FindAllocation(id string) (LicenseAllocation, bool)
}

// TransactionView provides read-only access to snapshot data. List methods
// return records in insertion order, except ListAuditLog which returns the
// newest entry first.
type TransactionView interface {
	RuleView
	ListVendors() []Vendor
	ListContracts() []Contract
	ListProducts() []SoftwareProduct
	ListDepartments() []Department
	ListCostCenters() []CostCenter
	ListPeople() []Person
	ListAuditLog() []AuditLog
	ListRequests() []SoftwareRequest
	FindVendor(id string) (Vendor, bool)
	FindContract(id string) (Contract, bool)
	FindProduct(id string) (SoftwareProduct, bool)
	FindDepartment(id string) (Department, bool)
	FindCostCenter(id string) (CostCenter, bool)
	FindPerson(id string) (Person, bool)
}

// PersistentStore is the abstraction the service layer runs against.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	NowFunc() func() time.Time
}
