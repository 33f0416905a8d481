// Package domain defines the license ledger entities, value types, and rule
// evaluation primitives used by samledger.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies the type of record stored in the ledger.
type EntityType string

// Supported entity type identifiers used in Change records and snapshot buckets.
const (
	// EntityVendor identifies a software vendor.
	EntityVendor EntityType = "vendor"
	// EntityContract identifies a purchase contract.
	EntityContract EntityType = "contract"
	// EntityProduct identifies a software product.
	EntityProduct EntityType = "software_product"
	// EntityPool identifies a license pool.
	EntityPool EntityType = "license_pool"
	// EntityDepartment identifies an organisational department.
	EntityDepartment EntityType = "department"
	// EntityCostCenter identifies a cost center.
	EntityCostCenter EntityType = "cost_center"
	// EntityPerson identifies a license holder.
	EntityPerson EntityType = "person"
	// EntityAllocation identifies a license allocation.
	EntityAllocation EntityType = "license_allocation"
	// EntityAuditLog identifies an audit trail entry.
	EntityAuditLog EntityType = "audit_log"
	// EntityRequest identifies a software request.
	EntityRequest EntityType = "software_request"
)

// CostPeriod describes how a product's unit cost recurs.
type CostPeriod string

// Supported cost periods.
const (
	CostPeriodMonth   CostPeriod = "MONTH"
	CostPeriodYear    CostPeriod = "YEAR"
	CostPeriodOneTime CostPeriod = "ONE_TIME"
	CostPeriodFree    CostPeriod = "FREE"
	CostPeriodUnknown CostPeriod = "UNKNOWN"
)

// Valid reports whether p is a known cost period.
func (p CostPeriod) Valid() bool {
	switch p {
	case CostPeriodMonth, CostPeriodYear, CostPeriodOneTime, CostPeriodFree, CostPeriodUnknown:
		return true
	}
	return false
}

// PoolStatus captures the commercial state of a license pool.
type PoolStatus string

// Pool statuses.
const (
	PoolStatusActive    PoolStatus = "ACTIVE"
	PoolStatusInactive  PoolStatus = "INACTIVE"
	PoolStatusExhausted PoolStatus = "EXHAUSTED"
)

// AllocStatus is the lifecycle state of a license allocation.
type AllocStatus string

// Stored allocation states. AllocStatusAvailable is a display value for the
// absence of an allocation and is never stored.
const (
	AllocStatusActive        AllocStatus = "ACTIVE"
	AllocStatusAwaitingInact AllocStatus = "AWAITING_INACT"
	AllocStatusHistory       AllocStatus = "HISTORY"
	AllocStatusAvailable     AllocStatus = "AVAILABLE"
)

// Valid reports whether s is a storable allocation state.
func (s AllocStatus) Valid() bool {
	switch s {
	case AllocStatusActive, AllocStatusAwaitingInact, AllocStatusHistory:
		return true
	}
	return false
}

// HoldsCapacity reports whether an allocation in state s consumes a unit of
// its pool's capacity.
func (s AllocStatus) HoldsCapacity() bool {
	return s != AllocStatusHistory
}

// PersonStatus describes whether a person is still employed.
type PersonStatus string

// Person statuses.
const (
	PersonStatusActive   PersonStatus = "Active"
	PersonStatusInactive PersonStatus = "Inactive"
)

// RequestStatus tracks a software request through approval.
type RequestStatus string

// Request statuses.
const (
	RequestStatusPending  RequestStatus = "Pending"
	RequestStatusApproved RequestStatus = "Approved"
	RequestStatusDenied   RequestStatus = "Denied"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for ledger records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Vendor publishes software products.
type Vendor struct {
	Base
	Name string `json:"name"`
}

// Contract is a purchase agreement with a vendor. Dates use the 2006-01-02 layout.
type Contract struct {
	Base
	Number    string  `json:"number"`
	VendorID  string  `json:"vendor_id"`
	StartDate *string `json:"start_date,omitempty"`
	EndDate   *string `json:"end_date,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// SoftwareProduct is a licensable product.
type SoftwareProduct struct {
	Base
	Name       string          `json:"name"`
	VendorID   *string         `json:"vendor_id,omitempty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	CostPeriod CostPeriod      `json:"cost_period"`
	Tags       []string        `json:"tags"`
}

// LicensePool is a capacity bucket of interchangeable licenses for one product.
type LicensePool struct {
	Base
	ProductID     string     `json:"product_id"`
	ContractID    *string    `json:"contract_id,omitempty"`
	TotalQuantity int        `json:"total_quantity"`
	AvailableQty  int        `json:"available_qty"`
	Status        PoolStatus `json:"status"`
}

// Department groups people and cost centers.
type Department struct {
	Base
	Name        string `json:"name"`
	Directorate string `json:"directorate"`
}

// CostCenter receives the charge for an allocation.
type CostCenter struct {
	Base
	Code         string  `json:"code"`
	Name         *string `json:"name,omitempty"`
	DepartmentID *string `json:"department_id,omitempty"`
}

// Person is a license holder. Email is unique, compared case-insensitively.
type Person struct {
	Base
	Email        string       `json:"email"`
	Matricula    *string      `json:"matricula,omitempty"`
	DisplayName  string       `json:"display_name"`
	ManagerUPN   *string      `json:"manager_upn,omitempty"`
	DepartmentID *string      `json:"department_id,omitempty"`
	Status       PersonStatus `json:"status"`
}

// StatusHistory records one allocation state transition. Entries are
// immutable once appended.
type StatusHistory struct {
	ID          string       `json:"id"`
	From        *AllocStatus `json:"from,omitempty"`
	To          AllocStatus  `json:"to"`
	Reason      string       `json:"reason,omitempty"`
	CreatedByID string       `json:"created_by_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// LicenseAllocation assigns one unit of a pool to a person. UnitCost is the
// product cost captured at allocation time and is never recomputed.
type LicenseAllocation struct {
	Base
	PoolID       string          `json:"pool_id"`
	PersonID     string          `json:"person_id"`
	CostCenterID *string         `json:"cost_center_id,omitempty"`
	Status       AllocStatus     `json:"status"`
	AccessKey    *string         `json:"access_key,omitempty"`
	Observation  *string         `json:"observation,omitempty"`
	ThirdParty   bool            `json:"third_party"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	History      []StatusHistory `json:"history"`
}

// AuditLog is an append-only record of an action taken against the ledger.
type AuditLog struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id,omitempty"`
	ActorName string    `json:"actor_name,omitempty"`
	Entity    string    `json:"entity"`
	EntityID  string    `json:"entity_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// SoftwareRequest is a person's request for a product.
type SoftwareRequest struct {
	Base
	RequesterID   string        `json:"requester_id"`
	ProductID     string        `json:"product_id"`
	Justification string        `json:"justification"`
	Status        RequestStatus `json:"status"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions. The ledger never deletes records.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return fmt.Sprintf("transaction blocked by rules: %s", v.Message)
		}
	}
	return "transaction blocked by rules"
}

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
