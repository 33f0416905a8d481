package core

import "samledger/pkg/domain"

type (
	EntityType         = domain.EntityType
	Vendor             = domain.Vendor
	Contract           = domain.Contract
	SoftwareProduct    = domain.SoftwareProduct
	LicensePool        = domain.LicensePool
	Department         = domain.Department
	CostCenter         = domain.CostCenter
	Person             = domain.Person
	LicenseAllocation  = domain.LicenseAllocation
	StatusHistory      = domain.StatusHistory
	AuditLog           = domain.AuditLog
	SoftwareRequest    = domain.SoftwareRequest
	AllocStatus        = domain.AllocStatus
	Change             = domain.Change
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	ErrNotFound        = domain.ErrNotFound
	RulesEngine        = domain.RulesEngine
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	AllocStatusActive        = domain.AllocStatusActive
	AllocStatusAwaitingInact = domain.AllocStatusAwaitingInact
	AllocStatusHistory       = domain.AllocStatusHistory
)
