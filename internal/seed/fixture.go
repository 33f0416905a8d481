// Package seed loads the reference data a ledger starts from. Fixtures are
// YAML (or JSON) documents that are validated and converted into a
// memory.Snapshot; SQL sources hand back snapshots directly.
package seed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"samledger/internal/infra/persistence/memory"
	"samledger/pkg/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Fixture is a seed document. IDs are chosen by the author and referenced
// across collections.
type Fixture struct {
	Vendors     []VendorFixture     `yaml:"vendors" json:"vendors" validate:"dive"`
	Contracts   []ContractFixture   `yaml:"contracts" json:"contracts" validate:"dive"`
	Departments []DepartmentFixture `yaml:"departments" json:"departments" validate:"dive"`
	CostCenters []CostCenterFixture `yaml:"cost_centers" json:"cost_centers" validate:"dive"`
	People      []PersonFixture     `yaml:"people" json:"people" validate:"dive"`
	Products    []ProductFixture    `yaml:"products" json:"products" validate:"dive"`
	Pools       []PoolFixture       `yaml:"pools" json:"pools" validate:"dive"`
	Allocations []AllocationFixture `yaml:"allocations" json:"allocations" validate:"dive"`
	AuditLog    []AuditFixture      `yaml:"audit_log" json:"audit_log" validate:"dive"`
	Requests    []RequestFixture    `yaml:"requests" json:"requests" validate:"dive"`
}

type VendorFixture struct {
	ID   string `yaml:"id" json:"id" validate:"required"`
	Name string `yaml:"name" json:"name" validate:"required"`
}

type ContractFixture struct {
	ID        string `yaml:"id" json:"id" validate:"required"`
	Number    string `yaml:"number" json:"number" validate:"required"`
	VendorID  string `yaml:"vendor_id" json:"vendor_id" validate:"required"`
	StartDate string `yaml:"start_date" json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `yaml:"end_date" json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Notes     string `yaml:"notes" json:"notes"`
}

type DepartmentFixture struct {
	ID          string `yaml:"id" json:"id" validate:"required"`
	Name        string `yaml:"name" json:"name" validate:"required"`
	Directorate string `yaml:"directorate" json:"directorate"`
}

type CostCenterFixture struct {
	ID           string `yaml:"id" json:"id" validate:"required"`
	Code         string `yaml:"code" json:"code" validate:"required"`
	Name         string `yaml:"name" json:"name"`
	DepartmentID string `yaml:"department_id" json:"department_id"`
}

type PersonFixture struct {
	ID           string `yaml:"id" json:"id" validate:"required"`
	Email        string `yaml:"email" json:"email" validate:"required,email"`
	Matricula    string `yaml:"matricula" json:"matricula"`
	DisplayName  string `yaml:"display_name" json:"display_name" validate:"required"`
	ManagerUPN   string `yaml:"manager_upn" json:"manager_upn" validate:"omitempty,email"`
	DepartmentID string `yaml:"department_id" json:"department_id"`
	Status       string `yaml:"status" json:"status" validate:"omitempty,oneof=Active Inactive"`
}

type ProductFixture struct {
	ID         string   `yaml:"id" json:"id" validate:"required"`
	Name       string   `yaml:"name" json:"name" validate:"required"`
	VendorID   string   `yaml:"vendor_id" json:"vendor_id"`
	UnitCost   string   `yaml:"unit_cost" json:"unit_cost" validate:"omitempty,numeric"`
	CostPeriod string   `yaml:"cost_period" json:"cost_period" validate:"omitempty,oneof=MONTH YEAR ONE_TIME FREE UNKNOWN"`
	Tags       []string `yaml:"tags" json:"tags"`
}

type PoolFixture struct {
	ID            string `yaml:"id" json:"id" validate:"required"`
	ProductID     string `yaml:"product_id" json:"product_id" validate:"required"`
	ContractID    string `yaml:"contract_id" json:"contract_id"`
	TotalQuantity int    `yaml:"total_quantity" json:"total_quantity" validate:"gte=0"`
	Status        string `yaml:"status" json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE EXHAUSTED"`
}

type HistoryFixture struct {
	ID          string `yaml:"id" json:"id"`
	From        string `yaml:"from" json:"from" validate:"omitempty,oneof=ACTIVE AWAITING_INACT HISTORY"`
	To          string `yaml:"to" json:"to" validate:"required,oneof=ACTIVE AWAITING_INACT HISTORY"`
	Reason      string `yaml:"reason" json:"reason"`
	CreatedByID string `yaml:"created_by_id" json:"created_by_id"`
	CreatedAt   string `yaml:"created_at" json:"created_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type AllocationFixture struct {
	ID           string           `yaml:"id" json:"id" validate:"required"`
	PoolID       string           `yaml:"pool_id" json:"pool_id" validate:"required"`
	PersonID     string           `yaml:"person_id" json:"person_id" validate:"required"`
	CostCenterID string           `yaml:"cost_center_id" json:"cost_center_id"`
	Status       string           `yaml:"status" json:"status" validate:"required,oneof=ACTIVE AWAITING_INACT HISTORY"`
	AccessKey    string           `yaml:"access_key" json:"access_key"`
	Observation  string           `yaml:"observation" json:"observation"`
	ThirdParty   bool             `yaml:"third_party" json:"third_party"`
	UnitCost     string           `yaml:"unit_cost" json:"unit_cost" validate:"omitempty,numeric"`
	CreatedAt    string           `yaml:"created_at" json:"created_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	History      []HistoryFixture `yaml:"history" json:"history" validate:"dive"`
}

type AuditFixture struct {
	ID        string `yaml:"id" json:"id" validate:"required"`
	ActorID   string `yaml:"actor_id" json:"actor_id"`
	ActorName string `yaml:"actor_name" json:"actor_name"`
	Entity    string `yaml:"entity" json:"entity" validate:"required"`
	EntityID  string `yaml:"entity_id" json:"entity_id"`
	Action    string `yaml:"action" json:"action" validate:"required"`
	Details   string `yaml:"details" json:"details"`
	CreatedAt string `yaml:"created_at" json:"created_at" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

type RequestFixture struct {
	ID            string `yaml:"id" json:"id" validate:"required"`
	RequesterID   string `yaml:"requester_id" json:"requester_id" validate:"required"`
	ProductID     string `yaml:"product_id" json:"product_id" validate:"required"`
	Justification string `yaml:"justification" json:"justification"`
	Status        string `yaml:"status" json:"status" validate:"omitempty,oneof=Pending Approved Denied"`
}

// Decode reads a YAML fixture. JSON documents decode too, being valid YAML.
// Unknown keys are rejected so typos surface instead of silently dropping data.
func Decode(r io.Reader) (Fixture, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return Fixture{}, nil
		}
		return Fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	return f, nil
}

// Encode writes f as YAML.
func Encode(w io.Writer, f Fixture) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	return enc.Close()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseCost(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// Snapshot converts a validated fixture into store state. Allocations
// without a unit cost take their product's cost. Pool availability is left
// for the store to recompute on import.
func (f Fixture) Snapshot() (memory.Snapshot, error) {
	var s memory.Snapshot
	for _, v := range f.Vendors {
		s.Vendors = append(s.Vendors, domain.Vendor{Base: domain.Base{ID: v.ID}, Name: v.Name})
	}
	for _, c := range f.Contracts {
		s.Contracts = append(s.Contracts, domain.Contract{
			Base:      domain.Base{ID: c.ID},
			Number:    c.Number,
			VendorID:  c.VendorID,
			StartDate: optional(c.StartDate),
			EndDate:   optional(c.EndDate),
			Notes:     optional(c.Notes),
		})
	}
	for _, d := range f.Departments {
		s.Departments = append(s.Departments, domain.Department{Base: domain.Base{ID: d.ID}, Name: d.Name, Directorate: d.Directorate})
	}
	for _, c := range f.CostCenters {
		s.CostCenters = append(s.CostCenters, domain.CostCenter{
			Base:         domain.Base{ID: c.ID},
			Code:         c.Code,
			Name:         optional(c.Name),
			DepartmentID: optional(c.DepartmentID),
		})
	}
	for _, p := range f.People {
		status := domain.PersonStatus(p.Status)
		if status == "" {
			status = domain.PersonStatusActive
		}
		s.People = append(s.People, domain.Person{
			Base:         domain.Base{ID: p.ID},
			Email:        p.Email,
			Matricula:    optional(p.Matricula),
			DisplayName:  p.DisplayName,
			ManagerUPN:   optional(p.ManagerUPN),
			DepartmentID: optional(p.DepartmentID),
			Status:       status,
		})
	}
	costs := make(map[string]decimal.Decimal, len(f.Products))
	for _, p := range f.Products {
		cost, err := parseCost(p.UnitCost)
		if err != nil {
			return memory.Snapshot{}, fmt.Errorf("product %s unit cost: %w", p.ID, err)
		}
		period := domain.CostPeriod(p.CostPeriod)
		if period == "" {
			period = domain.CostPeriodUnknown
		}
		tags := append([]string{}, p.Tags...)
		s.Products = append(s.Products, domain.SoftwareProduct{
			Base:       domain.Base{ID: p.ID},
			Name:       p.Name,
			VendorID:   optional(p.VendorID),
			UnitCost:   cost,
			CostPeriod: period,
			Tags:       tags,
		})
		costs[p.ID] = cost
	}
	poolProduct := make(map[string]string, len(f.Pools))
	for _, p := range f.Pools {
		status := domain.PoolStatus(p.Status)
		if status == "" {
			status = domain.PoolStatusActive
		}
		s.Pools = append(s.Pools, domain.LicensePool{
			Base:          domain.Base{ID: p.ID},
			ProductID:     p.ProductID,
			ContractID:    optional(p.ContractID),
			TotalQuantity: p.TotalQuantity,
			Status:        status,
		})
		poolProduct[p.ID] = p.ProductID
	}
	for _, a := range f.Allocations {
		alloc, err := a.allocation(costs[poolProduct[a.PoolID]])
		if err != nil {
			return memory.Snapshot{}, err
		}
		s.Allocations = append(s.Allocations, alloc)
	}
	for _, e := range f.AuditLog {
		at, err := parseTime(e.CreatedAt)
		if err != nil {
			return memory.Snapshot{}, fmt.Errorf("audit %s created_at: %w", e.ID, err)
		}
		s.AuditLog = append(s.AuditLog, domain.AuditLog{
			ID:        e.ID,
			ActorID:   e.ActorID,
			ActorName: e.ActorName,
			Entity:    e.Entity,
			EntityID:  e.EntityID,
			Action:    e.Action,
			Details:   e.Details,
			CreatedAt: at,
		})
	}
	for _, r := range f.Requests {
		status := domain.RequestStatus(r.Status)
		if status == "" {
			status = domain.RequestStatusPending
		}
		s.Requests = append(s.Requests, domain.SoftwareRequest{
			Base:          domain.Base{ID: r.ID},
			RequesterID:   r.RequesterID,
			ProductID:     r.ProductID,
			Justification: r.Justification,
			Status:        status,
		})
	}
	return s, nil
}

func (a AllocationFixture) allocation(productCost decimal.Decimal) (domain.LicenseAllocation, error) {
	cost := productCost
	if a.UnitCost != "" {
		parsed, err := parseCost(a.UnitCost)
		if err != nil {
			return domain.LicenseAllocation{}, fmt.Errorf("allocation %s unit cost: %w", a.ID, err)
		}
		cost = parsed
	}
	created, err := parseTime(a.CreatedAt)
	if err != nil {
		return domain.LicenseAllocation{}, fmt.Errorf("allocation %s created_at: %w", a.ID, err)
	}
	history := make([]domain.StatusHistory, 0, len(a.History))
	for i, h := range a.History {
		at, err := parseTime(h.CreatedAt)
		if err != nil {
			return domain.LicenseAllocation{}, fmt.Errorf("allocation %s history %d created_at: %w", a.ID, i, err)
		}
		id := h.ID
		if id == "" {
			id = fmt.Sprintf("%s-h%d", a.ID, i+1)
		}
		entry := domain.StatusHistory{ID: id, To: domain.AllocStatus(h.To), Reason: h.Reason, CreatedByID: h.CreatedByID, CreatedAt: at}
		if h.From != "" {
			from := domain.AllocStatus(h.From)
			entry.From = &from
		}
		history = append(history, entry)
	}
	return domain.LicenseAllocation{
		Base:         domain.Base{ID: a.ID, CreatedAt: created, UpdatedAt: created},
		PoolID:       a.PoolID,
		PersonID:     a.PersonID,
		CostCenterID: optional(a.CostCenterID),
		Status:       domain.AllocStatus(a.Status),
		AccessKey:    optional(a.AccessKey),
		Observation:  optional(a.Observation),
		ThirdParty:   a.ThirdParty,
		UnitCost:     cost,
		History:      history,
	}, nil
}

// FromSnapshot renders store state as a fixture, the inverse of Snapshot.
func FromSnapshot(s memory.Snapshot) Fixture {
	var f Fixture
	for _, v := range s.Vendors {
		f.Vendors = append(f.Vendors, VendorFixture{ID: v.ID, Name: v.Name})
	}
	for _, c := range s.Contracts {
		f.Contracts = append(f.Contracts, ContractFixture{
			ID: c.ID, Number: c.Number, VendorID: c.VendorID,
			StartDate: deref(c.StartDate), EndDate: deref(c.EndDate), Notes: deref(c.Notes),
		})
	}
	for _, d := range s.Departments {
		f.Departments = append(f.Departments, DepartmentFixture{ID: d.ID, Name: d.Name, Directorate: d.Directorate})
	}
	for _, c := range s.CostCenters {
		f.CostCenters = append(f.CostCenters, CostCenterFixture{ID: c.ID, Code: c.Code, Name: deref(c.Name), DepartmentID: deref(c.DepartmentID)})
	}
	for _, p := range s.People {
		f.People = append(f.People, PersonFixture{
			ID: p.ID, Email: p.Email, Matricula: deref(p.Matricula), DisplayName: p.DisplayName,
			ManagerUPN: deref(p.ManagerUPN), DepartmentID: deref(p.DepartmentID), Status: string(p.Status),
		})
	}
	for _, p := range s.Products {
		f.Products = append(f.Products, ProductFixture{
			ID: p.ID, Name: p.Name, VendorID: deref(p.VendorID), UnitCost: p.UnitCost.String(),
			CostPeriod: string(p.CostPeriod), Tags: append([]string{}, p.Tags...),
		})
	}
	for _, p := range s.Pools {
		f.Pools = append(f.Pools, PoolFixture{
			ID: p.ID, ProductID: p.ProductID, ContractID: deref(p.ContractID),
			TotalQuantity: p.TotalQuantity, Status: string(p.Status),
		})
	}
	for _, a := range s.Allocations {
		af := AllocationFixture{
			ID: a.ID, PoolID: a.PoolID, PersonID: a.PersonID, CostCenterID: deref(a.CostCenterID),
			Status: string(a.Status), AccessKey: deref(a.AccessKey), Observation: deref(a.Observation),
			ThirdParty: a.ThirdParty, UnitCost: a.UnitCost.String(), CreatedAt: formatTime(a.CreatedAt),
		}
		for _, h := range a.History {
			hf := HistoryFixture{ID: h.ID, To: string(h.To), Reason: h.Reason, CreatedByID: h.CreatedByID, CreatedAt: formatTime(h.CreatedAt)}
			if h.From != nil {
				hf.From = string(*h.From)
			}
			af.History = append(af.History, hf)
		}
		f.Allocations = append(f.Allocations, af)
	}
	for _, e := range s.AuditLog {
		f.AuditLog = append(f.AuditLog, AuditFixture{
			ID: e.ID, ActorID: e.ActorID, ActorName: e.ActorName, Entity: e.Entity, EntityID: e.EntityID,
			Action: e.Action, Details: e.Details, CreatedAt: formatTime(e.CreatedAt),
		})
	}
	for _, r := range s.Requests {
		f.Requests = append(f.Requests, RequestFixture{
			ID: r.ID, RequesterID: r.RequesterID, ProductID: r.ProductID,
			Justification: r.Justification, Status: string(r.Status),
		})
	}
	return f
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
