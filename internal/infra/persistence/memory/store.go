// Package memory provides the in-memory transactional ledger store. State is
// cloned per transaction, mutated, evaluated by the rules engine, and swapped
// in wholesale only when no blocking violation is reported.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"samledger/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Vendor aliases domain.Vendor.
	Vendor = domain.Vendor
	// Contract aliases domain.Contract.
	Contract = domain.Contract
	// SoftwareProduct aliases domain.SoftwareProduct.
	SoftwareProduct = domain.SoftwareProduct
	// LicensePool aliases domain.LicensePool.
	LicensePool = domain.LicensePool
	// Department aliases domain.Department.
	Department = domain.Department
	// CostCenter aliases domain.CostCenter.
	CostCenter = domain.CostCenter
	// Person aliases domain.Person.
	Person = domain.Person
	// LicenseAllocation aliases domain.LicenseAllocation.
	LicenseAllocation = domain.LicenseAllocation
	// AuditLog aliases domain.AuditLog.
	AuditLog = domain.AuditLog
	// SoftwareRequest aliases domain.SoftwareRequest.
	SoftwareRequest = domain.SoftwareRequest
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// table keeps records addressable by id while remembering insertion order.
type table[T any] struct {
	order []string
	rows  map[string]T
}

func newTable[T any](capacity int) table[T] {
	return table[T]{order: make([]string, 0, capacity), rows: make(map[string]T, capacity)}
}

func (t table[T]) get(id string) (T, bool) {
	v, ok := t.rows[id]
	return v, ok
}

func (t table[T]) has(id string) bool {
	_, ok := t.rows[id]
	return ok
}

func (t *table[T]) put(id string, v T) {
	if _, ok := t.rows[id]; !ok {
		t.order = append(t.order, id)
	}
	t.rows[id] = v
}

func (t table[T]) list(cloneFn func(T) T) []T {
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, cloneFn(t.rows[id]))
	}
	return out
}

func (t table[T]) clone(cloneFn func(T) T) table[T] {
	out := newTable[T](len(t.order))
	for _, id := range t.order {
		out.put(id, cloneFn(t.rows[id]))
	}
	return out
}

type memoryState struct {
	vendors     table[Vendor]
	contracts   table[Contract]
	products    table[SoftwareProduct]
	pools       table[LicensePool]
	departments table[Department]
	costCenters table[CostCenter]
	people      table[Person]
	allocations table[LicenseAllocation]
	audit       table[AuditLog]
	requests    table[SoftwareRequest]
}

// Snapshot captures a point-in-time clone of the store state. Collections are
// kept in insertion order.
type Snapshot struct {
	Vendors     []Vendor            `json:"vendors"`
	Contracts   []Contract          `json:"contracts"`
	Products    []SoftwareProduct   `json:"products"`
	Pools       []LicensePool       `json:"pools"`
	Departments []Department        `json:"departments"`
	CostCenters []CostCenter        `json:"cost_centers"`
	People      []Person            `json:"people"`
	Allocations []LicenseAllocation `json:"allocations"`
	AuditLog    []AuditLog          `json:"audit_log"`
	Requests    []SoftwareRequest   `json:"requests"`
}

func newMemoryState() memoryState {
	return memoryState{
		vendors:     newTable[Vendor](0),
		contracts:   newTable[Contract](0),
		products:    newTable[SoftwareProduct](0),
		pools:       newTable[LicensePool](0),
		departments: newTable[Department](0),
		costCenters: newTable[CostCenter](0),
		people:      newTable[Person](0),
		allocations: newTable[LicenseAllocation](0),
		audit:       newTable[AuditLog](0),
		requests:    newTable[SoftwareRequest](0),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	return Snapshot{
		Vendors:     state.vendors.list(identity[Vendor]),
		Contracts:   state.contracts.list(cloneContract),
		Products:    state.products.list(cloneProduct),
		Pools:       state.pools.list(clonePool),
		Departments: state.departments.list(identity[Department]),
		CostCenters: state.costCenters.list(cloneCostCenter),
		People:      state.people.list(clonePerson),
		Allocations: state.allocations.list(cloneAllocation),
		AuditLog:    state.audit.list(identity[AuditLog]),
		Requests:    state.requests.list(identity[SoftwareRequest]),
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for _, v := range s.Vendors {
		state.vendors.put(v.ID, v)
	}
	for _, c := range s.Contracts {
		state.contracts.put(c.ID, cloneContract(c))
	}
	for _, p := range s.Products {
		state.products.put(p.ID, cloneProduct(p))
	}
	for _, p := range s.Pools {
		state.pools.put(p.ID, clonePool(p))
	}
	for _, d := range s.Departments {
		state.departments.put(d.ID, d)
	}
	for _, c := range s.CostCenters {
		state.costCenters.put(c.ID, cloneCostCenter(c))
	}
	for _, p := range s.People {
		state.people.put(p.ID, clonePerson(p))
	}
	for _, a := range s.Allocations {
		state.allocations.put(a.ID, cloneAllocation(a))
	}
	for _, a := range s.AuditLog {
		state.audit.put(a.ID, a)
	}
	for _, r := range s.Requests {
		state.requests.put(r.ID, r)
	}
	return state
}

// migrateSnapshot normalizes seed data before it becomes live state: empty
// collections are materialized, records with duplicate ids keep the first
// occurrence, records whose mandatory references do not resolve are dropped,
// dangling optional references are cleared, and every pool's availableQty is
// recomputed from the allocations that hold capacity on it. A pool holding
// more allocations than its total is grown to fit.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	migrated := Snapshot{
		Vendors:     dedupe(snapshot.Vendors, func(v Vendor) string { return v.ID }),
		Contracts:   dedupe(snapshot.Contracts, func(c Contract) string { return c.ID }),
		Products:    dedupe(snapshot.Products, func(p SoftwareProduct) string { return p.ID }),
		Pools:       dedupe(snapshot.Pools, func(p LicensePool) string { return p.ID }),
		Departments: dedupe(snapshot.Departments, func(d Department) string { return d.ID }),
		CostCenters: dedupe(snapshot.CostCenters, func(c CostCenter) string { return c.ID }),
		People:      dedupe(snapshot.People, func(p Person) string { return p.ID }),
		Allocations: dedupe(snapshot.Allocations, func(a LicenseAllocation) string { return a.ID }),
		AuditLog:    dedupe(snapshot.AuditLog, func(a AuditLog) string { return a.ID }),
		Requests:    dedupe(snapshot.Requests, func(r SoftwareRequest) string { return r.ID }),
	}

	vendors := idSet(migrated.Vendors, func(v Vendor) string { return v.ID })
	contracts := idSet(migrated.Contracts, func(c Contract) string { return c.ID })
	departments := idSet(migrated.Departments, func(d Department) string { return d.ID })
	costCenters := idSet(migrated.CostCenters, func(c CostCenter) string { return c.ID })

	for i := range migrated.Products {
		p := &migrated.Products[i]
		clearDangling(&p.VendorID, vendors)
		if p.Tags == nil {
			p.Tags = []string{}
		}
		if !p.CostPeriod.Valid() {
			p.CostPeriod = domain.CostPeriodUnknown
		}
	}
	products := idSet(migrated.Products, func(p SoftwareProduct) string { return p.ID })

	for i := range migrated.CostCenters {
		clearDangling(&migrated.CostCenters[i].DepartmentID, departments)
	}

	pools := migrated.Pools[:0]
	for _, p := range migrated.Pools {
		if _, ok := products[p.ProductID]; !ok {
			continue
		}
		clearDangling(&p.ContractID, contracts)
		if p.Status == "" {
			p.Status = domain.PoolStatusActive
		}
		pools = append(pools, p)
	}
	migrated.Pools = pools
	poolIDs := idSet(migrated.Pools, func(p LicensePool) string { return p.ID })

	for i := range migrated.People {
		p := &migrated.People[i]
		clearDangling(&p.DepartmentID, departments)
		if p.Status == "" {
			p.Status = domain.PersonStatusActive
		}
	}
	people := idSet(migrated.People, func(p Person) string { return p.ID })

	holding := make(map[string]int, len(migrated.Pools))
	allocations := migrated.Allocations[:0]
	for _, a := range migrated.Allocations {
		if _, ok := poolIDs[a.PoolID]; !ok {
			continue
		}
		if _, ok := people[a.PersonID]; !ok {
			continue
		}
		clearDangling(&a.CostCenterID, costCenters)
		if a.Status == "" {
			a.Status = domain.AllocStatusActive
		}
		if a.History == nil {
			a.History = []domain.StatusHistory{}
		}
		if a.Status.HoldsCapacity() {
			holding[a.PoolID]++
		}
		allocations = append(allocations, a)
	}
	migrated.Allocations = allocations

	for i := range migrated.Pools {
		p := &migrated.Pools[i]
		if p.TotalQuantity < holding[p.ID] {
			p.TotalQuantity = holding[p.ID]
		}
		p.AvailableQty = p.TotalQuantity - holding[p.ID]
	}

	requests := migrated.Requests[:0]
	for _, r := range migrated.Requests {
		if _, ok := people[r.RequesterID]; !ok {
			continue
		}
		if _, ok := products[r.ProductID]; !ok {
			continue
		}
		requests = append(requests, r)
	}
	migrated.Requests = requests
	return migrated
}

func dedupe[T any](values []T, key func(T) string) []T {
	out := make([]T, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		id := key(v)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, v)
	}
	return out
}

func idSet[T any](values []T, key func(T) string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[key(v)] = struct{}{}
	}
	return out
}

func clearDangling(ref **string, known map[string]struct{}) {
	if *ref == nil {
		return
	}
	if _, ok := known[**ref]; !ok {
		*ref = nil
	}
}

func (s memoryState) clone() memoryState {
	return memoryState{
		vendors:     s.vendors.clone(identity[Vendor]),
		contracts:   s.contracts.clone(cloneContract),
		products:    s.products.clone(cloneProduct),
		pools:       s.pools.clone(clonePool),
		departments: s.departments.clone(identity[Department]),
		costCenters: s.costCenters.clone(cloneCostCenter),
		people:      s.people.clone(clonePerson),
		allocations: s.allocations.clone(cloneAllocation),
		audit:       s.audit.clone(identity[AuditLog]),
		requests:    s.requests.clone(identity[SoftwareRequest]),
	}
}

func identity[T any](v T) T { return v }

func cloneString(ptr *string) *string {
	if ptr == nil {
		return nil
	}
	v := *ptr
	return &v
}

func cloneContract(c Contract) Contract {
	c.StartDate = cloneString(c.StartDate)
	c.EndDate = cloneString(c.EndDate)
	c.Notes = cloneString(c.Notes)
	return c
}

func cloneProduct(p SoftwareProduct) SoftwareProduct {
	p.VendorID = cloneString(p.VendorID)
	if p.Tags != nil {
		p.Tags = append(make([]string, 0, len(p.Tags)), p.Tags...)
	}
	return p
}

func clonePool(p LicensePool) LicensePool {
	p.ContractID = cloneString(p.ContractID)
	return p
}

func cloneCostCenter(c CostCenter) CostCenter {
	c.Name = cloneString(c.Name)
	c.DepartmentID = cloneString(c.DepartmentID)
	return c
}

func clonePerson(p Person) Person {
	p.Matricula = cloneString(p.Matricula)
	p.ManagerUPN = cloneString(p.ManagerUPN)
	p.DepartmentID = cloneString(p.DepartmentID)
	return p
}

func cloneAllocation(a LicenseAllocation) LicenseAllocation {
	a.CostCenterID = cloneString(a.CostCenterID)
	a.AccessKey = cloneString(a.AccessKey)
	a.Observation = cloneString(a.Observation)
	if a.History != nil {
		history := make([]domain.StatusHistory, len(a.History))
		for i, h := range a.History {
			if h.From != nil {
				from := *h.From
				h.From = &from
			}
			history[i] = h
		}
		a.History = history
	}
	return a
}

// Option configures a Store.
type Option func(*Store)

// WithNowFunc overrides the clock used to stamp records.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithIDFunc overrides the identifier generator.
func WithIDFunc(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.idFn = newID
		}
	}
}

// Store provides an in-memory transactional store for the ledger.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	idFn   func() string
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		idFn:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) newID() string {
	return s.idFn()
}

// ExportState clones the current store state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the normalized snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// transaction represents a mutation set applied to a cloned store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the state.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListVendors() []Vendor { return v.state.vendors.list(identity[Vendor]) }
func (v transactionView) ListContracts() []Contract {
	return v.state.contracts.list(cloneContract)
}
func (v transactionView) ListProducts() []SoftwareProduct {
	return v.state.products.list(cloneProduct)
}
func (v transactionView) ListPools() []LicensePool { return v.state.pools.list(clonePool) }
func (v transactionView) ListDepartments() []Department {
	return v.state.departments.list(identity[Department])
}
func (v transactionView) ListCostCenters() []CostCenter {
	return v.state.costCenters.list(cloneCostCenter)
}
func (v transactionView) ListPeople() []Person { return v.state.people.list(clonePerson) }
func (v transactionView) ListAllocations() []LicenseAllocation {
	return v.state.allocations.list(cloneAllocation)
}
func (v transactionView) ListRequests() []SoftwareRequest {
	return v.state.requests.list(identity[SoftwareRequest])
}

// ListAuditLog returns audit entries newest first.
func (v transactionView) ListAuditLog() []AuditLog {
	entries := v.state.audit.list(identity[AuditLog])
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries
}

func (v transactionView) FindVendor(id string) (Vendor, bool) { return v.state.vendors.get(id) }
func (v transactionView) FindContract(id string) (Contract, bool) {
	c, ok := v.state.contracts.get(id)
	return cloneContract(c), ok
}
func (v transactionView) FindProduct(id string) (SoftwareProduct, bool) {
	p, ok := v.state.products.get(id)
	return cloneProduct(p), ok
}
func (v transactionView) FindPool(id string) (LicensePool, bool) {
	p, ok := v.state.pools.get(id)
	return clonePool(p), ok
}
func (v transactionView) FindDepartment(id string) (Department, bool) {
	return v.state.departments.get(id)
}
func (v transactionView) FindCostCenter(id string) (CostCenter, bool) {
	c, ok := v.state.costCenters.get(id)
	return cloneCostCenter(c), ok
}
func (v transactionView) FindPerson(id string) (Person, bool) {
	p, ok := v.state.people.get(id)
	return clonePerson(p), ok
}
func (v transactionView) FindAllocation(id string) (LicenseAllocation, bool) {
	a, ok := v.state.allocations.get(id)
	return cloneAllocation(a), ok
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Now returns the timestamp applied to every record touched by the transaction.
func (tx *transaction) Now() time.Time {
	return tx.now
}

// FindPool exposes pool lookup within the transaction scope.
func (tx *transaction) FindPool(id string) (LicensePool, bool) {
	p, ok := tx.state.pools.get(id)
	return clonePool(p), ok
}

// FindAllocation exposes allocation lookup within the transaction scope.
func (tx *transaction) FindAllocation(id string) (LicenseAllocation, bool) {
	a, ok := tx.state.allocations.get(id)
	return cloneAllocation(a), ok
}

// CreateVendor stores a new vendor within the transaction.
func (tx *transaction) CreateVendor(v Vendor) (Vendor, error) {
	if v.ID == "" {
		v.ID = tx.store.newID()
	}
	if tx.state.vendors.has(v.ID) {
		return Vendor{}, fmt.Errorf("vendor %q already exists", v.ID)
	}
	v.CreatedAt = tx.now
	v.UpdatedAt = tx.now
	tx.state.vendors.put(v.ID, v)
	tx.recordChange(Change{Entity: domain.EntityVendor, Action: domain.ActionCreate, After: v})
	return v, nil
}

// CreateProduct stores a new software product within the transaction.
func (tx *transaction) CreateProduct(p SoftwareProduct) (SoftwareProduct, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if tx.state.products.has(p.ID) {
		return SoftwareProduct{}, fmt.Errorf("product %q already exists", p.ID)
	}
	if p.VendorID != nil && !tx.state.vendors.has(*p.VendorID) {
		return SoftwareProduct{}, domain.ErrNotFound{Entity: domain.EntityVendor, ID: *p.VendorID}
	}
	if p.UnitCost.IsNegative() {
		return SoftwareProduct{}, fmt.Errorf("product %q unit cost must not be negative", p.Name)
	}
	if p.CostPeriod == "" {
		p.CostPeriod = domain.CostPeriodUnknown
	}
	if !p.CostPeriod.Valid() {
		return SoftwareProduct{}, fmt.Errorf("product %q has unknown cost period %q", p.Name, p.CostPeriod)
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.products.put(p.ID, cloneProduct(p))
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionCreate, After: cloneProduct(p)})
	return cloneProduct(p), nil
}

// CreatePerson stores a new person. Emails must be unique ignoring case.
func (tx *transaction) CreatePerson(p Person) (Person, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if tx.state.people.has(p.ID) {
		return Person{}, fmt.Errorf("person %q already exists", p.ID)
	}
	p.Email = strings.TrimSpace(p.Email)
	if p.Email == "" {
		return Person{}, fmt.Errorf("person %q requires an email", p.ID)
	}
	for _, id := range tx.state.people.order {
		if strings.EqualFold(tx.state.people.rows[id].Email, p.Email) {
			return Person{}, fmt.Errorf("person with email %q already exists", p.Email)
		}
	}
	if p.Status == "" {
		p.Status = domain.PersonStatusActive
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.people.put(p.ID, clonePerson(p))
	tx.recordChange(Change{Entity: domain.EntityPerson, Action: domain.ActionCreate, After: clonePerson(p)})
	return clonePerson(p), nil
}

// CreatePool stores a new license pool for an existing product.
func (tx *transaction) CreatePool(p LicensePool) (LicensePool, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if tx.state.pools.has(p.ID) {
		return LicensePool{}, fmt.Errorf("pool %q already exists", p.ID)
	}
	if !tx.state.products.has(p.ProductID) {
		return LicensePool{}, domain.ErrNotFound{Entity: domain.EntityProduct, ID: p.ProductID}
	}
	if p.ContractID != nil && !tx.state.contracts.has(*p.ContractID) {
		return LicensePool{}, domain.ErrNotFound{Entity: domain.EntityContract, ID: *p.ContractID}
	}
	if p.Status == "" {
		p.Status = domain.PoolStatusActive
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.pools.put(p.ID, clonePool(p))
	tx.recordChange(Change{Entity: domain.EntityPool, Action: domain.ActionCreate, After: clonePool(p)})
	return clonePool(p), nil
}

// UpdatePool mutates a pool using the provided mutator function.
func (tx *transaction) UpdatePool(id string, mutator func(*LicensePool) error) (LicensePool, error) {
	current, ok := tx.state.pools.get(id)
	if !ok {
		return LicensePool{}, domain.ErrNotFound{Entity: domain.EntityPool, ID: id}
	}
	before := clonePool(current)
	current = clonePool(current)
	if err := mutator(&current); err != nil {
		return LicensePool{}, err
	}
	current.ID = id
	current.ProductID = before.ProductID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.pools.put(id, clonePool(current))
	tx.recordChange(Change{Entity: domain.EntityPool, Action: domain.ActionUpdate, Before: before, After: clonePool(current)})
	return clonePool(current), nil
}

// CreateAllocation stores a new allocation for an existing pool and person.
func (tx *transaction) CreateAllocation(a LicenseAllocation) (LicenseAllocation, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if tx.state.allocations.has(a.ID) {
		return LicenseAllocation{}, fmt.Errorf("allocation %q already exists", a.ID)
	}
	if !tx.state.pools.has(a.PoolID) {
		return LicenseAllocation{}, domain.ErrNotFound{Entity: domain.EntityPool, ID: a.PoolID}
	}
	if !tx.state.people.has(a.PersonID) {
		return LicenseAllocation{}, domain.ErrNotFound{Entity: domain.EntityPerson, ID: a.PersonID}
	}
	if a.CostCenterID != nil && !tx.state.costCenters.has(*a.CostCenterID) {
		return LicenseAllocation{}, domain.ErrNotFound{Entity: domain.EntityCostCenter, ID: *a.CostCenterID}
	}
	if !a.Status.Valid() {
		return LicenseAllocation{}, fmt.Errorf("allocation %q has invalid status %q", a.ID, a.Status)
	}
	a = cloneAllocation(a)
	if a.History == nil {
		a.History = []domain.StatusHistory{}
	}
	tx.stampHistory(a.History)
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.allocations.put(a.ID, cloneAllocation(a))
	tx.recordChange(Change{Entity: domain.EntityAllocation, Action: domain.ActionCreate, After: cloneAllocation(a)})
	return cloneAllocation(a), nil
}

// UpdateAllocation mutates an allocation. Existing history entries must be
// left untouched; new entries may only be appended.
func (tx *transaction) UpdateAllocation(id string, mutator func(*LicenseAllocation) error) (LicenseAllocation, error) {
	current, ok := tx.state.allocations.get(id)
	if !ok {
		return LicenseAllocation{}, domain.ErrNotFound{Entity: domain.EntityAllocation, ID: id}
	}
	before := cloneAllocation(current)
	current = cloneAllocation(current)
	if err := mutator(&current); err != nil {
		return LicenseAllocation{}, err
	}
	if !current.Status.Valid() {
		return LicenseAllocation{}, fmt.Errorf("allocation %q has invalid status %q", id, current.Status)
	}
	if len(current.History) < len(before.History) {
		return LicenseAllocation{}, fmt.Errorf("allocation %q history is append-only", id)
	}
	for i := range before.History {
		if current.History[i].ID != before.History[i].ID || current.History[i].To != before.History[i].To {
			return LicenseAllocation{}, fmt.Errorf("allocation %q history is append-only", id)
		}
	}
	tx.stampHistory(current.History[len(before.History):])
	current.ID = id
	current.PoolID = before.PoolID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.allocations.put(id, cloneAllocation(current))
	tx.recordChange(Change{Entity: domain.EntityAllocation, Action: domain.ActionUpdate, Before: before, After: cloneAllocation(current)})
	return cloneAllocation(current), nil
}

func (tx *transaction) stampHistory(entries []domain.StatusHistory) {
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = tx.store.newID()
		}
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = tx.now
		}
	}
}

// AppendAudit appends an entry to the audit trail.
func (tx *transaction) AppendAudit(entry AuditLog) (AuditLog, error) {
	if entry.ID == "" {
		entry.ID = tx.store.newID()
	}
	if tx.state.audit.has(entry.ID) {
		return AuditLog{}, fmt.Errorf("audit entry %q already exists", entry.ID)
	}
	if entry.Entity == "" || entry.Action == "" {
		return AuditLog{}, fmt.Errorf("audit entry requires entity and action")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = tx.now
	}
	tx.state.audit.put(entry.ID, entry)
	tx.recordChange(Change{Entity: domain.EntityAuditLog, Action: domain.ActionCreate, After: entry})
	return entry, nil
}
