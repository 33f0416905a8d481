package importer

import (
	"fmt"

	"samledger/pkg/domain"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// Issue describes a row that was rejected, skipped, or accepted with a caveat.
// Row is the 1-based line number in the source file, header included.
type Issue struct {
	Row     int               `json:"row"`
	Data    map[string]string `json:"data"`
	Message string            `json:"message"`
}

// Result summarizes an import pass.
type Result struct {
	OK         int     `json:"ok"`
	Errors     []Issue `json:"errors"`
	Warnings   []Issue `json:"warnings"`
	Duplicates []Issue `json:"duplicates"`
}

// Catalog is the read-only ledger state the planner resolves rows against.
type Catalog interface {
	ListVendors() []domain.Vendor
	ListProducts() []domain.SoftwareProduct
	ListPeople() []domain.Person
	ListPools() []domain.LicensePool
	ListAllocations() []domain.LicenseAllocation
}

// Options tune plan construction.
type Options struct {
	// Source names the input format in allocation history, e.g. "CSV".
	Source string
	// NewID generates identifiers for planned records. Defaults to uuid.NewString.
	NewID func() string
}

// Plan holds the records an import would create, in creation order, together
// with the row outcome summary.
type Plan struct {
	Result      Result
	Vendors     []domain.Vendor
	Products    []domain.SoftwareProduct
	People      []domain.Person
	Pools       []domain.LicensePool
	Allocations []domain.LicenseAllocation
}

// PoolIncrements counts planned allocations per pool.
func (p Plan) PoolIncrements() map[string]int {
	out := make(map[string]int)
	for _, a := range p.Allocations {
		out[a.PoolID]++
	}
	return out
}

// Build validates every row of table and resolves it against catalog with
// get-or-create semantics. Records created for earlier rows are visible to
// later rows, so the same plan is produced whether or not it is committed.
func Build(catalog Catalog, table Table, mapping ColumnMapping, opts Options) Plan {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Source == "" {
		opts.Source = "CSV"
	}
	r := newResolver(catalog, opts)
	for i, row := range table.Rows {
		r.row(i+2, table.rowData(row), mapping.extract(table, row))
	}
	return r.plan
}

type resolver struct {
	fold     cases.Caser
	opts     Options
	plan     Plan
	vendors  map[string]domain.Vendor
	products map[string]domain.SoftwareProduct
	people   map[string]domain.Person
	pools    map[string]domain.LicensePool
	held     map[string]struct{}
}

func newResolver(catalog Catalog, opts Options) *resolver {
	r := &resolver{
		fold:     cases.Fold(),
		opts:     opts,
		vendors:  make(map[string]domain.Vendor),
		products: make(map[string]domain.SoftwareProduct),
		people:   make(map[string]domain.Person),
		pools:    make(map[string]domain.LicensePool),
		held:     make(map[string]struct{}),
		plan: Plan{Result: Result{
			Errors:     []Issue{},
			Warnings:   []Issue{},
			Duplicates: []Issue{},
		}},
	}
	for _, v := range catalog.ListVendors() {
		rememberFirst(r.vendors, r.key(v.Name), v)
	}
	for _, p := range catalog.ListProducts() {
		rememberFirst(r.products, r.key(p.Name), p)
	}
	for _, p := range catalog.ListPeople() {
		rememberFirst(r.people, r.key(p.Email), p)
	}
	for _, p := range catalog.ListPools() {
		if _, ok := r.pools[p.ProductID]; !ok {
			r.pools[p.ProductID] = p
		}
	}
	for _, a := range catalog.ListAllocations() {
		if a.Status.HoldsCapacity() {
			r.held[allocationKey(a.PersonID, a.PoolID)] = struct{}{}
		}
	}
	return r
}

func (r *resolver) key(s string) string { return r.fold.String(s) }

// rememberFirst keeps the first record seen for a natural key.
func rememberFirst[T any](index map[string]T, key string, v T) {
	if _, ok := index[key]; !ok {
		index[key] = v
	}
}

func allocationKey(personID, poolID string) string { return personID + "|" + poolID }

func (r *resolver) row(line int, data map[string]string, raw map[Field]string) {
	res := &r.plan.Result
	row, err := ValidateRow(raw)
	if err != nil {
		res.Errors = append(res.Errors, Issue{Row: line, Data: data, Message: err.Error()})
		return
	}

	vendorID := r.vendor(row)
	product, created := r.product(row, vendorID)
	if !created && row.Cost != nil && !row.Cost.Equal(product.UnitCost) {
		res.Warnings = append(res.Warnings, Issue{
			Row:  line,
			Data: data,
			Message: fmt.Sprintf("product %q already costs %s; keeping existing cost instead of %s",
				product.Name, product.UnitCost.String(), row.Cost.String()),
		})
	}
	person := r.person(row)
	pool := r.pool(product)

	key := allocationKey(person.ID, pool.ID)
	if _, dup := r.held[key]; dup {
		res.Duplicates = append(res.Duplicates, Issue{
			Row:     line,
			Data:    data,
			Message: fmt.Sprintf("%s already holds an active %s license", person.Email, product.Name),
		})
		return
	}
	r.held[key] = struct{}{}

	to := domain.AllocStatusActive
	r.plan.Allocations = append(r.plan.Allocations, domain.LicenseAllocation{
		Base:     domain.Base{ID: r.opts.NewID()},
		PoolID:   pool.ID,
		PersonID: person.ID,
		Status:   to,
		UnitCost: product.UnitCost,
		History: []domain.StatusHistory{{
			To:     to,
			Reason: r.opts.Source + " import",
		}},
	})
	res.OK++
}

func (r *resolver) vendor(row ValidatedRow) *string {
	if row.VendorName == "" {
		return nil
	}
	key := r.key(row.VendorName)
	if v, ok := r.vendors[key]; ok {
		id := v.ID
		return &id
	}
	v := domain.Vendor{Base: domain.Base{ID: r.opts.NewID()}, Name: row.VendorName}
	r.vendors[key] = v
	r.plan.Vendors = append(r.plan.Vendors, v)
	id := v.ID
	return &id
}

func (r *resolver) product(row ValidatedRow, vendorID *string) (domain.SoftwareProduct, bool) {
	key := r.key(row.ProductName)
	if p, ok := r.products[key]; ok {
		return p, false
	}
	p := domain.SoftwareProduct{
		Base:       domain.Base{ID: r.opts.NewID()},
		Name:       row.ProductName,
		VendorID:   vendorID,
		CostPeriod: domain.CostPeriodFree,
		Tags:       []string{},
	}
	if row.Cost != nil {
		p.UnitCost = *row.Cost
		p.CostPeriod = domain.CostPeriodUnknown
	}
	r.products[key] = p
	r.plan.Products = append(r.plan.Products, p)
	return p, true
}

func (r *resolver) person(row ValidatedRow) domain.Person {
	key := r.key(row.PersonEmail)
	if p, ok := r.people[key]; ok {
		return p
	}
	p := domain.Person{
		Base:        domain.Base{ID: r.opts.NewID()},
		Email:       row.PersonEmail,
		DisplayName: row.PersonName,
		Status:      domain.PersonStatusActive,
	}
	r.people[key] = p
	r.plan.People = append(r.plan.People, p)
	return p
}

func (r *resolver) pool(product domain.SoftwareProduct) domain.LicensePool {
	if p, ok := r.pools[product.ID]; ok {
		return p
	}
	p := domain.LicensePool{
		Base:      domain.Base{ID: r.opts.NewID()},
		ProductID: product.ID,
		Status:    domain.PoolStatusActive,
	}
	r.pools[product.ID] = p
	r.plan.Pools = append(r.plan.Pools, p)
	return p
}
