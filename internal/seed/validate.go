package seed

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// ErrInvalidFixture wraps every problem reported by Validate.
var ErrInvalidFixture = errors.New("invalid seed fixture")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints, then cross references: ids are unique
// per collection, references resolve, emails are unique ignoring case, costs
// are not negative, and no pool holds more allocations than its total.
func Validate(f Fixture) error {
	var problems []error
	if err := validate.Struct(f); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %w", ErrInvalidFixture, err)
		}
		for _, fe := range fieldErrs {
			problems = append(problems, fmt.Errorf("%s fails %q", fe.Namespace(), fe.Tag()))
		}
	}

	c := checker{}
	vendors := c.ids("vendor", len(f.Vendors), func(i int) string { return f.Vendors[i].ID })
	contracts := c.ids("contract", len(f.Contracts), func(i int) string { return f.Contracts[i].ID })
	departments := c.ids("department", len(f.Departments), func(i int) string { return f.Departments[i].ID })
	costCenters := c.ids("cost center", len(f.CostCenters), func(i int) string { return f.CostCenters[i].ID })
	people := c.ids("person", len(f.People), func(i int) string { return f.People[i].ID })
	products := c.ids("product", len(f.Products), func(i int) string { return f.Products[i].ID })
	pools := c.ids("pool", len(f.Pools), func(i int) string { return f.Pools[i].ID })
	c.ids("allocation", len(f.Allocations), func(i int) string { return f.Allocations[i].ID })
	c.ids("audit entry", len(f.AuditLog), func(i int) string { return f.AuditLog[i].ID })
	c.ids("request", len(f.Requests), func(i int) string { return f.Requests[i].ID })

	for _, ct := range f.Contracts {
		c.ref("contract", ct.ID, "vendor", ct.VendorID, vendors)
	}
	for _, cc := range f.CostCenters {
		c.ref("cost center", cc.ID, "department", cc.DepartmentID, departments)
	}
	fold := cases.Fold()
	emails := make(map[string]string, len(f.People))
	for _, p := range f.People {
		c.ref("person", p.ID, "department", p.DepartmentID, departments)
		key := fold.String(strings.TrimSpace(p.Email))
		if owner, dup := emails[key]; dup && key != "" {
			c.add(fmt.Errorf("person %s email %s already used by %s", p.ID, p.Email, owner))
			continue
		}
		emails[key] = p.ID
	}
	for _, p := range f.Products {
		c.ref("product", p.ID, "vendor", p.VendorID, vendors)
		c.cost("product", p.ID, p.UnitCost)
	}
	for _, p := range f.Pools {
		c.ref("pool", p.ID, "product", p.ProductID, products)
		c.ref("pool", p.ID, "contract", p.ContractID, contracts)
	}
	held := make(map[string]int, len(f.Pools))
	for _, a := range f.Allocations {
		c.ref("allocation", a.ID, "pool", a.PoolID, pools)
		c.ref("allocation", a.ID, "person", a.PersonID, people)
		c.ref("allocation", a.ID, "cost center", a.CostCenterID, costCenters)
		c.cost("allocation", a.ID, a.UnitCost)
		if a.Status != "HISTORY" {
			held[a.PoolID]++
		}
	}
	for _, p := range f.Pools {
		if held[p.ID] > p.TotalQuantity {
			c.add(fmt.Errorf("pool %s holds %d allocations but has a total of %d", p.ID, held[p.ID], p.TotalQuantity))
		}
	}
	for _, r := range f.Requests {
		c.ref("request", r.ID, "person", r.RequesterID, people)
		c.ref("request", r.ID, "product", r.ProductID, products)
	}

	problems = append(problems, c.problems...)
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidFixture, errors.Join(problems...))
}

type checker struct {
	problems []error
}

func (c *checker) add(err error) { c.problems = append(c.problems, err) }

func (c *checker) ids(kind string, n int, id func(int) string) map[string]struct{} {
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		v := id(i)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			c.add(fmt.Errorf("duplicate %s id %s", kind, v))
			continue
		}
		seen[v] = struct{}{}
	}
	return seen
}

// ref reports a non-empty reference that does not resolve.
func (c *checker) ref(kind, id, target, targetID string, known map[string]struct{}) {
	if targetID == "" {
		return
	}
	if _, ok := known[targetID]; !ok {
		c.add(fmt.Errorf("%s %s references unknown %s %s", kind, id, target, targetID))
	}
}

func (c *checker) cost(kind, id, text string) {
	if text == "" {
		return
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		c.add(fmt.Errorf("%s %s has invalid unit cost %q", kind, id, text))
		return
	}
	if d.IsNegative() {
		c.add(fmt.Errorf("%s %s has negative unit cost %s", kind, id, text))
	}
}
