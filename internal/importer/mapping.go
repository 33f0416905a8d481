package importer

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Field is a logical import column.
type Field string

// Logical import fields.
const (
	FieldProductName Field = "productName"
	FieldPersonEmail Field = "personEmail"
	FieldPersonName  Field = "personName"
	FieldVendorName  Field = "vendorName"
	FieldCost        Field = "cost"
)

// Fields lists the logical fields in the order they are auto-mapped.
var Fields = []Field{FieldProductName, FieldPersonEmail, FieldPersonName, FieldVendorName, FieldCost}

// ColumnMapping maps a logical field to the literal header holding it.
// Unmapped fields read as empty on every row.
type ColumnMapping map[Field]string

func (m ColumnMapping) extract(t Table, row []string) map[Field]string {
	out := make(map[Field]string, len(m))
	for field, header := range m {
		if idx := t.headerIndex(header); idx >= 0 {
			out[field] = cell(row, idx)
		}
	}
	return out
}

// ParseMapping reads field=Header pairs, as given on a command line.
func ParseMapping(pairs []string) (ColumnMapping, error) {
	known := make(map[Field]struct{}, len(Fields))
	for _, f := range Fields {
		known[f] = struct{}{}
	}
	mapping := make(ColumnMapping, len(pairs))
	for _, pair := range pairs {
		field, header, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(header) == "" {
			return nil, fmt.Errorf("mapping %q must look like field=Header", pair)
		}
		f := Field(strings.TrimSpace(field))
		if _, ok := known[f]; !ok {
			return nil, fmt.Errorf("unknown import field %q", field)
		}
		mapping[f] = strings.TrimSpace(header)
	}
	return mapping, nil
}

// Merge returns a copy of m with entries from other taking precedence.
func (m ColumnMapping) Merge(other ColumnMapping) ColumnMapping {
	out := make(ColumnMapping, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// String renders the mapping sorted by field.
func (m ColumnMapping) String() string {
	parts := make([]string, 0, len(m))
	for field, header := range m {
		parts = append(parts, fmt.Sprintf("%s=%s", field, header))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// aliases are matched as case-folded substrings of the header text, most
// specific first. Portuguese aliases cover the HR exports the console was
// first fed with.
var aliases = map[Field][]string{
	FieldProductName: {"nome licença", "product", "produto", "software", "license", "licença"},
	FieldPersonEmail: {"e-mail do usuário", "email", "e-mail", "mail"},
	FieldPersonName:  {"nome a - z", "display name", "user name", "person", "nome", "usuário", "name", "user"},
	FieldVendorName:  {"vendor", "publisher", "manufacturer", "fornecedor", "fabricante"},
	FieldCost:        {"unit cost", "cost", "price", "valor", "custo"},
}

// AutoMap guesses a mapping from header names. Fields are resolved in the
// order of Fields and a header is never assigned to two fields.
func AutoMap(headers []string) ColumnMapping {
	fold := cases.Fold()
	folded := make([]string, len(headers))
	for i, h := range headers {
		folded[i] = fold.String(strings.TrimSpace(h))
	}
	used := make([]bool, len(headers))
	mapping := make(ColumnMapping)
	for _, field := range Fields {
	search:
		for _, alias := range aliases[field] {
			needle := fold.String(alias)
			for i, h := range folded {
				if used[i] || !strings.Contains(h, needle) {
					continue
				}
				used[i] = true
				mapping[field] = headers[i]
				break search
			}
		}
	}
	return mapping
}
