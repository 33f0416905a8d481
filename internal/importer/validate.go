package importer

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidatedRow is a data row that passed validation. Text fields are trimmed
// and the email is lower-cased.
type ValidatedRow struct {
	ProductName string
	PersonEmail string
	PersonName  string
	VendorName  string
	Cost        *decimal.Decimal
}

// RowError explains why a row was rejected.
type RowError struct {
	Message string
}

func (e *RowError) Error() string { return e.Message }

func rowError(msg string) error { return &RowError{Message: msg} }

// ValidateRow checks one mapped row. Rules run in a fixed order (product name,
// email presence, email format, person name, cost) and the first failure wins.
func ValidateRow(raw map[Field]string) (ValidatedRow, error) {
	product := strings.TrimSpace(raw[FieldProductName])
	if product == "" {
		return ValidatedRow{}, rowError("product name is required")
	}
	email := strings.TrimSpace(raw[FieldPersonEmail])
	if email == "" {
		return ValidatedRow{}, rowError("person email is required")
	}
	if !emailPattern.MatchString(email) {
		return ValidatedRow{}, rowError("invalid email: " + email)
	}
	name := strings.TrimSpace(raw[FieldPersonName])
	if name == "" {
		return ValidatedRow{}, rowError("person name is required")
	}
	row := ValidatedRow{
		ProductName: product,
		PersonEmail: strings.ToLower(email),
		PersonName:  name,
		VendorName:  strings.TrimSpace(raw[FieldVendorName]),
	}
	if text := strings.TrimSpace(raw[FieldCost]); text != "" {
		cost, err := decimal.NewFromString(strings.ReplaceAll(text, ",", "."))
		if err != nil {
			return ValidatedRow{}, rowError("invalid cost: " + text)
		}
		if cost.IsNegative() {
			return ValidatedRow{}, rowError("cost must not be negative: " + text)
		}
		row.Cost = &cost
	}
	return row, nil
}
