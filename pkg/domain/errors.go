package domain

import (
	"errors"
	"fmt"
)

// Field names a record field in validation and uniqueness failures so callers
// can attach the error to the offending input rather than a generic banner.
type Field string

// Fields referenced by validation, uniqueness, and capacity errors.
const (
	FieldProductID      Field = "product_id"
	FieldProductName    Field = "name"
	FieldColor          Field = "color"
	FieldDeviceIDLength Field = "device_id_length"
	FieldUDILength      Field = "udi_length"
	FieldCaseSize       Field = "case_size"
	FieldPalletSize     Field = "pallet_size"
	FieldOrderID        Field = "order_id"
	FieldQuantity       Field = "quantity"
	FieldOrderedOn      Field = "ordered_on"
	FieldDueOn          Field = "due_on"
	FieldDeviceID       Field = "device_id"
	FieldUDI            Field = "udi"
	FieldCaseID         Field = "case_id"
	FieldVolume         Field = "volume"
)

// NotFoundError reports a required lookup that returned nothing.
type NotFoundError struct {
	Entity EntityType
	Key    string
}

func (e NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// AlreadyExistsError reports a uniqueness violation on a specific field.
type AlreadyExistsError struct {
	Entity EntityType
	Field  Field
	Value  string
}

func (e AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Entity, e.Field, e.Value)
}

// ValidationError reports a type, format, length, or range violation found
// during the synchronous validation phase.
type ValidationError struct {
	Entity EntityType
	Field  Field
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %s: %s", e.Entity, e.Field, e.Reason)
}

// CapacityError reports that a count or counter reached its configured limit.
type CapacityError struct {
	Entity EntityType
	Scope  string
	Limit  int
}

func (e CapacityError) Error() string {
	return fmt.Sprintf("%s capacity reached for %s (limit %d)", e.Entity, e.Scope, e.Limit)
}

// ExportError wraps a failure at the export/report-writing boundary.
type ExportError struct {
	Manifest string
	Err      error
}

func (e ExportError) Error() string {
	return fmt.Sprintf("export %s failed: %v", e.Manifest, e.Err)
}

func (e ExportError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsAlreadyExists reports whether err is (or wraps) an AlreadyExistsError.
func IsAlreadyExists(err error) bool {
	var ae AlreadyExistsError
	return errors.As(err, &ae)
}

// IsCapacity reports whether err is (or wraps) a CapacityError.
func IsCapacity(err error) bool {
	var ce CapacityError
	return errors.As(err, &ce)
}
