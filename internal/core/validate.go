package core

import (
	"regexp"

	"labelcore/pkg/domain"
)

// caseIDPattern is the dated case identifier: an 8 digit day stamp followed
// by a 3 digit sequence number.
var caseIDPattern = regexp.MustCompile(`^\d{8}\d{3}$`)

// validateProduct checks a sanitized product in phases: field formats first,
// then identifier uniqueness unless ignoreUnique is set (modify paths keep
// the same identifier and must not trip over themselves).
func validateProduct(tx domain.Transaction, p domain.Product, ignoreUnique bool) error {
	if p.Name == "" || len(p.Name) > domain.MaxFieldLength {
		return domain.ValidationError{Entity: domain.EntityProduct, Field: domain.FieldProductName, Reason: "must be 1-255 characters"}
	}
	if p.ProductID == "" || len(p.ProductID) > domain.MaxFieldLength {
		return domain.ValidationError{Entity: domain.EntityProduct, Field: domain.FieldProductID, Reason: "must be 1-255 characters"}
	}
	if len(p.Color) > domain.MaxFieldLength {
		return domain.ValidationError{Entity: domain.EntityProduct, Field: domain.FieldColor, Reason: "must be at most 255 characters"}
	}
	if p.DeviceIDLength < 1 {
		return domain.ValidationError{Entity: domain.EntityProduct, Field: domain.FieldDeviceIDLength, Reason: "must be a positive integer"}
	}
	if p.UDILength < 1 {
		return domain.ValidationError{Entity: domain.EntityProduct, Field: domain.FieldUDILength, Reason: "must be a positive integer"}
	}
	if p.CaseSize < 1 {
		return domain.ValidationError{Entity: domain.EntityProduct, Field: domain.FieldCaseSize, Reason: "must be a positive integer"}
	}
	if p.PalletSize < 1 {
		return domain.ValidationError{Entity: domain.EntityProduct, Field: domain.FieldPalletSize, Reason: "must be a positive integer"}
	}
	if ignoreUnique {
		return nil
	}
	if _, ok := tx.FindProduct(p.ProductID); ok {
		return domain.AlreadyExistsError{Entity: domain.EntityProduct, Field: domain.FieldProductID, Value: p.ProductID}
	}
	return nil
}

// validateOrder checks a sanitized order. Uniqueness considers every stored
// order, soft-deleted included: order identifiers come from customer
// paperwork and are never reissued.
func validateOrder(tx domain.Transaction, o domain.Order, ignoreUnique bool) error {
	if o.OrderID == "" || len(o.OrderID) > domain.MaxFieldLength {
		return domain.ValidationError{Entity: domain.EntityOrder, Field: domain.FieldOrderID, Reason: "must be 1-255 characters"}
	}
	if o.ProductID == "" || len(o.ProductID) > domain.MaxFieldLength {
		return domain.ValidationError{Entity: domain.EntityOrder, Field: domain.FieldProductID, Reason: "must be 1-255 characters"}
	}
	if o.OrderedOn.IsZero() {
		return domain.ValidationError{Entity: domain.EntityOrder, Field: domain.FieldOrderedOn, Reason: "must be set"}
	}
	if o.DueOn != nil && !o.DueOn.After(o.OrderedOn) {
		return domain.ValidationError{Entity: domain.EntityOrder, Field: domain.FieldDueOn, Reason: "must be after ordered on"}
	}
	if o.Quantity < 1 {
		return domain.ValidationError{Entity: domain.EntityOrder, Field: domain.FieldQuantity, Reason: "must be a positive integer"}
	}
	if ignoreUnique {
		return nil
	}
	if _, ok := tx.FindOrder(o.OrderID); ok {
		return domain.AlreadyExistsError{Entity: domain.EntityOrder, Field: domain.FieldOrderID, Value: o.OrderID}
	}
	return nil
}

// validateDevice checks a sanitized device: field formats, then the
// referential chain (order -> product) with the product's length settings,
// then
// uniqueness among active devices unless ignoreUnique is set.
func validateDevice(tx domain.Transaction, d domain.Device, ignoreUnique bool) error {
	if d.DeviceID == "" || len(d.DeviceID) > domain.MaxFieldLength {
		return domain.ValidationError{Entity: domain.EntityDevice, Field: domain.FieldDeviceID, Reason: "must be 1-255 characters"}
	}
	if len(d.UDI) > domain.MaxFieldLength {
		return domain.ValidationError{Entity: domain.EntityDevice, Field: domain.FieldUDI, Reason: "must be at most 255 characters"}
	}
	if d.OrderID == "" || len(d.OrderID) > domain.MaxFieldLength {
		return domain.ValidationError{Entity: domain.EntityDevice, Field: domain.FieldOrderID, Reason: "must be 1-255 characters"}
	}
	if !caseIDPattern.MatchString(d.CaseID) {
		return domain.ValidationError{Entity: domain.EntityDevice, Field: domain.FieldCaseID, Reason: "must match YYYYMMDD###"}
	}

	order, ok := tx.FindOrder(d.OrderID)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityOrder, Key: d.OrderID}
	}
	product, ok := tx.FindProduct(order.ProductID)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityProduct, Key: order.ProductID}
	}
	if product.HasUDI && len(d.UDI) != product.UDILength {
		return domain.ValidationError{Entity: domain.EntityDevice, Field: domain.FieldUDI, Reason: "length must match product udi length"}
	}
	if len(d.DeviceID) != product.DeviceIDLength {
		return domain.ValidationError{Entity: domain.EntityDevice, Field: domain.FieldDeviceID, Reason: "length must match product device id length"}
	}

	if ignoreUnique {
		return nil
	}
	return validateDeviceUniqueness(tx, d.DeviceID, d.UDI)
}

// validateDeviceUniqueness checks active devices only: a soft-deleted device
// releases its identifiers for reuse by a fresh scan.
func validateDeviceUniqueness(tx domain.Transaction, deviceID, udi string) error {
	if existing, ok := tx.FindDevice(deviceID); ok && !existing.Deleted() {
		return domain.AlreadyExistsError{Entity: domain.EntityDevice, Field: domain.FieldDeviceID, Value: deviceID}
	}
	if udi != "" {
		if existing, ok := tx.FindDeviceByUDI(udi); ok && !existing.Deleted() && existing.DeviceID != deviceID {
			return domain.AlreadyExistsError{Entity: domain.EntityDevice, Field: domain.FieldUDI, Value: udi}
		}
	}
	return nil
}
