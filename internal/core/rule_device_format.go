package core

import (
	"context"
	"fmt"

	"labelcore/pkg/domain"
)

// NewDeviceFormatRule returns the commit-time rule enforcing that every
// active device's identifiers match the length settings of its owning
// product. The validators check this when a device is written; the rule
// catches product edits that would strand already-scanned devices.
func NewDeviceFormatRule() domain.Rule {
	return deviceFormatRule{}
}

type deviceFormatRule struct{}

func (deviceFormatRule) Name() string { return "device_format" }

func (deviceFormatRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, d := range view.ListDevices() {
		if d.Deleted() {
			continue
		}
		order, ok := view.FindOrder(d.OrderID)
		if !ok {
			continue
		}
		product, ok := view.FindProduct(order.ProductID)
		if !ok {
			continue
		}
		if len(d.DeviceID) != product.DeviceIDLength {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "device_format",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("device %s has a %d-character id, product %s requires %d", d.DeviceID, len(d.DeviceID), product.ProductID, product.DeviceIDLength),
				Entity:   domain.EntityDevice,
				EntityID: d.DeviceID,
			})
		}
		if product.HasUDI && len(d.UDI) != product.UDILength {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "device_format",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("device %s has a %d-character udi, product %s requires %d", d.DeviceID, len(d.UDI), product.ProductID, product.UDILength),
				Entity:   domain.EntityDevice,
				EntityID: d.DeviceID,
			})
		}
	}
	return res, nil
}
