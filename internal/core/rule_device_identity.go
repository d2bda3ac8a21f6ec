package core

import (
	"context"
	"fmt"

	"labelcore/pkg/domain"
)

// NewDeviceIdentityRule returns the commit-time rule enforcing that no two
// active devices share a device ID or a non-empty UDI. The validators catch
// this before a write; the rule catches restores and bulk imports that
// bypass them.
func NewDeviceIdentityRule() domain.Rule {
	return deviceIdentityRule{}
}

type deviceIdentityRule struct{}

func (deviceIdentityRule) Name() string { return "device_identity" }

func (deviceIdentityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	byID := make(map[string]int)
	byUDI := make(map[string]int)
	for _, d := range view.ListDevices() {
		if d.Deleted() {
			continue
		}
		byID[d.DeviceID]++
		if d.UDI != "" {
			byUDI[d.UDI]++
		}
	}
	for id, count := range byID {
		if count > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "device_identity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("device id %s held by %d active devices", id, count),
				Entity:   domain.EntityDevice,
				EntityID: id,
			})
		}
	}
	for udi, count := range byUDI {
		if count > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "device_identity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("udi %s held by %d active devices", udi, count),
				Entity:   domain.EntityDevice,
				EntityID: udi,
			})
		}
	}
	return res, nil
}
