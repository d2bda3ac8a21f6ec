package core

import "labelcore/pkg/domain"

// NewRulesEngine returns an empty rules engine.
func NewRulesEngine() *domain.RulesEngine { return domain.NewRulesEngine() }

// NewDefaultRulesEngine returns a rules engine with the standard invariants
// registered: device identity uniqueness, identifier length conformance,
// order quantity caps, and case capacity caps.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewDeviceIdentityRule())
	engine.Register(NewDeviceFormatRule())
	engine.Register(NewOrderQuantityRule())
	engine.Register(NewCaseCapacityRule())
	return engine
}
