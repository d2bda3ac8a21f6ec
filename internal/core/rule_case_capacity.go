package core

import (
	"context"
	"fmt"

	"labelcore/pkg/domain"
)

// NewCaseCapacityRule returns the commit-time rule enforcing that a case
// never holds more active devices than its product's case size.
func NewCaseCapacityRule() domain.Rule {
	return caseCapacityRule{}
}

type caseCapacityRule struct{}

func (caseCapacityRule) Name() string { return "case_capacity" }

type orderCase struct {
	orderID string
	caseID  string
}

func (caseCapacityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	counts := make(map[orderCase]int)
	for _, d := range view.ListDevices() {
		if d.Deleted() {
			continue
		}
		counts[orderCase{orderID: d.OrderID, caseID: d.CaseID}]++
	}

	res := domain.Result{}
	for key, count := range counts {
		order, ok := view.FindOrder(key.orderID)
		if !ok {
			continue
		}
		product, ok := view.FindProduct(order.ProductID)
		if !ok {
			continue
		}
		if count > product.CaseSize {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "case_capacity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("case %s on order %s over capacity: %d/%d devices", key.caseID, key.orderID, count, product.CaseSize),
				Entity:   domain.EntityDevice,
				EntityID: key.caseID,
			})
		}
	}
	return res, nil
}
