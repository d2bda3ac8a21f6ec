package core

import (
	"context"
	"fmt"

	"labelcore/pkg/domain"
)

// NewOrderQuantityRule returns the commit-time rule enforcing that an order
// never holds more active devices than its ordered quantity.
func NewOrderQuantityRule() domain.Rule {
	return orderQuantityRule{}
}

type orderQuantityRule struct{}

func (orderQuantityRule) Name() string { return "order_quantity" }

func (orderQuantityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	counts := make(map[string]int)
	for _, d := range view.ListDevices() {
		if d.Deleted() {
			continue
		}
		counts[d.OrderID]++
	}

	res := domain.Result{}
	for _, order := range view.ListOrders() {
		count := counts[order.OrderID]
		if count > order.Quantity {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "order_quantity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("order %s over quantity: %d/%d devices", order.OrderID, count, order.Quantity),
				Entity:   domain.EntityOrder,
				EntityID: order.OrderID,
			})
		}
	}
	return res, nil
}
