package domain

import "context"

// RuleView provides read-only access to transactional state for rule evaluation.
type RuleView interface {
	ListProducts() []Product
	ListOrders() []Order
	ListDevices() []Device
	FindProduct(productID string) (Product, bool)
	FindOrder(orderID string) (Order, bool)
	FindDevice(deviceID string) (Device, bool)
	Settings() Settings
}

// Rule defines an invariant evaluated over the post-transaction state before
// commit. A blocking violation aborts the transaction.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
