// Package domain defines the persistent entities, settings variants, change
// records, rule primitives, and error taxonomy used by labelcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProduct identifies a product definition record.
	EntityProduct EntityType = "product"
	// EntityOrder identifies a work order record.
	EntityOrder EntityType = "order"
	// EntityDevice identifies an individual labeled device record.
	EntityDevice EntityType = "device"
	// EntitySettings identifies the singleton settings records.
	EntitySettings EntityType = "settings"
)

// MaxFieldLength caps every free-form identifier and name field.
const MaxFieldLength = 255

// Lifecycle carries the shared audit and soft-delete timestamps.
// A nil DeletedOn means the record is active; a set DeletedOn marks it
// soft-deleted but still present in storage until a permanent delete.
type Lifecycle struct {
	CreatedOn time.Time  `json:"created_on"`
	UpdatedOn time.Time  `json:"updated_on"`
	DeletedOn *time.Time `json:"deleted_on,omitempty"`
}

// Deleted reports whether the record is soft-deleted.
func (l Lifecycle) Deleted() bool { return l.DeletedOn != nil }

// Product describes a labeled product line. Its sizing fields govern the
// devices produced against it: DeviceIDLength and UDILength fix identifier
// lengths, CaseSize caps devices per case, PalletSize chunks shipping
// manifests.
type Product struct {
	ProductID         string `json:"product_id"`
	Name              string `json:"name"`
	Color             string `json:"color"`
	DeviceLabelHeader string `json:"device_label_header"`
	DeviceIDLength    int    `json:"device_id_length"`
	UDILength         int    `json:"udi_length"`
	HasUDI            bool   `json:"has_udi"`
	CaseSize          int    `json:"case_size"`
	PalletSize        int    `json:"pallet_size"`
	Viewed            bool   `json:"viewed,omitempty"`
	Lifecycle
}

// Order is a production order placed against a product. Quantity caps the
// number of active devices that may be recorded for it. ProductID is kept as
// a loose reference: order-level validation does not require it to resolve,
// device-level validation does.
type Order struct {
	OrderID   string     `json:"order_id"`
	ProductID string     `json:"product_id"`
	Quantity  int        `json:"quantity"`
	OrderedOn time.Time  `json:"ordered_on"`
	DueOn     *time.Time `json:"due_on,omitempty"`
	Complete  bool       `json:"complete"`
	Lifecycle
}

// Device is a single produced unit. CaseID groups devices into the dated,
// sequence-numbered case that was open when the device was scanned.
type Device struct {
	DeviceID string `json:"device_id"`
	UDI      string `json:"udi"`
	OrderID  string `json:"order_id"`
	CaseID   string `json:"case_id"`
	Lifecycle
}

// ProductDefaults seeds the sizing fields of newly created products.
type ProductDefaults struct {
	CaseSize       int  `json:"case_size"`
	PalletSize     int  `json:"pallet_size"`
	DeviceIDLength int  `json:"device_id_length"`
	UDILength      int  `json:"udi_length"`
	HasUDI         bool `json:"has_udi"`
}

// ActivePointer names the order and case currently being worked.
type ActivePointer struct {
	ActiveOrder string `json:"active_order"`
	ActiveCase  string `json:"active_case"`
}

// TableDisplay holds per-table listing preferences.
type TableDisplay struct {
	ProductExp int `json:"product_exp"`
	DeviceExp  int `json:"device_exp"`
	OrderExp   int `json:"order_exp"`
}

// UserPrefs holds printer and feedback preferences. Volume serializes as
// "volumn", the key the settings records have always used on disk.
type UserPrefs struct {
	DeviceIDPrinter   string   `json:"device_id_printer"`
	UDIPrinter        string   `json:"udi_printer"`
	Volume            int      `json:"volumn"`
	AutoPrintDeviceID bool     `json:"auto_print_device_id"`
	AutoPrintUDI      bool     `json:"auto_print_udi"`
	Printers          []string `json:"printers"`
}

// Settings is the fixed set of singleton records. Each variant is nil until
// seeded; readers fail with NotFoundError rather than guessing at shape.
type Settings struct {
	ProductDefaults *ProductDefaults `json:"product_defaults,omitempty"`
	ActivePointer   *ActivePointer   `json:"active_pointer,omitempty"`
	TableDisplay    *TableDisplay    `json:"table_display,omitempty"`
	UserPrefs       *UserPrefs       `json:"user_prefs,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate the mutations captured in the change feed.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated (including soft delete and restore).
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
