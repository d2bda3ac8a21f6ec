package domain

import (
	"context"
	"time"
)

// Transaction exposes the mutations a persistence implementation must support
// within a single atomic scope. Writes are visible to later reads inside the
// same transaction and to nobody else until commit.
type Transaction interface {
	Snapshot() TransactionView

	PutProduct(Product) (Product, error)
	UpdateProduct(productID string, mutator func(*Product) error) (Product, error)
	DeleteProduct(productID string, permanent bool) error
	RestoreProduct(productID string) (Product, error)

	PutOrder(Order) (Order, error)
	UpdateOrder(orderID string, mutator func(*Order) error) (Order, error)
	DeleteOrder(orderID string, permanent bool) error
	RestoreOrder(orderID string) (Order, error)

	PutDevice(Device) (Device, error)
	UpdateDevice(deviceID string, mutator func(*Device) error) (Device, error)
	DeleteDevice(deviceID string, permanent bool) error
	RestoreDevice(deviceID string) (Device, error)

	UpdateSettings(mutator func(*Settings) error) (Settings, error)

	// Find* return the stored record regardless of soft-delete state; callers
	// that only want active records check Deleted() themselves.
	FindProduct(productID string) (Product, bool)
	FindOrder(orderID string) (Order, bool)
	FindDevice(deviceID string) (Device, bool)
	FindDeviceByUDI(udi string) (Device, bool)
	Settings() Settings

	// Now is the transaction clock; every timestamp written inside the
	// transaction uses this single instant.
	Now() time.Time
}

// TransactionView provides read-only access to a consistent snapshot.
type TransactionView interface {
	ListProducts() []Product
	ListOrders() []Order
	ListDevices() []Device
	FindProduct(productID string) (Product, bool)
	FindOrder(orderID string) (Order, bool)
	FindDevice(deviceID string) (Device, bool)
	Settings() Settings
}

// PersistentStore is the minimal abstraction over durable backends used by
// higher layers. All mutation funnels through RunInTransaction; reads outside
// a transaction observe the last committed state.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error

	// Watch registers fn to receive the change list of every committed
	// transaction, in commit order. The returned func cancels the watch.
	Watch(fn func([]Change)) (cancel func())

	GetProduct(productID string) (Product, bool)
	ListProducts() []Product
	GetOrder(orderID string) (Order, bool)
	ListOrders() []Order
	GetDevice(deviceID string) (Device, bool)
	ListDevices() []Device
	Settings() Settings
}
