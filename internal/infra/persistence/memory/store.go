// Package memory provides the in-memory transactional store that every
// persistent backend builds upon. Transactions clone the whole state, mutate
// the clone, run the rules engine over the result, and swap on success, so
// readers never observe a partial write.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"labelcore/pkg/domain"
)

type memoryState struct {
	products map[string]domain.Product
	orders   map[string]domain.Order
	devices  map[string]domain.Device
	settings domain.Settings
}

// Snapshot is the serialisable representation of the in-memory state.
type Snapshot struct {
	Products map[string]domain.Product `json:"products"`
	Orders   map[string]domain.Order   `json:"orders"`
	Devices  map[string]domain.Device  `json:"devices"`
	Settings domain.Settings           `json:"settings"`
}

func newMemoryState() memoryState {
	return memoryState{
		products: map[string]domain.Product{},
		orders:   map[string]domain.Order{},
		devices:  map[string]domain.Device{},
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Products: make(map[string]domain.Product, len(state.products)),
		Orders:   make(map[string]domain.Order, len(state.orders)),
		Devices:  make(map[string]domain.Device, len(state.devices)),
		Settings: cloneSettings(state.settings),
	}
	for k, v := range state.products {
		s.Products[k] = cloneProduct(v)
	}
	for k, v := range state.orders {
		s.Orders[k] = cloneOrder(v)
	}
	for k, v := range state.devices {
		s.Devices[k] = cloneDevice(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	st := newMemoryState()
	for k, v := range s.Products {
		st.products[k] = cloneProduct(v)
	}
	for k, v := range s.Orders {
		st.orders[k] = cloneOrder(v)
	}
	for k, v := range s.Devices {
		st.devices[k] = cloneDevice(v)
	}
	st.settings = cloneSettings(s.Settings)
	return st
}

func (s memoryState) clone() memoryState { return memoryStateFromSnapshot(snapshotFromMemoryState(s)) }

func cloneProduct(p domain.Product) domain.Product {
	if p.DeletedOn != nil {
		t := *p.DeletedOn
		p.DeletedOn = &t
	}
	return p
}

func cloneOrder(o domain.Order) domain.Order {
	if o.DueOn != nil {
		t := *o.DueOn
		o.DueOn = &t
	}
	if o.DeletedOn != nil {
		t := *o.DeletedOn
		o.DeletedOn = &t
	}
	return o
}

func cloneDevice(d domain.Device) domain.Device {
	if d.DeletedOn != nil {
		t := *d.DeletedOn
		d.DeletedOn = &t
	}
	return d
}

func cloneSettings(s domain.Settings) domain.Settings {
	cp := s
	if s.ProductDefaults != nil {
		v := *s.ProductDefaults
		cp.ProductDefaults = &v
	}
	if s.ActivePointer != nil {
		v := *s.ActivePointer
		cp.ActivePointer = &v
	}
	if s.TableDisplay != nil {
		v := *s.TableDisplay
		cp.TableDisplay = &v
	}
	if s.UserPrefs != nil {
		v := *s.UserPrefs
		v.Printers = append([]string(nil), s.UserPrefs.Printers...)
		cp.UserPrefs = &v
	}
	return cp
}

// Store is the in-memory transactional store.
type Store struct {
	mu       sync.RWMutex
	state    memoryState
	engine   *domain.RulesEngine
	nowFn    func() time.Time
	watchMu  sync.Mutex
	watchers map[int]func([]domain.Change)
	watchSeq int
}

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:    newMemoryState(),
		engine:   engine,
		nowFn:    func() time.Time { return time.Now().UTC() },
		watchers: map[int]func([]domain.Change){},
	}
}

// SetNowFunc overrides the transaction clock. Intended for tests that need a
// deterministic calendar day.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// ExportState returns a deep copy of the committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the committed state with the snapshot contents.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the engine for backends that layer on this store.
func (s *Store) RulesEngine() *domain.RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Watch registers fn to receive every committed change list.
func (s *Store) Watch(fn func([]domain.Change)) (cancel func()) {
	s.watchMu.Lock()
	s.watchSeq++
	id := s.watchSeq
	s.watchers[id] = fn
	s.watchMu.Unlock()
	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

func (s *Store) notify(changes []domain.Change) {
	if len(changes) == 0 {
		return
	}
	s.watchMu.Lock()
	fns := make([]func([]domain.Change), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()
	for _, fn := range fns {
		fn(changes)
	}
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []domain.Change
	now     time.Time
}

type transactionView struct{ state *memoryState }

func newTransactionView(state *memoryState) domain.TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListProducts() []domain.Product {
	out := make([]domain.Product, 0, len(v.state.products))
	for _, p := range v.state.products {
		out = append(out, cloneProduct(p))
	}
	sortByCreatedOn(out, func(p domain.Product) time.Time { return p.CreatedOn })
	return out
}

func (v transactionView) ListOrders() []domain.Order {
	out := make([]domain.Order, 0, len(v.state.orders))
	for _, o := range v.state.orders {
		out = append(out, cloneOrder(o))
	}
	sortByCreatedOn(out, func(o domain.Order) time.Time { return o.CreatedOn })
	return out
}

func (v transactionView) ListDevices() []domain.Device {
	out := make([]domain.Device, 0, len(v.state.devices))
	for _, d := range v.state.devices {
		out = append(out, cloneDevice(d))
	}
	sortByCreatedOn(out, func(d domain.Device) time.Time { return d.CreatedOn })
	return out
}

func (v transactionView) FindProduct(productID string) (domain.Product, bool) {
	p, ok := v.state.products[productID]
	if !ok {
		return domain.Product{}, false
	}
	return cloneProduct(p), true
}

func (v transactionView) FindOrder(orderID string) (domain.Order, bool) {
	o, ok := v.state.orders[orderID]
	if !ok {
		return domain.Order{}, false
	}
	return cloneOrder(o), true
}

func (v transactionView) FindDevice(deviceID string) (domain.Device, bool) {
	d, ok := v.state.devices[deviceID]
	if !ok {
		return domain.Device{}, false
	}
	return cloneDevice(d), true
}

func (v transactionView) Settings() domain.Settings { return cloneSettings(v.state.settings) }

// sortByCreatedOn orders records oldest first so "most recent" listings are a
// reverse away and manifests are deterministic.
func sortByCreatedOn[T any](records []T, createdOn func(T) time.Time) {
	sort.SliceStable(records, func(i, j int) bool {
		return createdOn(records[i]).Before(createdOn(records[j]))
	})
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The committed change list is delivered to watchers after the state swap.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	tx := &transaction{store: s, state: s.state.clone(), now: s.nowFn()}
	if err := fn(tx); err != nil {
		s.mu.Unlock()
		return domain.Result{}, err
	}
	var result domain.Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, ruleView{view}, tx.changes)
		if err != nil {
			s.mu.Unlock()
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			s.mu.Unlock()
			return res, domain.RuleViolationError{Result: res}
		}
	}
	s.state = tx.state
	changes := tx.changes
	s.mu.Unlock()
	s.notify(changes)
	return result, nil
}

// ruleView widens a TransactionView to the RuleView contract; the interfaces
// are method-identical today but evolve independently.
type ruleView struct{ domain.TransactionView }

// View executes fn against a read-only snapshot of the committed state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change domain.Change) { tx.changes = append(tx.changes, change) }

func (tx *transaction) Snapshot() domain.TransactionView { return newTransactionView(&tx.state) }

func (tx *transaction) Now() time.Time { return tx.now }

// PutProduct inserts or replaces a product by its natural key.
func (tx *transaction) PutProduct(p domain.Product) (domain.Product, error) {
	prev, existed := tx.state.products[p.ProductID]
	if existed {
		p.CreatedOn = prev.CreatedOn
	} else {
		p.CreatedOn = tx.now
	}
	p.UpdatedOn = tx.now
	tx.state.products[p.ProductID] = cloneProduct(p)
	change := domain.Change{Entity: domain.EntityProduct, Action: domain.ActionCreate, After: cloneProduct(p)}
	if existed {
		change.Action = domain.ActionUpdate
		change.Before = cloneProduct(prev)
	}
	tx.recordChange(change)
	return cloneProduct(p), nil
}

// UpdateProduct mutates a product using the provided mutator function.
func (tx *transaction) UpdateProduct(productID string, mutator func(*domain.Product) error) (domain.Product, error) {
	current, ok := tx.state.products[productID]
	if !ok {
		return domain.Product{}, domain.NotFoundError{Entity: domain.EntityProduct, Key: productID}
	}
	before := cloneProduct(current)
	if err := mutator(&current); err != nil {
		return domain.Product{}, err
	}
	current.ProductID = productID
	current.UpdatedOn = tx.now
	tx.state.products[productID] = cloneProduct(current)
	tx.recordChange(domain.Change{Entity: domain.EntityProduct, Action: domain.ActionUpdate, Before: before, After: cloneProduct(current)})
	return cloneProduct(current), nil
}

// DeleteProduct soft-deletes by default; permanent removes the row outright.
func (tx *transaction) DeleteProduct(productID string, permanent bool) error {
	current, ok := tx.state.products[productID]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityProduct, Key: productID}
	}
	if permanent {
		delete(tx.state.products, productID)
		tx.recordChange(domain.Change{Entity: domain.EntityProduct, Action: domain.ActionDelete, Before: cloneProduct(current)})
		return nil
	}
	_, err := tx.UpdateProduct(productID, func(p *domain.Product) error {
		t := tx.now
		p.DeletedOn = &t
		return nil
	})
	return err
}

// RestoreProduct clears the soft-delete marker.
func (tx *transaction) RestoreProduct(productID string) (domain.Product, error) {
	return tx.UpdateProduct(productID, func(p *domain.Product) error {
		p.DeletedOn = nil
		return nil
	})
}

// PutOrder inserts or replaces an order by its natural key.
func (tx *transaction) PutOrder(o domain.Order) (domain.Order, error) {
	prev, existed := tx.state.orders[o.OrderID]
	if existed {
		o.CreatedOn = prev.CreatedOn
	} else {
		o.CreatedOn = tx.now
	}
	o.UpdatedOn = tx.now
	tx.state.orders[o.OrderID] = cloneOrder(o)
	change := domain.Change{Entity: domain.EntityOrder, Action: domain.ActionCreate, After: cloneOrder(o)}
	if existed {
		change.Action = domain.ActionUpdate
		change.Before = cloneOrder(prev)
	}
	tx.recordChange(change)
	return cloneOrder(o), nil
}

// UpdateOrder mutates an order using the provided mutator function.
func (tx *transaction) UpdateOrder(orderID string, mutator func(*domain.Order) error) (domain.Order, error) {
	current, ok := tx.state.orders[orderID]
	if !ok {
		return domain.Order{}, domain.NotFoundError{Entity: domain.EntityOrder, Key: orderID}
	}
	before := cloneOrder(current)
	if err := mutator(&current); err != nil {
		return domain.Order{}, err
	}
	current.OrderID = orderID
	current.UpdatedOn = tx.now
	tx.state.orders[orderID] = cloneOrder(current)
	tx.recordChange(domain.Change{Entity: domain.EntityOrder, Action: domain.ActionUpdate, Before: before, After: cloneOrder(current)})
	return cloneOrder(current), nil
}

// DeleteOrder soft-deletes by default; permanent removes the row outright.
func (tx *transaction) DeleteOrder(orderID string, permanent bool) error {
	current, ok := tx.state.orders[orderID]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityOrder, Key: orderID}
	}
	if permanent {
		delete(tx.state.orders, orderID)
		tx.recordChange(domain.Change{Entity: domain.EntityOrder, Action: domain.ActionDelete, Before: cloneOrder(current)})
		return nil
	}
	_, err := tx.UpdateOrder(orderID, func(o *domain.Order) error {
		t := tx.now
		o.DeletedOn = &t
		return nil
	})
	return err
}

// RestoreOrder clears the soft-delete marker.
func (tx *transaction) RestoreOrder(orderID string) (domain.Order, error) {
	return tx.UpdateOrder(orderID, func(o *domain.Order) error {
		o.DeletedOn = nil
		return nil
	})
}

// PutDevice inserts or replaces a device by its natural key. Replacing is the
// path that lets a fresh scan reclaim the ID of a soft-deleted device;
// uniqueness against active devices is the validators' concern.
func (tx *transaction) PutDevice(d domain.Device) (domain.Device, error) {
	prev, existed := tx.state.devices[d.DeviceID]
	if existed && !prev.Deleted() {
		d.CreatedOn = prev.CreatedOn
	} else {
		// A fresh scan over a soft-deleted row starts a new lifecycle.
		d.CreatedOn = tx.now
	}
	d.UpdatedOn = tx.now
	tx.state.devices[d.DeviceID] = cloneDevice(d)
	change := domain.Change{Entity: domain.EntityDevice, Action: domain.ActionCreate, After: cloneDevice(d)}
	if existed {
		change.Action = domain.ActionUpdate
		change.Before = cloneDevice(prev)
	}
	tx.recordChange(change)
	return cloneDevice(d), nil
}

// UpdateDevice mutates a device using the provided mutator function.
func (tx *transaction) UpdateDevice(deviceID string, mutator func(*domain.Device) error) (domain.Device, error) {
	current, ok := tx.state.devices[deviceID]
	if !ok {
		return domain.Device{}, domain.NotFoundError{Entity: domain.EntityDevice, Key: deviceID}
	}
	before := cloneDevice(current)
	if err := mutator(&current); err != nil {
		return domain.Device{}, err
	}
	current.DeviceID = deviceID
	current.UpdatedOn = tx.now
	tx.state.devices[deviceID] = cloneDevice(current)
	tx.recordChange(domain.Change{Entity: domain.EntityDevice, Action: domain.ActionUpdate, Before: before, After: cloneDevice(current)})
	return cloneDevice(current), nil
}

// DeleteDevice soft-deletes by default; permanent makes the row unrecoverable.
func (tx *transaction) DeleteDevice(deviceID string, permanent bool) error {
	current, ok := tx.state.devices[deviceID]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityDevice, Key: deviceID}
	}
	if permanent {
		delete(tx.state.devices, deviceID)
		tx.recordChange(domain.Change{Entity: domain.EntityDevice, Action: domain.ActionDelete, Before: cloneDevice(current)})
		return nil
	}
	_, err := tx.UpdateDevice(deviceID, func(d *domain.Device) error {
		t := tx.now
		d.DeletedOn = &t
		return nil
	})
	return err
}

// RestoreDevice clears the soft-delete marker.
func (tx *transaction) RestoreDevice(deviceID string) (domain.Device, error) {
	return tx.UpdateDevice(deviceID, func(d *domain.Device) error {
		d.DeletedOn = nil
		return nil
	})
}

// UpdateSettings mutates the singleton settings records.
func (tx *transaction) UpdateSettings(mutator func(*domain.Settings) error) (domain.Settings, error) {
	current := cloneSettings(tx.state.settings)
	before := cloneSettings(tx.state.settings)
	if err := mutator(&current); err != nil {
		return domain.Settings{}, err
	}
	tx.state.settings = cloneSettings(current)
	tx.recordChange(domain.Change{Entity: domain.EntitySettings, Action: domain.ActionUpdate, Before: before, After: cloneSettings(current)})
	return cloneSettings(current), nil
}

func (tx *transaction) FindProduct(productID string) (domain.Product, bool) {
	p, ok := tx.state.products[productID]
	if !ok {
		return domain.Product{}, false
	}
	return cloneProduct(p), true
}

func (tx *transaction) FindOrder(orderID string) (domain.Order, bool) {
	o, ok := tx.state.orders[orderID]
	if !ok {
		return domain.Order{}, false
	}
	return cloneOrder(o), true
}

func (tx *transaction) FindDevice(deviceID string) (domain.Device, bool) {
	d, ok := tx.state.devices[deviceID]
	if !ok {
		return domain.Device{}, false
	}
	return cloneDevice(d), true
}

// FindDeviceByUDI prefers an active match; a soft-deleted device only
// surfaces when no active device carries the UDI.
func (tx *transaction) FindDeviceByUDI(udi string) (domain.Device, bool) {
	var deleted domain.Device
	var haveDeleted bool
	for _, d := range tx.state.devices {
		if d.UDI != udi {
			continue
		}
		if !d.Deleted() {
			return cloneDevice(d), true
		}
		deleted = cloneDevice(d)
		haveDeleted = true
	}
	return deleted, haveDeleted
}

func (tx *transaction) Settings() domain.Settings { return cloneSettings(tx.state.settings) }

// Committed-state read helpers -----------------------------------------------

// GetProduct retrieves a product by ID from committed state.
func (s *Store) GetProduct(productID string) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.products[productID]
	if !ok {
		return domain.Product{}, false
	}
	return cloneProduct(p), true
}

// ListProducts returns all products from committed state, oldest first.
func (s *Store) ListProducts() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0, len(s.state.products))
	for _, p := range s.state.products {
		out = append(out, cloneProduct(p))
	}
	sortByCreatedOn(out, func(p domain.Product) time.Time { return p.CreatedOn })
	return out
}

// GetOrder retrieves an order by ID from committed state.
func (s *Store) GetOrder(orderID string) (domain.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.state.orders[orderID]
	if !ok {
		return domain.Order{}, false
	}
	return cloneOrder(o), true
}

// ListOrders returns all orders from committed state, oldest first.
func (s *Store) ListOrders() []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Order, 0, len(s.state.orders))
	for _, o := range s.state.orders {
		out = append(out, cloneOrder(o))
	}
	sortByCreatedOn(out, func(o domain.Order) time.Time { return o.CreatedOn })
	return out
}

// GetDevice retrieves a device by ID from committed state.
func (s *Store) GetDevice(deviceID string) (domain.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.state.devices[deviceID]
	if !ok {
		return domain.Device{}, false
	}
	return cloneDevice(d), true
}

// ListDevices returns all devices from committed state, oldest first.
func (s *Store) ListDevices() []domain.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Device, 0, len(s.state.devices))
	for _, d := range s.state.devices {
		out = append(out, cloneDevice(d))
	}
	sortByCreatedOn(out, func(d domain.Device) time.Time { return d.CreatedOn })
	return out
}

// Settings returns the committed settings records.
func (s *Store) Settings() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSettings(s.state.settings)
}
