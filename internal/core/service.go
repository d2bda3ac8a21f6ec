package core

import (
	"context"
	"sort"
	"strings"
	"time"

	"labelcore/internal/infra/persistence/memory"
	"labelcore/pkg/domain"
)

// Seeded settings values for a fresh station.
var (
	defaultProductDefaults = domain.ProductDefaults{CaseSize: 24, PalletSize: 1008, DeviceIDLength: 6, UDILength: 9, HasUDI: false}
	defaultActivePointer   = domain.ActivePointer{ActiveOrder: "", ActiveCase: ""}
	defaultTableDisplay    = domain.TableDisplay{ProductExp: 2, DeviceExp: 2, OrderExp: 2}
	defaultUserPrefs       = domain.UserPrefs{
		DeviceIDPrinter:   "Default Printer",
		UDIPrinter:        "Default Printer",
		Volume:            50,
		AutoPrintDeviceID: true,
		AutoPrintUDI:      true,
		Printers:          []string{},
	}
)

type serviceOptions struct {
	logger  Logger
	clock   func() time.Time
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		logger: noopLogger{},
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// Option customizes service construction.
type Option func(*serviceOptions)

// WithLogger sets the service logger.
func WithLogger(logger Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the wall clock used for audit timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithMetricsRecorder attaches a metrics recorder to every operation.
func WithMetricsRecorder(metrics MetricsRecorder) Option {
	return func(o *serviceOptions) { o.metrics = metrics }
}

// WithTracer attaches a tracer to every operation.
func WithTracer(tracer Tracer) Option {
	return func(o *serviceOptions) { o.tracer = tracer }
}

// WithAuditRecorder attaches an audit recorder to every operation.
func WithAuditRecorder(audit AuditRecorder) Option {
	return func(o *serviceOptions) { o.audit = audit }
}

// Service exposes the transactional record operations for the labeling
// station: products, orders, devices, cases, and the settings records.
type Service struct {
	store domain.PersistentStore
	opts  serviceOptions
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{store: store, opts: options}
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine.
func NewInMemoryService(engine *domain.RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// begin opens the observability scope for a mutating operation. The returned
// func must be called exactly once with the affected entity id and outcome.
func (s *Service) begin(ctx context.Context, op string) (context.Context, func(entityID string, err error)) {
	started := time.Now()
	var span TraceSpan
	if s.opts.tracer != nil {
		ctx, span = s.opts.tracer.Start(ctx, op)
	}
	return ctx, func(entityID string, err error) {
		duration := time.Since(started)
		if span != nil {
			span.End(err)
		}
		if s.opts.metrics != nil {
			s.opts.metrics.Observe(ctx, op, err == nil, duration)
		}
		if s.opts.audit != nil {
			entry := AuditEntry{
				Operation:  op,
				Status:     AuditStatusSuccess,
				EntityID:   entityID,
				Duration:   duration,
				RecordedAt: s.opts.clock(),
			}
			if err != nil {
				entry.Status = AuditStatusError
				entry.Error = err.Error()
			}
			s.opts.audit.Record(ctx, entry)
		}
		if err != nil {
			s.opts.logger.Error("operation failed", "operation", op, "entity_id", entityID, "error", err)
		} else {
			s.opts.logger.Debug("operation completed", "operation", op, "entity_id", entityID)
		}
	}
}

// Settings seeding --------------------------------------------------------

// EnsureDefaults seeds any missing settings records. It is idempotent:
// existing records, modified or not, are left untouched.
func (s *Service) EnsureDefaults(ctx context.Context) (domain.Result, error) {
	ctx, done := s.begin(ctx, "ensure_defaults")
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		current := tx.Settings()
		if current.ProductDefaults != nil && current.ActivePointer != nil &&
			current.TableDisplay != nil && current.UserPrefs != nil {
			return nil
		}
		_, err := tx.UpdateSettings(func(settings *domain.Settings) error {
			if settings.ProductDefaults == nil {
				v := defaultProductDefaults
				settings.ProductDefaults = &v
			}
			if settings.ActivePointer == nil {
				v := defaultActivePointer
				settings.ActivePointer = &v
			}
			if settings.TableDisplay == nil {
				v := defaultTableDisplay
				settings.TableDisplay = &v
			}
			if settings.UserPrefs == nil {
				v := defaultUserPrefs
				v.Printers = append([]string(nil), defaultUserPrefs.Printers...)
				settings.UserPrefs = &v
			}
			return nil
		})
		return err
	})
	done("", err)
	return res, err
}

// Products -----------------------------------------------------------------

// ProductCreation carries the caller-supplied fields for a new product. Nil
// sizing fields fall back to the seeded product defaults.
type ProductCreation struct {
	ProductID         string
	Name              string
	Color             string
	DeviceLabelHeader string
	DeviceIDLength    *int
	UDILength         *int
	HasUDI            *bool
	CaseSize          *int
	PalletSize        *int
}

// ProductPatch carries a partial product update. Nil fields keep the stored
// value. The product identifier itself is immutable.
type ProductPatch struct {
	Name              *string
	Color             *string
	DeviceLabelHeader *string
	DeviceIDLength    *int
	UDILength         *int
	HasUDI            *bool
	CaseSize          *int
	PalletSize        *int
}

// CreateProduct persists a new product, filling unset sizing fields from the
// seeded product defaults inside the same transaction.
func (s *Service) CreateProduct(ctx context.Context, creation ProductCreation) (domain.Product, domain.Result, error) {
	ctx, done := s.begin(ctx, "create_product")
	var created domain.Product
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		settings := tx.Settings()
		if settings.ProductDefaults == nil {
			return domain.NotFoundError{Entity: domain.EntitySettings, Key: "product_defaults"}
		}
		defaults := *settings.ProductDefaults
		p := domain.Product{
			ProductID:         creation.ProductID,
			Name:              creation.Name,
			Color:             creation.Color,
			DeviceLabelHeader: creation.DeviceLabelHeader,
			DeviceIDLength:    intOr(creation.DeviceIDLength, defaults.DeviceIDLength),
			UDILength:         intOr(creation.UDILength, defaults.UDILength),
			HasUDI:            boolOr(creation.HasUDI, defaults.HasUDI),
			CaseSize:          intOr(creation.CaseSize, defaults.CaseSize),
			PalletSize:        intOr(creation.PalletSize, defaults.PalletSize),
		}
		p = sanitizeProduct(p)
		if err := validateProduct(tx, p, false); err != nil {
			return err
		}
		var err error
		created, err = tx.PutProduct(p)
		return err
	})
	done(created.ProductID, err)
	return created, res, err
}

// ModifyProduct applies a partial update to a product. The merged record is
// re-sanitized and re-validated with uniqueness skipped.
func (s *Service) ModifyProduct(ctx context.Context, productID string, patch ProductPatch) (domain.Product, domain.Result, error) {
	ctx, done := s.begin(ctx, "modify_product")
	var updated domain.Product
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateProduct(productID, func(p *domain.Product) error {
			if patch.Name != nil {
				p.Name = *patch.Name
			}
			if patch.Color != nil {
				p.Color = *patch.Color
			}
			if patch.DeviceLabelHeader != nil {
				p.DeviceLabelHeader = *patch.DeviceLabelHeader
			}
			if patch.DeviceIDLength != nil {
				p.DeviceIDLength = *patch.DeviceIDLength
			}
			if patch.UDILength != nil {
				p.UDILength = *patch.UDILength
			}
			if patch.HasUDI != nil {
				p.HasUDI = *patch.HasUDI
			}
			if patch.CaseSize != nil {
				p.CaseSize = *patch.CaseSize
			}
			if patch.PalletSize != nil {
				p.PalletSize = *patch.PalletSize
			}
			*p = sanitizeProduct(*p)
			return validateProduct(tx, *p, true)
		})
		return err
	})
	done(productID, err)
	return updated, res, err
}

// DeleteProduct soft-deletes a product, or removes it permanently.
func (s *Service) DeleteProduct(ctx context.Context, productID string, permanent bool) (domain.Result, error) {
	ctx, done := s.begin(ctx, "delete_product")
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteProduct(productID, permanent)
	})
	done(productID, err)
	return res, err
}

// RestoreProduct clears a product's soft-delete marker.
func (s *Service) RestoreProduct(ctx context.Context, productID string) (domain.Product, domain.Result, error) {
	ctx, done := s.begin(ctx, "restore_product")
	var restored domain.Product
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		restored, err = tx.RestoreProduct(productID)
		return err
	})
	done(productID, err)
	return restored, res, err
}

// ViewProduct marks a product as viewed.
func (s *Service) ViewProduct(ctx context.Context, productID string) (domain.Product, domain.Result, error) {
	ctx, done := s.begin(ctx, "view_product")
	var viewed domain.Product
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		viewed, err = tx.UpdateProduct(productID, func(p *domain.Product) error {
			p.Viewed = true
			return nil
		})
		return err
	})
	done(productID, err)
	return viewed, res, err
}

// GetProduct returns an active product by id.
func (s *Service) GetProduct(_ context.Context, productID string) (domain.Product, error) {
	p, ok := s.store.GetProduct(productID)
	if !ok || p.Deleted() {
		return domain.Product{}, domain.NotFoundError{Entity: domain.EntityProduct, Key: productID}
	}
	return p, nil
}

// ListProducts returns all active products, oldest first.
func (s *Service) ListProducts(_ context.Context) ([]domain.Product, error) {
	var out []domain.Product
	for _, p := range s.store.ListProducts() {
		if !p.Deleted() {
			out = append(out, p)
		}
	}
	return out, nil
}

// Orders -------------------------------------------------------------------

// OrderCreation carries the caller-supplied fields for a new order.
type OrderCreation struct {
	OrderID   string
	ProductID string
	Quantity  int
	OrderedOn time.Time
	DueOn     *time.Time
}

// OrderPatch carries a partial order update. Nil fields keep the stored
// value; ClearDueOn removes the due date.
type OrderPatch struct {
	ProductID  *string
	Quantity   *int
	OrderedOn  *time.Time
	DueOn      *time.Time
	ClearDueOn bool
	Complete   *bool
}

// CreateOrder persists a new order.
func (s *Service) CreateOrder(ctx context.Context, creation OrderCreation) (domain.Order, domain.Result, error) {
	ctx, done := s.begin(ctx, "create_order")
	var created domain.Order
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		o := domain.Order{
			OrderID:   creation.OrderID,
			ProductID: creation.ProductID,
			Quantity:  creation.Quantity,
			OrderedOn: creation.OrderedOn,
			DueOn:     creation.DueOn,
			Complete:  false,
		}
		o = sanitizeOrder(o)
		if err := validateOrder(tx, o, false); err != nil {
			return err
		}
		var err error
		created, err = tx.PutOrder(o)
		return err
	})
	done(created.OrderID, err)
	return created, res, err
}

// ModifyOrder applies a partial update to an order. The merged record is
// re-sanitized and re-validated with uniqueness skipped.
func (s *Service) ModifyOrder(ctx context.Context, orderID string, patch OrderPatch) (domain.Order, domain.Result, error) {
	ctx, done := s.begin(ctx, "modify_order")
	var updated domain.Order
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateOrder(orderID, func(o *domain.Order) error {
			if patch.ProductID != nil {
				o.ProductID = *patch.ProductID
			}
			if patch.Quantity != nil {
				o.Quantity = *patch.Quantity
			}
			if patch.OrderedOn != nil {
				o.OrderedOn = *patch.OrderedOn
			}
			if patch.ClearDueOn {
				o.DueOn = nil
			} else if patch.DueOn != nil {
				t := *patch.DueOn
				o.DueOn = &t
			}
			if patch.Complete != nil {
				o.Complete = *patch.Complete
			}
			*o = sanitizeOrder(*o)
			return validateOrder(tx, *o, true)
		})
		return err
	})
	done(orderID, err)
	return updated, res, err
}

// DeleteOrder soft-deletes an order, or removes it permanently.
func (s *Service) DeleteOrder(ctx context.Context, orderID string, permanent bool) (domain.Result, error) {
	ctx, done := s.begin(ctx, "delete_order")
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteOrder(orderID, permanent)
	})
	done(orderID, err)
	return res, err
}

// RestoreOrder clears an order's soft-delete marker.
func (s *Service) RestoreOrder(ctx context.Context, orderID string) (domain.Order, domain.Result, error) {
	ctx, done := s.begin(ctx, "restore_order")
	var restored domain.Order
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		restored, err = tx.RestoreOrder(orderID)
		return err
	})
	done(orderID, err)
	return restored, res, err
}

// CompleteOrder marks an active order complete.
func (s *Service) CompleteOrder(ctx context.Context, orderID string) (domain.Order, domain.Result, error) {
	ctx, done := s.begin(ctx, "complete_order")
	var completed domain.Order
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		existing, ok := tx.FindOrder(orderID)
		if !ok || existing.Deleted() {
			return domain.NotFoundError{Entity: domain.EntityOrder, Key: orderID}
		}
		var err error
		completed, err = tx.UpdateOrder(orderID, func(o *domain.Order) error {
			o.Complete = true
			return nil
		})
		return err
	})
	done(orderID, err)
	return completed, res, err
}

// GetOrder returns an active order by id.
func (s *Service) GetOrder(_ context.Context, orderID string) (domain.Order, error) {
	o, ok := s.store.GetOrder(orderID)
	if !ok || o.Deleted() {
		return domain.Order{}, domain.NotFoundError{Entity: domain.EntityOrder, Key: orderID}
	}
	return o, nil
}

// ListOpenOrders returns active, incomplete orders sorted by order date.
func (s *Service) ListOpenOrders(_ context.Context) ([]domain.Order, error) {
	return s.listOrders(func(o domain.Order) bool { return !o.Deleted() && !o.Complete }), nil
}

// ListCompletedOrders returns active, completed orders sorted by order date.
func (s *Service) ListCompletedOrders(_ context.Context) ([]domain.Order, error) {
	return s.listOrders(func(o domain.Order) bool { return !o.Deleted() && o.Complete }), nil
}

func (s *Service) listOrders(keep func(domain.Order) bool) []domain.Order {
	var out []domain.Order
	for _, o := range s.store.ListOrders() {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderedOn.Before(out[j].OrderedOn) })
	return out
}

// OrderDeviceCount returns the number of active devices recorded against the
// order.
func (s *Service) OrderDeviceCount(_ context.Context, orderID string) (int, error) {
	if _, ok := s.store.GetOrder(orderID); !ok {
		return 0, domain.NotFoundError{Entity: domain.EntityOrder, Key: orderID}
	}
	count := 0
	for _, d := range s.store.ListDevices() {
		if d.OrderID == orderID && !d.Deleted() {
			count++
		}
	}
	return count, nil
}

// Devices ------------------------------------------------------------------

// DeviceCreation carries the caller-supplied fields for a new device scan.
type DeviceCreation struct {
	DeviceID string
	UDI      string
	OrderID  string
	CaseID   string
}

// DevicePatch carries a partial device update. Nil fields keep the stored
// value. The device identifier itself is immutable.
type DevicePatch struct {
	UDI     *string
	OrderID *string
	CaseID  *string
}

// CreateDevice records a scanned device after validating it and checking the
// order quantity and case capacity limits. Creating over a soft-deleted
// device replaces it; the old record no longer holds the identifier.
func (s *Service) CreateDevice(ctx context.Context, creation DeviceCreation) (domain.Device, domain.Result, error) {
	ctx, done := s.begin(ctx, "create_device")
	var created domain.Device
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		d := sanitizeDevice(domain.Device{
			DeviceID: creation.DeviceID,
			UDI:      creation.UDI,
			OrderID:  creation.OrderID,
			CaseID:   creation.CaseID,
		})
		if err := validateDevice(tx, d, false); err != nil {
			return err
		}
		order, _ := tx.FindOrder(d.OrderID)
		product, _ := tx.FindProduct(order.ProductID)
		orderCount, caseCount := deviceCounts(tx.Snapshot(), d.OrderID, d.CaseID)
		if orderCount >= order.Quantity {
			return domain.CapacityError{Entity: domain.EntityOrder, Scope: "order " + d.OrderID, Limit: order.Quantity}
		}
		if caseCount >= product.CaseSize {
			return domain.CapacityError{Entity: domain.EntityDevice, Scope: "case " + d.CaseID, Limit: product.CaseSize}
		}
		var err error
		created, err = tx.PutDevice(d)
		return err
	})
	done(created.DeviceID, err)
	return created, res, err
}

// deviceCounts tallies active devices for an order and for one of its cases.
func deviceCounts(view domain.TransactionView, orderID, caseID string) (orderCount, caseCount int) {
	for _, d := range view.ListDevices() {
		if d.Deleted() || d.OrderID != orderID {
			continue
		}
		orderCount++
		if d.CaseID == caseID {
			caseCount++
		}
	}
	return orderCount, caseCount
}

// ModifyDevice applies a partial update to a device. The merged record is
// re-sanitized and re-validated with uniqueness skipped.
func (s *Service) ModifyDevice(ctx context.Context, deviceID string, patch DevicePatch) (domain.Device, domain.Result, error) {
	ctx, done := s.begin(ctx, "modify_device")
	var updated domain.Device
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateDevice(deviceID, func(d *domain.Device) error {
			if patch.UDI != nil {
				d.UDI = *patch.UDI
			}
			if patch.OrderID != nil {
				d.OrderID = *patch.OrderID
			}
			if patch.CaseID != nil {
				d.CaseID = *patch.CaseID
			}
			*d = sanitizeDevice(*d)
			return validateDevice(tx, *d, true)
		})
		return err
	})
	done(deviceID, err)
	return updated, res, err
}

// DeleteDevice soft-deletes a device, or removes it permanently.
func (s *Service) DeleteDevice(ctx context.Context, deviceID string, permanent bool) (domain.Result, error) {
	ctx, done := s.begin(ctx, "delete_device")
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteDevice(deviceID, permanent)
	})
	done(deviceID, err)
	return res, err
}

// RestoreDevice clears a device's soft-delete marker. The commit-time rules
// reject the restore if the identifiers were reused or a capacity limit
// would be exceeded.
func (s *Service) RestoreDevice(ctx context.Context, deviceID string) (domain.Device, domain.Result, error) {
	ctx, done := s.begin(ctx, "restore_device")
	var restored domain.Device
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		restored, err = tx.RestoreDevice(deviceID)
		return err
	})
	done(deviceID, err)
	return restored, res, err
}

// GetDevice returns an active device by id.
func (s *Service) GetDevice(_ context.Context, deviceID string) (domain.Device, error) {
	d, ok := s.store.GetDevice(deviceID)
	if !ok || d.Deleted() {
		return domain.Device{}, domain.NotFoundError{Entity: domain.EntityDevice, Key: deviceID}
	}
	return d, nil
}

// SearchDevices returns devices whose device id, UDI, order id, or case id
// contains the query, oldest first. Soft-deleted devices are included so
// operators can find records to restore.
func (s *Service) SearchDevices(_ context.Context, query string) ([]domain.Device, error) {
	var out []domain.Device
	for _, d := range s.store.ListDevices() {
		if strings.Contains(d.DeviceID, query) || strings.Contains(d.UDI, query) ||
			strings.Contains(d.OrderID, query) || strings.Contains(d.CaseID, query) {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListOrderDevices returns the active devices for an order, oldest first.
func (s *Service) ListOrderDevices(_ context.Context, orderID string) ([]domain.Device, error) {
	var out []domain.Device
	for _, d := range s.store.ListDevices() {
		if d.OrderID == orderID && !d.Deleted() {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListCaseDevices returns the active devices in one case of an order, oldest
// first.
func (s *Service) ListCaseDevices(_ context.Context, orderID, caseID string) ([]domain.Device, error) {
	var out []domain.Device
	for _, d := range s.store.ListDevices() {
		if d.OrderID == orderID && d.CaseID == caseID && !d.Deleted() {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListDevicesByDateRange returns the active devices scanned in [from, to),
// oldest first. Used for end-of-day and end-of-week reviews.
func (s *Service) ListDevicesByDateRange(_ context.Context, from, to time.Time) ([]domain.Device, error) {
	var out []domain.Device
	for _, d := range s.store.ListDevices() {
		if d.Deleted() {
			continue
		}
		if d.CreatedOn.Before(from) || !d.CreatedOn.Before(to) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// CaseDeviceCount returns the number of active devices in one case of an
// order.
func (s *Service) CaseDeviceCount(ctx context.Context, orderID, caseID string) (int, error) {
	devices, err := s.ListCaseDevices(ctx, orderID, caseID)
	if err != nil {
		return 0, err
	}
	return len(devices), nil
}

// NextCaseID computes the next case identifier for the order on the current
// day.
func (s *Service) NextCaseID(ctx context.Context, orderID string) (string, error) {
	var id string
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		if _, ok := view.FindOrder(orderID); !ok {
			return domain.NotFoundError{Entity: domain.EntityOrder, Key: orderID}
		}
		var err error
		id, err = nextCaseID(view, orderID, s.opts.clock())
		return err
	})
	return id, err
}

// ExceedsOrderQuantity reports whether the order already holds its full
// quantity of active devices.
func (s *Service) ExceedsOrderQuantity(ctx context.Context, orderID string) (bool, error) {
	var exceeded bool
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		order, ok := view.FindOrder(orderID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityOrder, Key: orderID}
		}
		orderCount, _ := deviceCounts(view, orderID, "")
		exceeded = orderCount >= order.Quantity
		return nil
	})
	return exceeded, err
}

// ExceedsCaseCapacity reports whether a case already holds its product's
// full case size of active devices.
func (s *Service) ExceedsCaseCapacity(ctx context.Context, orderID, caseID string) (bool, error) {
	var exceeded bool
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		order, ok := view.FindOrder(orderID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityOrder, Key: orderID}
		}
		product, ok := view.FindProduct(order.ProductID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityProduct, Key: order.ProductID}
		}
		_, caseCount := deviceCounts(view, orderID, caseID)
		exceeded = caseCount >= product.CaseSize
		return nil
	})
	return exceeded, err
}

// Settings -----------------------------------------------------------------

// ProductDefaultsPatch carries a partial update to the seeded product
// defaults.
type ProductDefaultsPatch struct {
	CaseSize       *int
	PalletSize     *int
	DeviceIDLength *int
	UDILength      *int
	HasUDI         *bool
}

// TableDisplayPatch carries a partial update to the table display settings.
type TableDisplayPatch struct {
	ProductExp *int
	DeviceExp  *int
	OrderExp   *int
}

// UserPrefsPatch carries a partial update to the user preferences.
type UserPrefsPatch struct {
	DeviceIDPrinter   *string
	UDIPrinter        *string
	Volume            *int
	AutoPrintDeviceID *bool
	AutoPrintUDI      *bool
	Printers          *[]string
}

// ProductDefaults returns the seeded product defaults.
func (s *Service) ProductDefaults(_ context.Context) (domain.ProductDefaults, error) {
	settings := s.store.Settings()
	if settings.ProductDefaults == nil {
		return domain.ProductDefaults{}, domain.NotFoundError{Entity: domain.EntitySettings, Key: "product_defaults"}
	}
	return *settings.ProductDefaults, nil
}

// UpdateProductDefaults applies a partial update to the product defaults.
func (s *Service) UpdateProductDefaults(ctx context.Context, patch ProductDefaultsPatch) (domain.ProductDefaults, domain.Result, error) {
	ctx, done := s.begin(ctx, "update_product_defaults")
	var updated domain.ProductDefaults
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		settings, err := tx.UpdateSettings(func(settings *domain.Settings) error {
			if settings.ProductDefaults == nil {
				return domain.NotFoundError{Entity: domain.EntitySettings, Key: "product_defaults"}
			}
			d := settings.ProductDefaults
			if patch.CaseSize != nil {
				d.CaseSize = *patch.CaseSize
			}
			if patch.PalletSize != nil {
				d.PalletSize = *patch.PalletSize
			}
			if patch.DeviceIDLength != nil {
				d.DeviceIDLength = *patch.DeviceIDLength
			}
			if patch.UDILength != nil {
				d.UDILength = *patch.UDILength
			}
			if patch.HasUDI != nil {
				d.HasUDI = *patch.HasUDI
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = *settings.ProductDefaults
		return nil
	})
	done("product_defaults", err)
	return updated, res, err
}

// ActiveCase returns the active order/case pointer.
func (s *Service) ActiveCase(_ context.Context) (domain.ActivePointer, error) {
	settings := s.store.Settings()
	if settings.ActivePointer == nil {
		return domain.ActivePointer{}, domain.NotFoundError{Entity: domain.EntitySettings, Key: "active_case"}
	}
	return *settings.ActivePointer, nil
}

// UpdateActiveCase points the station at a new active order and case.
func (s *Service) UpdateActiveCase(ctx context.Context, activeOrder, activeCase string) (domain.ActivePointer, domain.Result, error) {
	ctx, done := s.begin(ctx, "update_active_case")
	var updated domain.ActivePointer
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		settings, err := tx.UpdateSettings(func(settings *domain.Settings) error {
			if settings.ActivePointer == nil {
				return domain.NotFoundError{Entity: domain.EntitySettings, Key: "active_case"}
			}
			settings.ActivePointer.ActiveOrder = activeOrder
			settings.ActivePointer.ActiveCase = activeCase
			return nil
		})
		if err != nil {
			return err
		}
		updated = *settings.ActivePointer
		return nil
	})
	done("active_case", err)
	return updated, res, err
}

// TableDisplay returns the table display settings.
func (s *Service) TableDisplay(_ context.Context) (domain.TableDisplay, error) {
	settings := s.store.Settings()
	if settings.TableDisplay == nil {
		return domain.TableDisplay{}, domain.NotFoundError{Entity: domain.EntitySettings, Key: "table_display"}
	}
	return *settings.TableDisplay, nil
}

// UpdateTableDisplay applies a partial update to the table display settings.
func (s *Service) UpdateTableDisplay(ctx context.Context, patch TableDisplayPatch) (domain.TableDisplay, domain.Result, error) {
	ctx, done := s.begin(ctx, "update_table_display")
	var updated domain.TableDisplay
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		settings, err := tx.UpdateSettings(func(settings *domain.Settings) error {
			if settings.TableDisplay == nil {
				return domain.NotFoundError{Entity: domain.EntitySettings, Key: "table_display"}
			}
			t := settings.TableDisplay
			if patch.ProductExp != nil {
				t.ProductExp = *patch.ProductExp
			}
			if patch.DeviceExp != nil {
				t.DeviceExp = *patch.DeviceExp
			}
			if patch.OrderExp != nil {
				t.OrderExp = *patch.OrderExp
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = *settings.TableDisplay
		return nil
	})
	done("table_display", err)
	return updated, res, err
}

// UserPrefs returns the user preferences.
func (s *Service) UserPrefs(_ context.Context) (domain.UserPrefs, error) {
	settings := s.store.Settings()
	if settings.UserPrefs == nil {
		return domain.UserPrefs{}, domain.NotFoundError{Entity: domain.EntitySettings, Key: "user_prefs"}
	}
	return *settings.UserPrefs, nil
}

// UpdateUserPrefs applies a partial update to the user preferences.
func (s *Service) UpdateUserPrefs(ctx context.Context, patch UserPrefsPatch) (domain.UserPrefs, domain.Result, error) {
	ctx, done := s.begin(ctx, "update_user_prefs")
	var updated domain.UserPrefs
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		settings, err := tx.UpdateSettings(func(settings *domain.Settings) error {
			if settings.UserPrefs == nil {
				return domain.NotFoundError{Entity: domain.EntitySettings, Key: "user_prefs"}
			}
			u := settings.UserPrefs
			if patch.DeviceIDPrinter != nil {
				u.DeviceIDPrinter = *patch.DeviceIDPrinter
			}
			if patch.UDIPrinter != nil {
				u.UDIPrinter = *patch.UDIPrinter
			}
			if patch.Volume != nil {
				if *patch.Volume < 0 || *patch.Volume > 100 {
					return domain.ValidationError{Entity: domain.EntitySettings, Field: domain.FieldVolume, Reason: "must be between 0 and 100"}
				}
				u.Volume = *patch.Volume
			}
			if patch.AutoPrintDeviceID != nil {
				u.AutoPrintDeviceID = *patch.AutoPrintDeviceID
			}
			if patch.AutoPrintUDI != nil {
				u.AutoPrintUDI = *patch.AutoPrintUDI
			}
			if patch.Printers != nil {
				u.Printers = append([]string(nil), (*patch.Printers)...)
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = *settings.UserPrefs
		return nil
	})
	done("user_prefs", err)
	return updated, res, err
}

func intOr(v *int, fallback int) int {
	if v != nil {
		return *v
	}
	return fallback
}

func boolOr(v *bool, fallback bool) bool {
	if v != nil {
		return *v
	}
	return fallback
}
