package export

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"labelcore/internal/blob"
	"labelcore/internal/core"
	"labelcore/pkg/domain"
)

// Exporter renders manifests from committed store state and publishes them
// to an object store. Re-exporting an order overwrites the previous manifest
// under the same key.
type Exporter struct {
	store   domain.PersistentStore
	objects blob.Store
	audit   core.AuditRecorder
	logger  core.Logger
}

// ExporterOption customizes exporter construction.
type ExporterOption func(*Exporter)

// WithAudit attaches an audit recorder to every export.
func WithAudit(audit core.AuditRecorder) ExporterOption {
	return func(e *Exporter) { e.audit = audit }
}

// WithLogger sets the exporter logger.
func WithLogger(logger core.Logger) ExporterOption {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExporter constructs an exporter over the given store and object store.
func NewExporter(store domain.PersistentStore, objects blob.Store, opts ...ExporterOption) *Exporter {
	e := &Exporter{store: store, objects: objects, logger: noopLogger{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// orderExport is the data one manifest render needs: the order, its product,
// and its active devices oldest first.
type orderExport struct {
	order   domain.Order
	product domain.Product
	devices []domain.Device
}

func (e *Exporter) collect(ctx context.Context, orderID string) (orderExport, error) {
	var out orderExport
	err := e.store.View(ctx, func(view domain.TransactionView) error {
		order, ok := view.FindOrder(orderID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityOrder, Key: orderID}
		}
		product, ok := view.FindProduct(order.ProductID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityProduct, Key: order.ProductID}
		}
		var devices []domain.Device
		for _, d := range view.ListDevices() {
			if d.OrderID == orderID && !d.Deleted() {
				devices = append(devices, d)
			}
		}
		sort.SliceStable(devices, func(i, j int) bool { return devices[i].CreatedOn.Before(devices[j].CreatedOn) })
		out = orderExport{order: order, product: product, devices: devices}
		return nil
	})
	return out, err
}

// ExportDevices renders and publishes the per-device manifest for an order.
func (e *Exporter) ExportDevices(ctx context.Context, orderID string) (blob.Info, error) {
	data, err := e.collect(ctx, orderID)
	if err != nil {
		return blob.Info{}, e.fail(ctx, ManifestDevices, orderID, err)
	}
	return e.publish(ctx, ManifestDevices, orderID, BuildDeviceManifest(data.devices))
}

// ExportCases renders and publishes the per-case manifest for an order.
func (e *Exporter) ExportCases(ctx context.Context, orderID string) (blob.Info, error) {
	data, err := e.collect(ctx, orderID)
	if err != nil {
		return blob.Info{}, e.fail(ctx, ManifestCases, orderID, err)
	}
	return e.publish(ctx, ManifestCases, orderID, BuildCaseManifest(orderID, data.devices))
}

// ExportPallets renders and publishes the pallet manifest for an order.
func (e *Exporter) ExportPallets(ctx context.Context, orderID string) (blob.Info, error) {
	data, err := e.collect(ctx, orderID)
	if err != nil {
		return blob.Info{}, e.fail(ctx, ManifestPallets, orderID, err)
	}
	csvData, err := BuildPalletManifest(orderID, data.product.PalletSize, data.devices)
	if err != nil {
		return blob.Info{}, e.fail(ctx, ManifestPallets, orderID, err)
	}
	return e.publish(ctx, ManifestPallets, orderID, csvData)
}

// Key returns the object key a manifest is published under.
func Key(manifest Manifest, orderID string) string {
	return fmt.Sprintf("%s_%s.csv", orderID, manifest)
}

func (e *Exporter) publish(ctx context.Context, manifest Manifest, orderID, data string) (blob.Info, error) {
	key := Key(manifest, orderID)
	info, err := e.objects.Put(ctx, key, strings.NewReader(data), blob.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"order_id": orderID, "manifest": string(manifest)},
	})
	if err != nil {
		return blob.Info{}, e.fail(ctx, manifest, orderID, err)
	}
	e.record(ctx, manifest, orderID, nil)
	e.logger.Info("manifest exported", "manifest", string(manifest), "order_id", orderID, "key", key, "size", info.Size)
	return info, nil
}

// fail wraps err as an export failure and records it.
func (e *Exporter) fail(ctx context.Context, manifest Manifest, orderID string, err error) error {
	wrapped := domain.ExportError{Manifest: string(manifest), Err: err}
	e.record(ctx, manifest, orderID, wrapped)
	e.logger.Error("manifest export failed", "manifest", string(manifest), "order_id", orderID, "error", err)
	return wrapped
}

func (e *Exporter) record(ctx context.Context, manifest Manifest, orderID string, err error) {
	if e.audit == nil {
		return
	}
	entry := core.AuditEntry{Operation: "export_" + string(manifest), Status: core.AuditStatusSuccess, EntityID: orderID}
	if err != nil {
		entry.Status = core.AuditStatusError
		entry.Error = err.Error()
	}
	e.audit.Record(ctx, entry)
}
