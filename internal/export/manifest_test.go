package export_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"labelcore/internal/blob"
	"labelcore/internal/export"
	"labelcore/internal/infra/persistence/memory"
	"labelcore/pkg/domain"
)

func scanAt(deviceID, udi, orderID, caseID string, t time.Time) domain.Device {
	return domain.Device{DeviceID: deviceID, UDI: udi, OrderID: orderID, CaseID: caseID, Lifecycle: domain.Lifecycle{CreatedOn: t, UpdatedOn: t}}
}

func TestBuildDeviceManifest(t *testing.T) {
	base := time.Date(2026, 8, 28, 14, 0, 0, 500e6, time.UTC)
	devices := []domain.Device{
		scanAt("AB0001", "UDI000001", "PO-1", "20260828001", base),
		scanAt("AB0002", "", "PO-1", "20260828001", base.Add(time.Minute)),
	}

	got := export.BuildDeviceManifest(devices)
	want := "Device ID,UDI,Order ID,Case ID,Timestamp\n" +
		"AB0001,UDI000001,PO-1,20260828001,2026-08-28T14:00:00.500Z\n" +
		"AB0002,,PO-1,20260828001,2026-08-28T14:01:00.500Z\n"
	if got != want {
		t.Fatalf("device manifest mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestBuildCaseManifestGroupsByFirstScan(t *testing.T) {
	base := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)
	devices := []domain.Device{
		scanAt("AB0001", "", "PO-1", "20260828001", base.Add(time.Minute)),
		scanAt("AB0002", "", "PO-1", "20260828002", base.Add(2*time.Minute)),
		scanAt("AB0003", "", "PO-1", "20260828001", base),
	}

	got := export.BuildCaseManifest("PO-1", devices)
	want := "Case ID,OrderId,Devices,Timestamp\n" +
		"20260828001,PO-1,\"AB0001,AB0003\",\"2026-08-28T14:00:00.000Z\"\n" +
		"20260828002,PO-1,\"AB0002\",\"2026-08-28T14:02:00.000Z\"\n"
	if got != want {
		t.Fatalf("case manifest mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestBuildPalletManifestChunksBySize(t *testing.T) {
	base := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)
	var devices []domain.Device
	for i, id := range []string{"AB0001", "AB0002", "AB0003", "AB0004", "AB0005"} {
		devices = append(devices, scanAt(id, "", "PO-1", "20260828001", base.Add(time.Duration(i)*time.Minute)))
	}

	got, err := export.BuildPalletManifest("PO-1", 2, devices)
	if err != nil {
		t.Fatalf("build pallet manifest: %v", err)
	}
	want := "Pallet,Order ID,Count,Group 1,Group 2,Group 3,Group 4,Timestamp\n" +
		"1,PO-1,2,\"AB0001,AB0002\",,,,2026-08-28T14:00:00.000Z\n" +
		"2,PO-1,2,\"AB0003,AB0004\",,,,2026-08-28T14:02:00.000Z\n" +
		"3,PO-1,1,AB0005,,,,2026-08-28T14:04:00.000Z\n"
	if got != want {
		t.Fatalf("pallet manifest mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestBuildPalletManifestSpillsAcrossGroups(t *testing.T) {
	// seven-character ids joined by commas: 126 ids come to 1007 characters,
	// a 127th would break the 1008 budget and spill into the next group
	base := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)
	var devices []domain.Device
	for i := 0; i < 260; i++ {
		id := "AB" + pad5(i)
		devices = append(devices, scanAt(id, "", "PO-1", "20260828001", base))
	}

	got, err := export.BuildPalletManifest("PO-1", len(devices), devices)
	if err != nil {
		t.Fatalf("build pallet manifest: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one pallet row, got %d lines", len(lines))
	}
	row := lines[1]
	if !strings.Contains(row, "AB00125\",\"AB00126") {
		t.Fatalf("expected group break after the 126th id, row: %.200s", row)
	}
}

func TestBuildPalletManifestOverflowFails(t *testing.T) {
	// four groups hold at most 504 seven-character ids
	var devices []domain.Device
	for i := 0; i < 505; i++ {
		devices = append(devices, scanAt("AB"+pad5(i), "", "PO-1", "20260828001", time.Now()))
	}

	_, err := export.BuildPalletManifest("PO-1", len(devices), devices)
	if !domain.IsCapacity(err) {
		t.Fatalf("expected CapacityError when ids exceed four groups, got %v", err)
	}
}

func pad5(n int) string {
	s := []byte{'0', '0', '0', '0', '0'}
	for i := len(s) - 1; n > 0 && i >= 0; i-- {
		s[i] = byte('0' + n%10)
		n /= 10
	}
	return string(s)
}

func seedExportOrder(t *testing.T, store *memory.Store) {
	t.Helper()
	now := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return now })
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.PutProduct(domain.Product{ProductID: "p-1", Name: "Widget", CaseSize: 24, PalletSize: 2, DeviceIDLength: 6}); err != nil {
			return err
		}
		if _, err := tx.PutOrder(domain.Order{OrderID: "PO-1", ProductID: "p-1", Quantity: 10, OrderedOn: now}); err != nil {
			return err
		}
		for _, id := range []string{"AB0001", "AB0002", "AB0003"} {
			if _, err := tx.PutDevice(domain.Device{DeviceID: id, OrderID: "PO-1", CaseID: "20260828001"}); err != nil {
				return err
			}
		}
		// deleted devices never appear on a manifest
		return tx.DeleteDevice("AB0003", false)
	})
	if err != nil {
		t.Fatalf("seed export order: %v", err)
	}
}

func TestExporterPublishesManifests(t *testing.T) {
	store := memory.NewStore(nil)
	seedExportOrder(t, store)
	objects := blob.NewMemory()
	exporter := export.NewExporter(store, objects)
	ctx := context.Background()

	info, err := exporter.ExportDevices(ctx, "PO-1")
	if err != nil {
		t.Fatalf("export devices: %v", err)
	}
	if info.Key != "PO-1_devices.csv" || info.ContentType != "text/csv" {
		t.Fatalf("unexpected blob info: %+v", info)
	}
	if info.Metadata["order_id"] != "PO-1" || info.Metadata["manifest"] != "devices" {
		t.Fatalf("unexpected blob metadata: %+v", info.Metadata)
	}

	_, rc, err := objects.Get(ctx, "PO-1_devices.csv")
	if err != nil {
		t.Fatalf("get manifest: %v", err)
	}
	body, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	content := string(body)
	if !strings.HasPrefix(content, "Device ID,UDI,Order ID,Case ID,Timestamp\n") {
		t.Fatalf("unexpected manifest header: %q", content)
	}
	if strings.Contains(content, "AB0003") {
		t.Fatalf("deleted device leaked into manifest: %q", content)
	}

	if _, err := exporter.ExportCases(ctx, "PO-1"); err != nil {
		t.Fatalf("export cases: %v", err)
	}
	if _, err := exporter.ExportPallets(ctx, "PO-1"); err != nil {
		t.Fatalf("export pallets: %v", err)
	}
	all, err := objects.List(ctx, "PO-1_")
	if err != nil {
		t.Fatalf("list blobs: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected three manifests, got %+v", all)
	}
}

func TestExporterWrapsFailures(t *testing.T) {
	store := memory.NewStore(nil)
	exporter := export.NewExporter(store, blob.NewMemory())

	_, err := exporter.ExportDevices(context.Background(), "missing")
	var exportErr domain.ExportError
	if !errors.As(err, &exportErr) {
		t.Fatalf("expected ExportError, got %v", err)
	}
	if exportErr.Manifest != "devices" {
		t.Fatalf("unexpected manifest name: %q", exportErr.Manifest)
	}
	if !domain.IsNotFound(exportErr.Err) {
		t.Fatalf("expected wrapped NotFoundError, got %v", exportErr.Err)
	}
}
