package core

import (
	"testing"
	"time"

	"labelcore/pkg/domain"
)

type deviceListView []domain.Device

func (v deviceListView) ListProducts() []domain.Product { return nil }
func (v deviceListView) ListOrders() []domain.Order     { return nil }
func (v deviceListView) ListDevices() []domain.Device   { return v }
func (v deviceListView) FindProduct(string) (domain.Product, bool) {
	return domain.Product{}, false
}
func (v deviceListView) FindOrder(string) (domain.Order, bool)   { return domain.Order{}, false }
func (v deviceListView) FindDevice(string) (domain.Device, bool) { return domain.Device{}, false }
func (v deviceListView) Settings() domain.Settings               { return domain.Settings{} }

func scannedDevice(orderID, caseID string, deleted bool) domain.Device {
	d := domain.Device{OrderID: orderID, CaseID: caseID}
	if deleted {
		at := time.Now()
		d.DeletedOn = &at
	}
	return d
}

func TestNextCaseID(t *testing.T) {
	now := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)

	cases := []struct {
		name    string
		devices deviceListView
		want    string
	}{
		{"first of the day", nil, "20260828001"},
		{
			"advances past the highest suffix",
			deviceListView{
				scannedDevice("PO-1", "20260828001", false),
				scannedDevice("PO-1", "20260828005", false),
			},
			"20260828006",
		},
		{
			"deleted devices release their slot",
			deviceListView{
				scannedDevice("PO-1", "20260828001", false),
				scannedDevice("PO-1", "20260828002", true),
			},
			"20260828002",
		},
		{
			"other orders do not advance the counter",
			deviceListView{scannedDevice("PO-2", "20260828007", false)},
			"20260828001",
		},
		{
			"previous days do not advance the counter",
			deviceListView{scannedDevice("PO-1", "20260827009", false)},
			"20260828001",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := nextCaseID(tc.devices, "PO-1", now)
			if err != nil {
				t.Fatalf("next case id: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNextCaseIDOverflow(t *testing.T) {
	now := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)
	view := deviceListView{scannedDevice("PO-1", "20260828999", false)}

	_, err := nextCaseID(view, "PO-1", now)
	if !domain.IsCapacity(err) {
		t.Fatalf("expected CapacityError past suffix 999, got %v", err)
	}
}

func TestPad3(t *testing.T) {
	for n, want := range map[int]string{1: "001", 42: "042", 999: "999", 1000: "1000"} {
		if got := pad3(n); got != want {
			t.Fatalf("pad3(%d) = %q, want %q", n, got, want)
		}
	}
}
