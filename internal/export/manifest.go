// Package export renders the shipping manifests (device, case, pallet) for
// an order and publishes them to the configured object store.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"labelcore/pkg/domain"
)

// Manifest names the three shipping manifest flavors.
type Manifest string

// Manifest kinds and per-group character budget for pallet rows.
const (
	ManifestDevices Manifest = "devices"
	ManifestCases   Manifest = "cases"
	ManifestPallets Manifest = "pallets"

	palletGroups      = 4
	maxCharsPerGroup  = 1008
	manifestTimeValue = "2006-01-02T15:04:05.000Z"
)

// isoTimestamp renders a manifest timestamp in UTC with millisecond
// precision, matching the historical manifest files downstream systems parse.
func isoTimestamp(t time.Time) string { return t.UTC().Format(manifestTimeValue) }

// BuildDeviceManifest renders one CSV row per active device of the order,
// oldest first.
func BuildDeviceManifest(devices []domain.Device) string {
	var b strings.Builder
	b.WriteString("Device ID,UDI,Order ID,Case ID,Timestamp\n")
	for _, d := range devices {
		b.WriteString(d.DeviceID)
		b.WriteByte(',')
		b.WriteString(d.UDI)
		b.WriteByte(',')
		b.WriteString(d.OrderID)
		b.WriteByte(',')
		b.WriteString(d.CaseID)
		b.WriteByte(',')
		b.WriteString(isoTimestamp(d.CreatedOn))
		b.WriteByte('\n')
	}
	return b.String()
}

// BuildCaseManifest renders one CSV row per case, in order of first scan.
// The device list is quoted as a single field and the row timestamp is the
// earliest scan in the case.
func BuildCaseManifest(orderID string, devices []domain.Device) string {
	var caseOrder []string
	cases := map[string][]domain.Device{}
	for _, d := range devices {
		if _, seen := cases[d.CaseID]; !seen {
			caseOrder = append(caseOrder, d.CaseID)
		}
		cases[d.CaseID] = append(cases[d.CaseID], d)
	}

	var b strings.Builder
	b.WriteString("Case ID,OrderId,Devices,Timestamp\n")
	for _, caseID := range caseOrder {
		group := cases[caseID]
		ids := make([]string, 0, len(group))
		earliest := group[0].CreatedOn
		for _, d := range group {
			ids = append(ids, d.DeviceID)
			if d.CreatedOn.Before(earliest) {
				earliest = d.CreatedOn
			}
		}
		fmt.Fprintf(&b, "%s,%s,%q,%q\n", caseID, orderID, strings.Join(ids, ","), isoTimestamp(earliest))
	}
	return b.String()
}

// BuildPalletManifest chunks the order's active devices into pallets of the
// product's pallet size and packs each pallet's device ids into four
// character-budgeted groups. A pallet whose ids do not fit in four groups is
// a capacity failure.
func BuildPalletManifest(orderID string, palletSize int, devices []domain.Device) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Pallet", "Order ID", "Count", "Group 1", "Group 2", "Group 3", "Group 4", "Timestamp"}); err != nil {
		return "", err
	}
	for i := 0; i < len(devices); i += palletSize {
		end := i + palletSize
		if end > len(devices) {
			end = len(devices)
		}
		pallet := devices[i:end]
		groups, err := packGroups(pallet)
		if err != nil {
			return "", err
		}
		earliest := pallet[0].CreatedOn
		for _, d := range pallet {
			if d.CreatedOn.Before(earliest) {
				earliest = d.CreatedOn
			}
		}
		row := []string{
			fmt.Sprintf("%d", i/palletSize+1),
			orderID,
			fmt.Sprintf("%d", len(pallet)),
			groups[0], groups[1], groups[2], groups[3],
			isoTimestamp(earliest),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// packGroups fills the four groups greedily, moving on when appending the
// next id would break the group's character budget.
func packGroups(devices []domain.Device) ([palletGroups]string, error) {
	var groups [palletGroups]string
	idx := 0
	for _, d := range devices {
		for len(groups[idx])+len(d.DeviceID)+1 > maxCharsPerGroup {
			idx++
			if idx >= palletGroups {
				return groups, domain.CapacityError{Entity: domain.EntityDevice, Scope: "pallet group budget", Limit: palletGroups}
			}
		}
		if groups[idx] != "" {
			groups[idx] += ","
		}
		groups[idx] += d.DeviceID
	}
	return groups, nil
}
