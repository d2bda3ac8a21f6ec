package core

import (
	"testing"

	"labelcore/pkg/domain"
)

func TestCleanString(t *testing.T) {
	cases := []struct{ in, want string }{
		{"plain", "plain"},
		{"  leading and trailing  ", "leading and trailing"},
		{"double  space", "double space"},
		{"tabs\t\tand\nnewlines", "tabs and newlines"},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := cleanString(tc.in); got != tc.want {
			t.Fatalf("cleanString(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeDeviceUppercasesIdentifiers(t *testing.T) {
	d := sanitizeDevice(domain.Device{
		DeviceID: " ab 12cd ",
		UDI:      "udi  0001",
		OrderID:  " po-1 ",
		CaseID:   " 20260828001 ",
	})
	if d.DeviceID != "AB 12CD" {
		t.Fatalf("device id: %q", d.DeviceID)
	}
	if d.UDI != "UDI 0001" {
		t.Fatalf("udi: %q", d.UDI)
	}
	if d.OrderID != "po-1" || d.CaseID != "20260828001" {
		t.Fatalf("order/case must be cleaned but not uppercased: %q %q", d.OrderID, d.CaseID)
	}
}

func TestCaseIDPattern(t *testing.T) {
	valid := []string{"20260828001", "19991231999"}
	for _, id := range valid {
		if !caseIDPattern.MatchString(id) {
			t.Fatalf("expected %q to match", id)
		}
	}
	invalid := []string{"2026082801", "202608280011", "2026082800a", "case-1", ""}
	for _, id := range invalid {
		if caseIDPattern.MatchString(id) {
			t.Fatalf("expected %q not to match", id)
		}
	}
}
