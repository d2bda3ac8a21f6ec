package core

import (
	"regexp"
	"strings"

	"labelcore/pkg/domain"
)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// cleanString collapses runs of whitespace into a single space and trims the
// result. Scanner input is the usual source of doubled spaces.
func cleanString(s string) string {
	return strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
}

func sanitizeProduct(p domain.Product) domain.Product {
	p.ProductID = cleanString(p.ProductID)
	p.Name = cleanString(p.Name)
	p.Color = cleanString(p.Color)
	p.DeviceLabelHeader = cleanString(p.DeviceLabelHeader)
	return p
}

func sanitizeOrder(o domain.Order) domain.Order {
	o.OrderID = cleanString(o.OrderID)
	o.ProductID = cleanString(o.ProductID)
	return o
}

// sanitizeDevice uppercases identifier fields; scanners and operators mix
// cases freely and the printed labels are uppercase.
func sanitizeDevice(d domain.Device) domain.Device {
	d.DeviceID = strings.ToUpper(cleanString(d.DeviceID))
	d.UDI = strings.ToUpper(cleanString(d.UDI))
	d.OrderID = cleanString(d.OrderID)
	d.CaseID = cleanString(d.CaseID)
	return d
}
