package core

import (
	"strconv"
	"strings"
	"time"

	"labelcore/pkg/domain"
)

const (
	caseStampLayout = "20060102"
	maxCaseSuffix   = 999
)

// caseStamp formats the day portion of a case identifier.
func caseStamp(t time.Time) string { return t.Format(caseStampLayout) }

// nextCaseID computes the next case identifier for an order on the day given
// by now. Soft-deleted devices do not hold a slot. The day's counter is
// gapless per order and caps at 999; the overflow is a capacity failure, not
// a wraparound.
func nextCaseID(view domain.TransactionView, orderID string, now time.Time) (string, error) {
	stamp := caseStamp(now)
	last := 0
	for _, d := range view.ListDevices() {
		if d.OrderID != orderID || d.Deleted() {
			continue
		}
		if !strings.HasPrefix(d.CaseID, stamp) {
			continue
		}
		n, err := strconv.Atoi(d.CaseID[len(stamp):])
		if err != nil {
			continue
		}
		if n > last {
			last = n
		}
	}
	next := last + 1
	if next > maxCaseSuffix {
		return "", domain.CapacityError{Entity: domain.EntityDevice, Scope: "case counter " + stamp, Limit: maxCaseSuffix}
	}
	return stamp + pad3(next), nil
}

func pad3(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}
