package expense

import (
	"strings"
	"time"
)

// PageSize is the number of expenses per page everywhere pages are computed.
const PageSize = 5

// Duration names a reporting bucket.
type Duration string

const (
	Daily   Duration = "daily"
	Weekly  Duration = "weekly"
	Monthly Duration = "monthly"
)

// ParseDuration accepts the three bucket names, case-insensitively.
func ParseDuration(s string) (Duration, bool) {
	switch d := Duration(strings.ToLower(strings.TrimSpace(s))); d {
	case Daily, Weekly, Monthly:
		return d, true
	}
	return "", false
}

// Window returns the inclusive [start, end] range of bucket d as seen at now,
// in now's location. Calendar bounds end one microsecond before the next
// period so they match at database timestamp precision.
func Window(d Duration, now time.Time) (start, end time.Time, ok bool) {
	loc := now.Location()
	switch d {
	case Daily:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 0, 1).Add(-time.Microsecond), true
	case Weekly:
		return now.Add(-7 * 24 * time.Hour), now, true
	case Monthly:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0).Add(-time.Microsecond), true
	}
	return time.Time{}, time.Time{}, false
}

// TotalPages is ceil(total / pageSize).
func TotalPages(total int64, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	ps := int64(pageSize)
	return int((total + ps - 1) / ps)
}

// Offset converts a 1-based page number into a row offset. Pages below 1 map to the first page.
func Offset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}
