package expense

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	cases := map[string]bool{"daily": true, "Weekly": true, " monthly ": true, "yearly": false, "": false}
	for in, want := range cases {
		if _, ok := ParseDuration(in); ok != want {
			t.Errorf("ParseDuration(%q) ok=%v want %v", in, ok, want)
		}
	}
}

func TestWindow(t *testing.T) {
	now := time.Date(2026, 2, 14, 15, 30, 0, 0, time.UTC)
	cases := []struct {
		d          Duration
		start, end time.Time
	}{
		{Daily, time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 14, 23, 59, 59, 999999000, time.UTC)},
		{Weekly, now.Add(-7 * 24 * time.Hour), now},
		{Monthly, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 28, 23, 59, 59, 999999000, time.UTC)},
	}
	for _, c := range cases {
		start, end, ok := Window(c.d, now)
		if !ok {
			t.Fatalf("%s: not ok", c.d)
		}
		if !start.Equal(c.start) || !end.Equal(c.end) {
			t.Errorf("%s: got [%s, %s] want [%s, %s]", c.d, start, end, c.start, c.end)
		}
	}
	if _, _, ok := Window("fortnightly", now); ok {
		t.Fatal("unknown duration should not produce a window")
	}
}

func TestWindowMonthlyDecember(t *testing.T) {
	now := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)
	start, end, _ := Window(Monthly, now)
	if start != time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("start %s", start)
	}
	if end.Year() != 2025 || end.Month() != 12 || end.Day() != 31 {
		t.Fatalf("end %s", end)
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct {
		total int64
		size  int
		want  int
	}{
		{12, 5, 3},
		{10, 5, 2},
		{1, 5, 1},
		{0, 5, 0},
		{7, 0, 0},
	}
	for _, c := range cases {
		if got := TotalPages(c.total, c.size); got != c.want {
			t.Errorf("TotalPages(%d,%d)=%d want %d", c.total, c.size, got, c.want)
		}
	}
}

func TestOffset(t *testing.T) {
	if Offset(1, 5) != 0 || Offset(3, 5) != 10 || Offset(0, 5) != 0 || Offset(-2, 5) != 0 {
		t.Fatal("unexpected offsets")
	}
}
