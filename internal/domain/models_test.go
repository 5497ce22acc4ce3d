package domain

import (
	"testing"
	"time"
)

func TestMonthOf(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2025-06-15", "2025-06"},
		{"2025-12-01", "2025-12"},
		{"2025-06", "2025-06"},
		{"bad", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := MonthOf(tc.in); got != tc.want {
			t.Errorf("MonthOf(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMonthWindow_CentersAndSpansYearBoundary(t *testing.T) {
	center := time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC)
	got := MonthWindow(center, 2)
	want := []string{"2024-11", "2024-12", "2025-01", "2025-02", "2025-03"}
	if len(got) != len(want) {
		t.Fatalf("window length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("window[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMonthWindow_RadiusZero(t *testing.T) {
	center := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	got := MonthWindow(center, 0)
	if len(got) != 1 || got[0] != "2025-06" {
		t.Fatalf("unexpected window: %v", got)
	}
}

func TestMonthBounds(t *testing.T) {
	first, last, ok := MonthBounds("2025-02")
	if !ok {
		t.Fatal("expected ok for valid month key")
	}
	if first != "2025-02-01" || last != "2025-02-28" {
		t.Fatalf("bounds = %q..%q", first, last)
	}

	first, last, ok = MonthBounds("2024-02") // leap year
	if !ok || last != "2024-02-29" {
		t.Fatalf("leap bounds = %q..%q ok=%v", first, last, ok)
	}

	if _, _, ok := MonthBounds("nope"); ok {
		t.Fatal("expected !ok for malformed key")
	}
}

func TestPostDetail_Pending(t *testing.T) {
	d := &PostDetail{Status: DetailPending}
	if !d.Pending() {
		t.Fatal("pending detail should report Pending")
	}
	d.Status = DetailCompleted
	if d.Pending() {
		t.Fatal("completed detail should not report Pending")
	}
}
