package calendar

import (
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t.Add(10 * time.Hour)
}

func TestAddBusinessDays(t *testing.T) {
	cal, err := New([]string{"2026-11-02", "2026-11-20"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name  string
		start string
		n     int
		want  string
	}{
		{"same week", "2026-10-12", 3, "2026-10-15"},
		{"over weekend", "2026-10-15", 3, "2026-10-20"},
		{"from saturday", "2026-10-17", 1, "2026-10-19"},
		{"skips holiday", "2026-10-30", 1, "2026-11-03"},
		{"zero", "2026-10-17", 0, "2026-10-17"},
		{"negative", "2026-10-12", -2, "2026-10-12"},
		{"fifteen days", "2026-11-16", 15, "2026-12-08"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cal.AddBusinessDays(day(tt.start), tt.n)
			if got.Format(time.DateOnly) != tt.want {
				t.Errorf("AddBusinessDays(%s, %d) = %s, want %s", tt.start, tt.n, got.Format(time.DateOnly), tt.want)
			}
			if got.Hour() != 10 {
				t.Errorf("time of day changed: %v", got)
			}
		})
	}
}

func TestBusinessDaysBetween(t *testing.T) {
	var cal *Calendar

	if got := cal.BusinessDaysBetween(day("2026-10-12"), day("2026-10-19")); got != 5 {
		t.Errorf("mon->mon = %d, want 5", got)
	}
	if got := cal.BusinessDaysBetween(day("2026-10-19"), day("2026-10-12")); got != -5 {
		t.Errorf("reversed = %d, want -5", got)
	}
	if got := cal.BusinessDaysBetween(day("2026-10-16"), day("2026-10-18")); got != 0 {
		t.Errorf("fri->sun = %d, want 0", got)
	}
	if got := cal.BusinessDaysBetween(day("2026-10-14"), day("2026-10-14").Add(5*time.Hour)); got != 0 {
		t.Errorf("same day = %d, want 0", got)
	}
}

func TestNew_invalidHoliday(t *testing.T) {
	if _, err := New([]string{"25/12/2026"}); err == nil {
		t.Fatal("New() with malformed date should fail")
	}
}

func TestIsBusinessDay(t *testing.T) {
	cal, _ := New([]string{"2026-12-25"})
	if cal.IsBusinessDay(day("2026-12-25")) {
		t.Error("holiday should not be a business day")
	}
	if cal.IsBusinessDay(day("2026-12-26")) {
		t.Error("saturday should not be a business day")
	}
	if !cal.IsBusinessDay(day("2026-12-24")) {
		t.Error("thursday should be a business day")
	}
}
