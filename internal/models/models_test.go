package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		input   string
		want    Frequency
		wantErr bool
	}{
		{"MONTHLY", FrequencyMonthly, false},
		{"monthly", FrequencyMonthly, false},
		{"Biweekly", FrequencyBiweekly, false},
		{"QUARTERLY", FrequencyQuarterly, false},
		{"fortnightly", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFrequency(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFrequency(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFrequency(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDateNormalization(t *testing.T) {
	in := time.Date(2026, 1, 15, 17, 45, 12, 999, time.FixedZone("X", 3600))
	got := Date(in)
	if got.Hour() != 0 || got.Minute() != 0 || got.Location() != time.UTC {
		t.Errorf("Date() = %v, want midnight UTC", got)
	}
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name string
		a, b time.Time
		want int
	}{
		{"same day", date(2026, 1, 15), date(2026, 1, 15), 0},
		{"one after", date(2026, 1, 16), date(2026, 1, 15), 1},
		{"one before", date(2026, 1, 14), date(2026, 1, 15), -1},
		{"across month", date(2026, 2, 2), date(2026, 1, 30), 3},
		{"ignores time of day", date(2026, 1, 16).Add(23 * time.Hour), date(2026, 1, 15), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysBetween(tt.a, tt.b); got != tt.want {
				t.Errorf("DaysBetween() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDateRangeValidation(t *testing.T) {
	if _, err := NewDateRange(date(2026, 2, 1), date(2026, 1, 1)); err == nil {
		t.Error("expected error for inverted range")
	}
	r, err := NewDateRange(date(2026, 1, 1), date(2026, 1, 31))
	if err != nil {
		t.Fatalf("NewDateRange() error = %v", err)
	}
	if !r.Contains(date(2026, 1, 1)) || !r.Contains(date(2026, 1, 31)) {
		t.Error("range should contain its boundaries")
	}
	if r.Contains(date(2026, 2, 1)) {
		t.Error("range should not contain dates past the end")
	}
	if r.Days() != 31 {
		t.Errorf("Days() = %d, want 31", r.Days())
	}
}

func TestTransactionValidate(t *testing.T) {
	valid := NewTransaction("tx-1", date(2026, 1, 16), decimal.RequireFromString("-15.99"), "USD", "NETFLIX.COM")
	if err := valid.Validate(); err != nil {
		t.Errorf("valid transaction: %v", err)
	}

	missing := NewTransaction("", date(2026, 1, 16), decimal.Zero, "USD", "x")
	if err := missing.Validate(); err == nil {
		t.Error("expected error for missing ID")
	}
}

func TestRecurringTransactionValidate(t *testing.T) {
	base := RecurringTransaction{
		ID:          "rec-1",
		Description: "Netflix",
		Amount:      decimal.RequireFromString("-15.99"),
		Currency:    "USD",
		Frequency:   FrequencyMonthly,
		Interval:    1,
		AnchorDate:  date(2026, 1, 15),
		StartDate:   date(2026, 1, 1),
		Active:      true,
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("valid recurring transaction: %v", err)
	}

	badFreq := base
	badFreq.Frequency = "SOMETIMES"
	if err := badFreq.Validate(); err == nil {
		t.Error("expected error for unknown frequency")
	}

	end := date(2025, 12, 1)
	badBounds := base
	badBounds.EndDate = &end
	if err := badBounds.Validate(); err == nil {
		t.Error("expected error for end date before start date")
	}
}

func TestScheduleExceptionValidate(t *testing.T) {
	skip := ScheduleException{Date: date(2026, 2, 15), Type: ExceptionTypeSkip}
	if err := skip.Validate(); err != nil {
		t.Errorf("skip exception: %v", err)
	}

	emptyModify := ScheduleException{Date: date(2026, 2, 15), Type: ExceptionTypeModify}
	if err := emptyModify.Validate(); err == nil {
		t.Error("modify exception must override amount or description")
	}

	amount := decimal.RequireFromString("-17.99")
	modify := ScheduleException{Date: date(2026, 2, 15), Type: ExceptionTypeModify, Amount: &amount}
	if err := modify.Validate(); err != nil {
		t.Errorf("modify exception: %v", err)
	}
}

func TestExceptionOn(t *testing.T) {
	rec := RecurringTransaction{
		Exceptions: []ScheduleException{
			{Date: date(2026, 2, 15), Type: ExceptionTypeSkip},
		},
	}

	if _, ok := rec.ExceptionOn(date(2026, 2, 15)); !ok {
		t.Error("expected exception on its date")
	}
	if _, ok := rec.ExceptionOn(time.Date(2026, 2, 15, 18, 0, 0, 0, time.UTC)); !ok {
		t.Error("exception lookup should ignore time of day")
	}
	if _, ok := rec.ExceptionOn(date(2026, 3, 15)); ok {
		t.Error("unexpected exception on another date")
	}
}

func TestEffectiveInterval(t *testing.T) {
	rec := RecurringTransaction{}
	if got := rec.EffectiveInterval(); got != 1 {
		t.Errorf("EffectiveInterval() = %d, want 1 for zero interval", got)
	}
	rec.Interval = 3
	if got := rec.EffectiveInterval(); got != 3 {
		t.Errorf("EffectiveInterval() = %d, want 3", got)
	}
}
