// Package schedule expands recurring transactions into concrete dated
// schedule instances.
//
// Recurrence evaluation uses a strategy per frequency: fixed-day-step rules
// (daily, weekly, biweekly) and calendar-month-step rules (monthly,
// quarterly, yearly). Month-step rules clamp the anchor day to the last day
// of shorter months, so a schedule anchored on the 31st occurs on February
// 28th. Evaluators generate occurrences directly inside the requested range
// instead of iterating from the anchor, so projection cost is proportional
// to the number of occurrences produced.
package schedule

import (
	"fmt"
	"time"

	"budget-reconciliation-service/internal/models"
)

// RuleEvaluator enumerates the occurrence dates of a recurrence rule.
type RuleEvaluator interface {
	// Occurrences returns every occurrence of the rule anchored at anchor,
	// stepped by interval periods, that falls inside r. Dates before the
	// anchor day are never produced. The result is ascending and
	// duplicate-free.
	Occurrences(anchor time.Time, interval int, r models.DateRange) []time.Time
}

// dayStepEvaluator implements rules whose period is a fixed number of days.
type dayStepEvaluator struct {
	days int
}

func (e dayStepEvaluator) Occurrences(anchor time.Time, interval int, r models.DateRange) []time.Time {
	step := e.days * interval
	start := models.Date(anchor)

	if r.Start.After(start) {
		// Jump straight to the first occurrence at or after the range start.
		diff := models.DaysBetween(r.Start, start)
		k := (diff + step - 1) / step
		start = start.AddDate(0, 0, k*step)
	}

	var out []time.Time
	for d := start; !d.After(r.End); d = d.AddDate(0, 0, step) {
		out = append(out, d)
	}
	return out
}

// monthStepEvaluator implements rules whose period is a number of calendar
// months. The anchor's day-of-month is preserved, clamped to each target
// month's length.
type monthStepEvaluator struct {
	months int
}

func (e monthStepEvaluator) Occurrences(anchor time.Time, interval int, r models.DateRange) []time.Time {
	step := e.months * interval
	a := models.Date(anchor)
	anchorMonths := a.Year()*12 + int(a.Month()) - 1

	// Estimate the first step at or near the range start, then back up one
	// step so day clamping cannot skip an occurrence on the boundary.
	startMonths := r.Start.Year()*12 + int(r.Start.Month()) - 1
	n := (startMonths - anchorMonths) / step
	if n > 0 {
		n--
	}
	if n < 0 {
		n = 0
	}

	var out []time.Time
	for {
		d := monthOccurrence(anchorMonths+n*step, a.Day())
		if d.After(r.End) {
			return out
		}
		if !d.Before(r.Start) && !d.Before(a) {
			out = append(out, d)
		}
		n++
	}
}

// monthOccurrence builds the occurrence date for an absolute month index
// (year*12 + month-1), clamping day to the month length.
func monthOccurrence(months, day int) time.Time {
	year := months / 12
	month := time.Month(months%12 + 1)

	if last := lastDayOfMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ruleEvaluators maps frequencies to their evaluation strategies.
var ruleEvaluators = map[models.Frequency]RuleEvaluator{
	models.FrequencyDaily:     dayStepEvaluator{days: 1},
	models.FrequencyWeekly:    dayStepEvaluator{days: 7},
	models.FrequencyBiweekly:  dayStepEvaluator{days: 14},
	models.FrequencyMonthly:   monthStepEvaluator{months: 1},
	models.FrequencyQuarterly: monthStepEvaluator{months: 3},
	models.FrequencyYearly:    monthStepEvaluator{months: 12},
}

// GetRuleEvaluator returns the evaluator for a frequency.
func GetRuleEvaluator(frequency models.Frequency) (RuleEvaluator, error) {
	evaluator, ok := ruleEvaluators[frequency]
	if !ok {
		return nil, fmt.Errorf("unsupported frequency: %s", frequency)
	}
	return evaluator, nil
}

// RegisterRuleEvaluator registers a custom evaluator for a frequency,
// allowing new rule kinds without touching the projector.
func RegisterRuleEvaluator(frequency models.Frequency, evaluator RuleEvaluator) {
	ruleEvaluators[frequency] = evaluator
}
