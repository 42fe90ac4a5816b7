package schedule

import (
	"sort"
	"time"

	"budget-reconciliation-service/internal/models"
	"budget-reconciliation-service/pkg/logger"
)

// Projector expands recurring transactions into the concrete schedule
// instances expected within a date range. Projection is a pure function of
// its inputs: the same recurring transactions and range always produce the
// same instances.
type Projector struct {
	logger logger.Logger
}

// NewProjector creates a schedule projector.
func NewProjector() *Projector {
	return &Projector{
		logger: logger.GetGlobalLogger().WithComponent("projector"),
	}
}

// Project returns the expected schedule instances for each recurring
// transaction, keyed by instance date. Inactive recurring transactions
// contribute nothing, occurrences are bounded by each transaction's start
// and end dates, and dates covered by a skip exception are removed from the
// result. Modify exceptions override the instance's amount or description
// for that date only.
func (p *Projector) Project(recurring []*models.RecurringTransaction, r models.DateRange) (map[time.Time][]models.ScheduleInstance, error) {
	return p.project(recurring, r, false)
}

// ProjectIncludingSkipped behaves like Project but keeps instances whose
// date is covered by a skip exception, flagged via IsSkipped. Status
// reporting uses this to list skipped occurrences without counting them as
// missing.
func (p *Projector) ProjectIncludingSkipped(recurring []*models.RecurringTransaction, r models.DateRange) (map[time.Time][]models.ScheduleInstance, error) {
	return p.project(recurring, r, true)
}

func (p *Projector) project(recurring []*models.RecurringTransaction, r models.DateRange, includeSkipped bool) (map[time.Time][]models.ScheduleInstance, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	result := make(map[time.Time][]models.ScheduleInstance)
	for _, rec := range recurring {
		if rec == nil || !rec.Active {
			continue
		}
		instances, err := p.projectOne(rec, r, includeSkipped)
		if err != nil {
			return nil, err
		}
		for _, inst := range instances {
			result[inst.InstanceDate] = append(result[inst.InstanceDate], inst)
		}
	}

	p.logger.WithFields(logger.Fields{
		"recurring": len(recurring),
		"dates":     len(result),
		"start":     r.Start.Format("2006-01-02"),
		"end":       r.End.Format("2006-01-02"),
	}).Debug("Projected recurring schedule")

	return result, nil
}

func (p *Projector) projectOne(rec *models.RecurringTransaction, r models.DateRange, includeSkipped bool) ([]models.ScheduleInstance, error) {
	effective, ok := activeRange(rec, r)
	if !ok {
		return nil, nil
	}

	evaluator, err := GetRuleEvaluator(rec.Frequency)
	if err != nil {
		return nil, err
	}

	var instances []models.ScheduleInstance
	seen := make(map[time.Time]bool)
	for _, date := range evaluator.Occurrences(rec.AnchorDate, rec.EffectiveInterval(), effective) {
		if seen[date] {
			continue
		}
		seen[date] = true

		inst := models.ScheduleInstance{
			RecurringTransactionID: rec.ID,
			InstanceDate:           date,
			ExpectedAmount:         rec.Amount,
			Currency:               rec.Currency,
			Description:            rec.Description,
		}

		if exc, ok := rec.ExceptionOn(date); ok {
			switch exc.Type {
			case models.ExceptionTypeSkip:
				if !includeSkipped {
					continue
				}
				inst.IsSkipped = true
			case models.ExceptionTypeModify:
				if exc.Amount != nil {
					inst.ExpectedAmount = *exc.Amount
				}
				if exc.Description != nil {
					inst.Description = *exc.Description
				}
			}
		}

		instances = append(instances, inst)
	}
	return instances, nil
}

// activeRange intersects the requested range with the recurring
// transaction's start and end dates. The second return is false when the
// intersection is empty.
func activeRange(rec *models.RecurringTransaction, r models.DateRange) (models.DateRange, bool) {
	start := r.Start
	if s := models.Date(rec.StartDate); s.After(start) {
		start = s
	}
	end := r.End
	if rec.EndDate != nil {
		if e := models.Date(*rec.EndDate); e.Before(end) {
			end = e
		}
	}
	if start.After(end) {
		return models.DateRange{}, false
	}
	return models.DateRange{Start: start, End: end}, true
}

// Flatten collapses a projection into a single slice ordered by instance
// date, then recurring transaction ID.
func Flatten(projection map[time.Time][]models.ScheduleInstance) []models.ScheduleInstance {
	var out []models.ScheduleInstance
	for _, instances := range projection {
		out = append(out, instances...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].InstanceDate.Equal(out[j].InstanceDate) {
			return out[i].InstanceDate.Before(out[j].InstanceDate)
		}
		return out[i].RecurringTransactionID < out[j].RecurringTransactionID
	})
	return out
}
