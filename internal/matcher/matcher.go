package matcher

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"budget-reconciliation-service/internal/models"
	"budget-reconciliation-service/pkg/logger"
)

// MatchCandidate is a scored pairing between a transaction and one expected
// schedule instance. Candidates are transient: the orchestrator turns the
// winners into persisted reconciliation matches.
type MatchCandidate struct {
	RecurringTransactionID string
	InstanceDate           time.Time
	ConfidenceScore        float64
	AmountVariance         decimal.Decimal
	DateOffsetDays         int
	DescriptionSimilarity  float64
}

// ConfidenceLevel returns the display band for the candidate's score.
func (c MatchCandidate) ConfidenceLevel() models.ConfidenceLevel {
	return models.ConfidenceLevelFor(c.ConfidenceScore)
}

// Matcher scores a transaction against candidate schedule instances using a
// weighted blend of date proximity, amount proximity, and description
// similarity.
type Matcher struct {
	tolerances MatchingTolerances
	logger     logger.Logger
}

// NewMatcher creates a matcher after validating the tolerances.
func NewMatcher(tolerances MatchingTolerances) (*Matcher, error) {
	if err := tolerances.Validate(); err != nil {
		return nil, err
	}
	return &Matcher{
		tolerances: tolerances,
		logger:     logger.GetGlobalLogger().WithComponent("matcher"),
	}, nil
}

// Tolerances returns the matcher's tolerance configuration.
func (m *Matcher) Tolerances() MatchingTolerances {
	return m.tolerances
}

// FindMatches scores the transaction against every instance and returns the
// surviving candidates sorted by descending confidence. Ties break on the
// smaller absolute date offset, then the smaller absolute amount variance.
// Instances in another currency, outside the date or amount tolerances, or
// below the description similarity threshold are excluded; the similarity
// threshold is waived when date and amount agree exactly, since the
// numeric evidence alone already identifies the pairing.
func (m *Matcher) FindMatches(tx *models.Transaction, instances []models.ScheduleInstance) []MatchCandidate {
	var candidates []MatchCandidate
	for _, inst := range instances {
		if candidate, ok := m.score(tx, inst); ok {
			candidates = append(candidates, candidate)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.ConfidenceScore != b.ConfidenceScore {
			return a.ConfidenceScore > b.ConfidenceScore
		}
		if ao, bo := abs(a.DateOffsetDays), abs(b.DateOffsetDays); ao != bo {
			return ao < bo
		}
		return a.AmountVariance.Abs().LessThan(b.AmountVariance.Abs())
	})

	m.logger.WithFields(logger.Fields{
		"transaction": tx.ID,
		"instances":   len(instances),
		"candidates":  len(candidates),
	}).Debug("Scored transaction against schedule instances")

	return candidates
}

func (m *Matcher) score(tx *models.Transaction, inst models.ScheduleInstance) (MatchCandidate, bool) {
	if inst.IsSkipped {
		return MatchCandidate{}, false
	}
	if tx.Currency != inst.Currency {
		return MatchCandidate{}, false
	}

	offset := models.DaysBetween(tx.Date, inst.InstanceDate)
	if abs(offset) > m.tolerances.DateToleranceDays {
		return MatchCandidate{}, false
	}

	variance := inst.ExpectedAmount.Sub(tx.Amount)
	amountTolerance := m.tolerances.AmountToleranceFor(inst.ExpectedAmount)
	if variance.Abs().GreaterThan(amountTolerance) {
		return MatchCandidate{}, false
	}

	similarity := DescriptionSimilarity(tx.Description, inst.Description)
	exact := offset == 0 && variance.IsZero()
	if similarity < m.tolerances.DescriptionSimilarityThreshold && !exact {
		return MatchCandidate{}, false
	}

	return MatchCandidate{
		RecurringTransactionID: inst.RecurringTransactionID,
		InstanceDate:           inst.InstanceDate,
		ConfidenceScore:        m.confidence(offset, variance, amountTolerance, similarity),
		AmountVariance:         variance,
		DateOffsetDays:         offset,
		DescriptionSimilarity:  similarity,
	}, true
}

// confidence blends the per-factor proximities. Each proximity decays
// linearly from 1 at an exact match toward 0 at the tolerance boundary; the
// date term divides by tolerance+1 so a candidate on the boundary still
// scores above zero rather than contributing nothing.
func (m *Matcher) confidence(offsetDays int, variance, amountTolerance decimal.Decimal, similarity float64) float64 {
	dateProximity := 1.0 - float64(abs(offsetDays))/float64(m.tolerances.DateToleranceDays+1)

	amountProximity := 1.0
	if variance.IsZero() {
		amountProximity = 1.0
	} else if amountTolerance.IsPositive() {
		ratio, _ := variance.Abs().Div(amountTolerance).Float64()
		amountProximity = clamp01(1.0 - ratio)
	} else {
		amountProximity = 0.0
	}

	score := m.tolerances.AmountWeight*amountProximity +
		m.tolerances.DateWeight*dateProximity +
		m.tolerances.DescriptionWeight*similarity
	return clamp01(score)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
