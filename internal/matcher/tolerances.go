// Package matcher scores imported transactions against expected schedule
// instances to produce confidence-ranked match candidates.
package matcher

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"budget-reconciliation-service/pkg/errors"
)

// MatchingTolerances bounds how far a transaction may deviate from an
// expected instance and still be considered a candidate, and how the
// per-factor proximities blend into a single confidence score.
type MatchingTolerances struct {
	// DateToleranceDays is the maximum absolute day offset between the
	// transaction date and the instance date. The boundary is inclusive.
	DateToleranceDays int

	// AmountTolerancePercent is a fraction of the expected amount
	// (0.01 means 1%). The effective amount tolerance is the larger of the
	// percentage and absolute bounds.
	AmountTolerancePercent decimal.Decimal

	// AmountToleranceAbsolute is a fixed currency-unit bound on amount
	// variance.
	AmountToleranceAbsolute decimal.Decimal

	// DescriptionSimilarityThreshold excludes candidates whose description
	// similarity falls below it, unless date and amount match exactly.
	DescriptionSimilarityThreshold float64

	// AutoMatchThreshold is the confidence score at or above which a match
	// is accepted without review.
	AutoMatchThreshold float64

	// Confidence blend weights. They must sum to 1.
	AmountWeight      float64
	DateWeight        float64
	DescriptionWeight float64
}

// DefaultTolerances returns the tolerance set used when the caller supplies
// none. The weights favor exact amount and date agreement, with description
// similarity as a smaller corrective term.
func DefaultTolerances() MatchingTolerances {
	return MatchingTolerances{
		DateToleranceDays:              3,
		AmountTolerancePercent:         decimal.RequireFromString("0.01"),
		AmountToleranceAbsolute:        decimal.RequireFromString("1.00"),
		DescriptionSimilarityThreshold: 0.6,
		AutoMatchThreshold:             0.9,
		AmountWeight:                   0.45,
		DateWeight:                     0.35,
		DescriptionWeight:              0.20,
	}
}

// StrictTolerances returns a tolerance set that only admits near-exact
// candidates.
func StrictTolerances() MatchingTolerances {
	t := DefaultTolerances()
	t.DateToleranceDays = 1
	t.AmountTolerancePercent = decimal.Zero
	t.AmountToleranceAbsolute = decimal.RequireFromString("0.01")
	t.DescriptionSimilarityThreshold = 0.8
	t.AutoMatchThreshold = 0.95
	return t
}

// Validate checks that the tolerances describe a usable configuration.
func (t MatchingTolerances) Validate() error {
	if t.DateToleranceDays < 0 {
		return errors.ValidationError(errors.CodeInvalidTolerance, "date_tolerance_days", fmt.Sprintf("%d", t.DateToleranceDays))
	}
	if t.AmountTolerancePercent.IsNegative() || t.AmountTolerancePercent.GreaterThan(decimal.NewFromInt(1)) {
		return errors.ValidationError(errors.CodeInvalidTolerance, "amount_tolerance_percent", t.AmountTolerancePercent.String())
	}
	if t.AmountToleranceAbsolute.IsNegative() {
		return errors.ValidationError(errors.CodeInvalidTolerance, "amount_tolerance_absolute", t.AmountToleranceAbsolute.String())
	}
	if t.DescriptionSimilarityThreshold < 0 || t.DescriptionSimilarityThreshold > 1 {
		return errors.ValidationError(errors.CodeInvalidTolerance, "description_similarity_threshold", fmt.Sprintf("%.4f", t.DescriptionSimilarityThreshold))
	}
	if t.AutoMatchThreshold < 0 || t.AutoMatchThreshold > 1 {
		return errors.ValidationError(errors.CodeInvalidTolerance, "auto_match_threshold", fmt.Sprintf("%.4f", t.AutoMatchThreshold))
	}
	for name, w := range map[string]float64{
		"amount_weight":      t.AmountWeight,
		"date_weight":        t.DateWeight,
		"description_weight": t.DescriptionWeight,
	} {
		if w < 0 || w > 1 {
			return errors.ValidationError(errors.CodeInvalidTolerance, name, fmt.Sprintf("%.4f", w))
		}
	}
	if sum := t.AmountWeight + t.DateWeight + t.DescriptionWeight; math.Abs(sum-1) > 1e-6 {
		return errors.ValidationError(errors.CodeInvalidTolerance, "weights", fmt.Sprintf("sum %.4f, must be 1", sum))
	}
	return nil
}

// AmountToleranceFor returns the effective amount bound for an expected
// amount: the larger of the absolute tolerance and the percentage of the
// expected magnitude.
func (t MatchingTolerances) AmountToleranceFor(expected decimal.Decimal) decimal.Decimal {
	pct := t.AmountTolerancePercent.Mul(expected.Abs())
	if pct.GreaterThan(t.AmountToleranceAbsolute) {
		return pct
	}
	return t.AmountToleranceAbsolute
}

// Clone returns a copy of the tolerances.
func (t MatchingTolerances) Clone() MatchingTolerances {
	return t
}
