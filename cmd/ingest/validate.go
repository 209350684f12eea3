package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"strategy-backtester/services/marketdata"
)

// ValidationReport lists problems found in one file's rows.
type ValidationReport struct {
	Rows       int
	Violations []string
	Gaps       []time.Time
}

func (r ValidationReport) OK() bool { return len(r.Violations) == 0 }

// ValidationSuite runs acceptance checks on parsed rows before they are
// written.
type ValidationSuite struct {
	MaxGapDays int
}

func NewValidationSuite(maxGapDays int) *ValidationSuite {
	return &ValidationSuite{MaxGapDays: maxGapDays}
}

// Run checks every row. Missing close and gaps are reported but only
// invariant and ordering violations fail the file.
func (v *ValidationSuite) Run(raw []marketdata.RawBar) ValidationReport {
	rep := ValidationReport{Rows: len(raw)}
	rep.Violations = append(rep.Violations, v.checkInvariants(raw)...)
	rep.Violations = append(rep.Violations, v.checkOrdering(raw)...)
	rep.Gaps = marketdata.DetectGaps(marketdata.Normalize(raw), v.MaxGapDays)
	return rep
}

// checkInvariants verifies low <= open,close <= high and non-negative
// volume where the values are present.
func (v *ValidationSuite) checkInvariants(raw []marketdata.RawBar) []string {
	var out []string
	for _, r := range raw {
		day := r.Date.Format("2006-01-02")
		if r.Volume.Valid && r.Volume.Decimal.IsNegative() {
			out = append(out, fmt.Sprintf("%s: negative volume %s", day, r.Volume.Decimal))
		}
		if !r.High.Valid || !r.Low.Valid {
			continue
		}
		if r.Low.Decimal.GreaterThan(r.High.Decimal) {
			out = append(out, fmt.Sprintf("%s: low %s above high %s", day, r.Low.Decimal, r.High.Decimal))
			continue
		}
		for _, p := range []struct {
			name string
			val  decimal.NullDecimal
		}{{"open", r.Open}, {"close", r.Close}} {
			if !p.val.Valid {
				continue
			}
			if p.val.Decimal.LessThan(r.Low.Decimal) || p.val.Decimal.GreaterThan(r.High.Decimal) {
				out = append(out, fmt.Sprintf("%s: %s %s outside [%s, %s]", day, p.name, p.val.Decimal, r.Low.Decimal, r.High.Decimal))
			}
		}
	}
	return out
}

// checkOrdering flags duplicate dates. Out-of-order rows are tolerated;
// Normalize sorts them.
func (v *ValidationSuite) checkOrdering(raw []marketdata.RawBar) []string {
	var out []string
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		day := r.Date.Format("2006-01-02")
		if seen[day] {
			out = append(out, fmt.Sprintf("%s: duplicate date", day))
		}
		seen[day] = true
	}
	return out
}
