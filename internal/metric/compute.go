// Package metric turns declarative numerator/denominator metric definitions
// into computed count, sum, and percentage values over a record batch.
package metric

import (
	"math"

	"github.com/okovacs/pulseboard/internal/dataset"
	"github.com/okovacs/pulseboard/internal/filter"
)

// record status values recognized by the inclusion toggles
const (
	statusNoShow      = "no_show"
	statusCanceled    = "canceled"
	statusRescheduled = "rescheduled"
	pcfStatusOverdue  = "overdue"
)

// Compute evaluates a metric over a record batch. The batch is immutable
// input and nothing is cached here; callers that memoize must key on the
// metric id plus a scope fingerprint.
func Compute(def *dataset.MetricDefinition, records []dataset.Record) Value {
	scoped := applyScope(def, records)

	switch def.FormulaType {
	case dataset.MetricSum:
		sum := sumField(filter.Apply(scoped, def.NumeratorConditions), def.NumeratorField)
		return Value{
			FormattedValue: formatSum(sum, def.Currency),
			Breakdown:      Breakdown{Numerator: sum},
		}

	case dataset.MetricPercentage:
		numerator := float64(len(filter.Apply(scoped, def.NumeratorConditions)))
		denominator := float64(len(filter.Apply(scoped, def.DenominatorConditions)))

		var pct float64
		if denominator > 0 {
			pct = math.Round(numerator / denominator * 100)
		}

		return Value{
			FormattedValue: formatPercent(pct),
			Breakdown:      Breakdown{Numerator: numerator, Denominator: &denominator},
		}

	default: // count
		numerator := float64(len(filter.Apply(scoped, def.NumeratorConditions)))
		return Value{
			FormattedValue: formatCount(numerator),
			Breakdown:      Breakdown{Numerator: numerator},
		}
	}
}

// applyScope drops records excluded by the inclusion toggles before any
// user-defined conditions run.
func applyScope(def *dataset.MetricDefinition, records []dataset.Record) []dataset.Record {
	scoped := make([]dataset.Record, 0, len(records))
	for _, rec := range records {
		status := dataset.CoerceString(rec["status"])

		if status == statusNoShow && !def.IncludeNoShows {
			continue
		}
		if status == statusCanceled && !def.IncludeCancels {
			continue
		}
		if status == statusRescheduled && !def.IncludeReschedules {
			continue
		}
		if def.ExcludeOverduePCF && dataset.CoerceString(rec["pcf_status"]) == pcfStatusOverdue {
			continue
		}

		scoped = append(scoped, rec)
	}
	return scoped
}

// sumField totals a numeric field over records, skipping null and
// non-numeric values so one dirty row doesn't zero a widget.
func sumField(records []dataset.Record, field string) float64 {
	var total float64
	for _, rec := range records {
		v, ok := rec[field]
		if !ok || v == nil {
			continue
		}
		n, err := dataset.CoerceNumber(v)
		if err != nil {
			continue
		}
		total += n
	}
	return total
}
