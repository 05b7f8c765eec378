package pkg

import (
	"math"
	"strconv"

	"github.com/spf13/cast"
)

// Fallback tells why a country got zero percentages instead of computed ones.
type Fallback int

const (
	FallbackNone Fallback = iota
	FallbackMissingField
	FallbackInvalidType
	FallbackZeroTotal
)

func (f Fallback) String() string {
	switch f {
	case FallbackNone:
		return "none"
	case FallbackMissingField:
		return "missing_field"
	case FallbackInvalidType:
		return "invalid_type"
	case FallbackZeroTotal:
		return "zero_total"
	default:
		return "unknown"
	}
}

// EvaluatePercentages derives both vaccination percentages from record. When a field is
// missing or not a number, or the total is zero, it returns zeros and the reason.
func EvaluatePercentages(record CountryRecord) (PercentageRecord, Fallback) {
	values := make([]float64, 0, len(VaccinationFields))
	for _, field := range VaccinationFields {
		raw, ok := record[field]
		if !ok || IsMissing(raw) {
			return PercentageRecord{}, FallbackMissingField
		}
		value, ok := toNumber(raw)
		if !ok {
			return PercentageRecord{}, FallbackInvalidType
		}
		values = append(values, value)
	}
	total, vaccinated, fullyVaccinated := values[0], values[1], values[2]
	if total == 0 {
		return PercentageRecord{}, FallbackZeroTotal
	}
	percentages := PercentageRecord{
		Vaccinated:      roundTo(vaccinated*100/total, 2),
		FullyVaccinated: roundTo(fullyVaccinated*100/total, 2),
	}
	if !isFinite(percentages.Vaccinated) || !isFinite(percentages.FullyVaccinated) {
		return PercentageRecord{}, FallbackInvalidType
	}
	return percentages, FallbackNone
}

func ComputePercentages(record CountryRecord) PercentageRecord {
	percentages, _ := EvaluatePercentages(record)
	return percentages
}

func toNumber(raw interface{}) (float64, bool) {
	switch raw.(type) {
	case nil, string, bool:
		return 0, false
	}
	value, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}

// roundTo rounds half to even on the exact binary value of x.
func roundTo(x float64, places int) float64 {
	if !isFinite(x) {
		return x
	}
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', places, 64), 64)
	if err != nil {
		return math.NaN()
	}
	return rounded
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
