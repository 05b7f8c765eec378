package pkg

import (
	lop "github.com/samber/lo/parallel"
)

// BuildDataset computes one row per country of the snapshot, in snapshot order.
func BuildDataset(snapshot *SourceSnapshot) VaccinationDataset {
	rows := lop.Map(snapshot.Codes, func(isoCode string, _ int) DatasetRow {
		record := ExtractByCountry(isoCode, snapshot, VaccinationFields...)
		percentages, fallback := EvaluatePercentages(record)
		return DatasetRow{
			ISOCode:          isoCode,
			PercentageRecord: percentages,
			Fallback:         fallback,
		}
	})
	return VaccinationDataset{Rows: rows}
}

func (dataset VaccinationDataset) Len() int {
	return len(dataset.Rows)
}

func (dataset VaccinationDataset) Codes() []string {
	codes := make([]string, 0, len(dataset.Rows))
	for _, row := range dataset.Rows {
		codes = append(codes, row.ISOCode)
	}
	return codes
}

func (dataset VaccinationDataset) Lookup(isoCode string) (PercentageRecord, bool) {
	for _, row := range dataset.Rows {
		if row.ISOCode == isoCode {
			return row.PercentageRecord, true
		}
	}
	return PercentageRecord{}, false
}

// FallbackCount returns how many rows were zeroed, by reason.
func (dataset VaccinationDataset) FallbackCount() map[Fallback]int {
	counts := make(map[Fallback]int)
	for _, row := range dataset.Rows {
		if row.Fallback != FallbackNone {
			counts[row.Fallback]++
		}
	}
	return counts
}
