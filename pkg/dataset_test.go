package pkg

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDataset(t *testing.T) {
	snapshot, err := ParseSnapshot([]byte(`{
		"AAA": {"total_vaccinations": 200, "people_vaccinated": 150, "people_fully_vaccinated": 100},
		"BBB": {}
	}`))
	require.NoError(t, err)

	dataset := BuildDataset(snapshot)

	assert.Equal(t, []DatasetRow{
		{ISOCode: "AAA", PercentageRecord: PercentageRecord{Vaccinated: 75, FullyVaccinated: 50}},
		{ISOCode: "BBB", PercentageRecord: PercentageRecord{}, Fallback: FallbackMissingField},
	}, dataset.Rows)
	assert.Equal(t, map[Fallback]int{FallbackMissingField: 1}, dataset.FallbackCount())
}

func TestBuildDatasetOneRowPerCountry(t *testing.T) {
	snapshot := &SourceSnapshot{Records: map[string]CountryRecord{}}
	for i := 0; i < 500; i++ {
		isoCode := fmt.Sprintf("C%03d", i)
		snapshot.Codes = append(snapshot.Codes, isoCode)
		switch i % 4 {
		case 0:
			snapshot.Records[isoCode] = vaccinationRecord(float64(i+1), float64(i), 0.0)
		case 1:
			snapshot.Records[isoCode] = vaccinationRecord(0.0, 1.0, 1.0)
		case 2:
			snapshot.Records[isoCode] = CountryRecord{"location": isoCode}
		default:
			snapshot.Records[isoCode] = vaccinationRecord(10.0, "x", 1.0)
		}
	}

	dataset := BuildDataset(snapshot)

	require.Equal(t, len(snapshot.Codes), dataset.Len())
	assert.Equal(t, snapshot.Codes, dataset.Codes())
	counts := dataset.FallbackCount()
	assert.Equal(t, 125, counts[FallbackZeroTotal])
	assert.Equal(t, 125, counts[FallbackMissingField])
	assert.Equal(t, 125, counts[FallbackInvalidType])
	assert.Equal(t, 125, countComputed(dataset))

	percentages, ok := dataset.Lookup("C004")
	require.True(t, ok)
	assert.Equal(t, PercentageRecord{Vaccinated: 80, FullyVaccinated: 0}, percentages)
	_, ok = dataset.Lookup("ZZZ")
	assert.False(t, ok)
}

func TestBuildDatasetEmptySnapshot(t *testing.T) {
	snapshot, err := ParseSnapshot([]byte(`{}`))
	require.NoError(t, err)

	dataset := BuildDataset(snapshot)

	assert.Equal(t, 0, dataset.Len())
	assert.Empty(t, dataset.Codes())
}

func TestGroupByKey(t *testing.T) {
	rows := []PersistedRow{
		{ISOCode: "ISR", Vaccinated: 1},
		{ISOCode: "USA", Vaccinated: 2},
		{ISOCode: "ISR", Vaccinated: 3},
	}

	grouped := GroupByKey(rows)

	assert.Len(t, grouped, 2)
	assert.Equal(t, 3.0, grouped["ISR"].Vaccinated)
	assert.Equal(t, 2.0, grouped["USA"].Vaccinated)
}
