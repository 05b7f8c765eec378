package pkg

import (
	"time"
)

const (
	TotalVaccinationsField     = "total_vaccinations"
	PeopleVaccinatedField      = "people_vaccinated"
	PeopleFullyVaccinatedField = "people_fully_vaccinated"
)

// VaccinationFields are the snapshot fields the percentages are derived from.
var VaccinationFields = []string{
	TotalVaccinationsField,
	PeopleVaccinatedField,
	PeopleFullyVaccinatedField,
}

// CountryRecord holds the named fields of one country as published upstream.
type CountryRecord map[string]interface{}

// SourceSnapshot is one fetched upstream document. Codes keeps the document order.
type SourceSnapshot struct {
	Codes   []string
	Records map[string]CountryRecord
}

type PercentageRecord struct {
	Vaccinated      float64 `json:"vaccinated"`
	FullyVaccinated float64 `json:"fully_vaccinated"`
}

type DatasetRow struct {
	ISOCode string `json:"iso_code"`
	PercentageRecord
	Fallback Fallback `json:"-"`
}

type VaccinationDataset struct {
	Rows []DatasetRow
}

// PersistedRow is a dataset row stamped with its batch capture time.
type PersistedRow struct {
	ISOCode         string    `gorm:"column:iso_code;type:text;index" json:"iso_code" structs:"iso_code"`
	Date            time.Time `gorm:"column:date" json:"date" structs:"date,omitnested"`
	Vaccinated      float64   `gorm:"column:vaccinated;type:double precision" json:"vaccinated" structs:"vaccinated"`
	FullyVaccinated float64   `gorm:"column:fully_vaccinated;type:double precision" json:"fully_vaccinated" structs:"fully_vaccinated"`
}

func (PersistedRow) TableName() string {
	return "percentages"
}

type ApiMetadata struct {
	URL             string
	CountriesFilter []string
	Timeout         time.Duration
	Retries         uint64
	RetryDelay      time.Duration
}
