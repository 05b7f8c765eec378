package pkg

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

type missing struct{}

func (missing) String() string {
	return "<missing>"
}

// Missing marks a requested field that the snapshot does not have.
var Missing = missing{}

// IsMissing reports whether v is the Missing marker.
func IsMissing(v interface{}) bool {
	_, ok := v.(missing)
	return ok
}

// ParseSnapshot decodes an upstream document keyed by country code. Country values
// that are not objects are kept as empty records.
func ParseSnapshot(raw []byte) (*SourceSnapshot, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("invalid json document")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("unexpected document type %s, expected an object", doc.Type)
	}
	snapshot := &SourceSnapshot{
		Records: make(map[string]CountryRecord),
	}
	doc.ForEach(func(key, value gjson.Result) bool {
		isoCode := key.String()
		record := CountryRecord{}
		if fields, ok := value.Value().(map[string]interface{}); ok {
			record = fields
		}
		if _, seen := snapshot.Records[isoCode]; !seen {
			snapshot.Codes = append(snapshot.Codes, isoCode)
		}
		snapshot.Records[isoCode] = record
		return true
	})
	return snapshot, nil
}

// ExtractByCountry returns the record of isoCode. With fields, it returns a new record
// holding only those fields, set to Missing when the country or the field is absent.
func ExtractByCountry(isoCode string, snapshot *SourceSnapshot, fields ...string) CountryRecord {
	record := snapshot.Records[isoCode]
	if len(fields) == 0 {
		return record
	}
	extracted := make(CountryRecord, len(fields))
	for _, field := range fields {
		if value, ok := record[field]; ok {
			extracted[field] = value
		} else {
			extracted[field] = Missing
		}
	}
	return extracted
}

// FilterCountries returns a snapshot restricted to codes, keeping document order.
// An empty filter returns the snapshot itself.
func (snapshot *SourceSnapshot) FilterCountries(codes []string) *SourceSnapshot {
	if len(codes) == 0 {
		return snapshot
	}
	filtered := &SourceSnapshot{
		Records: make(map[string]CountryRecord, len(codes)),
	}
	for _, isoCode := range snapshot.Codes {
		if IsStringInlist(codes, isoCode) {
			filtered.Codes = append(filtered.Codes, isoCode)
			filtered.Records[isoCode] = snapshot.Records[isoCode]
		}
	}
	return filtered
}
