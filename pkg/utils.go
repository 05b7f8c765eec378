package pkg

// GroupByKey indexes rows by country code. Later rows win.
func GroupByKey(rows []PersistedRow) map[string]PersistedRow {
	result := make(map[string]PersistedRow, len(rows))
	for _, row := range rows {
		result[row.ISOCode] = row
	}
	return result
}

func IsStringInlist(items []string, val string) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if item == val {
			return true
		}
	}
	return false
}
