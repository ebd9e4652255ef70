package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"
)

// LoadCSV reads a feature table from a CSV file. The first row is the
// header. If dateVar names a column, its cells are parsed as YYYY-MM-DD
// dates and replaced with days-since-first-date so the column participates
// in the numeric table; the parsed dates are also returned for interval
// detection.
func LoadCSV(path, dateVar string) (*Table, []time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("%s: need a header row and at least one data row", path)
	}

	var dates []time.Time
	if dateVar != "" {
		col := -1
		for j, name := range records[0] {
			if name == dateVar {
				col = j
				break
			}
		}
		if col < 0 {
			return nil, nil, fmt.Errorf("%s: date column %q not found", path, dateVar)
		}
		dates = make([]time.Time, len(records)-1)
		for i := 1; i < len(records); i++ {
			d, err := time.Parse("2006-01-02", records[i][col])
			if err != nil {
				return nil, nil, fmt.Errorf("%s row %d: bad date %q: %w", path, i+1, records[i][col], err)
			}
			dates[i-1] = d
		}
		// Replace date cells with day offsets from the first date.
		for i := 1; i < len(records); i++ {
			offset := int(dates[i-1].Sub(dates[0]).Hours() / 24)
			records[i][col] = fmt.Sprintf("%d", offset)
		}
	}

	t, err := FromRecords(records)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, dates, nil
}
