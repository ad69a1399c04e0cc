package cli

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"algotrader/internal/models"
)

// loadBarsCSV reads bars from a CSV file with the columns
// timestamp,open,high,low,close,volume. Timestamps are RFC3339 or unix
// seconds; a header row is skipped.
func loadBarsCSV(path, symbol string, timeframe models.Timeframe) ([]models.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var bars []models.Bar
	for i, rec := range records {
		if len(rec) < 6 {
			return nil, fmt.Errorf("%s line %d: expected 6 columns, got %d", path, i+1, len(rec))
		}
		ts, err := parseTimestamp(rec[0])
		if err != nil {
			if i == 0 {
				continue // header row
			}
			return nil, fmt.Errorf("%s line %d: %w", path, i+1, err)
		}
		vals := make([]float64, 5)
		for j := 1; j < 6; j++ {
			v, err := strconv.ParseFloat(rec[j], 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d column %d: %w", path, i+1, j+1, err)
			}
			vals[j-1] = v
		}
		bars = append(bars, models.Bar{
			Symbol:    symbol,
			Timeframe: timeframe,
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: no bars", path)
	}
	return bars, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
