// Package candles loads OHLCV history from CSV files.
package candles

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/yanun0323/errors"

	"trader/internal/schema"
)

// LoadCSV reads candles from a CSV file with a ts,open,high,low,close,volume
// header. Rows must be sorted by strictly increasing timestamp; a violation
// is an error rather than a silent reorder, since out-of-order history hides
// feed bugs.
func LoadCSV(path string) ([]schema.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open candles file")
	}
	defer f.Close()

	out, err := Read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return out, nil
}

// Read parses candles from r. The first row is a header and is skipped.
func Read(r io.Reader) ([]schema.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var out []schema.Candle
	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if line == 1 {
			continue
		}
		if len(row) < 6 {
			return nil, fmt.Errorf("line %d: want 6 columns, got %d", line, len(row))
		}
		c, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, c)
	}
	if err := schema.ValidateCandles(out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseRow(row []string) (schema.Candle, error) {
	ts, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return schema.Candle{}, fmt.Errorf("timestamp: %w", err)
	}
	vals := make([]float64, 5)
	for i, name := range []string{"open", "high", "low", "close", "volume"} {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return schema.Candle{}, fmt.Errorf("%s: %w", name, err)
		}
		vals[i] = v
	}
	return schema.Candle{
		TsMs:   ts,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}
