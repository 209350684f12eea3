package marketdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CSVProvider reads <Dir>/<SYMBOL>.csv files with a
// date,open,high,low,close,volume header. Empty cells are missing values.
type CSVProvider struct {
	Dir string
}

func (CSVProvider) Name() string { return "csv" }

func (p CSVProvider) FetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]RawBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(p.Dir, strings.ToUpper(symbol)+".csv"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}
	return filterRange(raw, from, to), nil
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006/01/02", "01/02/2006"}

// ParseCSV reads daily rows. Columns are located by header name; a row
// whose date cannot be parsed is an error. UTF-16 exports with a BOM are
// decoded, as are UTF-8 files with or without one.
func ParseCSV(r io.Reader) ([]RawBar, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	dateCol, ok := cols["date"]
	if !ok {
		return nil, errors.New("missing date column")
	}
	if _, ok := cols["close"]; !ok {
		return nil, errors.New("missing close column")
	}

	var out []RawBar
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if dateCol >= len(rec) {
			continue
		}
		date, err := parseDate(rec[dateCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		cell := func(name string) decimal.NullDecimal {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return decimal.NullDecimal{}
			}
			return parseDecimal(rec[i])
		}
		out = append(out, RawBar{
			Date:   date,
			Open:   cell("open"),
			High:   cell("high"),
			Low:    cell("low"),
			Close:  cell("close"),
			Volume: cell("volume"),
		})
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

func parseDecimal(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "nan") {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// WriteCSV writes bars in the layout ParseCSV reads.
func WriteCSV(w io.Writer, bars []RawBar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	cell := func(d decimal.NullDecimal) string {
		if !d.Valid {
			return ""
		}
		return d.Decimal.String()
	}
	for _, b := range bars {
		if err := cw.Write([]string{
			b.Date.Format("2006-01-02"), cell(b.Open), cell(b.High), cell(b.Low), cell(b.Close), cell(b.Volume),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
