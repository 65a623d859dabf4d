// Package intake parses remittance exports into payments ready to be
// recorded against representatives.
package intake

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrUnknownFormat = errors.New("no known remittance format matched")

// Record is one payment line of an export. Row is 1-based in the file.
type Record struct {
	Row                int
	RepresentativeCode string
	PaymentDate        time.Time
	Amount             decimal.Decimal
	Reference          string
}

// Reject is a data row that could not be turned into a Record.
type Reject struct {
	Row    int
	Reason string
}

type Parsed struct {
	Profile string
	Records []Record
	Rejects []Reject
}

// Parser auto-detects the delimiter and the column profile of an export.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(r io.Reader) (*Parsed, error) {
	utf8r, err := UTF8Reader(r)
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(utf8r)
	if err != nil {
		return nil, fmt.Errorf("reading export: %w", err)
	}

	for _, comma := range []rune{';', ','} {
		rows, err := readRows(raw, comma)
		if err != nil {
			continue
		}

		if profile, cols, header, ok := detect(rows); ok {
			return parseRows(profile, cols, rows[header+1:]), nil
		}
	}

	return nil, ErrUnknownFormat
}

// row is one CSV record with the file line it started on. Blank lines are
// skipped by the CSV reader, so line numbers do not follow the row index.
type row struct {
	line   int
	fields []string
}

func readRows(raw []byte, comma rune) ([]row, error) {
	reader := csv.NewReader(bytes.NewReader(raw))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows []row

	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}

		if err != nil {
			return nil, err
		}

		line, _ := reader.FieldPos(0)
		rows = append(rows, row{line: line, fields: fields})
	}
}

// detect returns the first row matching a profile with the profile itself.
func detect(rows []row) (*Profile, columns, int, bool) {
	for i, r := range rows {
		for j := range profiles {
			if cols, ok := profiles[j].match(r.fields); ok {
				return &profiles[j], cols, i, true
			}
		}
	}

	return nil, columns{}, 0, false
}

// parseRows skips rows without a parseable date (blank lines, page footers)
// and rejects dated rows that carry no code or no positive amount.
func parseRows(p *Profile, cols columns, rows []row) *Parsed {
	out := &Parsed{Profile: p.Name}

	for _, r := range rows {
		num, fields := r.line, r.fields

		date, ok := parseDate(cell(fields, cols.date), p.DateLayouts)
		if !ok {
			continue
		}

		code := cell(fields, cols.code)
		if code == "" {
			out.Rejects = append(out.Rejects, Reject{Row: num, Reason: "missing representative code"})
			continue
		}

		amount, err := ParseAmount(cell(fields, cols.amount))
		if err != nil {
			out.Rejects = append(out.Rejects, Reject{Row: num, Reason: err.Error()})
			continue
		}

		if !amount.IsPositive() {
			out.Rejects = append(out.Rejects, Reject{Row: num, Reason: fmt.Sprintf("amount %s is not positive", amount)})
			continue
		}

		out.Records = append(out.Records, Record{
			Row:                num,
			RepresentativeCode: code,
			PaymentDate:        date,
			Amount:             amount,
			Reference:          cell(fields, cols.reference),
		})
	}

	return out
}

func parseDate(s string, layouts []string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

func cell(fields []string, idx int) string {
	if idx < 0 || idx >= len(fields) {
		return ""
	}

	return strings.TrimSpace(fields[idx])
}
