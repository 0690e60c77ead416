package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ImportColumns is the expected CSV header for bulk payment import. Only
// party_id and amount are mandatory; other columns may be omitted.
var ImportColumns = []string{"party_id", "amount", "payment_date", "payment_method", "reference_number", "notes"}

// ImportRowError is a rejected CSV row. Row is 1-based and counts the header.
type ImportRowError struct {
	Row     int
	PartyID string
	Err     error
}

func (e ImportRowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

type ImportResult struct {
	Imported []Payment
	Failed   []ImportRowError
}

// ImportPayments reads payments from CSV and posts each row through
// AddPayment, so every row gets the same validation and cash mirror as a
// single entry. Bad rows are collected in the result; only an unreadable
// file or a missing header fails the whole import.
func (l *PartyLedger) ImportPayments(ctx context.Context, r io.Reader) (ImportResult, error) {
	if _, err := requireActor(ctx, "import payments"); err != nil {
		return ImportResult{}, err
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return ImportResult{}, invalid("file", "empty CSV")
	}
	if err != nil {
		return ImportResult{}, invalid("file", "unreadable CSV: %v", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"party_id", "amount"} {
		if _, ok := cols[required]; !ok {
			return ImportResult{}, invalid("file", "missing column %q", required)
		}
	}

	var result ImportResult
	row := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			result.Failed = append(result.Failed, ImportRowError{Row: row, Err: err})
			continue
		}

		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		in, err := parseImportRow(field)
		if err == nil {
			var p Payment
			p, err = l.AddPayment(ctx, in)
			if err == nil {
				result.Imported = append(result.Imported, p)
				continue
			}
		}
		result.Failed = append(result.Failed, ImportRowError{Row: row, PartyID: field("party_id"), Err: err})
	}

	l.log.Info().Int("imported", len(result.Imported)).Int("failed", len(result.Failed)).
		Msg("payment import finished")
	return result, nil
}

func parseImportRow(field func(string) string) (PaymentInput, error) {
	in := PaymentInput{
		PartyID:         field("party_id"),
		PaymentMethod:   PaymentMethod(strings.ToLower(field("payment_method"))),
		ReferenceNumber: field("reference_number"),
		Notes:           field("notes"),
	}
	amount, err := ParseAmount(field("amount"))
	if err != nil {
		return in, invalid("amount", "not a number: %q", field("amount"))
	}
	in.Amount = amount
	if s := field("payment_date"); s != "" {
		d, err := ParseDate(s)
		if err != nil {
			return in, invalid("payment_date", "not a date: %q", s)
		}
		in.PaymentDate = d
	}
	return in, nil
}
