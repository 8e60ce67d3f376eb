// Package ingest parses transaction batches from CSV uploads.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Column names recognized in the CSV header. Matching is case-insensitive
// and column order is free.
const (
	ColTransactionID = "transaction_id"
	ColSenderID      = "sender_id"
	ColReceiverID    = "receiver_id"
	ColAmount        = "amount"
	ColTimestamp     = "timestamp"
)

// Timestamp layouts accepted for the timestamp column, tried in order.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Stats reports what happened to the rows of a parsed batch.
type Stats struct {
	RowsRead      int `json:"rows_read"`
	RowsAccepted  int `json:"rows_accepted"`
	RowsSkipped   int `json:"rows_skipped"`
	BadTimestamps int `json:"bad_timestamps"`
}

// ReadCSV parses a CSV transaction batch from r. The header row is
// required, must name all five columns, and resolves their positions.
// Rows missing a sender or receiver, or with an unparseable amount, are
// skipped and counted; a blank or unparseable timestamp keeps the row
// but leaves Timestamp nil so the temporal detectors ignore it.
func ReadCSV(r io.Reader) ([]domain.Transaction, Stats, error) {
	var stats Stats

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, stats, fmt.Errorf("empty csv: missing header row")
	}
	if err != nil {
		return nil, stats, fmt.Errorf("read csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{ColTransactionID, ColSenderID, ColReceiverID, ColAmount, ColTimestamp} {
		if _, ok := cols[required]; !ok {
			return nil, stats, fmt.Errorf("csv header missing required column %q", required)
		}
	}

	var txs []domain.Transaction
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed row is skipped, not fatal; the rest of the
			// batch still gets analyzed.
			stats.RowsRead++
			stats.RowsSkipped++
			continue
		}
		stats.RowsRead++

		sender := field(record, cols, ColSenderID)
		receiver := field(record, cols, ColReceiverID)
		if sender == "" || receiver == "" {
			stats.RowsSkipped++
			continue
		}

		amount, err := strconv.ParseFloat(field(record, cols, ColAmount), 64)
		if err != nil {
			stats.RowsSkipped++
			continue
		}

		tx := domain.Transaction{
			ID:         field(record, cols, ColTransactionID),
			SenderID:   sender,
			ReceiverID: receiver,
			Amount:     amount,
		}

		if raw := field(record, cols, ColTimestamp); raw != "" {
			if ts, ok := parseTimestamp(raw); ok {
				tx.Timestamp = &ts
			} else {
				stats.BadTimestamps++
			}
		}

		txs = append(txs, tx)
		stats.RowsAccepted++
	}

	if stats.RowsSkipped > 0 || stats.BadTimestamps > 0 {
		slog.Warn("csv batch parsed with skipped rows",
			"rows_read", stats.RowsRead,
			"rows_skipped", stats.RowsSkipped,
			"bad_timestamps", stats.BadTimestamps,
		)
	}

	return txs, stats, nil
}

func field(record []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
