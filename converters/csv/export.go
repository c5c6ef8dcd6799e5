package csv

import (
	"context"
	"fmt"
	"log"

	"github.com/darianmavgo/streamcsv/converters/common"
)

// ExportOptions controls Export.
type ExportOptions struct {
	// Table selects one table; empty exports the provider's first table.
	Table string
	// SkipErrors drops rows the provider reports as bad instead of stopping.
	SkipErrors bool
	Verbose    bool
}

// exportHeaders prefers the header row as read. The sanitized names only
// exist for SQLite.
func exportHeaders(provider common.RowProvider, table string) []string {
	if rp, ok := provider.(common.RawHeaderProvider); ok {
		if raw := rp.GetRawHeaders(table); len(raw) > 0 {
			return raw
		}
	}
	return provider.GetHeaders(table)
}

// Export writes the headers and rows of one provider table through w and
// flushes it. It returns the number of data rows written.
func Export(ctx context.Context, provider common.RowProvider, w *Writer, opts ExportOptions) (int, error) {
	table := opts.Table
	if table == "" {
		names := provider.GetTableNames()
		if len(names) == 0 {
			return 0, fmt.Errorf("provider has no tables")
		}
		table = names[0]
	}
	headers := exportHeaders(provider, table)
	if len(headers) == 0 {
		return 0, fmt.Errorf("table %s has no headers", table)
	}
	if err := w.WriteRecord(headers); err != nil {
		return 0, fmt.Errorf("failed to write headers: %w", err)
	}

	rows, skipped := 0, 0
	err := provider.ScanRows(ctx, table, func(rec common.Record, rowErr error) error {
		if rowErr != nil {
			if !opts.SkipErrors {
				return rowErr
			}
			skipped++
			if opts.Verbose {
				log.Printf("[STREAMCSV] Skipping row: %v", rowErr)
			}
			return nil
		}
		if err := w.WriteRecord(rec); err != nil {
			return fmt.Errorf("failed to write row %d: %w", rows, err)
		}
		rows++
		return nil
	})
	if flushErr := w.Flush(); err == nil && flushErr != nil {
		err = flushErr
	}
	if opts.Verbose {
		log.Printf("[STREAMCSV] Exported %d rows from %s (%d skipped)", rows, table, skipped)
	}
	return rows, err
}
