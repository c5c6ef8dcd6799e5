package common

import "context"

// RowProvider exposes one or more named tables of records.
type RowProvider interface {
	GetTableNames() []string
	GetHeaders(tableName string) []string
	// ScanRows iterates over the data rows of the given table, calling yield
	// for each record or row-level error. A row error does not stop the scan;
	// yield decides by returning an error, which ScanRows then returns.
	ScanRows(ctx context.Context, tableName string, yield func(Record, error) error) error
}

// RawHeaderProvider is implemented by providers that keep the header row as
// it was read, before it was turned into SQL column names.
type RawHeaderProvider interface {
	GetRawHeaders(tableName string) []string
}

// Driver defines the interface that must be implemented by a converter package.
type Driver interface {
	// Open returns a RowProvider for source, which is a path or a readable object.
	Open(source any, config *ConversionConfig) (RowProvider, error)
}
