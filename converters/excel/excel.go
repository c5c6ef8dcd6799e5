package excel

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/darianmavgo/streamcsv/converters"
	"github.com/darianmavgo/streamcsv/converters/common"
	"github.com/darianmavgo/streamcsv/converters/csv"

	"github.com/xuri/excelize/v2"
)

func init() {
	converters.Register("excel", &excelDriver{})
}

type excelDriver struct{}

func (d *excelDriver) Open(source any, config *common.ConversionConfig) (common.RowProvider, error) {
	return NewExcelConverterWithConfig(source, config)
}

// ExcelConverter exposes each sheet of a workbook as a table whose first row
// is the header row.
type ExcelConverter struct {
	tableNames []string
	headers    map[string][]string // map tableName to headers
	rawHeaders map[string][]string // map tableName to the header row as read
	sheetMap   map[string]string   // map tableName to sheetName
	file       *excelize.File
}

// Ensure ExcelConverter implements RowProvider
var (
	_ common.RowProvider       = (*ExcelConverter)(nil)
	_ common.RawHeaderProvider = (*ExcelConverter)(nil)
)

// Ensure ExcelConverter implements io.Closer
var _ io.Closer = (*ExcelConverter)(nil)

// NewExcelConverter creates a new ExcelConverter from a path, foreign object or io.Reader.
func NewExcelConverter(source any) (*ExcelConverter, error) {
	return NewExcelConverterWithConfig(source, nil)
}

// NewExcelConverterWithConfig creates a new ExcelConverter with optional config.
// Only Verbose is consulted; sheets name their own tables.
func NewExcelConverterWithConfig(source any, config *common.ConversionConfig) (*ExcelConverter, error) {
	src, err := csv.NewSource(source)
	if err != nil {
		return nil, err
	}
	r, closer, err := src.Open()
	if err != nil {
		return nil, err
	}
	if closer != nil {
		defer closer.Close()
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel stream: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("no sheets found in Excel file")
	}

	if config != nil && config.Verbose {
		log.Printf("[STREAMCSV] Opened workbook %s with %d sheets", src, len(sheets))
	}

	tableNames := common.GenTableNames(sheets)
	headersMap := make(map[string][]string)
	rawMap := make(map[string][]string)
	sheetMap := make(map[string]string)

	for idx, sheetName := range sheets {
		tableName := tableNames[idx]
		sheetMap[tableName] = sheetName

		rows, err := f.Rows(sheetName)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to get rows iterator for sheet %s: %w", sheetName, err)
		}
		if rows.Next() {
			cols, err := rows.Columns()
			if err != nil {
				rows.Close()
				f.Close()
				return nil, fmt.Errorf("failed to read header row for sheet %s: %w", sheetName, err)
			}
			if len(cols) > 0 {
				headersMap[tableName] = common.GenColumnNames(cols)
				rawMap[tableName] = cols
			}
		}
		rows.Close()
	}

	return &ExcelConverter{
		tableNames: tableNames,
		headers:    headersMap,
		rawHeaders: rawMap,
		sheetMap:   sheetMap,
		file:       f,
	}, nil
}

// GetTableNames implements RowProvider
func (e *ExcelConverter) GetTableNames() []string {
	return e.tableNames
}

// GetHeaders implements RowProvider
func (e *ExcelConverter) GetHeaders(tableName string) []string {
	return e.headers[tableName]
}

// GetRawHeaders returns the first row of the sheet as read.
func (e *ExcelConverter) GetRawHeaders(tableName string) []string {
	return e.rawHeaders[tableName]
}

// ScanRows implements RowProvider. Unlike the CSV stream, a sheet can be
// scanned any number of times.
func (e *ExcelConverter) ScanRows(ctx context.Context, tableName string, yield func(common.Record, error) error) error {
	sheetName, ok := e.sheetMap[tableName]
	if !ok {
		return nil
	}

	rows, err := e.file.Rows(sheetName)
	if err != nil {
		return fmt.Errorf("failed to get rows iterator for sheet %s: %w", sheetName, err)
	}
	defer rows.Close()

	// Skip the header row
	if rows.Next() {
		if _, err := rows.Columns(); err != nil {
			return err
		}
	}

	for rows.Next() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		row, err := rows.Columns()
		if err != nil {
			if yerr := yield(nil, fmt.Errorf("failed to read row: %w", err)); yerr != nil {
				return yerr
			}
			continue
		}
		if err := yield(common.Record(row), nil); err != nil {
			return err
		}
	}
	return rows.Error()
}

// Close closes the underlying Excel file
func (e *ExcelConverter) Close() error {
	if e.file != nil {
		return e.file.Close()
	}
	return nil
}
