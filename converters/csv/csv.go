package csv

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/darianmavgo/streamcsv/converters"
	"github.com/darianmavgo/streamcsv/converters/common"
)

const (
	CSVTB = "tb0"
)

// sniffSize is how much of a path source is read to guess its delimiter.
const sniffSize = 2048

func init() {
	converters.Register("csv", &csvDriver{})
}

type csvDriver struct{}

func (d *csvDriver) Open(source any, config *common.ConversionConfig) (common.RowProvider, error) {
	return NewCSVConverterWithConfig(source, config)
}

// CSVConverter exposes a CSV stream as a single table whose first record is
// the header row.
type CSVConverter struct {
	headers    []string
	rawHeaders []string
	reader     *Reader
	Config     common.ConversionConfig
}

// Ensure CSVConverter implements RowProvider
var (
	_ common.RowProvider       = (*CSVConverter)(nil)
	_ common.RawHeaderProvider = (*CSVConverter)(nil)
)

// NewCSVConverter creates a CSVConverter with default options. source is a
// path, a foreign object or an io.Reader.
// Note: ScanRows can only be called once; the stream is consumed as it goes.
func NewCSVConverter(source any) (*CSVConverter, error) {
	return NewCSVConverterWithConfig(source, nil)
}

// NewCSVConverterWithConfig creates a CSVConverter with optional config.
func NewCSVConverterWithConfig(source any, config *common.ConversionConfig) (*CSVConverter, error) {
	cfg := common.ConversionConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.TableName == "" {
		cfg.TableName = CSVTB
	}

	opts := cfg.Reader
	opts.Verbose = opts.Verbose || cfg.Verbose

	// Only a path can be sniffed without consuming the stream.
	if cfg.DetectDelimiter && opts.Delimiter == nil {
		if path, ok := source.(string); ok {
			if sample, err := readSample(path); err == nil {
				opts.Delimiter = []byte{common.DetectDelimiter(sample)}
			}
		}
	}

	reader, err := NewReader(source, opts)
	if err != nil {
		return nil, err
	}

	// Default behavior: First row is header
	h, err := reader.Next()
	if err != nil {
		reader.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("CSV input is empty")
		}
		return nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}

	return &CSVConverter{
		headers:    common.GenColumnNames(h),
		rawHeaders: h,
		reader:     reader,
		Config:     cfg,
	}, nil
}

// readSample returns the first line of the file at path.
func readSample(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, sniffSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	sample := string(buf[:n])
	if idx := strings.IndexAny(sample, "\r\n"); idx != -1 {
		sample = sample[:idx]
	}
	return sample, nil
}

// GetTableNames implements RowProvider
func (c *CSVConverter) GetTableNames() []string {
	return []string{c.Config.TableName}
}

// GetHeaders implements RowProvider
func (c *CSVConverter) GetHeaders(tableName string) []string {
	if tableName == c.Config.TableName {
		return c.headers
	}
	return nil
}

// GetRawHeaders returns the header record exactly as it was read.
func (c *CSVConverter) GetRawHeaders(tableName string) []string {
	if tableName == c.Config.TableName {
		return c.rawHeaders
	}
	return nil
}

// ScanRows implements RowProvider. Record errors are passed to yield and the
// scan continues, except for stream failures (I/O or mode errors), which end
// the scan after yield has seen them.
func (c *CSVConverter) ScanRows(ctx context.Context, tableName string, yield func(common.Record, error) error) error {
	if tableName != c.Config.TableName {
		return nil
	}

	if c.reader == nil {
		return fmt.Errorf("CSV reader is not initialized")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := c.reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if yerr := yield(nil, err); yerr != nil {
				return yerr
			}
			if isStreamFailure(err) {
				return err
			}
			continue
		}
		if err := yield(rec, nil); err != nil {
			return err
		}
	}
}

// Close releases the underlying reader.
func (c *CSVConverter) Close() error {
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

func isStreamFailure(err error) bool {
	switch common.KindOf(err) {
	case common.KindIO, common.KindMode:
		return true
	}
	return false
}
