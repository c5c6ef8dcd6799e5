package txt

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"unicode/utf8"

	"github.com/darianmavgo/streamcsv/converters"
	"github.com/darianmavgo/streamcsv/converters/common"
	"github.com/darianmavgo/streamcsv/converters/csv"
)

const (
	TXTTB = "tb0"
)

// maxLine bounds a single line; longer lines end the scan with an IO error.
const maxLine = 1 << 20

func init() {
	converters.Register("txt", &txtDriver{})
}

type txtDriver struct{}

func (d *txtDriver) Open(source any, config *common.ConversionConfig) (common.RowProvider, error) {
	return NewTxtConverterWithConfig(source, config)
}

// TxtConverter exposes a text stream as a single table with one "content"
// column per line.
type TxtConverter struct {
	scanner *bufio.Scanner
	closer  io.Closer
	Config  common.ConversionConfig

	consumed int // bytes taken by the last line, terminator included
}

// Ensure TxtConverter implements RowProvider
var _ common.RowProvider = (*TxtConverter)(nil)

// NewTxtConverter creates a new TxtConverter from a path, foreign object or io.Reader.
func NewTxtConverter(source any) (*TxtConverter, error) {
	return NewTxtConverterWithConfig(source, nil)
}

// NewTxtConverterWithConfig creates a new TxtConverter with optional config.
func NewTxtConverterWithConfig(source any, config *common.ConversionConfig) (*TxtConverter, error) {
	cfg := common.ConversionConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.TableName == "" {
		cfg.TableName = TXTTB
	}

	src, err := csv.NewSource(source)
	if err != nil {
		return nil, err
	}
	r, closer, err := src.Open()
	if err != nil {
		return nil, err
	}
	if cfg.Verbose {
		log.Printf("[STREAMCSV] Reading lines from %s into %s", src, cfg.TableName)
	}

	c := &TxtConverter{
		scanner: bufio.NewScanner(r),
		closer:  closer,
		Config:  cfg,
	}
	c.scanner.Buffer(make([]byte, 0, 64<<10), maxLine)
	c.scanner.Split(c.scanLines)
	return c, nil
}

func (c *TxtConverter) scanLines(data []byte, atEOF bool) (int, []byte, error) {
	advance, token, err := bufio.ScanLines(data, atEOF)
	if token != nil {
		c.consumed = advance
	}
	return advance, token, err
}

// GetTableNames implements RowProvider
func (c *TxtConverter) GetTableNames() []string {
	return []string{c.Config.TableName}
}

// GetHeaders implements RowProvider
func (c *TxtConverter) GetHeaders(tableName string) []string {
	if tableName == c.Config.TableName {
		return []string{"content"}
	}
	return nil
}

// ScanRows implements RowProvider. Lines that are not valid UTF-8 are
// reported as decode errors and the scan goes on.
func (c *TxtConverter) ScanRows(ctx context.Context, tableName string, yield func(common.Record, error) error) error {
	if tableName != c.Config.TableName || c.scanner == nil {
		return nil
	}
	defer c.Close()

	var pos common.Position
	pos.Line = 1
	for c.scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := c.scanner.Bytes()
		var err error
		var rec common.Record
		if utf8.Valid(line) {
			rec = common.Record{string(line)}
		} else {
			at := pos
			err = &common.Error{Kind: common.KindDecode, Op: "read", Pos: &at, Msg: "invalid UTF-8 in line"}
		}
		if yerr := yield(rec, err); yerr != nil {
			return yerr
		}
		pos.Byte += uint64(c.consumed)
		pos.Line++
		pos.Record++
	}

	if err := c.scanner.Err(); err != nil {
		var cerr *common.Error
		if !errors.As(err, &cerr) {
			err = common.Errorf(common.KindIO, "read", err, "failed to read txt line")
		}
		return yield(nil, err)
	}
	return nil
}

// Close releases a file opened by path. Further scans yield nothing.
func (c *TxtConverter) Close() error {
	c.scanner = nil
	if c.closer != nil {
		err := c.closer.Close()
		c.closer = nil
		return err
	}
	return nil
}
