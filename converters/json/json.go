package json

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log"
	"sort"

	"github.com/darianmavgo/streamcsv/converters"
	"github.com/darianmavgo/streamcsv/converters/common"
	"github.com/darianmavgo/streamcsv/converters/csv"

	json "github.com/goccy/go-json"
)

// JSONTB is the table name of a root array document.
const JSONTB = "jsontb0"

func init() {
	converters.Register("json", &jsonDriver{})
}

type jsonDriver struct{}

func (d *jsonDriver) Open(source any, config *common.ConversionConfig) (common.RowProvider, error) {
	return NewJSONConverterWithConfig(source, config)
}

// JSONConverter exposes a JSON document as tables. A root array is streamed
// as a single table; a root object is loaded and each array-valued key
// becomes a table.
type JSONConverter struct {
	tableNames []string
	tables     map[string]*jsonTableInfo
	verbose    bool

	// For streaming array
	decoder    *json.Decoder
	closer     io.Closer
	firstRow   map[string]json.RawMessage
	arrayTable string

	// For root object
	objData map[string][]json.RawMessage
}

type jsonTableInfo struct {
	headers    []string
	rawHeaders []string
	arrayKey   string
}

// Ensure JSONConverter implements RowProvider
var (
	_ common.RowProvider       = (*JSONConverter)(nil)
	_ common.RawHeaderProvider = (*JSONConverter)(nil)
)

// NewJSONConverter creates a new JSONConverter from a path, foreign object or io.Reader.
func NewJSONConverter(source any) (*JSONConverter, error) {
	return NewJSONConverterWithConfig(source, nil)
}

// NewJSONConverterWithConfig creates a new JSONConverter with optional config.
// config.TableName renames the table of a root array.
func NewJSONConverterWithConfig(source any, config *common.ConversionConfig) (*JSONConverter, error) {
	if config == nil {
		config = &common.ConversionConfig{}
	}
	src, err := csv.NewSource(source)
	if err != nil {
		return nil, err
	}
	r, closer, err := src.Open()
	if err != nil {
		return nil, err
	}

	c, err := newConverter(bufio.NewReaderSize(r, 65536), config)
	if err != nil || c.decoder == nil {
		if closer != nil {
			closer.Close()
		}
	} else {
		c.closer = closer
	}
	if err != nil {
		return nil, err
	}
	if c.verbose {
		log.Printf("[STREAMCSV] Opened JSON %s with tables %v", src, c.tableNames)
	}
	return c, nil
}

func newConverter(r io.Reader, config *common.ConversionConfig) (*JSONConverter, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	// Peek the first token to determine structure
	token, err := dec.Token()
	if err != nil {
		return nil, common.Errorf(common.KindDecode, "open", err, "failed to read JSON start")
	}
	delim, ok := token.(json.Delim)
	if !ok || (delim != '[' && delim != '{') {
		return nil, common.Errorf(common.KindDecode, "open", nil, "expected JSON object or array at root")
	}

	c := &JSONConverter{
		tables:  make(map[string]*jsonTableInfo),
		verbose: config.Verbose,
	}

	if delim == '[' {
		c.arrayTable = JSONTB
		if config.TableName != "" {
			c.arrayTable = common.GenTableNames([]string{config.TableName})[0]
		}
		c.tableNames = []string{c.arrayTable}
		c.decoder = dec

		info := &jsonTableInfo{}
		if dec.More() {
			var first json.RawMessage
			if err := dec.Decode(&first); err != nil {
				return nil, common.Errorf(common.KindDecode, "open", err, "failed to decode first element")
			}
			c.firstRow = asRow(first)
			info.rawHeaders = extractRawHeaders(c.firstRow)
		}
		info.headers = common.GenColumnNames(info.rawHeaders)
		c.tables[c.arrayTable] = info
		return c, nil
	}

	// Root is Object
	c.objData = make(map[string][]json.RawMessage)
	var names []string
	for dec.More() {
		keyToken, err := dec.Token()
		if err != nil {
			return nil, common.Errorf(common.KindDecode, "open", err, "failed to read key")
		}
		key, ok := keyToken.(string)
		if !ok {
			return nil, common.Errorf(common.KindDecode, "open", nil, "expected string key")
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, common.Errorf(common.KindDecode, "open", err, "failed to decode value for key %s", key)
		}
		var arr []json.RawMessage
		if len(val) == 0 || val[0] != '[' {
			continue
		}
		if err := json.Unmarshal(val, &arr); err != nil {
			return nil, common.Errorf(common.KindDecode, "open", err, "failed to decode array %s", key)
		}
		if _, dup := c.objData[key]; !dup {
			names = append(names, key)
		}
		c.objData[key] = arr
	}
	if _, err := dec.Token(); err != nil {
		return nil, common.Errorf(common.KindDecode, "open", err, "expected closing '}'")
	}

	sort.Strings(names)
	c.tableNames = common.GenTableNames(names)
	for i, rawName := range names {
		var rawHeaders []string
		if arr := c.objData[rawName]; len(arr) > 0 {
			rawHeaders = extractRawHeaders(asRow(arr[0]))
		}
		c.tables[c.tableNames[i]] = &jsonTableInfo{
			rawHeaders: rawHeaders,
			headers:    common.GenColumnNames(rawHeaders),
			arrayKey:   rawName,
		}
	}
	return c, nil
}

// asRow returns the members of an object element, or wraps any other value
// in a single "value" column.
func asRow(raw json.RawMessage) map[string]json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var row map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &row); err == nil {
			return row
		}
	}
	return map[string]json.RawMessage{"value": raw}
}

func extractRawHeaders(row map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetTableNames implements RowProvider
func (c *JSONConverter) GetTableNames() []string {
	return c.tableNames
}

// GetHeaders implements RowProvider
func (c *JSONConverter) GetHeaders(tableName string) []string {
	if info, ok := c.tables[tableName]; ok {
		return info.headers
	}
	return nil
}

// GetRawHeaders returns the member names of the first element, sorted.
func (c *JSONConverter) GetRawHeaders(tableName string) []string {
	if info, ok := c.tables[tableName]; ok {
		return info.rawHeaders
	}
	return nil
}

// ScanRows implements RowProvider. A root array can only be scanned once.
// Values are rendered as text: strings unquoted, null empty, nested objects
// and arrays as compact JSON.
func (c *JSONConverter) ScanRows(ctx context.Context, tableName string, yield func(common.Record, error) error) error {
	info, ok := c.tables[tableName]
	if !ok {
		return nil
	}

	if c.arrayTable != "" && tableName == c.arrayTable {
		if c.firstRow != nil {
			row := flattenRow(c.firstRow, info.rawHeaders)
			c.firstRow = nil
			if err := yield(row, nil); err != nil {
				return err
			}
		}
		if c.decoder == nil {
			return nil
		}

		record := 1
		for c.decoder.More() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var raw json.RawMessage
			if err := c.decoder.Decode(&raw); err != nil {
				// The decoder cannot resynchronise after a syntax error.
				c.release()
				return yield(nil, &common.Error{
					Kind: common.KindDecode,
					Op:   "read",
					Pos:  &common.Position{Record: uint64(record)},
					Msg:  "malformed array element",
					Err:  err,
				})
			}
			record++
			if err := yield(flattenRow(asRow(raw), info.rawHeaders), nil); err != nil {
				return err
			}
		}
		if _, err := c.decoder.Token(); err != nil {
			c.release()
			return yield(nil, common.Errorf(common.KindDecode, "read", err, "expected closing ']'"))
		}
		if c.verbose {
			log.Printf("[STREAMCSV] Streamed %d elements from %s", record, tableName)
		}
		c.release()
		return nil
	}

	for _, raw := range c.objData[info.arrayKey] {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := yield(flattenRow(asRow(raw), info.rawHeaders), nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *JSONConverter) release() {
	c.decoder = nil
	if c.closer != nil {
		c.closer.Close()
		c.closer = nil
	}
}

// Close releases a file opened by path.
func (c *JSONConverter) Close() error {
	c.release()
	return nil
}

func flattenRow(rowMap map[string]json.RawMessage, rawHeaders []string) common.Record {
	row := make(common.Record, len(rawHeaders))
	for i, key := range rawHeaders {
		row[i] = text(rowMap[key])
	}
	return row
}

// text renders a raw JSON value as a CSV field.
func text(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err == nil {
			return buf.String()
		}
	}
	return string(raw)
}
