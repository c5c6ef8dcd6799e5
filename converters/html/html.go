package html

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/darianmavgo/streamcsv/converters"
	"github.com/darianmavgo/streamcsv/converters/common"
	"github.com/darianmavgo/streamcsv/converters/csv"

	"golang.org/x/net/html"
)

func init() {
	converters.Register("html", &htmlDriver{})
}

type htmlDriver struct{}

func (d *htmlDriver) Open(source any, config *common.ConversionConfig) (common.RowProvider, error) {
	return NewHTMLConverterWithConfig(source, config)
}

// HTMLConverter exposes every <table> of a document as a table whose first
// row is the header row.
type HTMLConverter struct {
	tables     []tableData
	tableNames []string
}

type tableData struct {
	rawName string
	headers []string
	rows    [][]string
}

// Ensure HTMLConverter implements RowProvider
var (
	_ common.RowProvider       = (*HTMLConverter)(nil)
	_ common.RawHeaderProvider = (*HTMLConverter)(nil)
)

// NewHTMLConverter creates a new HTMLConverter from a path, foreign object or io.Reader.
func NewHTMLConverter(source any) (*HTMLConverter, error) {
	return NewHTMLConverterWithConfig(source, nil)
}

// NewHTMLConverterWithConfig creates a new HTMLConverter with optional config.
func NewHTMLConverterWithConfig(source any, config *common.ConversionConfig) (*HTMLConverter, error) {
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

	tables, err := parseHTML(bufio.NewReaderSize(r, 65536))
	if err != nil {
		return nil, err
	}
	if config != nil && config.Verbose {
		log.Printf("[STREAMCSV] Found %d tables in %s", len(tables), src)
	}

	// Generate table names once
	rawNames := make([]string, len(tables))
	for i, t := range tables {
		if t.rawName != "" {
			rawNames[i] = t.rawName
		} else {
			rawNames[i] = fmt.Sprintf("table%d", i)
		}
	}
	tableNames := common.GenTableNames(rawNames)

	return &HTMLConverter{
		tables:     tables,
		tableNames: tableNames,
	}, nil
}

// GetTableNames implements RowProvider
func (c *HTMLConverter) GetTableNames() []string {
	return c.tableNames
}

// GetHeaders implements RowProvider
func (c *HTMLConverter) GetHeaders(tableName string) []string {
	for i, name := range c.tableNames {
		if name == tableName {
			return common.GenColumnNames(c.tables[i].headers)
		}
	}
	return nil
}

// GetRawHeaders returns the header cells as they appear in the document.
func (c *HTMLConverter) GetRawHeaders(tableName string) []string {
	for i, name := range c.tableNames {
		if name == tableName {
			return c.tables[i].headers
		}
	}
	return nil
}

// ScanRows implements RowProvider. Each record is a fresh copy.
func (c *HTMLConverter) ScanRows(ctx context.Context, tableName string, yield func(common.Record, error) error) error {
	for i, name := range c.tableNames {
		if name != tableName {
			continue
		}
		for _, row := range c.tables[i].rows {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err := yield(common.Record(row).Clone(), nil); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

func parseHTML(reader io.Reader) ([]tableData, error) {
	doc, err := html.Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var tables []tableData
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "table" {
			t := extractTable(n)
			tables = append(tables, t)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(doc)
	return tables, nil
}

func extractTable(n *html.Node) tableData {
	var name string
	for _, attr := range n.Attr {
		if attr.Key == "id" {
			name = attr.Val
			break
		}
	}

	var rows [][]string
	var visitRows func(*html.Node)
	visitRows = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == "tr" {
			var row []string
			for c := node.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					row = append(row, extractText(c))
				}
			}
			rows = append(rows, row)
			return // Don't look for TRs inside TRs
		}

		for c := node.FirstChild; c != nil; c = c.NextSibling {
			// Don't traverse into nested tables here
			if c.Type == html.ElementNode && c.Data == "table" {
				continue
			}
			visitRows(c)
		}
	}
	visitRows(n)

	if len(rows) == 0 {
		return tableData{rawName: name}
	}

	return tableData{
		rawName: name,
		headers: rows[0],
		rows:    rows[1:],
	}
}

func extractText(n *html.Node) string {
	var sb strings.Builder
	extractTextRecursive(n, &sb)
	return strings.TrimSpace(sb.String())
}

func extractTextRecursive(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractTextRecursive(c, sb)
	}
}
