package json

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/darianmavgo/streamcsv/converters"
	"github.com/darianmavgo/streamcsv/converters/common"
	"github.com/darianmavgo/streamcsv/converters/csv"
	"github.com/darianmavgo/streamcsv/foreign"
)

func scanAll(t *testing.T, c *JSONConverter, table string) ([]common.Record, []error) {
	t.Helper()
	var rows []common.Record
	var errs []error
	err := c.ScanRows(context.Background(), table, func(rec common.Record, err error) error {
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		rows = append(rows, rec)
		return nil
	})
	if err != nil {
		t.Fatalf("ScanRows: %v", err)
	}
	return rows, errs
}

func TestJSONArray(t *testing.T) {
	jsonContent := `[
        {"name": "Alice", "age": 30},
        {"name": "Bob", "age": 25, "city": "NY"},
        {"name": "Charlie", "age": 35.50, "ok": true}
    ]`

	conv, err := NewJSONConverter(strings.NewReader(jsonContent))
	if err != nil {
		t.Fatalf("Failed to create converter: %v", err)
	}

	if tables := conv.GetTableNames(); !reflect.DeepEqual(tables, []string{JSONTB}) {
		t.Errorf("Expected 1 table %q, got %v", JSONTB, tables)
	}
	// Headers come from the first element, sorted.
	if headers := conv.GetHeaders(JSONTB); !reflect.DeepEqual(headers, []string{"age", "name"}) {
		t.Errorf("Headers mismatch: %v", headers)
	}

	rows, errs := scanAll(t, conv, JSONTB)
	if len(errs) != 0 {
		t.Fatalf("unexpected row errors: %v", errs)
	}
	want := []common.Record{{"30", "Alice"}, {"25", "Bob"}, {"35.50", "Charlie"}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %q, want %q", rows, want)
	}

	// The stream is consumed.
	if again, _ := scanAll(t, conv, JSONTB); len(again) != 0 {
		t.Errorf("second scan returned %d rows", len(again))
	}
}

func TestJSONObject(t *testing.T) {
	jsonContent := `{
        "Users": [{"id": 1, "name": "A"}, {"id": 2, "name": null}],
        "orders": [{"id": 10, "total": 9.5}],
        "meta": {"version": 2},
        "tags": ["x", "y"]
    }`
	conv, err := NewJSONConverterWithConfig(strings.NewReader(jsonContent), &common.ConversionConfig{TableName: "ignored"})
	if err != nil {
		t.Fatal(err)
	}
	if got := conv.GetTableNames(); !reflect.DeepEqual(got, []string{"users", "orders", "tags"}) {
		t.Fatalf("tables = %v", got)
	}
	if got := conv.GetHeaders("tags"); !reflect.DeepEqual(got, []string{"value"}) {
		t.Errorf("tags headers = %v", got)
	}

	rows, _ := scanAll(t, conv, "users")
	if want := []common.Record{{"1", "A"}, {"2", ""}}; !reflect.DeepEqual(rows, want) {
		t.Errorf("users = %q, want %q", rows, want)
	}
	// Object tables can be scanned again.
	rows, _ = scanAll(t, conv, "users")
	if len(rows) != 2 {
		t.Errorf("rescan returned %d rows", len(rows))
	}
	rows, _ = scanAll(t, conv, "tags")
	if want := []common.Record{{"x"}, {"y"}}; !reflect.DeepEqual(rows, want) {
		t.Errorf("tags = %q, want %q", rows, want)
	}
}

func TestJSONNested(t *testing.T) {
	jsonContent := `[{"id": 1, "info": {"a": 1, "b": [1, 2]}, "list": [ "x" , "y" ], "text": "say \"hi\"\n"}]`
	conv, err := NewJSONConverter(strings.NewReader(jsonContent))
	if err != nil {
		t.Fatal(err)
	}
	rows, _ := scanAll(t, conv, JSONTB)
	want := []common.Record{{"1", `{"a":1,"b":[1,2]}`, `["x","y"]`, "say \"hi\"\n"}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %q, want %q", rows, want)
	}
}

func TestJSONPrimitiveFirst(t *testing.T) {
	conv, err := NewJSONConverterWithConfig(strings.NewReader(`[1, "two", null, {"k": 3}]`), &common.ConversionConfig{TableName: "My Values"})
	if err != nil {
		t.Fatal(err)
	}
	if got := conv.GetTableNames(); !reflect.DeepEqual(got, []string{"my_values"}) {
		t.Fatalf("tables = %v", got)
	}
	rows, _ := scanAll(t, conv, "my_values")
	want := []common.Record{{"1"}, {"two"}, {""}, {""}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %q, want %q", rows, want)
	}
}

func TestJSONEmptyArray(t *testing.T) {
	conv, err := NewJSONConverter(strings.NewReader(`[]`))
	if err != nil {
		t.Fatal(err)
	}
	if got := conv.GetHeaders(JSONTB); len(got) != 0 {
		t.Errorf("headers = %v", got)
	}
	if rows, errs := scanAll(t, conv, JSONTB); len(rows) != 0 || len(errs) != 0 {
		t.Errorf("rows = %v, errs = %v", rows, errs)
	}
}

func TestJSONInvalidRoot(t *testing.T) {
	for _, input := range []string{``, `42`, `"text"`, `{"a": [1,}`} {
		_, err := NewJSONConverter(strings.NewReader(input))
		if !errors.Is(err, common.ErrDecode) {
			t.Errorf("%q: expected decode error, got %v", input, err)
		}
	}
}

func TestJSONMalformedElement(t *testing.T) {
	conv, err := NewJSONConverter(strings.NewReader(`[{"a": 1}, {"a": 2}, {"a": }]`))
	if err != nil {
		t.Fatal(err)
	}
	rows, errs := scanAll(t, conv, JSONTB)
	if !reflect.DeepEqual(rows, []common.Record{{"1"}, {"2"}}) {
		t.Errorf("rows = %q", rows)
	}
	if len(errs) != 1 || !errors.Is(errs[0], common.ErrDecode) {
		t.Fatalf("errs = %v", errs)
	}
	if pos, ok := common.PositionOf(errs[0]); !ok || pos.Record != 2 {
		t.Errorf("position = %v, %v", pos, ok)
	}
}

func TestJSONFromForeignObject(t *testing.T) {
	data := []byte(`[{"k": "v1"}, {"k": "v2"}]`)
	off := 0
	obj := foreign.Attrs{foreign.CapRead: func(args ...any) (any, error) {
		end := min(off+5, len(data))
		chunk := data[off:end]
		off = end
		return chunk, nil
	}}
	conv, err := NewJSONConverter(obj)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	w, err := csv.NewWriter(bw, common.WriterOptions{QuoteStyle: "always"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := csv.Export(context.Background(), conv, w, csv.ExportOptions{}); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if want := "\"k\"\n\"v1\"\n\"v2\"\n"; out.String() != want {
		t.Errorf("got %q, want %q", out.String(), want)
	}
}

func TestJSONImportToSQLite(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.json")
	if err := os.WriteFile(inPath, []byte(`{"people": [{"name": "Alice", "age": 30}, {"name": "Bob"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	provider, err := converters.Open("json", inPath, nil)
	if err != nil {
		t.Fatal(err)
	}

	outPath := filepath.Join(dir, "out.db")
	f, err := os.Create(outPath)
	if err != nil {
		t.Fatal(err)
	}
	err = converters.ImportToSQLite(provider, f, nil)
	f.Close()
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	db, err := sql.Open("sqlite", outPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var age string
	if err := db.QueryRow("SELECT age FROM people WHERE name = 'Bob'").Scan(&age); err != nil {
		t.Fatal(err)
	}
	if age != "" {
		t.Errorf("missing key should be empty, got %q", age)
	}
}
