package excel

import (
	"bufio"
	"bytes"
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/darianmavgo/streamcsv/converters/common"
	"github.com/darianmavgo/streamcsv/converters/csv"

	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", "People"); err != nil {
		t.Fatal(err)
	}
	rows := [][]any{
		{"Name", "Age", "Note"},
		{"alice", 30, "likes, commas"},
		{"bob", 25, `says "hi"`},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("People", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.NewSheet("Empty Sheet"); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestExcelConverterFromPath(t *testing.T) {
	f := buildWorkbook(t)
	path := filepath.Join(t.TempDir(), "book.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	c, err := NewExcelConverter(path)
	if err != nil {
		t.Fatalf("NewExcelConverter: %v", err)
	}
	defer c.Close()

	if got := c.GetTableNames(); !reflect.DeepEqual(got, []string{"people", "empty_sheet"}) {
		t.Fatalf("tables = %v", got)
	}
	if got := c.GetHeaders("people"); !reflect.DeepEqual(got, []string{"name", "age", "note"}) {
		t.Errorf("headers = %v", got)
	}
	if got := c.GetHeaders("empty_sheet"); got != nil {
		t.Errorf("empty sheet headers = %v", got)
	}

	var rows []common.Record
	err = c.ScanRows(context.Background(), "people", func(rec common.Record, err error) error {
		if err != nil {
			return err
		}
		rows = append(rows, rec)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []common.Record{{"alice", "30", "likes, commas"}, {"bob", "25", `says "hi"`}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %q, want %q", rows, want)
	}
}

func TestExcelToCSV(t *testing.T) {
	f := buildWorkbook(t)
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	c, err := NewExcelConverter(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	w, err := csv.NewWriter(bw, common.WriterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	n, err := csv.Export(context.Background(), c, w, csv.ExportOptions{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 2 {
		t.Errorf("rows = %d", n)
	}
	want := "Name,Age,Note\nalice,30,\"likes, commas\"\nbob,25,\"says \"\"hi\"\"\"\n"
	if out.String() != want {
		t.Errorf("got %q, want %q", out.String(), want)
	}
}

func TestExcelConverterRejectsGarbage(t *testing.T) {
	if _, err := NewExcelConverter(bytes.NewReader([]byte("not a workbook"))); err == nil {
		t.Fatal("expected an error for a non-xlsx stream")
	}
}
