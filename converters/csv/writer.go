package csv

import (
	"errors"
	"io"
	"log"

	"github.com/darianmavgo/streamcsv/converters/common"
	"github.com/darianmavgo/streamcsv/foreign"
)

// Writer formats records as CSV onto a writable foreign stream. Each record is
// handed to the stream as soon as it is formatted; Flush forwards to the
// stream's own flush.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	cfg common.WriterConfig
	dst *foreign.Adapter
	buf []byte
}

// NewWriter wraps dst, which must be a foreign.Object or an io.Writer with a
// write capability (or a write-mode *foreign.Adapter).
func NewWriter(dst any, opts common.WriterOptions) (*Writer, error) {
	cfg, err := opts.Resolve()
	if err != nil {
		return nil, err
	}
	a, err := destination(dst)
	if err != nil {
		return nil, err
	}
	if cfg.Verbose {
		log.Printf("[STREAMCSV] Writing to %v (quote style %s)", a.Object(), cfg.QuoteStyle)
	}
	return &Writer{cfg: cfg, dst: a, buf: make([]byte, 0, 256)}, nil
}

func destination(dst any) (*foreign.Adapter, error) {
	var obj foreign.Object
	switch d := dst.(type) {
	case *foreign.Adapter:
		if d == nil {
			break
		}
		if d.Mode() == foreign.WriteMode {
			return d, nil
		}
		obj = d.Object()
	case foreign.Object:
		obj = d
	case io.Writer:
		obj = foreign.Native(d)
	}
	if obj == nil {
		return nil, common.Errorf(common.KindCapability, "new writer", nil, "expected a writable object, got %T", dst)
	}
	a, err := foreign.FromCapability(obj, foreign.WriteMode)
	if err != nil {
		var e *common.Error
		if errors.As(err, &e) {
			e.Op = "new writer"
		}
		return nil, err
	}
	return a, nil
}

// WriteRecord formats one record and writes it, terminator included.
// A record with no fields is a common.KindValue error, as is a field that
// QuoteNever cannot write unambiguously.
func (w *Writer) WriteRecord(rec []string) error {
	if len(rec) == 0 {
		return common.Errorf(common.KindValue, "write", nil, "cannot write a record with no fields")
	}
	w.buf = w.buf[:0]
	for i, field := range rec {
		if i > 0 {
			w.buf = append(w.buf, w.cfg.Delimiter)
		}
		quote, err := w.needsQuotes(field, len(rec) == 1)
		if err != nil {
			return err
		}
		if quote {
			w.appendQuoted(field)
		} else {
			w.buf = append(w.buf, field...)
		}
	}
	if w.cfg.Terminator.IsCRLF() {
		w.buf = append(w.buf, '\r', '\n')
	} else {
		w.buf = append(w.buf, w.cfg.Terminator.Byte())
	}
	_, err := w.dst.Write(w.buf)
	return err
}

// WriteAll writes every record, stopping at the first error.
func (w *Writer) WriteAll(records [][]string) error {
	for _, rec := range records {
		if err := w.WriteRecord(rec); err != nil {
			return err
		}
	}
	return nil
}

// Flush forwards to the destination's flush capability.
func (w *Writer) Flush() error {
	return w.dst.Flush()
}

func (w *Writer) needsQuotes(field string, only bool) (bool, error) {
	// A lone empty field would otherwise produce an empty line, which
	// readers skip.
	loneEmpty := only && field == ""
	switch w.cfg.QuoteStyle {
	case common.QuoteAlways:
		return true, nil
	case common.QuoteNever:
		if loneEmpty || w.ambiguous(field, false) {
			return false, common.Errorf(common.KindValue, "write", nil, "field %q cannot be written without quotes", field)
		}
		return false, nil
	case common.QuoteNonNumeric:
		return loneEmpty || w.ambiguous(field, true) || !isNumeric(field), nil
	}
	return loneEmpty || w.ambiguous(field, true), nil
}

// ambiguous reports whether field holds a byte that would change how it
// reads back unquoted. In strict mode the escape byte and any line break
// count too, matching what other CSV writers quote.
func (w *Writer) ambiguous(field string, strict bool) bool {
	for i := 0; i < len(field); i++ {
		b := field[i]
		switch {
		case b == w.cfg.Delimiter, b == w.cfg.Quote, w.cfg.Terminator.Matches(b):
			return true
		case strict && (b == w.cfg.Escape || b == '\r' || b == '\n'):
			return true
		}
	}
	return false
}

func (w *Writer) appendQuoted(field string) {
	q := w.cfg.Quote
	w.buf = append(w.buf, q)
	for i := 0; i < len(field); i++ {
		b := field[i]
		switch {
		case b == q && w.cfg.DoubleQuote:
			w.buf = append(w.buf, q, q)
		case b == q, b == w.cfg.Escape && !w.cfg.DoubleQuote:
			w.buf = append(w.buf, w.cfg.Escape, b)
		default:
			w.buf = append(w.buf, b)
		}
	}
	w.buf = append(w.buf, q)
}

// isNumeric reports whether s is a decimal literal: optional sign, digits
// with at most one point, optional exponent.
func isNumeric(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for ; i < len(s) && isDigit(s[i]); i++ {
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for ; i < len(s) && isDigit(s[i]); i++ {
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		exp := 0
		for ; i < len(s) && isDigit(s[i]); i++ {
			exp++
		}
		if exp == 0 {
			return false
		}
	}
	return i == len(s)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
