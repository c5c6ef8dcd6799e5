package csv

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log"
	"unicode/utf8"

	"github.com/darianmavgo/streamcsv/converters/common"
)

type iterState int

const (
	iterFresh iterState = iota
	iterActive
	iterExhausted
)

// Reader yields the records of a CSV stream one at a time.
//
// A record-level error (bad UTF-8, wrong field count, unterminated quote, a
// failed read) is returned from Next without ending iteration; the following
// call continues with the next record. Once Next returns io.EOF it keeps
// returning io.EOF.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	cfg    common.ReaderConfig
	src    Source
	tok    *tokenizer
	closer io.Closer
	state  iterState

	// expected is the field count of the first record, or -1 before it.
	expected int
	count    uint64
}

// NewReader opens src for reading. src is anything NewSource accepts: a
// path, a foreign.Object, an *foreign.Adapter or an io.Reader. Path sources
// are opened immediately, so a missing file fails here.
func NewReader(src any, opts common.ReaderOptions) (*Reader, error) {
	cfg, err := opts.Resolve()
	if err != nil {
		return nil, err
	}
	s, err := NewSource(src)
	if err != nil {
		return nil, err
	}
	r, closer, err := s.Open()
	if err != nil {
		return nil, err
	}
	if cfg.Verbose {
		log.Printf("[STREAMCSV] Reading %s (delimiter %q, terminator %s, flexible %v)", s, cfg.Delimiter, cfg.Terminator, cfg.Flexible)
	}
	return &Reader{
		cfg:      cfg,
		src:      s,
		tok:      newTokenizer(r, cfg),
		closer:   closer,
		expected: -1,
	}, nil
}

// Next returns the next record. It returns io.EOF when the stream is
// exhausted, and a *common.Error for anything wrong with a single record or
// read.
func (r *Reader) Next() (common.Record, error) {
	if r.state == iterExhausted {
		return nil, io.EOF
	}
	r.state = iterActive

	raw, err := r.tok.next()
	if err == io.EOF {
		r.exhaust()
		return nil, io.EOF
	}
	if err != nil {
		err = classify("read", err)
		if r.cfg.Verbose {
			log.Printf("[STREAMCSV] %v", err)
		}
		return nil, err
	}
	rec, err := r.build(raw)
	if err != nil && r.cfg.Verbose {
		log.Printf("[STREAMCSV] %v", err)
	}
	return rec, err
}

// build checks the field count, then decodes every field as UTF-8.
func (r *Reader) build(raw rawRecord) (common.Record, error) {
	n := raw.numFields()
	if !r.cfg.Flexible {
		if r.expected < 0 {
			r.expected = n
		} else if n != r.expected {
			pos := raw.pos
			return nil, &common.Error{
				Kind:     common.KindStructure,
				Op:       "read",
				Pos:      &pos,
				Expected: r.expected,
				Actual:   n,
				Msg:      fmt.Sprintf("found record with %d fields, but the previous record has %d fields", n, r.expected),
			}
		}
	}

	rec := make(common.Record, n)
	for i := range n {
		f := raw.field(i)
		if !utf8.Valid(f) {
			pos := raw.pos
			return nil, &common.Error{
				Kind: common.KindDecode,
				Op:   "read",
				Pos:  &pos,
				Msg:  fmt.Sprintf("invalid UTF-8 in field %d", i),
			}
		}
		rec[i] = string(f)
	}
	r.count++
	return rec, nil
}

// All returns an iterator over the remaining records and per-record errors.
// Breaking out of the loop leaves the Reader usable.
func (r *Reader) All() iter.Seq2[common.Record, error] {
	return func(yield func(common.Record, error) bool) {
		for {
			rec, err := r.Next()
			if err == io.EOF {
				return
			}
			if !yield(rec, err) {
				return
			}
		}
	}
}

// ReadAll reads the remaining records. It stops at the first error and
// returns the records read before it.
func (r *Reader) ReadAll() ([]common.Record, error) {
	var out []common.Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// Close releases a path source's file and moves the Reader to its terminal
// state. Foreign sources are left open. Close is idempotent.
func (r *Reader) Close() error {
	r.state = iterExhausted
	return r.release()
}

func (r *Reader) exhaust() {
	r.state = iterExhausted
	if r.cfg.Verbose {
		log.Printf("[STREAMCSV] Reached end of %s after %d records", r.src, r.count)
	}
	if err := r.release(); err != nil && r.cfg.Verbose {
		log.Printf("[STREAMCSV] Failed to close %s: %v", r.src, err)
	}
}

func (r *Reader) release() error {
	if r.closer == nil {
		return nil
	}
	c := r.closer
	r.closer = nil
	return c.Close()
}

// classify maps a failure onto the error taxonomy. Errors that already carry
// a kind pass through unchanged.
func classify(op string, err error) error {
	var e *common.Error
	if errors.As(err, &e) {
		return err
	}
	return common.Errorf(common.KindIO, op, err, "read failed")
}
