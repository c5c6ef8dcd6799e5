package csv

import (
	"io"

	"github.com/darianmavgo/streamcsv/converters/common"
)

const readChunkSize = 8 << 10

type parseState int

const (
	stateStartRecord parseState = iota
	stateStartField
	stateInField
	stateInQuoted
	stateQuoteInQuoted
	stateEscapeInQuoted
)

// rawRecord is one tokenized record. data and ends alias tokenizer storage
// and are only valid until the next call to next.
type rawRecord struct {
	data []byte
	ends []int
	pos  common.Position
}

func (r rawRecord) numFields() int { return len(r.ends) }

func (r rawRecord) field(i int) []byte {
	start := 0
	if i > 0 {
		start = r.ends[i-1]
	}
	return r.data[start:r.ends[i]]
}

// tokenizer splits a byte stream into records. Its state survives failed
// reads: after an I/O error the next call resumes the same record.
type tokenizer struct {
	src io.Reader
	cfg common.ReaderConfig

	buf     []byte
	pos     int
	end     int
	eof     bool
	pending error

	state parseState
	data  []byte
	ends  []int

	offset  uint64
	line    uint64
	records uint64
	start   common.Position
}

func newTokenizer(src io.Reader, cfg common.ReaderConfig) *tokenizer {
	return &tokenizer{
		src:  src,
		cfg:  cfg,
		buf:  make([]byte, readChunkSize),
		data: make([]byte, 0, 256),
		ends: make([]int, 0, 16),
		line: 1,
	}
}

// fill pulls the next chunk from src. A read that returns data together with
// an error hands the data over now and the error on the following call.
func (t *tokenizer) fill() error {
	if t.pending != nil {
		err := t.pending
		t.pending = nil
		return err
	}
	n, err := t.src.Read(t.buf)
	t.pos, t.end = 0, n
	switch {
	case err == io.EOF:
		t.eof = true
	case err != nil && n > 0:
		t.pending = err
	case err != nil:
		return err
	}
	return nil
}

// next returns the next record, io.EOF at the end of the stream, or an error.
func (t *tokenizer) next() (rawRecord, error) {
	for {
		if t.pos >= t.end {
			if t.eof {
				return t.finish()
			}
			if err := t.fill(); err != nil {
				return rawRecord{}, err
			}
			continue
		}

		switch t.state {
		case stateInField:
			t.consumeRun(t.plainRun())
		case stateInQuoted:
			t.consumeRun(t.quotedRun())
		}
		if t.pos >= t.end {
			continue
		}

		b := t.buf[t.pos]
		if t.state == stateStartRecord {
			if t.cfg.Terminator.Matches(b) {
				t.advance(b)
				continue
			}
			t.start = common.Position{Byte: t.offset, Line: t.line, Record: t.records}
			t.state = stateStartField
		}
		t.advance(b)
		if done := t.step(b); done {
			return t.emit(), nil
		}
	}
}

// step feeds one byte to the state machine and reports whether it ended a record.
func (t *tokenizer) step(b byte) bool {
	cfg := &t.cfg
	switch t.state {
	case stateStartField:
		if b == cfg.Quote {
			t.state = stateInQuoted
			return false
		}
		return t.unquoted(b)
	case stateInField:
		return t.unquoted(b)
	case stateInQuoted:
		switch {
		case b == cfg.Quote:
			t.state = stateQuoteInQuoted
		case cfg.HasEscape && b == cfg.Escape:
			t.state = stateEscapeInQuoted
		default:
			t.data = append(t.data, b)
		}
	case stateQuoteInQuoted:
		if cfg.DoubleQuote && b == cfg.Quote {
			t.data = append(t.data, b)
			t.state = stateInQuoted
			return false
		}
		return t.unquoted(b)
	case stateEscapeInQuoted:
		t.data = append(t.data, b)
		t.state = stateInQuoted
	}
	return false
}

func (t *tokenizer) unquoted(b byte) bool {
	switch {
	case b == t.cfg.Delimiter:
		t.ends = append(t.ends, len(t.data))
		t.state = stateStartField
	case t.cfg.Terminator.Matches(b):
		t.ends = append(t.ends, len(t.data))
		return true
	default:
		t.data = append(t.data, b)
		t.state = stateInField
	}
	return false
}

// plainRun counts leading buffered bytes that extend an unquoted field as-is.
func (t *tokenizer) plainRun() int {
	data := t.buf[t.pos:t.end]
	for i, b := range data {
		if b == t.cfg.Delimiter || b == '\n' || t.cfg.Terminator.Matches(b) {
			return i
		}
	}
	return len(data)
}

// quotedRun counts leading buffered bytes that extend a quoted field as-is.
func (t *tokenizer) quotedRun() int {
	data := t.buf[t.pos:t.end]
	for i, b := range data {
		if b == t.cfg.Quote || b == '\n' || (t.cfg.HasEscape && b == t.cfg.Escape) {
			return i
		}
	}
	return len(data)
}

func (t *tokenizer) consumeRun(n int) {
	if n == 0 {
		return
	}
	t.data = append(t.data, t.buf[t.pos:t.pos+n]...)
	t.pos += n
	t.offset += uint64(n)
}

func (t *tokenizer) advance(b byte) {
	t.pos++
	t.offset++
	if b == '\n' {
		t.line++
	}
}

// finish handles end of stream for whatever record is in progress.
func (t *tokenizer) finish() (rawRecord, error) {
	switch t.state {
	case stateStartRecord:
		return rawRecord{}, io.EOF
	case stateInQuoted, stateEscapeInQuoted:
		pos := t.start
		t.reset()
		t.records++
		return rawRecord{}, &common.Error{Kind: common.KindValue, Op: "read", Pos: &pos, Msg: "unterminated quoted field"}
	}
	t.ends = append(t.ends, len(t.data))
	return t.emit(), nil
}

func (t *tokenizer) emit() rawRecord {
	rec := rawRecord{data: t.data, ends: t.ends, pos: t.start}
	t.reset()
	t.records++
	return rec
}

// reset readies the state for a new record. Storage is reused, so records
// handed out earlier must already have been copied.
func (t *tokenizer) reset() {
	t.state = stateStartRecord
	t.data = t.data[:0]
	t.ends = t.ends[:0]
}
