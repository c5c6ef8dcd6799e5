package common

import "fmt"

// Record is one parsed row: its fields in column order.
type Record []string

// Clone returns a copy of r that shares no storage with it.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	copy(out, r)
	return out
}

// Position locates the start of a record in the input.
type Position struct {
	Byte   uint64 // byte offset of the record's first byte
	Line   uint64 // 1-based line of the record's first byte
	Record uint64 // 0-based record index
}

func (p Position) String() string {
	return fmt.Sprintf("byte %d, line %d, record %d", p.Byte, p.Line, p.Record)
}
