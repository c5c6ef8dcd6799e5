package common

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies every error the codec reports.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindConfig: a delimiter, terminator, quote or escape value is not exactly one byte.
	KindConfig
	// KindCapability: the object exposes neither a path nor the needed read/write capability.
	KindCapability
	// KindMode: the foreign stream deals in decoded text instead of bytes.
	KindMode
	// KindIO: the foreign call itself failed, or a local file could not be opened.
	KindIO
	// KindDecode: a field is not valid UTF-8.
	KindDecode
	// KindStructure: a record's field count disagrees with the first record.
	KindStructure
	// KindValue: any other malformed argument or input.
	KindValue
)

var kindNames = [...]string{
	KindUnknown:    "unknown error",
	KindConfig:     "config error",
	KindCapability: "capability error",
	KindMode:       "mode error",
	KindIO:         "io error",
	KindDecode:     "decode error",
	KindStructure:  "structure error",
	KindValue:      "value error",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
	return kindNames[k]
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrConfig     = errors.New("streamcsv: config error")
	ErrCapability = errors.New("streamcsv: capability error")
	ErrMode       = errors.New("streamcsv: mode error")
	ErrIO         = errors.New("streamcsv: io error")
	ErrDecode     = errors.New("streamcsv: decode error")
	ErrStructure  = errors.New("streamcsv: structure error")
	ErrValue      = errors.New("streamcsv: value error")
)

var kindSentinels = map[ErrorKind]error{
	KindConfig:     ErrConfig,
	KindCapability: ErrCapability,
	KindMode:       ErrMode,
	KindIO:         ErrIO,
	KindDecode:     ErrDecode,
	KindStructure:  ErrStructure,
	KindValue:      ErrValue,
}

// Error is the classified error surfaced by readers, writers and adapters.
type Error struct {
	Kind ErrorKind
	// Op names the operation that failed ("read", "write", "flush", "open", "new reader", ...).
	Op string
	// Pos is set for errors tied to a record (decode, structure, unterminated quotes).
	Pos *Position
	// Expected and Actual are field counts; only meaningful for KindStructure.
	Expected int
	Actual   int
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("streamcsv: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Pos != nil {
		fmt.Fprintf(&b, " at %s", e.Pos)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, " (cause: %v)", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// Errorf builds an *Error of the given kind with a formatted message.
func Errorf(kind ErrorKind, op string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// PositionOf returns the position carried by err, if any.
func PositionOf(err error) (Position, bool) {
	var e *Error
	if errors.As(err, &e) && e.Pos != nil {
		return *e.Pos, true
	}
	return Position{}, false
}
