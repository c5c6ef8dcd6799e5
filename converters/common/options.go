package common

import (
	"fmt"
	"strings"
)

// Default byte values shared by readers and writers.
const (
	DefaultDelimiter  = ','
	DefaultTerminator = '\n'
	DefaultQuote      = '"'
	DefaultEscape     = '\\'
)

// Terminator is the record separator: a single arbitrary byte, or CRLF mode
// where \r, \n and \r\n each end a record.
type Terminator struct {
	b    byte
	crlf bool
}

// TerminatorByte returns a terminator that ends records on b only.
func TerminatorByte(b byte) Terminator { return Terminator{b: b} }

// TerminatorCRLF ends records on \r, \n or \r\n.
var TerminatorCRLF = Terminator{crlf: true}

// IsCRLF reports whether t is the newline terminator.
func (t Terminator) IsCRLF() bool { return t.crlf }

// Byte returns the terminator byte. It is meaningless in CRLF mode.
func (t Terminator) Byte() byte { return t.b }

// Matches reports whether b ends a record under t.
func (t Terminator) Matches(b byte) bool {
	if t.crlf {
		return b == '\r' || b == '\n'
	}
	return b == t.b
}

func (t Terminator) String() string {
	if t.crlf {
		return "CRLF"
	}
	return fmt.Sprintf("%q", t.b)
}

// QuoteStyle decides which fields a writer wraps in quotes.
type QuoteStyle int

const (
	// QuoteNecessary quotes fields containing the delimiter, quote, escape or a terminator byte.
	QuoteNecessary QuoteStyle = iota
	// QuoteAlways quotes every field.
	QuoteAlways
	// QuoteNever quotes nothing and rejects fields that would be ambiguous.
	QuoteNever
	// QuoteNonNumeric quotes every field that is not a numeric literal.
	QuoteNonNumeric
)

var quoteStyleNames = map[QuoteStyle]string{
	QuoteNecessary:  "necessary",
	QuoteAlways:     "always",
	QuoteNever:      "never",
	QuoteNonNumeric: "non_numeric",
}

func (s QuoteStyle) String() string {
	if name, ok := quoteStyleNames[s]; ok {
		return name
	}
	return fmt.Sprintf("QuoteStyle(%d)", int(s))
}

// ParseQuoteStyle maps a quote style name to its QuoteStyle. An empty name is
// QuoteNecessary; an unknown name is a KindValue error.
func ParseQuoteStyle(name string) (QuoteStyle, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	if normalized == "" {
		return QuoteNecessary, nil
	}
	for style, n := range quoteStyleNames {
		if n == normalized {
			return style, nil
		}
	}
	return QuoteNecessary, Errorf(KindValue, "quote style", nil, "invalid quote style: %q", name)
}

// SingleByte validates an optional single-byte setting. nil yields def;
// anything other than exactly one byte is a KindConfig error.
func SingleByte(name string, value []byte, def byte) (byte, error) {
	if value == nil {
		return def, nil
	}
	if len(value) != 1 {
		return 0, Errorf(KindConfig, name, nil, "expected a single byte, got %q (%d bytes)", value, len(value))
	}
	return value[0], nil
}

func resolveTerminator(value []byte, crlf bool) (Terminator, error) {
	if crlf {
		if value != nil {
			return Terminator{}, Errorf(KindConfig, "terminator", nil, "an explicit terminator %q cannot be combined with CRLF", value)
		}
		return TerminatorCRLF, nil
	}
	b, err := SingleByte("terminator", value, DefaultTerminator)
	if err != nil {
		return Terminator{}, err
	}
	return TerminatorByte(b), nil
}

// ReaderOptions are the caller-supplied reader settings. A nil byte slice
// means "use the default"; a non-nil one must hold exactly one byte.
type ReaderOptions struct {
	Delimiter  []byte
	Terminator []byte
	Quote      []byte
	Escape     []byte // nil disables escape handling
	// CRLF ends records on \r, \n or \r\n. It excludes Terminator.
	CRLF bool
	// DoubleQuote reads "" inside a quoted field as one quote. nil means true.
	DoubleQuote *bool
	// Flexible accepts records of any length.
	Flexible bool
	Verbose  bool
}

// ReaderConfig is the validated form of ReaderOptions.
type ReaderConfig struct {
	Delimiter   byte
	Terminator  Terminator
	Quote       byte
	Escape      byte
	HasEscape   bool
	DoubleQuote bool
	Flexible    bool
	Verbose     bool
}

// Resolve validates o and fills in defaults.
func (o ReaderOptions) Resolve() (ReaderConfig, error) {
	cfg := ReaderConfig{
		DoubleQuote: o.DoubleQuote == nil || *o.DoubleQuote,
		Flexible:    o.Flexible,
		Verbose:     o.Verbose,
	}
	var err error
	if cfg.Delimiter, err = SingleByte("delimiter", o.Delimiter, DefaultDelimiter); err != nil {
		return ReaderConfig{}, err
	}
	if cfg.Terminator, err = resolveTerminator(o.Terminator, o.CRLF); err != nil {
		return ReaderConfig{}, err
	}
	if cfg.Quote, err = SingleByte("quote", o.Quote, DefaultQuote); err != nil {
		return ReaderConfig{}, err
	}
	if o.Escape != nil {
		if cfg.Escape, err = SingleByte("escape", o.Escape, 0); err != nil {
			return ReaderConfig{}, err
		}
		cfg.HasEscape = true
	}
	if err := checkDistinct(cfg.Delimiter, cfg.Terminator, cfg.Quote); err != nil {
		return ReaderConfig{}, err
	}
	return cfg, nil
}

// WriterOptions are the caller-supplied writer settings. Byte slices follow
// the same nil/one-byte rule as ReaderOptions.
type WriterOptions struct {
	Delimiter  []byte
	Terminator []byte
	Quote      []byte
	Escape     []byte
	// CRLF writes \r\n after each record. It excludes Terminator.
	CRLF bool
	// DoubleQuote writes a quote inside a quoted field as "". nil means true;
	// false escapes it with Escape instead.
	DoubleQuote *bool
	// QuoteStyle is one of necessary, always, never, non_numeric. Empty means necessary.
	QuoteStyle string
	Verbose    bool
}

// WriterConfig is the validated form of WriterOptions.
type WriterConfig struct {
	Delimiter   byte
	Terminator  Terminator
	Quote       byte
	Escape      byte
	DoubleQuote bool
	QuoteStyle  QuoteStyle
	Verbose     bool
}

// Resolve validates o and fills in defaults.
func (o WriterOptions) Resolve() (WriterConfig, error) {
	cfg := WriterConfig{
		DoubleQuote: o.DoubleQuote == nil || *o.DoubleQuote,
		Verbose:     o.Verbose,
	}
	var err error
	if cfg.Delimiter, err = SingleByte("delimiter", o.Delimiter, DefaultDelimiter); err != nil {
		return WriterConfig{}, err
	}
	if cfg.Terminator, err = resolveTerminator(o.Terminator, o.CRLF); err != nil {
		return WriterConfig{}, err
	}
	if cfg.Quote, err = SingleByte("quote", o.Quote, DefaultQuote); err != nil {
		return WriterConfig{}, err
	}
	if cfg.Escape, err = SingleByte("escape", o.Escape, DefaultEscape); err != nil {
		return WriterConfig{}, err
	}
	if cfg.QuoteStyle, err = ParseQuoteStyle(o.QuoteStyle); err != nil {
		return WriterConfig{}, err
	}
	if err := checkDistinct(cfg.Delimiter, cfg.Terminator, cfg.Quote); err != nil {
		return WriterConfig{}, err
	}
	if !cfg.DoubleQuote && cfg.Escape == cfg.Quote {
		return WriterConfig{}, Errorf(KindConfig, "escape", nil, "escape %q must differ from the quote when double_quote is off", cfg.Escape)
	}
	return cfg, nil
}

func checkDistinct(delimiter byte, terminator Terminator, quote byte) error {
	if delimiter == quote {
		return Errorf(KindConfig, "delimiter", nil, "delimiter and quote are both %q", delimiter)
	}
	if terminator.Matches(delimiter) {
		return Errorf(KindConfig, "delimiter", nil, "delimiter %q is also a record terminator", delimiter)
	}
	if terminator.Matches(quote) {
		return Errorf(KindConfig, "quote", nil, "quote %q is also a record terminator", quote)
	}
	return nil
}

// Bool returns a pointer to v, for the optional DoubleQuote settings.
func Bool(v bool) *bool { return &v }

// ConversionConfig stores the options a driver opens its input with.
type ConversionConfig struct {
	Reader    ReaderOptions
	TableName string // Name of the table; drivers pick a default when empty
	// DetectDelimiter sniffs the delimiter from the first line when Reader.Delimiter is nil.
	DetectDelimiter bool
	Verbose         bool
}

// DetectDelimiter attempts to detect the delimiter from a raw line of text.
// It checks common delimiters and returns the one that appears most often.
// Defaults to comma if line is empty or no clear winner.
func DetectDelimiter(line string) byte {
	if line == "" {
		return DefaultDelimiter
	}

	maxCount := 0
	winner := byte(DefaultDelimiter)
	for _, delim := range []byte{',', '\t', ';', '|'} {
		count := strings.Count(line, string(delim))
		if count > maxCount {
			maxCount = count
			winner = delim
		}
	}
	return winner
}
