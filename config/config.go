package config

import (
	"fmt"
	"os"

	"github.com/darianmavgo/streamcsv/converters"
	"github.com/darianmavgo/streamcsv/converters/common"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// Config represents the application configuration.
type Config struct {
	BatchSize int  `hcl:"batch_size,optional"`
	LogErrors bool `hcl:"log_errors,optional"`
	Verbose   bool `hcl:"verbose,optional"`

	Reader *Reader `hcl:"reader,block"`
	Writer *Writer `hcl:"writer,block"`
}

// Reader is the reader {} block. Unset attributes keep the reader defaults.
type Reader struct {
	Delimiter       *string `hcl:"delimiter,optional"`
	Terminator      *string `hcl:"terminator,optional"`
	Quote           *string `hcl:"quote,optional"`
	Escape          *string `hcl:"escape,optional"`
	CRLF            bool    `hcl:"crlf,optional"`
	DoubleQuote     *bool   `hcl:"double_quote,optional"`
	Flexible        bool    `hcl:"flexible,optional"`
	DetectDelimiter bool    `hcl:"detect_delimiter,optional"`
}

// Writer is the writer {} block.
type Writer struct {
	Delimiter   *string `hcl:"delimiter,optional"`
	Terminator  *string `hcl:"terminator,optional"`
	Quote       *string `hcl:"quote,optional"`
	Escape      *string `hcl:"escape,optional"`
	CRLF        bool    `hcl:"crlf,optional"`
	DoubleQuote *bool   `hcl:"double_quote,optional"`
	QuoteStyle  string  `hcl:"quote_style,optional"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BatchSize: converters.DefaultBatchSize,
	}
}

// Load reads the configuration from the given HCL file.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(content, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config file: %s", diags.Error())
	}

	cfg := DefaultConfig()
	diags = gohcl.DecodeBody(file.Body, nil, cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode config: %s", diags.Error())
	}

	// Catch bad bytes at load time rather than on first use.
	if _, err := cfg.ReaderOptions().Resolve(); err != nil {
		return nil, fmt.Errorf("invalid reader block: %w", err)
	}
	if _, err := cfg.WriterOptions().Resolve(); err != nil {
		return nil, fmt.Errorf("invalid writer block: %w", err)
	}
	return cfg, nil
}

// Export writes the configuration to the specified file in HCL format.
func Export(path string, cfg *Config) error {
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	root.SetAttributeValue("batch_size", cty.NumberIntVal(int64(cfg.BatchSize)))
	root.SetAttributeValue("log_errors", cty.BoolVal(cfg.LogErrors))
	root.SetAttributeValue("verbose", cty.BoolVal(cfg.Verbose))

	if r := cfg.Reader; r != nil {
		root.AppendNewline()
		body := root.AppendNewBlock("reader", nil).Body()
		setBytes(body, "delimiter", r.Delimiter)
		setBytes(body, "terminator", r.Terminator)
		setBytes(body, "quote", r.Quote)
		setBytes(body, "escape", r.Escape)
		if r.CRLF {
			body.SetAttributeValue("crlf", cty.True)
		}
		if r.DoubleQuote != nil {
			body.SetAttributeValue("double_quote", cty.BoolVal(*r.DoubleQuote))
		}
		if r.Flexible {
			body.SetAttributeValue("flexible", cty.True)
		}
		if r.DetectDelimiter {
			body.SetAttributeValue("detect_delimiter", cty.True)
		}
	}

	if w := cfg.Writer; w != nil {
		root.AppendNewline()
		body := root.AppendNewBlock("writer", nil).Body()
		setBytes(body, "delimiter", w.Delimiter)
		setBytes(body, "terminator", w.Terminator)
		setBytes(body, "quote", w.Quote)
		setBytes(body, "escape", w.Escape)
		if w.CRLF {
			body.SetAttributeValue("crlf", cty.True)
		}
		if w.DoubleQuote != nil {
			body.SetAttributeValue("double_quote", cty.BoolVal(*w.DoubleQuote))
		}
		if w.QuoteStyle != "" {
			body.SetAttributeValue("quote_style", cty.StringVal(w.QuoteStyle))
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	_, err = file.Write(f.Bytes())
	if err != nil {
		return fmt.Errorf("failed to write config to file: %w", err)
	}

	return nil
}

func setBytes(body *hclwrite.Body, name string, v *string) {
	if v != nil {
		body.SetAttributeValue(name, cty.StringVal(*v))
	}
}

func bytesOf(v *string) []byte {
	if v == nil {
		return nil
	}
	return []byte(*v)
}

// ReaderOptions maps the reader block onto reader options.
func (c *Config) ReaderOptions() common.ReaderOptions {
	opts := common.ReaderOptions{Verbose: c.Verbose}
	if r := c.Reader; r != nil {
		opts.Delimiter = bytesOf(r.Delimiter)
		opts.Terminator = bytesOf(r.Terminator)
		opts.Quote = bytesOf(r.Quote)
		opts.Escape = bytesOf(r.Escape)
		opts.CRLF = r.CRLF
		opts.DoubleQuote = r.DoubleQuote
		opts.Flexible = r.Flexible
	}
	return opts
}

// WriterOptions maps the writer block onto writer options.
func (c *Config) WriterOptions() common.WriterOptions {
	opts := common.WriterOptions{Verbose: c.Verbose}
	if w := c.Writer; w != nil {
		opts.Delimiter = bytesOf(w.Delimiter)
		opts.Terminator = bytesOf(w.Terminator)
		opts.Quote = bytesOf(w.Quote)
		opts.Escape = bytesOf(w.Escape)
		opts.CRLF = w.CRLF
		opts.DoubleQuote = w.DoubleQuote
		opts.QuoteStyle = w.QuoteStyle
	}
	return opts
}

// ConversionConfig returns the driver config for opening an input.
func (c *Config) ConversionConfig(tableName string) *common.ConversionConfig {
	return &common.ConversionConfig{
		Reader:          c.ReaderOptions(),
		TableName:       tableName,
		DetectDelimiter: c.Reader != nil && c.Reader.DetectDelimiter,
		Verbose:         c.Verbose,
	}
}

// ImportOptions returns the SQLite import settings.
func (c *Config) ImportOptions() *converters.ImportOptions {
	return &converters.ImportOptions{
		LogErrors: c.LogErrors,
		Verbose:   c.Verbose,
		BatchSize: c.BatchSize,
	}
}
