package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/darianmavgo/streamcsv/config"
	"github.com/darianmavgo/streamcsv/converters"
	_ "github.com/darianmavgo/streamcsv/converters/all"
	"github.com/darianmavgo/streamcsv/converters/common"
	"github.com/darianmavgo/streamcsv/converters/csv"
	"github.com/darianmavgo/streamcsv/foreign"
)

const usage = `Usage:
  streamcsv [--log] [--config FILE] read <input|->                 # Print every record
  streamcsv [--log] [--config FILE] convert <input|-> [output]     # Re-encode any table source as CSV
  streamcsv [--log] [--config FILE] sqlite <input> [output_db]     # Import into a SQLite database
  streamcsv config export <file>                                   # Write the default config`

func getDriverName(path string) (string, error) {
	if path == "-" {
		return "csv", nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv", ".tsv", ".psv":
		return "csv", nil
	case ".xlsx", ".xls":
		return "excel", nil
	case ".html", ".htm":
		return "html", nil
	case ".json":
		return "json", nil
	case ".txt":
		return "txt", nil
	}
	return "", fmt.Errorf("unsupported file type: %s", ext)
}

// inputSource maps "-" to standard input as a foreign readable; anything
// else is a path.
func inputSource(path string) any {
	if path == "-" {
		return foreign.Native(os.Stdin)
	}
	return path
}

func openProvider(path string, cfg *config.Config) (common.RowProvider, error) {
	driverName, err := getDriverName(path)
	if err != nil {
		return nil, err
	}
	conv := cfg.ConversionConfig("")
	if conv.Reader.Delimiter == nil && strings.EqualFold(filepath.Ext(path), ".tsv") {
		conv.Reader.Delimiter = []byte("\t")
	}
	provider, err := converters.Open(driverName, inputSource(path), conv)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize converter: %w", err)
	}
	return provider, nil
}

func closeProvider(p common.RowProvider) {
	if c, ok := p.(io.Closer); ok {
		c.Close()
	}
}

// readRecords prints every record of a CSV input. Bad records are reported
// on errOut and reading continues; a stream failure stops it.
func readRecords(path string, cfg *config.Config, out, errOut io.Writer) error {
	r, err := csv.NewReader(inputSource(path), cfg.ReaderOptions())
	if err != nil {
		return err
	}
	defer r.Close()

	bw := bufio.NewWriter(out)
	defer bw.Flush()

	bad := 0
	for rec, err := range r.All() {
		if err != nil {
			bad++
			fmt.Fprintf(errOut, "%v\n", err)
			if errors.Is(err, common.ErrIO) || errors.Is(err, common.ErrMode) {
				return err
			}
			continue
		}
		fmt.Fprintf(bw, "%q\n", []string(rec))
	}
	if bad > 0 {
		return fmt.Errorf("%d bad records", bad)
	}
	return nil
}

// convertToCSV writes the first table of any supported input as CSV.
func convertToCSV(inputPath string, out io.Writer, cfg *config.Config) error {
	provider, err := openProvider(inputPath, cfg)
	if err != nil {
		return err
	}
	defer closeProvider(provider)

	bw := bufio.NewWriter(out)
	w, err := csv.NewWriter(bw, cfg.WriterOptions())
	if err != nil {
		return err
	}
	_, err = csv.Export(context.Background(), provider, w, csv.ExportOptions{
		SkipErrors: cfg.LogErrors,
		Verbose:    cfg.Verbose,
	})
	return err
}

// FileToSQLite converts a file to SQLite using the appropriate converter
func FileToSQLite(inputPath, outputPath string, cfg *config.Config) error {
	provider, err := openProvider(inputPath, cfg)
	if err != nil {
		return err
	}
	defer closeProvider(provider)

	// Ensure output directory exists
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	outputFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer outputFile.Close()

	return converters.ImportToSQLite(provider, outputFile, cfg.ImportOptions())
}

func run(args []string, stdout, stderr io.Writer) int {
	logMode := false
	configPath := ""

	// Filter out global flags
	var cleanArgs []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--log", "-v":
			logMode = true
		case "--config":
			if i+1 >= len(args) {
				fmt.Fprintln(stderr, "--config needs a file")
				return 1
			}
			i++
			configPath = args[i]
		default:
			cleanArgs = append(cleanArgs, args[i])
		}
	}

	if len(cleanArgs) < 2 {
		fmt.Fprintln(stderr, usage)
		return 1
	}

	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error loading config: %v\n", err)
			return 1
		}
		cfg = loaded
	}
	if logMode {
		cfg.Verbose = true
		cfg.LogErrors = true
	}

	switch cmd, input := cleanArgs[0], cleanArgs[1]; cmd {
	case "read":
		if err := readRecords(input, cfg, stdout, stderr); err != nil {
			fmt.Fprintf(stderr, "Error reading %s: %v\n", input, err)
			return 1
		}

	case "convert":
		out := stdout
		if len(cleanArgs) >= 3 {
			f, err := os.Create(cleanArgs[2])
			if err != nil {
				fmt.Fprintf(stderr, "Error creating output file: %v\n", err)
				return 1
			}
			defer f.Close()
			out = f
		}
		if err := convertToCSV(input, out, cfg); err != nil {
			fmt.Fprintf(stderr, "Error converting %s: %v\n", input, err)
			return 1
		}

	case "sqlite":
		outputPath := input + ".db"
		if len(cleanArgs) >= 3 {
			outputPath = cleanArgs[2]
		}
		if err := FileToSQLite(input, outputPath, cfg); err != nil {
			fmt.Fprintf(stderr, "Error converting file: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Successfully converted %s to %s\n", input, outputPath)

	case "config":
		if input != "export" || len(cleanArgs) < 3 {
			fmt.Fprintln(stderr, "Usage: streamcsv config export <file>")
			return 1
		}
		if err := config.Export(cleanArgs[2], cfg); err != nil {
			fmt.Fprintf(stderr, "Error exporting config: %v\n", err)
			return 1
		}

	default:
		fmt.Fprintln(stderr, usage)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
