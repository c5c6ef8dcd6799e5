package converters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/darianmavgo/streamcsv/converters/common"

	_ "modernc.org/sqlite"
)

var ErrInterrupted = errors.New("operation interrupted by user")

// DefaultBatchSize is the number of rows inserted before a transaction is
// committed, so long-running streams save progress periodically.
const DefaultBatchSize = 1000

// ErrorTable is where row errors go when ImportOptions.LogErrors is set.
const ErrorTable = "_streamcsv_errors"

// ImportOptions defines configuration for the import process.
type ImportOptions struct {
	LogErrors bool // If true, row errors are logged to ErrorTable instead of aborting.
	Verbose   bool // If true, enables detailed logging.
	BatchSize int  // Rows per transaction; DefaultBatchSize when zero.
}

func (o *ImportOptions) verbose() bool { return o != nil && o.Verbose }

func (o *ImportOptions) batchSize() int {
	if o == nil || o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

// ImportToSQLite imports data from a RowProvider and writes the resulting SQLite database
// to the provided io.Writer.
// If writer is an *os.File, it writes directly to that file to allow partial data persistence.
// Otherwise, it uses a temporary file for construction and copies it to the writer.
func ImportToSQLite(provider common.RowProvider, writer io.Writer, opts *ImportOptions) error {
	var dbPath string
	useTemp := true

	// Check if writer is a file we can use directly
	if f, ok := writer.(*os.File); ok {
		stat, err := f.Stat()
		// Ensure it's a regular file (not stdout/pipe)
		if err == nil && stat.Mode().IsRegular() {
			dbPath = f.Name()
			useTemp = false
			if opts.verbose() {
				log.Printf("[STREAMCSV] Using direct file: %s", dbPath)
			}
		}
	}

	if useTemp {
		tmpFile, err := os.CreateTemp("", "streamcsv-*.db")
		if err != nil {
			return fmt.Errorf("failed to create temp file: %w", err)
		}
		dbPath = tmpFile.Name()
		tmpFile.Close() // Close it so sql.Open can use it

		if opts.verbose() {
			log.Printf("[STREAMCSV] Created temp file: %s", dbPath)
		}
		defer os.Remove(dbPath)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Limit to 1 connection to avoid locking issues and improve tx.Stmt performance
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA page_size = 65536; PRAGMA cache_size = -2000;"); err != nil {
		db.Close()
		return fmt.Errorf("failed to set PRAGMAs: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if opts.verbose() {
		log.Printf("[STREAMCSV] Starting database population...")
	}
	err = populateDB(ctx, db, provider, opts)
	db.Close()

	if useTemp {
		if err != nil {
			return err // If failed, don't copy
		}

		f, err := os.Open(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open temp file for reading: %w", err)
		}
		defer f.Close()

		if opts.verbose() {
			log.Printf("[STREAMCSV] Copying temp database to final output...")
		}
		if _, err := io.Copy(writer, f); err != nil {
			return fmt.Errorf("failed to write to output: %w", err)
		}
	}

	if err == nil && opts.verbose() {
		log.Printf("[STREAMCSV] Conversion completed successfully.")
	}
	return err
}

// populateDB creates one table per provider table and streams its rows in.
func populateDB(ctx context.Context, db *sql.DB, provider common.RowProvider, opts *ImportOptions) error {
	logErrors := opts != nil && opts.LogErrors

	if logErrors {
		_, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + ErrorTable + ` (
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
			kind TEXT,
			message TEXT,
			table_name TEXT,
			record_index INTEGER,
			row_data TEXT
		)`)
		if err != nil {
			return fmt.Errorf("failed to create error log table: %w", err)
		}
	}

	for _, tableName := range provider.GetTableNames() {
		if err := importTable(ctx, db, provider, tableName, opts); err != nil {
			return err
		}
	}
	return nil
}

func importTable(ctx context.Context, db *sql.DB, provider common.RowProvider, tableName string, opts *ImportOptions) error {
	logErrors := opts != nil && opts.LogErrors
	batchSize := opts.batchSize()

	headers := provider.GetHeaders(tableName)
	if len(headers) == 0 {
		return nil // Skip tables without headers
	}

	if opts.verbose() {
		log.Printf("[STREAMCSV] Creating table: %s with headers: %v", tableName, headers)
	}
	if _, err := db.Exec(common.GenCreateTableSQL(tableName, headers)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", tableName, err)
	}

	insertSQL, err := common.GenInsertSQL(tableName, headers)
	if err != nil {
		return fmt.Errorf("failed to generate insert statement for table %s: %w", tableName, err)
	}
	mainStmt, err := db.Prepare(insertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement for table %s: %w", tableName, err)
	}
	defer mainStmt.Close()

	var mainLogStmt *sql.Stmt
	if logErrors {
		mainLogStmt, err = db.Prepare(`INSERT INTO ` + ErrorTable + ` (kind, message, table_name, record_index, row_data) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare log statement: %w", err)
		}
		defer mainLogStmt.Close()
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt := tx.Stmt(mainStmt)
	var logStmt *sql.Stmt
	if logErrors {
		logStmt = tx.Stmt(mainLogStmt)
	}

	logRow := func(kind, message string, index any, row any) error {
		rowData := ""
		if row != nil {
			rowData = fmt.Sprintf("%v", row)
		}
		_, err := logStmt.Exec(kind, message, tableName, index, rowData)
		return err
	}

	args := make([]any, len(headers))
	rowCount := 0
	errCount := 0

	err = provider.ScanRows(ctx, tableName, func(row common.Record, rowErr error) error {
		if rowErr != nil {
			errCount++
			if !logErrors {
				return rowErr
			}
			var index any
			if pos, ok := common.PositionOf(rowErr); ok {
				index = int64(pos.Record)
			}
			if err := logRow(common.KindOf(rowErr).String(), rowErr.Error(), index, nil); err != nil {
				return fmt.Errorf("failed to log error: %w", err)
			}
			return nil // Continue
		}

		// Pad short rows with NULL, truncate long ones.
		for i := range args {
			if i < len(row) {
				args[i] = row[i]
			} else {
				args[i] = nil
			}
		}

		if _, err := stmt.Exec(args...); err != nil {
			if logErrors {
				if err := logRow("insert error", err.Error(), nil, row); err != nil {
					return fmt.Errorf("failed to log insert error: %w", err)
				}
				return nil // Continue
			}
			return fmt.Errorf("failed to insert row in table %s: %w", tableName, err)
		}

		rowCount++
		if rowCount%batchSize == 0 {
			stmt.Close()
			if logStmt != nil {
				logStmt.Close()
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("failed to commit transaction for table %s: %w", tableName, err)
			}
			if opts.verbose() {
				log.Printf("[STREAMCSV] Committed %d rows to %s", rowCount, tableName)
			}

			tx, err = db.Begin()
			if err != nil {
				return fmt.Errorf("failed to begin transaction: %w", err)
			}
			stmt = tx.Stmt(mainStmt)
			if logErrors {
				logStmt = tx.Stmt(mainLogStmt)
			}
		}
		return nil
	})

	stmt.Close() // Close statement before commit/rollback
	if logStmt != nil {
		logStmt.Close()
	}

	// A failed Begin after a batch commit leaves no transaction to finish.
	if tx == nil {
		return fmt.Errorf("failed to scan rows for table %s: %w", tableName, err)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			err = ErrInterrupted
		}
		// Rows already inserted are intact when the user stops the import or
		// the stream itself fails, so keep them.
		if errors.Is(err, ErrInterrupted) || errors.Is(err, common.ErrIO) || errors.Is(err, common.ErrMode) {
			if opts.verbose() {
				log.Printf("[STREAMCSV] Stopped (%v). Committing partial transaction for table %s...", err, tableName)
			}
			if commitErr := tx.Commit(); commitErr != nil {
				log.Printf("[STREAMCSV] Failed to commit on stop: %v", commitErr)
			}
			if errors.Is(err, ErrInterrupted) {
				return err
			}
			return fmt.Errorf("failed to scan rows for table %s: %w", tableName, err)
		}
		tx.Rollback()
		return fmt.Errorf("failed to scan rows for table %s: %w", tableName, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction for table %s: %w", tableName, err)
	}
	if opts.verbose() {
		log.Printf("[STREAMCSV] Finished table %s, total rows: %d, row errors: %d", tableName, rowCount, errCount)
	}
	return nil
}
