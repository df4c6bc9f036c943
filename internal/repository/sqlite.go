package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const defaultLedgerPath = "./kestrel.db"

// ledgerPragmas are applied to every connection. busy_timeout lets a scan
// wait out an alert transition instead of failing with SQLITE_BUSY.
var ledgerPragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
	"foreign_keys(ON)",
}

// openSQLite opens the single-file ledger used by the Community tier.
func openSQLite(cfg domain.RepositoryConfig) (*sql.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = defaultLedgerPath
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}

	// Alert transitions run inside WithinTx; one connection keeps them from
	// interleaving with scans.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ledger %s: %v", domain.ErrUpstreamUnavailable, path, err)
	}
	return db, nil
}

func sqliteDSN(path string) string {
	q := make([]string, 0, len(ledgerPragmas))
	for _, p := range ledgerPragmas {
		q = append(q, "_pragma="+url.QueryEscape(p))
	}
	return "file:" + path + "?" + strings.Join(q, "&")
}

// isSQLiteUniqueViolation reports a duplicate transaction, card or alert ID.
func isSQLiteUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
