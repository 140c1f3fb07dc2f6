// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package sqlite

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// sqlIdent matches a bare SQL identifier. Table and column names passed to
// addColumnIfMissing must match it because ALTER TABLE cannot take
// placeholders.
var sqlIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sqlDefToken matches one token of a column definition: a keyword, a
// numeric literal, or a single-quoted literal with no embedded quote.
var sqlDefToken = regexp.MustCompile(`^(?:[A-Za-z]+|[0-9]+(?:\.[0-9]+)?|'[^']*')$`)

// addColumnIfMissing brings an existing table up to the current schema by
// adding one column. It is a no-op when the column already exists, so the
// migration can run unconditionally on every open. The identifiers and the
// definition are validated before being spliced into the statement.
func addColumnIfMissing(db *sql.DB, table, column, columnDef string) error {
	if !sqlIdent.MatchString(table) {
		return fmt.Errorf("unsafe table name %q", table)
	}
	if !sqlIdent.MatchString(column) {
		return fmt.Errorf("unsafe column name %q", column)
	}

	def := strings.TrimSpace(columnDef)
	if def == "" {
		return fmt.Errorf("empty column definition for %s.%s", table, column)
	}
	for _, tok := range strings.Fields(def) {
		if !sqlDefToken.MatchString(tok) {
			return fmt.Errorf("unsafe token %q in column definition for %s.%s", tok, table, column)
		}
	}

	exists, err := columnExists(db, table, column)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if exists {
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, def)); err != nil {
		return fmt.Errorf("adding column %s.%s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
