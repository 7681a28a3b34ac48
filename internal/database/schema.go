package database

import (
	"fmt"
	"os"
	"strings"

	"droplock/internal/database/migrations"
	"droplock/internal/droplock"
)

// ExtractSchema migrates a scratch in-memory database and returns its
// CREATE statements, tables first, then indexes.
func ExtractSchema() (string, error) {
	db, err := OpenConnection(":memory:")
	if err != nil {
		return "", err
	}
	defer db.Close()

	if err := migrations.Up(db); err != nil {
		return "", err
	}

	rows, err := db.Query(`
		SELECT sql || ';'
		FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND sql IS NOT NULL
		  AND name NOT LIKE 'sqlite_%'
		  AND tbl_name != 'schema_migrations'
		ORDER BY CASE type WHEN 'table' THEN 1 ELSE 2 END, name`)
	if err != nil {
		return "", fmt.Errorf("reading schema: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	b.WriteString("-- Generated from internal/database/migrations/files. Do not edit.\n\n")
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", fmt.Errorf("scanning schema: %w", err)
		}
		b.WriteString(stmt)
		b.WriteString("\n\n")
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("reading schema: %w", err)
	}
	return b.String(), nil
}

// BackupTo writes a consistent copy of the database to dest with VACUUM
// INTO. dest must not exist.
func (s *SQLiteDatabase) BackupTo(dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("backup target already exists: %s", dest)
	}

	ctx, cancel := s.ctx()
	defer cancel()

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return droplock.TransportError("writing backup", err)
	}
	return nil
}
