package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"filesdb-go/internal/database"
	"filesdb-go/internal/database/migrations"
)

// Regenerates internal/database/schema.go from the migration files: applies
// all migrations to a throwaway in-memory database and dumps the resulting
// schema into a Go constant that tests apply directly.
func main() {
	db, err := database.OpenConnection(":memory:")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migrations.MigrateUp(db); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}

	schema, err := extractSchema(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to extract schema: %v\n", err)
		os.Exit(1)
	}

	outPath := filepath.Join("internal", "database", "schema.go")

	content := "// Code generated from migration files; DO NOT EDIT.\n" +
		"// Source: internal/database/migrations/files/*.sql\n\n" +
		"package database\n\n" +
		"// Schema is the full current schema, as produced by applying all\n" +
		"// migrations. Tests apply it directly to skip migration machinery.\n" +
		"const Schema = `\n" + schema + "`\n"

	if err := os.WriteFile(outPath, []byte(content), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write schema file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Generated %s from migrations\n", outPath)
}

// extractSchema extracts the SQL schema from the database.
// It queries sqlite_master for all CREATE statements, excluding:
// - SQLite internal tables (sqlite_*)
// - Migration tracking table (schema_migrations)
func extractSchema(db *sql.DB) (string, error) {
	query := `
		SELECT sql || ';'
		FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND sql IS NOT NULL
		  AND name NOT LIKE 'sqlite_%'
		  AND name != 'schema_migrations'
		  AND tbl_name != 'schema_migrations'
		ORDER BY
		  CASE type
		    WHEN 'table' THEN 1
		    WHEN 'index' THEN 2
		  END,
		  name
	`

	rows, err := db.Query(query)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var schema string
	for rows.Next() {
		var sql string
		if err := rows.Scan(&sql); err != nil {
			return "", fmt.Errorf("scan failed: %w", err)
		}
		schema += sql + "\n\n"
	}

	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("rows error: %w", err)
	}

	return schema, nil
}
