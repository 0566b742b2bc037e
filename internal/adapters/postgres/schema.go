package postgres

import (
	"context"
	"fmt"
)

// Migrate creates the points table and its update index if missing.
func Migrate(ctx context.Context, db *DB, table string) error {
	if !tableName.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			id          text PRIMARY KEY,
			name_th     text NOT NULL DEFAULT '',
			name_en     text NOT NULL DEFAULT '',
			lat         double precision NOT NULL,
			lng         double precision NOT NULL,
			address_th  text NOT NULL DEFAULT '',
			address_en  text NOT NULL DEFAULT '',
			icon        text NOT NULL DEFAULT '',
			updated_at  timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS ` + indexName(table) + ` ON ` + table + ` (updated_at)`,
	}
	for _, s := range stmts {
		if _, err := db.Pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("migrate %s: %w", table, err)
		}
	}
	return nil
}

// Drop removes the points table.
func Drop(ctx context.Context, db *DB, table string) error {
	if !tableName.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	if _, err := db.Pool.Exec(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
		return fmt.Errorf("drop %s: %w", table, err)
	}
	return nil
}

func indexName(table string) string {
	name := table
	for i := len(table) - 1; i >= 0; i-- {
		if table[i] == '.' {
			name = table[i+1:]
			break
		}
	}
	return name + "_updated_at_idx"
}
