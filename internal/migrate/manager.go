// Package migrate applies the SQL schema and seed files that ship under
// ops/migrations.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"
)

// Manager executes SQL migrations and seed files stored on disk. Each file is
// applied once inside its own transaction and recorded in a bookkeeping table.
type Manager struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
}

// NewManager constructs a Manager over the given directories.
func NewManager(db *sql.DB, migrationsDir, seedsDir string) *Manager {
	return &Manager{db: db, migrationsDir: migrationsDir, seedsDir: seedsDir}
}

// Up applies all pending *.up.sql migrations in name order.
func (m *Manager) Up(ctx context.Context) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	done, _, err := m.applied(ctx, migrationsTable)
	if err != nil {
		return err
	}
	files, err := collectSQL(m.migrationsDir, ".up.sql")
	if err != nil {
		return err
	}
	for _, f := range files {
		if done[f.base] {
			continue
		}
		if err := m.execFile(ctx, f.path); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.base, err)
		}
		if err := m.record(ctx, migrationsTable, f.base); err != nil {
			return err
		}
	}
	return nil
}

// Down rolls back the most recently applied migration using its .down.sql
// counterpart.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	_, history, err := m.applied(ctx, migrationsTable)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return errors.New("no migrations applied")
	}
	last := history[len(history)-1]
	downPath := strings.TrimSuffix(filepath.Join(m.migrationsDir, last), ".up.sql") + ".down.sql"
	if _, err := os.Stat(downPath); err != nil {
		return fmt.Errorf("missing down migration for %s", last)
	}
	if err := m.execFile(ctx, downPath); err != nil {
		return fmt.Errorf("rollback migration %s: %w", last, err)
	}
	_, err = m.db.ExecContext(ctx, `delete from `+migrationsTable+` where name = $1`, last)
	return err
}

// Status returns applied migrations in application order.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureTables(ctx); err != nil {
		return nil, err
	}
	_, history, err := m.applied(ctx, migrationsTable)
	return history, err
}

// Seed applies the seed files that have not run yet. Seeds carry the
// procedure catalog and the bootstrap admin account.
func (m *Manager) Seed(ctx context.Context) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	done, _, err := m.applied(ctx, seedsTable)
	if err != nil {
		return err
	}
	files, err := collectSQL(m.seedsDir, ".sql")
	if err != nil {
		return err
	}
	for _, f := range files {
		if done[f.base] {
			continue
		}
		if err := m.execFile(ctx, f.path); err != nil {
			return fmt.Errorf("apply seed %s: %w", f.base, err)
		}
		if err := m.record(ctx, seedsTable, f.base); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) ensureTables(ctx context.Context) error {
	for _, table := range []string{migrationsTable, seedsTable} {
		ddl := `create table if not exists ` + table + ` (
			name text primary key,
			applied_at timestamptz not null default now()
		);`
		if _, err := m.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) execFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) record(ctx context.Context, table, name string) error {
	_, err := m.db.ExecContext(ctx, `insert into `+table+`(name) values ($1)`, name)
	return err
}

// applied returns the executed file names both as a set and in order.
func (m *Manager) applied(ctx context.Context, table string) (map[string]bool, []string, error) {
	rows, err := m.db.QueryContext(ctx, `select name from `+table+` order by applied_at asc`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	set := make(map[string]bool)
	var order []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, nil, err
		}
		set[name] = true
		order = append(order, name)
	}
	return set, order, rows.Err()
}

type sqlFile struct {
	base string
	path string
}

func collectSQL(dir, suffix string) ([]sqlFile, error) {
	if dir == "" {
		return nil, nil
	}
	var files []sqlFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		files = append(files, sqlFile{base: d.Name(), path: path})
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].base < files[j].base })
	return files, nil
}

// splitStatements splits on semicolons outside single-quoted strings. Good
// enough for the plain DDL and inserts shipped with the service.
func splitStatements(input string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
	)
	for _, r := range input {
		current.WriteRune(r)
		switch r {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
