package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Dialect captures the SQL differences between the supported engines.
type Dialect struct {
	Name        string
	placeholder func(n int) string
	docParam    func(ph string) string
	field       func(name string) string
	schema      string
}

// Postgres stores documents in a JSONB column.
var Postgres = Dialect{
	Name:        "postgres",
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	docParam:    func(ph string) string { return ph + "::jsonb" },
	field:       func(name string) string { return "doc->>'" + name + "'" },
	schema: `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			doc        JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, id)
		)`,
}

// SQLite stores documents as JSON text and queries them with json_extract.
var SQLite = Dialect{
	Name:        "sqlite",
	placeholder: func(n int) string { return "?" },
	docParam:    func(ph string) string { return ph },
	field:       func(name string) string { return "json_extract(doc, '$." + name + "')" },
	schema: `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			doc        TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (collection, id)
		)`,
}

// SQL is a Store over a single documents table.
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQL wraps an open database.
func NewSQL(db *sql.DB, dialect Dialect) *SQL {
	return &SQL{db: db, dialect: dialect}
}

// Migrate creates the documents table.
func (s *SQL) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("%s: create documents table: %w", s.dialect.Name, err)
	}
	return nil
}

func (s *SQL) Get(ctx context.Context, collection, id string, out any) error {
	d := s.dialect
	row := s.db.QueryRowContext(ctx,
		"SELECT doc FROM documents WHERE collection = "+d.placeholder(1)+" AND id = "+d.placeholder(2),
		collection, id)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return decodeOne(raw, out)
}

func (s *SQL) Put(ctx context.Context, collection, id string, doc any) error {
	raw, err := encode(doc)
	if err != nil {
		return err
	}
	d := s.dialect
	query := fmt.Sprintf(`
		INSERT INTO documents (collection, id, doc, updated_at)
		VALUES (%s, %s, %s, %s)
		ON CONFLICT (collection, id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		d.placeholder(1), d.placeholder(2), d.docParam(d.placeholder(3)), d.placeholder(4))
	_, err = s.db.ExecContext(ctx, query, collection, id, string(raw), time.Now().UTC())
	return err
}

func (s *SQL) Delete(ctx context.Context, collection, id string) error {
	d := s.dialect
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = "+d.placeholder(1)+" AND id = "+d.placeholder(2),
		collection, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) Find(ctx context.Context, collection string, filter Filter, out any) error {
	d := s.dialect
	args := []any{collection}
	clauses := []string{"collection = " + d.placeholder(1)}
	for _, k := range sortedKeys(filter) {
		if !validField(k) {
			return fmt.Errorf("invalid filter field %q", k)
		}
		args = append(args, filter[k])
		clauses = append(clauses, d.field(k)+" = "+d.placeholder(len(args)))
	}
	query := "SELECT doc FROM documents WHERE " + strings.Join(clauses, " AND ") + " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	var raws [][]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		raws = append(raws, raw)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return decodeAll(raws, out)
}
