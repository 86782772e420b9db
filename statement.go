package sqlbridge

import (
	"context"
	"maps"
	"slices"
	"strings"
)

// Statement is rewritten SQL together with its positional parameters. The
// i-th parameter belongs to the i-th marker of SQL(), left to right.
// A Statement never changes after it is built.
type Statement struct {
	sql      string
	params   []Value
	original string
	named    map[string]Value
	dialect  Dialect
}

// NewStatement rewrites sql for dialect d with the default configuration.
func NewStatement(sql string, params map[string]Value, d Dialect) (*Statement, error) {
	out, args, err := RewriteValues(sql, params, d)
	if err != nil {
		return nil, err
	}
	return &Statement{sql: out, params: args, original: sql, named: maps.Clone(params), dialect: d}, nil
}

// SQL returns the rewritten SQL.
func (s *Statement) SQL() string { return s.sql }

// Params returns a copy of the positional parameters.
func (s *Statement) Params() []Value { return slices.Clone(s.params) }

// OriginalSQL returns the SQL as written, with named placeholders.
func (s *Statement) OriginalSQL() string { return s.original }

// OriginalParams returns a copy of the named parameters.
func (s *Statement) OriginalParams() map[string]Value { return maps.Clone(s.named) }

// Dialect returns the dialect the statement was rewritten for.
func (s *Statement) Dialect() Dialect { return s.dialect }

// Args returns the parameters as database/sql arguments. Every element is a
// Value, which implements driver.Valuer.
func (s *Statement) Args() []any {
	args := make([]any, len(s.params))
	for i, p := range s.params {
		args[i] = p
	}
	return args
}

// Prepared returns the driver-ready form: SQL and arguments.
func (s *Statement) Prepared() (string, []any) {
	return s.sql, s.Args()
}

// String renders the statement and its parameters for logs.
func (s *Statement) String() string {
	var b strings.Builder
	b.WriteString(s.sql)
	if len(s.params) == 0 {
		return b.String()
	}
	b.WriteString(" [")
	for i, p := range s.params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteByte(']')
	return b.String()
}

// ExecContext executes the statement and returns the number of affected rows.
func (s *Statement) ExecContext(ctx context.Context, db Execer) (int64, error) {
	res, err := db.ExecContext(ctx, s.sql, s.Args()...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExecResultContext executes the statement and returns a row-less Result
// carrying the affected rows and, when the driver reports one, the last
// inserted id.
func (s *Statement) ExecResultContext(ctx context.Context, db Execer) (*Result, error) {
	res, err := db.ExecContext(ctx, s.sql, s.Args()...)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	out := &Result{types: ColumnTypes{}, rowsAffected: affected}
	if id, err := res.LastInsertId(); err == nil && id >= 0 {
		u := uint64(id)
		out.lastInsertID = &u
	}
	return out, nil
}

// QueryContext runs the statement and decodes every row.
func (s *Statement) QueryContext(ctx context.Context, db Queryer) (*Result, error) {
	rows, err := db.QueryContext(ctx, s.sql, s.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResult(rows, s.dialect)
}

// QueryAllContext runs the statement and returns its rows.
func (s *Statement) QueryAllContext(ctx context.Context, db Queryer) ([]Row, error) {
	res, err := s.QueryContext(ctx, db)
	if err != nil {
		return nil, err
	}
	return res.rows, nil
}

// QueryOneContext runs the statement and returns the first row, or an empty
// Row when the query returns nothing.
func (s *Statement) QueryOneContext(ctx context.Context, db Queryer) (Row, error) {
	res, err := s.QueryContext(ctx, db)
	if err != nil {
		return nil, err
	}
	if first, ok := res.First(); ok {
		return first, nil
	}
	return Row{}, nil
}
