package sqlbridge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Dialect identifies the target database: it selects the placeholder
// markers, whether array parameters are allowed, and how driver type names
// map to column kinds.
type Dialect int

// Bridge is the main entry point. It holds the selected dialect,
// configuration, the optional plan cache and a pool of reusable *Builder
// instances.
// A single Bridge instance is safe for concurrent use.
type Bridge struct {
	dialect Dialect
	config  Config
	rw      *rewriter
	pool    sync.Pool
}

// Builder assembles a single SQL statement and its bound parameters.
// It is NOT safe for concurrent use and is single-use: after Build() it is
// automatically released back to the pool and must not be used again.
type Builder struct {
	b        *Bridge
	parts    []string
	inputs   []any
	released bool
	bag      P
	err      error
}

// Config defines limits and behavior tweaks for the rewriter.
type Config struct {
	// Logger receives a debug record per placeholder and an info record per
	// rewritten statement. Nil discards everything.
	Logger *slog.Logger
	// MaxParams limits the total number of placeholders that can be emitted by
	// a single rewrite.
	// If = 0 (or omitted), it uses a sensible per-dialect default.
	// If < 0, it's treated as "unlimited".
	MaxParams int
	// MaxNameLen limits the maximum allowed length of a parameter name.
	// Names longer than this cause ErrParamNameTooLong.
	MaxNameLen int
	// PlanCacheSize enables an LRU of rewrite plans keyed by SQL text and
	// parameter names. Zero disables it.
	PlanCacheSize int
}

// P is a convenient alias for map[string]any to use with Bind().
type P = map[string]any

// Execer abstracts *sql.DB / *sql.Tx ExecContext for easy testing.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Queryer abstracts *sql.DB / *sql.Tx QueryContext for easy testing.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const (
	Postgres Dialect = iota
	MySQL
	SQLite
	SQLServer
)

const cacheSize = 4096 // Default size for the field-index cache

var (
	ErrUnsupportedDialect = errors.New("sqlbridge: unsupported dialect")
	ErrInvalidParam       = errors.New("sqlbridge: invalid parameter")
	ErrConversion         = errors.New("sqlbridge: conversion failed")
	ErrTooManyParams      = errors.New("sqlbridge: too many parameters")
	ErrParamNameTooLong   = errors.New("sqlbridge: parameter name too long")
	ErrColumnMismatch     = errors.New("sqlbridge: column count does not match cell count")
	ErrFieldAmbiguous     = errors.New("sqlbridge: ambiguous field name")
	ErrBuilderReleased    = errors.New("sqlbridge: builder already released; call Write() on *Bridge for a new query")
	ErrIsolationLevel     = errors.New("sqlbridge: unknown isolation level")
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// String returns the string representation of the dialect.
func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgresql"
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite"
	case SQLServer:
		return "sqlserver"
	default:
		return "unknown"
	}
}

// SupportsArrays reports whether the dialect has native array columns.
// Only postgresql does.
func (d Dialect) SupportsArrays() bool {
	return d == Postgres
}

// ParseDialect accepts the usual names and driver names of each dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgresql", "postgres", "pg", "pgx":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3", "file":
		return SQLite, nil
	case "sqlserver", "mssql":
		return SQLServer, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedDialect, s)
}

// New returns a new Bridge for the given dialect. Optionally provide a
// Config; unspecified fields fall back to sensible per-dialect defaults.
func New(dialect Dialect, cfg ...Config) *Bridge {
	b := &Bridge{
		dialect: dialect,
		config:  defaultConfig(dialect, cfg...),
	}
	b.rw = newRewriter(dialect, b.config)
	b.pool.New = func() any {
		return &Builder{
			b:      b,
			parts:  make([]string, 0, 16),
			inputs: make([]any, 0, 8),
		}
	}
	return b
}

// Dialect returns the dialect the Bridge targets.
func (b *Bridge) Dialect() Dialect {
	return b.dialect
}

// Statement encodes params and rewrites sql into a Statement.
func (b *Bridge) Statement(sql string, params map[string]any) (*Statement, error) {
	values, err := EncodeParams(params, b.dialect)
	if err != nil {
		return nil, err
	}
	return b.statement(sql, values)
}

func (b *Bridge) statement(sql string, values map[string]Value) (*Statement, error) {
	out, args, err := b.rw.rewrite(sql, values)
	if err != nil {
		return nil, err
	}
	return &Statement{sql: out, params: args, original: sql, named: values, dialect: b.dialect}, nil
}

// RawContext runs a command that takes no parameters and returns the number
// of affected rows. The SQL is sent untouched.
func (b *Bridge) RawContext(ctx context.Context, db Execer, sql string) (int64, error) {
	b.config.Logger.Debug("sqlbridge: raw command", "dialect", b.dialect, "sql", sql)
	res, err := db.ExecContext(ctx, sql)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Write starts a new statement and returns a single-use Builder.
// You can add more chunks via Write/Writef, and bind data via Bind().
func (b *Bridge) Write(sql string) *Builder {
	bd := b.pool.Get().(*Builder)
	bd.b = b
	bd.released = false
	bd.err = nil
	bd.parts = bd.parts[:0]
	bd.inputs = bd.inputs[:0]
	if sql != "" {
		bd.parts = append(bd.parts, sql)
	}
	return bd
}

// Write appends a raw SQL fragment. No auto-spacing is performed.
func (bd *Builder) Write(sql string) *Builder {
	if bd.released {
		bd.err = ErrBuilderReleased
		return bd
	}
	if bd.err != nil {
		return bd
	}
	bd.parts = append(bd.parts, sql)
	return bd
}

// Writef appends a formatted SQL fragment. No auto-spacing is performed.
func (bd *Builder) Writef(format string, args ...any) *Builder {
	if bd.released {
		bd.err = ErrBuilderReleased
		return bd
	}
	if bd.err != nil {
		return bd
	}
	bd.parts = append(bd.parts, fmt.Sprintf(format, args...))
	return bd
}

// Bind enqueues a parameter source. Supported forms:
//   - nil (ignored)
//   - struct with `db` tags (flattened through nested structs)
//   - map[string]any, map[string]Value or any string-keyed reflect.Map
//   - k/v pairs (even number of args, first is string key)
//
// Multiple Bind() calls are allowed; resolution is "last one wins", with
// k/v pairs applied after every map and struct.
func (bd *Builder) Bind(args ...any) *Builder {
	if bd.released {
		bd.err = ErrBuilderReleased
		return bd
	}
	if bd.err != nil {
		return bd
	}

	switch len(args) {
	case 0:
		bd.ensureBag()
		return bd

	case 1:
		if args[0] != nil {
			bd.inputs = append(bd.inputs, args[0])
		}
		return bd

	default:
		if len(args)%2 != 0 {
			bd.err = fmt.Errorf("sqlbridge: Bind expects even number of args (key,value,...), got %d", len(args))
			return bd
		}
		bag := bd.ensureBag()
		for i := 0; i < len(args); i += 2 {
			k, ok := args[i].(string)
			if !ok || k == "" {
				bd.err = fmt.Errorf("sqlbridge: Bind key at position %d must be a non-empty string (got %T)", i, args[i])
				return bd
			}
			bag[k] = args[i+1]
		}
		return bd
	}
}

// Build concatenates the query, encodes the bound parameters, rewrites the
// placeholders and RELEASES the builder back into the pool. After Build(),
// the builder must not be used again.
func (bd *Builder) Build() (*Statement, error) {
	if bd.released {
		return nil, ErrBuilderReleased
	}
	defer bd.Release()
	return bd.render()
}

// Preview renders the Statement without releasing the Builder.
// Safe to call multiple times; identical to Build() except it does NOT Release().
//
// If the builder has already been released, it returns ErrBuilderReleased.
func (bd *Builder) Preview() (*Statement, error) {
	if bd.released {
		return nil, ErrBuilderReleased
	}
	return bd.render()
}

func (bd *Builder) render() (*Statement, error) {
	if bd.err != nil {
		return nil, bd.err
	}
	q := strings.Join(bd.parts, "")

	// Local copy of inputs; append bag only if it has entries.
	in := bd.inputs
	if len(bd.bag) > 0 {
		in = append(in[:len(in):len(in)], bd.bag)
	}

	params, err := collectParams(q, in)
	if err != nil {
		return nil, err
	}
	values, err := EncodeParams(params, bd.b.dialect)
	if err != nil {
		return nil, err
	}
	return bd.b.statement(q, values)
}

// Release clears the builder and puts it back into the pool.
// It is safe to call Release multiple times; subsequent calls are no-ops.
func (bd *Builder) Release() {
	if bd.released {
		return
	}
	bd.released = true

	for i := range bd.parts {
		bd.parts[i] = ""
	}
	bd.parts = bd.parts[:0]

	for i := range bd.inputs {
		bd.inputs[i] = nil
	}
	bd.inputs = bd.inputs[:0]

	bd.bag = nil
	bd.err = nil
	bd.b.pool.Put(bd)
}

// ExecContext builds and executes the statement, returning the number of
// affected rows.
func (bd *Builder) ExecContext(ctx context.Context, db Execer) (int64, error) {
	st, err := bd.Build()
	if err != nil {
		return 0, err
	}
	return st.ExecContext(ctx, db)
}

// QueryContext builds and runs the statement, decoding every row.
func (bd *Builder) QueryContext(ctx context.Context, db Queryer) (*Result, error) {
	st, err := bd.Build()
	if err != nil {
		return nil, err
	}
	return st.QueryContext(ctx, db)
}

// QueryAllContext builds and runs the statement, returning its rows.
func (bd *Builder) QueryAllContext(ctx context.Context, db Queryer) ([]Row, error) {
	st, err := bd.Build()
	if err != nil {
		return nil, err
	}
	return st.QueryAllContext(ctx, db)
}

// QueryOneContext builds and runs the statement, returning its first row or
// an empty Row when there is none.
func (bd *Builder) QueryOneContext(ctx context.Context, db Queryer) (Row, error) {
	st, err := bd.Build()
	if err != nil {
		return nil, err
	}
	return st.QueryOneContext(ctx, db)
}

// ensureBag makes sure the builder has a P bag for Bind(); creates if needed.
func (bd *Builder) ensureBag() P {
	if bd.bag == nil {
		bd.bag = make(P, 8)
	}
	return bd.bag
}

// defaultConfig merges user config with per-dialect defaults.
func defaultConfig(dialect Dialect, config ...Config) Config {
	c := Config{}

	if len(config) > 0 {
		c = config[0]
	}

	if c.MaxParams == 0 {
		switch dialect {
		case SQLServer:
			c.MaxParams = 2100
		case SQLite:
			c.MaxParams = 999
		case Postgres, MySQL:
			c.MaxParams = 65535
		}
	}

	if c.MaxNameLen <= 0 {
		c.MaxNameLen = 64
	}

	if c.Logger == nil {
		c.Logger = discardLogger
	}

	return c
}
