package sqlbridge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// TxBeginner abstracts *sql.DB / *sql.Conn BeginTx.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// ParseIsolationLevel maps a level name to database/sql. Case, spaces,
// underscores and dashes are ignored, so "read committed", "READ_COMMITTED"
// and "ReadCommitted" are the same level.
func ParseIsolationLevel(s string) (sql.IsolationLevel, error) {
	norm := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-':
			return -1
		}
		return r
	}, strings.ToUpper(s))

	switch norm {
	case "READUNCOMMITTED":
		return sql.LevelReadUncommitted, nil
	case "READCOMMITTED":
		return sql.LevelReadCommitted, nil
	case "REPEATABLEREAD":
		return sql.LevelRepeatableRead, nil
	case "SNAPSHOT":
		return sql.LevelSnapshot, nil
	case "SERIALIZABLE":
		return sql.LevelSerializable, nil
	}
	return sql.LevelDefault, fmt.Errorf("%w: %q", ErrIsolationLevel, s)
}

// BeginTx starts a transaction at the named isolation level. An empty level
// keeps the driver default.
func BeginTx(ctx context.Context, db TxBeginner, level string) (*sql.Tx, error) {
	opts := &sql.TxOptions{}
	if level != "" {
		l, err := ParseIsolationLevel(level)
		if err != nil {
			return nil, err
		}
		opts.Isolation = l
	}
	return db.BeginTx(ctx, opts)
}
