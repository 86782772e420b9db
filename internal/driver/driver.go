// Package driver registers the database/sql drivers of every dialect and
// opens connections for the CLI.
package driver

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/gandaldf/sqlbridge"
)

// Name returns the database/sql driver name registered for d.
func Name(d sqlbridge.Dialect) (string, error) {
	switch d {
	case sqlbridge.Postgres:
		return "postgres", nil
	case sqlbridge.MySQL:
		return "mysql", nil
	case sqlbridge.SQLite:
		return "sqlite3", nil
	case sqlbridge.SQLServer:
		return "sqlserver", nil
	}
	return "", fmt.Errorf("%w: %v", sqlbridge.ErrUnsupportedDialect, d)
}

// NormalizeDSN rewrites dsn into the form the dialect's driver expects.
// MySQL DSNs may be given as mysql:// URLs and always get parseTime=true so
// temporal columns arrive as time.Time. SQLite URLs lose their scheme.
func NormalizeDSN(d sqlbridge.Dialect, dsn string) (string, error) {
	switch d {
	case sqlbridge.MySQL:
		cfg, err := mysqlConfig(dsn)
		if err != nil {
			return "", fmt.Errorf("driver: invalid mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	case sqlbridge.SQLite:
		for _, prefix := range []string{"sqlite3://", "sqlite://", "sqlite:"} {
			if rest, ok := strings.CutPrefix(dsn, prefix); ok {
				return rest, nil
			}
		}
	}
	return dsn, nil
}

// mysqlConfig parses a native DSN or a mysql:// URL. URLs are rebuilt into
// the native form so query options go through the driver's own parser.
func mysqlConfig(dsn string) (*mysql.Config, error) {
	if !strings.HasPrefix(dsn, "mysql://") {
		return mysql.ParseDSN(dsn)
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	if u.User != nil {
		b.WriteString(u.User.Username())
		if pw, ok := u.User.Password(); ok {
			b.WriteByte(':')
			b.WriteString(pw)
		}
		b.WriteByte('@')
	}
	b.WriteString("tcp(")
	b.WriteString(u.Host)
	b.WriteString(")/")
	b.WriteString(strings.TrimPrefix(u.Path, "/"))
	if u.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(u.RawQuery)
	}
	return mysql.ParseDSN(b.String())
}

// Open opens a connection pool for d. The connection is not checked.
func Open(d sqlbridge.Dialect, dsn string) (*sql.DB, error) {
	name, err := Name(d)
	if err != nil {
		return nil, err
	}
	norm, err := NormalizeDSN(d, dsn)
	if err != nil {
		return nil, err
	}
	return sql.Open(name, norm)
}
