package sqlstore

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// dialect holds the per-database differences. Queries are written once with
// "?" placeholders and rebound for PostgreSQL.
type dialect struct {
	name         string
	driverName   string // database/sql driver registered by the blank import
	gooseDialect string
	dollarArgs   bool // PostgreSQL numbers its placeholders: $1, $2, ...
}

var (
	sqliteDialect   = dialect{name: DriverSQLite, driverName: "sqlite", gooseDialect: "sqlite3"}
	postgresDialect = dialect{name: DriverPostgres, driverName: "pgx", gooseDialect: "postgres", dollarArgs: true}
)

// rebind rewrites "?" placeholders into the dialect's style. Our queries never
// contain a literal '?' inside a string, so a plain scan is enough.
func (d dialect) rebind(query string) string {
	if !d.dollarArgs {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure from
// either driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	return false
}
