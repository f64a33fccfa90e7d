package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// Dialect names the database/sql driver the repositories run against.
// Queries are written with ? placeholders and rebound for Postgres.
type Dialect string

const (
	DialectPostgres Dialect = "pgx"
	DialectMySQL    Dialect = "mysql"
)

// Rebind rewrites ? placeholders into $n for Postgres.
func (d Dialect) Rebind(q string) string {
	if d != DialectPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

type scanner interface{ Scan(dest ...any) error }

// isUniqueViolation reports a duplicate key error from either driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// jsonValue encodes v for a JSON column; empty values are stored as NULL.
func jsonValue(v any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// decodeJSON fills dst from a nullable JSON column. It reports whether a
// value was present.
func decodeJSON(ns sql.NullString, dst any) (bool, error) {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" || ns.String == "null" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(ns.String), dst); err != nil {
		return false, err
	}
	return true, nil
}
