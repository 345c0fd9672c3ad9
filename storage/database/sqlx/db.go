// Package sqlxrepos implements the repositories on top of jmoiron/sqlx, for postgres and sqlite.
package sqlxrepos

import (
	"database/sql/driver"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqlite keeps timestamps as fixed-width UTC text so that text order is time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

var scanLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

// sqlite's LOWER only folds ASCII; searches use unicode_lower there so that they match like postgres.
const sqliteLowerFunc = "unicode_lower"

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
	sqlite.MustRegisterDeterministicScalarFunction(sqliteLowerFunc, 1, unicodeLower)
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

func isSQLite(db *sqlx.DB) bool {
	return db.DriverName() == "sqlite"
}

// lowerFunc returns the SQL function folding text the way strings.ToLower does.
func lowerFunc(db *sqlx.DB) string {
	if isSQLite(db) {
		return sqliteLowerFunc
	}
	return "LOWER"
}

// timeArg converts t to the driver representation.
func timeArg(db *sqlx.DB, t time.Time) interface{} {
	if isSQLite(db) {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

func nullTimeArg(db *sqlx.DB, t null.Time) interface{} {
	if !t.Valid {
		return nil
	}
	return timeArg(db, t.Time)
}

// dbTime scans timestamps stored natively (postgres) or as text (sqlite).
type dbTime null.Time

func (t *dbTime) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case nil:
		*t = dbTime{}
		return nil
	case time.Time:
		*t = dbTime(null.TimeFrom(v.UTC()))
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return errors.Errorf("cannot scan %T into a timestamp", value)
	}

	for _, layout := range scanLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = dbTime(null.TimeFrom(parsed.UTC()))
			return nil
		}
	}
	return errors.Errorf("invalid timestamp %q", s)
}

func (t dbTime) nullable() null.Time { return null.Time(t) }
func (t dbTime) value() time.Time { return t.Time }

// isUniqueViolation reports whether err was raised by a UNIQUE or PRIMARY KEY constraint.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// likePattern builds a case-insensitive LIKE pattern matching `search` anywhere.
func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(search)) + "%"
}

// placeholders returns "?, ?, ?" for n args.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
