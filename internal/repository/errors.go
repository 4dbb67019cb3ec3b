// Package repository implements MySQL persistence for seat statuses,
// bookings and the read-only catalog.  Not-found conditions are reported
// with the sentinels of the model package so higher layers never look at
// sql.ErrNoRows.
package repository

import (
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/go-sql-driver/mysql"
)

// ErrDuplicate marks inserts rejected by a unique key.
var ErrDuplicate = errors.New("duplicate key")

const mysqlDuplicateEntry = 1062

// classify maps driver errors to sentinels so callers can use errors.Is
// without importing the driver.  A missing row becomes notFound itself,
// which keeps the sentinel's own marks visible to errors.Is.
func classify(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) && notFound != nil {
		return notFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return errors.Mark(err, ErrDuplicate)
	}
	return err
}
