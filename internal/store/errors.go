package store

import (
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/lorekeeper/internal/apperr"
)

// classify wraps err as an *apperr.DatabaseError keyed by the SQLite
// constraint or result code behind it.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var dbErr *apperr.DatabaseError
	if errors.As(err, &dbErr) {
		return err
	}
	kind := apperr.DBGeneric
	var se sqlite3.Error
	switch {
	case errors.Is(err, sql.ErrNoRows):
		kind = apperr.DBNotFound
	case errors.As(err, &se):
		switch {
		case se.ExtendedCode == sqlite3.ErrConstraintUnique, se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			kind = apperr.DBUniqueViolation
		case se.ExtendedCode == sqlite3.ErrConstraintForeignKey:
			kind = apperr.DBForeignKey
		case se.ExtendedCode == sqlite3.ErrConstraintCheck, se.Code == sqlite3.ErrTooBig:
			kind = apperr.DBValueTooLong
		case se.Code == sqlite3.ErrBusy, se.Code == sqlite3.ErrLocked:
			kind = apperr.DBBusy
		}
	}
	return &apperr.DatabaseError{Kind: kind, Op: op, Err: err}
}
