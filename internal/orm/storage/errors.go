package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("document not found")

	// ErrUniqueConstraintViolation is returned when a unique index key is
	// already used by another document
	ErrUniqueConstraintViolation = errors.New("unique constraint violation")

	// ErrMissingIdentity is returned when a snapshot carries no _id
	ErrMissingIdentity = errors.New("snapshot has no identity")
)

// UniqueConstraintViolation describes the index and value that collided
type UniqueConstraintViolation struct {
	Collection string
	Index      string
	Fields     []string
	Value      string
	ExistingID string
}

func (e *UniqueConstraintViolation) Error() string {
	return fmt.Sprintf("unique constraint violation on %s.%s (%s): value %s already used by %s",
		e.Collection, e.Index, strings.Join(e.Fields, ", "), e.Value, e.ExistingID)
}

func (e *UniqueConstraintViolation) Unwrap() error {
	return ErrUniqueConstraintViolation
}

// ConvertDBError converts driver specific errors to storage errors
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	// PostgreSQL via pgx
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrUniqueConstraintViolation, pgErr.Detail)
	}

	// PostgreSQL via lib/pq
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrUniqueConstraintViolation, pqErr.Detail)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %s", ErrUniqueConstraintViolation, liteErr.Error())
		}
	}

	return err
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUniqueViolation returns true if the error is ErrUniqueConstraintViolation
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueConstraintViolation)
}
