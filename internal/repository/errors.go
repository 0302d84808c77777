package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Conditional writes that match no row return sql.ErrNoRows, the same as lookups of unknown ids.
var (
	// ErrUniqueViolation signals that a write would break a uniqueness rule,
	// such as a second accepted bid on a request.
	ErrUniqueViolation = errors.New("unique constraint violated")
	// ErrInsufficientBalance signals that an append would drive an account below zero.
	ErrInsufficientBalance = errors.New("balance would become negative")
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
