package domain

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes that mean the server is unreachable or refusing
// work, as opposed to rejecting a statement
const (
	pgAdminShutdown      = "57P01"
	pgCrashShutdown      = "57P02"
	pgCannotConnectNow   = "57P03"
	pgTooManyConnections = "53300"
)

// IsConnectivityError reports whether err is a database connectivity
// failure: the server is down, the pool is exhausted, or the connection
// attempt timed out. These are retryable outages, distinct from statement
// errors that indicate a bug or bad data.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgAdminShutdown, pgCrashShutdown, pgCannotConnectNow, pgTooManyConnections:
			return true
		}
		// Class 08 covers connection exceptions raised server-side
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" {
			return true
		}
	}
	return false
}

// WrapDatabaseError wraps a repository failure, classifying connectivity
// outages as SERVICE_UNAVAILABLE so callers surface them as retryable
// rather than as internal errors.
func WrapDatabaseError(message string, err error) *DomainError {
	if IsConnectivityError(err) {
		return WrapError(ErrorCodeServiceUnavailable, message, err)
	}
	return WrapError(ErrorCodeDatabaseError, message, err)
}
