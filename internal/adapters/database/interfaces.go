package database

import (
	"github.com/creditgate/billing/internal/domain/ports"
)

// Ensure PostgreSQLAdapter satisfies the database port used by services
var _ ports.DBPort = (*PostgreSQLAdapter)(nil)
