package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"templestock/internal/core/apperror"
)

// Postgres error codes the service reacts to.
const (
	pgUniqueViolation      = "23505"
	pgQueryCanceled        = "57014"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgTooManyConnections   = "53300"
	pgAdminShutdown        = "57P01"
	pgCrashShutdown        = "57P02"
	pgCannotConnectNow     = "57P03"
)

// Unique constraints named in schema.sql.
const (
	constraintReference   = "ux_movement_documents_reference"
	constraintProductName = "ux_products_tenant_name"
)

// ClassifyError maps driver errors to retryable app errors:
//   - connection loss, serialization failure, deadlock -> STORAGE_UNAVAILABLE
//   - statement timeout, context deadline              -> TIMEOUT_ERROR
//   - unique violation                                 -> DUPLICATE_REFERENCE / DUPLICATE_ENTRY
//
// App errors and unrecognized errors are returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperror.NewTimeout(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return duplicateError(pgErr).WithCause(err)
		case pgErr.Code == pgQueryCanceled:
			return apperror.NewTimeout(err)
		case pgErr.Code == pgSerializationFailure,
			pgErr.Code == pgDeadlockDetected,
			pgErr.Code == pgTooManyConnections,
			pgErr.Code == pgAdminShutdown,
			pgErr.Code == pgCrashShutdown,
			pgErr.Code == pgCannotConnectNow,
			strings.HasPrefix(pgErr.Code, "08"):
			return apperror.NewStorageUnavailable(err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return apperror.NewStorageUnavailable(err)
	}
	if pgconn.Timeout(err) {
		return apperror.NewTimeout(err)
	}
	if pgconn.SafeToRetry(err) {
		return apperror.NewStorageUnavailable(err)
	}
	return err
}

func duplicateError(pgErr *pgconn.PgError) *apperror.AppError {
	switch pgErr.ConstraintName {
	case constraintReference:
		return apperror.NewDuplicateReference("movement", "")
	case constraintProductName:
		return apperror.NewDuplicate("product", "name", "")
	default:
		return apperror.NewDuplicate("record", pgErr.ConstraintName, "")
	}
}

// isUniqueViolation reports whether err is a unique violation of constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraint
}
