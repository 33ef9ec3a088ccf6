package apperr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Sentinels for the workflow error taxonomy. Callers classify with
// errors.Is and map to transport codes at the handler boundary.
var (
	// ErrValidation marks bad input shape (4xx).
	ErrValidation = errors.New("validation failure")
	// ErrNotFound marks a missing referenced entity (4xx).
	ErrNotFound = errors.New("not found")
	// ErrStorage marks a blob store failure.
	ErrStorage = errors.New("storage failure")
	// ErrExternalService marks a failure of the generative API or a
	// third-party fetch.
	ErrExternalService = errors.New("external service failure")
	// ErrMissingInput marks an unmet domain precondition (e.g. no
	// ORIGINAL asset to transform).
	ErrMissingInput = errors.New("missing input")
	// ErrNoImageReturned marks a generative response without an image.
	ErrNoImageReturned = errors.New("no image returned")
	// ErrStateConflict marks an operation against a session or job in an
	// incompatible status.
	ErrStateConflict = errors.New("state conflict")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Storagef(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, fmt.Sprintf(format, args...), err)
}

func Externalf(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %v", ErrExternalService, fmt.Sprintf(format, args...), err)
}

func MissingInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMissingInput, fmt.Sprintf(format, args...))
}

func StateConflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStateConflict, fmt.Sprintf(format, args...))
}

// IsUniqueViolation reports whether err is a unique-constraint violation.
// Postgres surfaces these as pgconn errors with SQLSTATE 23505; gorm
// translates them to ErrDuplicatedKey when the dialector supports it; the
// sqlite driver used in tests reports them only by message.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
