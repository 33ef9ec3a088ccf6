package apperr

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"
)

func TestSentinelWrapping(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
	}{
		{Validationf("bad input %d", 1), ErrValidation},
		{NotFoundf("session %s", "x"), ErrNotFound},
		{Storagef(errors.New("io"), "put"), ErrStorage},
		{Externalf(errors.New("503"), "call"), ErrExternalService},
		{MissingInputf("no original"), ErrMissingInput},
		{StateConflictf("already finalized"), ErrStateConflict},
	}
	for _, c := range cases {
		if !errors.Is(c.err, c.sentinel) {
			t.Fatalf("%v does not wrap %v", c.err, c.sentinel)
		}
	}
	// Wrapping one more level must still classify.
	wrapped := fmt.Errorf("outer: %w", StateConflictf("inner"))
	if !errors.Is(wrapped, ErrStateConflict) {
		t.Fatalf("re-wrapped error lost its sentinel")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil) {
		t.Fatal("nil must not classify")
	}
	if !IsUniqueViolation(gorm.ErrDuplicatedKey) {
		t.Fatal("gorm duplicated key must classify")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: image_asset.session_id")) {
		t.Fatal("sqlite message must classify")
	}
	if IsUniqueViolation(errors.New("connection refused")) {
		t.Fatal("unrelated error must not classify")
	}
}
