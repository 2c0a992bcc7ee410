package orm

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// DatabaseError wraps a GORM failure that is neither a missing row nor
// a key conflict. The registry surfaces it as an internal error.
type DatabaseError struct {
	Inner error
}

func (e *DatabaseError) Error() string {
	return "metadata store operation failed: " + e.Inner.Error()
}

func (e *DatabaseError) Unwrap() error {
	return e.Inner
}

// NotFoundError reports a missing skill, version, user, or other
// metadata row. Search names the lookup that came up empty.
type NotFoundError struct {
	Search string
}

func (e *NotFoundError) Error() string {
	return "no matching record for " + e.Search
}

// ConflictError reports a uniqueness violation: a taken slug, a
// version string already published for the skill, and the like.
type ConflictError struct {
	Conflict string
}

func (e *ConflictError) Error() string {
	return "already exists: " + e.Conflict
}

// BadInputError reports arguments the store refuses to query with,
// such as an empty slug or id.
type BadInputError struct {
	Reason string
}

func (e *BadInputError) Error() string {
	return "bad input: " + e.Reason
}

// wrapErrorWithDetails classifies a GORM error into the typed errors
// above, attaching the operation and its lookup details.
func wrapErrorWithDetails(err error, operation, details string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Search: fmt.Sprintf("%s (%s)", operation, details)}
	}

	// Unique-index violations surface as ErrDuplicatedKey under
	// TranslateError.
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &ConflictError{Conflict: fmt.Sprintf("%s (%s)", operation, details)}
	}

	return &DatabaseError{Inner: fmt.Errorf("%s: %w", operation, err)}
}
