package registry

import (
	"errors"

	"github.com/xrey167/molthub/orm"
)

// Code enumerates the public error kinds of the registry. The HTTP
// facade maps each code to its status.
type Code int

const (
	CodeInvalid Code = iota + 1
	CodeUnauthorized
	CodeForbidden
	CodeNotFound
	CodeGone
	CodeConflict
	CodeTooLarge
	CodeUnsupported
	CodeRateLimited
	CodeEmbeddingUnavailable
	CodeInternal
)

func (c Code) String() string {
	switch c {
	case CodeInvalid:
		return "ValidationFailed"
	case CodeUnauthorized:
		return "Unauthorized"
	case CodeForbidden:
		return "Forbidden"
	case CodeNotFound:
		return "NotFound"
	case CodeGone:
		return "Gone"
	case CodeConflict:
		return "Conflict"
	case CodeTooLarge:
		return "PayloadTooLarge"
	case CodeUnsupported:
		return "UnsupportedMediaType"
	case CodeRateLimited:
		return "RateLimited"
	case CodeEmbeddingUnavailable:
		return "EmbeddingUnavailable"
	default:
		return "InternalError"
	}
}

// Static errors to avoid err113 violations
var (
	ErrMissingSkillMd       = errors.New("bundle must contain exactly one SKILL.md")
	ErrBundleTooLarge       = errors.New("bundle exceeds the size limit")
	ErrUnsupportedFileType  = errors.New("file type is not on the text allow-list")
	ErrVersionExists        = errors.New("version already exists for this skill")
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	ErrSelfReference        = errors.New("skill cannot reference itself")
)

// ServiceError represents public-facing errors from the registry service
type ServiceError struct {
	Code    Code
	Message string
	Inner   error
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Inner
}

// Errf builds a ServiceError in place.
func Errf(code Code, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message}
}

// wrapServiceError converts internal errors to user-friendly service errors
func wrapServiceError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}

	var notFoundErr *orm.NotFoundError
	if errors.As(err, &notFoundErr) {
		return &ServiceError{
			Code:    CodeNotFound,
			Message: "Not found for " + operation,
			Inner:   err,
		}
	}

	var badInputErr *orm.BadInputError
	if errors.As(err, &badInputErr) {
		return &ServiceError{
			Code:    CodeInvalid,
			Message: badInputErr.Error(),
			Inner:   err,
		}
	}

	var conflictErr *orm.ConflictError
	if errors.As(err, &conflictErr) {
		return &ServiceError{
			Code:    CodeConflict,
			Message: "Already exists for " + operation,
			Inner:   err,
		}
	}

	var dbErr *orm.DatabaseError
	if errors.As(err, &dbErr) {
		return &ServiceError{
			Code:    CodeInternal,
			Message: "Internal server error during " + operation,
			Inner:   err,
		}
	}

	return &ServiceError{
		Code:    CodeInternal,
		Message: "Internal server error during " + operation,
		Inner:   err,
	}
}
