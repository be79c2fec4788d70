package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Stable error kinds surfaced to the result consumer. Document-level
// failures always carry exactly one of these, never an ambiguous partial
// success.
const (
	KindIngestion        = "INGESTION_ERROR"
	KindContentExtract   = "CONTENT_EXTRACTION_ERROR"
	KindTemplateNotFound = "TEMPLATE_NOT_FOUND"
	KindProvider         = "EXTRACTION_PROVIDER_ERROR"
	KindValidation       = "VALIDATION_ERROR"
	KindCacheConflict    = "CACHE_KEY_CONFLICT"
)

// AppError represents application-specific errors.
type AppError struct {
	Code    string
	Message string
	Cause   error
	// Transient marks provider errors worth retrying (rate limits,
	// transient network failures). Never set on the other kinds.
	Transient bool
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Error constructors, one per taxonomy kind.

func NewIngestionError(message string, cause error) *AppError {
	return &AppError{Code: KindIngestion, Message: message, Cause: cause}
}

func NewContentExtractionError(message string, cause error) *AppError {
	return &AppError{Code: KindContentExtract, Message: message, Cause: cause}
}

func NewTemplateNotFoundError(compoundCode, regionCode string) *AppError {
	return &AppError{
		Code:    KindTemplateNotFound,
		Message: fmt.Sprintf("no template for compound=%s region=%s", compoundCode, regionCode),
	}
}

func NewProviderError(message string, cause error, transient bool) *AppError {
	return &AppError{Code: KindProvider, Message: message, Cause: cause, Transient: transient}
}

// NewValidationError reports an unusable validation rule. Per-field, never
// fatal: the scorer downgrades the outcome instead of failing the document.
func NewValidationError(message string, cause error) *AppError {
	return &AppError{Code: KindValidation, Message: message, Cause: cause}
}

func NewCacheConflictError(key string) *AppError {
	return &AppError{Code: KindCacheConflict, Message: "second writer for cache key " + key}
}

// IsKind reports whether err (anywhere in its chain) is an AppError of the
// given kind.
func IsKind(err error, code string) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// IsTransient reports whether err is a retryable provider error.
func IsTransient(err error) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == KindProvider && ae.Transient
	}
	return false
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// gRPC error helpers for the service layer.

func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func FailedPreconditionError(message string) error {
	return status.Error(codes.FailedPrecondition, message)
}

// GRPCStatus maps an AppError kind to the status the result consumer sees.
func GRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	var ae *AppError
	if !errors.As(err, &ae) {
		return InternalError(err.Error())
	}
	switch ae.Code {
	case KindIngestion:
		return InvalidArgumentError(ae.Error())
	case KindTemplateNotFound:
		return status.Error(codes.FailedPrecondition, ae.Error())
	case KindContentExtract, KindProvider:
		return status.Error(codes.Unavailable, ae.Error())
	case KindCacheConflict:
		return InternalError(ae.Error())
	default:
		return InternalError(ae.Error())
	}
}
