package entity

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for domain layer operations.
var (
	// ErrNotFound indicates that a requested job was not found
	ErrNotFound = errors.New("job not found")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrLockHeld indicates another scheduler pass holds the run lock
	ErrLockHeld = errors.New("run lock held by another process")

	// ErrUnrecognizedPage indicates a page lacks the markup a site override expects
	ErrUnrecognizedPage = errors.New("page structure not recognized")

	// ErrInternal marks a refresh aborted by a programming error
	ErrInternal = errors.New("internal error")
)

// Fetch failure codes. Policy codes produce BlockedTargetError, the rest
// TransientFetchError.
const (
	CodeInvalidURL            = "invalid_url"
	CodeUnsupportedScheme     = "unsupported_scheme"
	CodeDisallowedAuth        = "disallowed_auth"
	CodePrivateTarget         = "private_target"
	CodeBlockedPrivateIP      = "blocked_private_ip"
	CodeInvalidRedirectTarget = "invalid_redirect_target"
	CodeRedirectLoop          = "redirect_loop"
	CodeTooManyRedirects      = "too_many_redirects"
	CodeNetwork               = "network_error"
	CodeTimeout               = "timeout"
	CodeBodyTooLarge          = "body_too_large"
	CodeHTTPStatus            = "http_status"
)

// InputError reports an invalid field on user or configuration input.
type InputError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the input error.
func (e *InputError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Is lets callers match any InputError with ErrInvalidInput.
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// TransientFetchError is a network, timeout or server-side failure. It counts
// toward the failure streak and is retried on the next scheduled tick.
type TransientFetchError struct {
	Code   string
	URL    string
	Status int
	Err    error
}

func (e *TransientFetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Code)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// BlockedTargetError is an SSRF policy violation. It is never retried
// automatically.
type BlockedTargetError struct {
	Code string
	URL  string
	Err  error
}

func (e *BlockedTargetError) Error() string {
	msg := fmt.Sprintf("blocked %s: %s", e.URL, e.Code)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BlockedTargetError) Unwrap() error { return e.Err }

// ValidationError reports a rendered feed that failed structural checks.
// Publication is aborted and the previous feed file is left untouched.
type ValidationError struct {
	Format Format
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s feed failed validation: %s", e.Format, strings.Join(e.Errors, "; "))
}

// ExtractionEmptyError reports that no items survived extraction and filtering.
type ExtractionEmptyError struct {
	SourceURL string
	Extracted int
}

func (e *ExtractionEmptyError) Error() string {
	if e.Extracted > 0 {
		return fmt.Sprintf("no items left for %s after filtering %d extracted items", e.SourceURL, e.Extracted)
	}
	return fmt.Sprintf("no items extracted from %s", e.SourceURL)
}

// ErrorCode returns the machine code of err for job bookkeeping.
func ErrorCode(err error) string {
	var transient *TransientFetchError
	var blocked *BlockedTargetError
	var validation *ValidationError
	var empty *ExtractionEmptyError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &blocked):
		return blocked.Code
	case errors.As(err, &transient):
		return transient.Code
	case errors.As(err, &validation):
		return "validation_failed"
	case errors.As(err, &empty):
		return "extraction_empty"
	case errors.Is(err, ErrUnrecognizedPage):
		return "unrecognized_page"
	default:
		return "internal_error"
	}
}

// HTTPStatusOf returns the HTTP status carried by err, or 0.
func HTTPStatusOf(err error) int {
	var transient *TransientFetchError
	if errors.As(err, &transient) {
		return transient.Status
	}
	return 0
}
