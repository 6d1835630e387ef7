package result

import (
	"context"
	"database/sql"
	"encoding/asn1"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrorCode classifies a failure. The set is closed; adapters map native
// errors onto it exactly once, at the boundary where the error is caught.
type ErrorCode string

const (
	// Client-side codes (4xx range when surfaced over HTTP).
	CodeValidation     ErrorCode = "VALIDATION_ERROR"
	CodeAuthentication ErrorCode = "AUTHENTICATION_ERROR"
	CodeAuthorization  ErrorCode = "AUTHORIZATION_ERROR"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeBusinessRule   ErrorCode = "BUSINESS_RULE_ERROR"
	CodeRateLimit      ErrorCode = "RATE_LIMIT_ERROR"

	// Server-side codes (5xx range).
	CodeTechnical       ErrorCode = "TECHNICAL_ERROR"
	CodeDatabase        ErrorCode = "DATABASE_ERROR"
	CodeConfiguration   ErrorCode = "CONFIGURATION_ERROR"
	CodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	CodeUnavailable     ErrorCode = "SERVICE_UNAVAILABLE_ERROR"
	CodeTimeout         ErrorCode = "TIMEOUT_ERROR"
	CodeUnknown         ErrorCode = "UNKNOWN_ERROR"
)

// HTTPStatus maps a code to the status used when a failure crosses the web
// boundary.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeAuthentication:
		return http.StatusUnauthorized
	case CodeAuthorization:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBusinessRule:
		return http.StatusConflict
	case CodeRateLimit:
		return http.StatusTooManyRequests
	case CodeExternalService:
		return http.StatusBadGateway
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// FailureDescription carries everything known about a failure: its
// classification, a human-readable message, the causing error when one
// exists, and the creation time. Immutable once created.
type FailureDescription struct {
	Code      ErrorCode
	Message   string
	Cause     error
	CreatedAt time.Time
}

// NewFailure builds a description without a cause.
func NewFailure(code ErrorCode, message string) *FailureDescription {
	return &FailureDescription{Code: code, Message: message, CreatedAt: time.Now().UTC()}
}

// NewFailureCause builds a description wrapping the causing error.
func NewFailureCause(code ErrorCode, message string, cause error) *FailureDescription {
	return &FailureDescription{Code: code, Message: message, Cause: cause, CreatedAt: time.Now().UTC()}
}

// Error makes a FailureDescription usable wherever an error is expected.
func (f *FailureDescription) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Message, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Unwrap exposes the cause to errors.Is/As.
func (f *FailureDescription) Unwrap() error {
	return f.Cause
}

// FullTrace renders the message together with the full cause chain.
func (f *FailureDescription) FullTrace() string {
	if f.Cause == nil {
		return f.Message
	}
	var sb strings.Builder
	sb.WriteString(f.Message)
	for err := f.Cause; err != nil; err = errors.Unwrap(err) {
		sb.WriteString("\ncaused by: ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// ClassifyError maps a native error onto the closed code set. Categories are
// checked in a fixed priority order: validation-like, not-found-like,
// permission-like, timeout-like, connectivity-like, then unknown. This is
// the single place such a mapping exists.
func ClassifyError(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	var jsonSyntax *json.SyntaxError
	var jsonType *json.UnmarshalTypeError
	var numErr *strconv.NumError
	var asn1Struct asn1.StructuralError
	var asn1Syntax asn1.SyntaxError
	if errors.As(err, &jsonSyntax) || errors.As(err, &jsonType) ||
		errors.As(err, &numErr) || errors.As(err, &asn1Struct) || errors.As(err, &asn1Syntax) {
		return CodeValidation
	}

	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, fs.ErrNotExist) {
		return CodeNotFound
	}

	if errors.Is(err, fs.ErrPermission) {
		return CodeAuthorization
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return CodeTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, net.ErrClosed) {
		return CodeUnavailable
	}

	return CodeUnknown
}
