package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors. Code classifies the error
// for any transport; Reason is a stable machine-readable tag.
type AppError struct {
	Code    codes.Code
	Reason  string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// GRPCStatus lets status.Code and status.FromError classify wrapped AppErrors.
func (e *AppError) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Message)
}

// Common application errors
var (
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidState    = errors.New("invalid state")
	ErrTooManyJobs     = errors.New("too many active jobs")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrInternal        = errors.New("internal error")
)

// Reasons carried by AppError.
const (
	ReasonInvalidArgument = "INVALID_ARGUMENT"
	ReasonPayloadTooLarge = "PAYLOAD_TOO_LARGE"
	ReasonNotFound        = "NOT_FOUND"
	ReasonInvalidState    = "INVALID_STATE"
	ReasonTooManyJobs     = "TOO_MANY_ACTIVE_JOBS"
	ReasonConfig          = "CONFIG_ERROR"
	ReasonInternal        = "INTERNAL"
)

// Error constructors
func NewAppError(code codes.Code, reason, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Reason:  reason,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func InvalidArgument(format string, args ...any) error {
	return NewAppError(codes.InvalidArgument, ReasonInvalidArgument, fmt.Sprintf(format, args...), ErrInvalidArgument)
}

// PayloadTooLarge is an InvalidArgument that transports may surface as a size error.
func PayloadTooLarge(format string, args ...any) error {
	return NewAppError(codes.InvalidArgument, ReasonPayloadTooLarge, fmt.Sprintf(format, args...), ErrPayloadTooLarge)
}

func NotFound(format string, args ...any) error {
	return NewAppError(codes.NotFound, ReasonNotFound, fmt.Sprintf(format, args...), ErrNotFound)
}

func InvalidState(format string, args ...any) error {
	return NewAppError(codes.FailedPrecondition, ReasonInvalidState, fmt.Sprintf(format, args...), ErrInvalidState)
}

func TooManyActiveJobs(format string, args ...any) error {
	return NewAppError(codes.ResourceExhausted, ReasonTooManyJobs, fmt.Sprintf(format, args...), ErrTooManyJobs)
}

func InternalError(format string, args ...any) error {
	return NewAppError(codes.Internal, ReasonInternal, fmt.Sprintf(format, args...), ErrInternal)
}

// CodeOf returns the gRPC code of err, codes.Unknown for unclassified errors.
func CodeOf(err error) codes.Code {
	return status.Code(err)
}

// ReasonOf returns the AppError reason of err, or "" when err is not an AppError.
func ReasonOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}

// MessageOf returns the client-facing message of err.
func MessageOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}
