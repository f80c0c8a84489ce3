package mapposter

import (
	"fmt"

	"github.com/jamesrr39/goutil/errorsx"
)

type ErrorCode string

const (
	CodeBadRequest           ErrorCode = "BadRequest"
	CodeInvalidZoom          ErrorCode = "InvalidZoom"
	CodeUnresolvableLocation ErrorCode = "UnresolvableLocation"
	CodeResolveTimeout       ErrorCode = "ResolveTimeout"
	CodeProviderError        ErrorCode = "ProviderError"
	CodeProviderTimeout      ErrorCode = "ProviderTimeout"
	CodeEncodingError        ErrorCode = "EncodingError"
	// CodeInternal is reported for errors that were never given a code
	CodeInternal ErrorCode = "InternalError"
)

type ErrorClass int

const (
	ErrorClassClient ErrorClass = iota
	ErrorClassInfrastructure
	ErrorClassInternal
)

func (c ErrorCode) Class() ErrorClass {
	switch c {
	case CodeBadRequest, CodeInvalidZoom, CodeUnresolvableLocation:
		return ErrorClassClient
	case CodeResolveTimeout, CodeProviderError, CodeProviderTimeout:
		return ErrorClassInfrastructure
	default:
		return ErrorClassInternal
	}
}

// RenderError is the cause of every failure the render pipeline reports to a caller.
type RenderError struct {
	Code    ErrorCode
	Message string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, message string, args ...interface{}) errorsx.Error {
	return errorsx.Wrap(&RenderError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
	})
}

// AsRenderError returns the RenderError at the root of err.
// Errors without a code are reported as CodeInternal.
func AsRenderError(err error) *RenderError {
	if err == nil {
		return nil
	}

	renderErr, ok := errorsx.Cause(err).(*RenderError)
	if ok {
		return renderErr
	}

	return &RenderError{
		Code:    CodeInternal,
		Message: "internal error",
	}
}

func CodeOf(err error) ErrorCode {
	renderErr := AsRenderError(err)
	if renderErr == nil {
		return ""
	}

	return renderErr.Code
}
