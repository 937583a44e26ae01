// Package apperr implements furukawad's error taxonomy: every error that
// crosses a component boundary carries a stable machine code and an
// optional remediation suggestion, exposed through a Diagnosable interface.
package apperr

import "fmt"

// Code is a stable machine-readable error classification.
type Code string

const (
	CodeContainerInvalidTransition Code = "CONTAINER_INVALID_TRANSITION"
	CodeContainerNotModified       Code = "CONTAINER_NOT_MODIFIED"
	CodeContainerNotFound          Code = "CONTAINER_NOT_FOUND"
	CodeImageDigestInvalid         Code = "IMAGE_DIGEST_INVALID"
	CodeImageNotFound              Code = "IMAGE_NOT_FOUND"
	CodeRegAuthFailed              Code = "REG_AUTH_FAILED"
	CodeRegManifestMissing         Code = "REG_MANIFEST_MISSING"
	CodeRegBlobMissing             Code = "REG_BLOB_MISSING"
	CodeRegNetworkError            Code = "REG_NETWORK_ERROR"
	CodeRegDigestMismatch          Code = "REG_DIGEST_MISMATCH"
	CodeRegNoMatchingPlatform      Code = "REG_NO_MATCHING_PLATFORM"
	CodeFSIOError                  Code = "FS_IO_ERROR"
	CodeFSUnsafePath               Code = "FS_UNSAFE_PATH"
	CodeFSLayerNotFound            Code = "FS_LAYER_NOT_FOUND"
	CodeDBError                    Code = "DB_ERROR"
	CodeDBSerializationError       Code = "DB_SERIALIZATION_ERROR"
	CodeRuntimeSpawnFailed         Code = "RUNTIME_SPAWN_FAILED"
	CodeRuntimeNoPID               Code = "RUNTIME_NO_PID"
	CodeRuntimeLogSetupFailed      Code = "RUNTIME_LOG_SETUP_FAILED"
	CodeRuntimeImageResolutionFailed     Code = "RUNTIME_IMAGE_RESOLUTION_FAILED"
	CodeRuntimeRootfsCompositionFailed   Code = "RUNTIME_ROOTFS_COMPOSITION_FAILED"
	CodeRuntimePortForwardingFailed      Code = "RUNTIME_PORT_FORWARDING_FAILED"
	CodeRuntimeWSLSetupFailed            Code = "RUNTIME_WSL_SETUP_FAILED"
	CodeNetworkNotFound            Code = "NETWORK_NOT_FOUND"
	CodeNetworkImmutable           Code = "NETWORK_IMMUTABLE"
	CodeVolumeNotFound             Code = "VOLUME_NOT_FOUND"
	CodeInvalidArgument            Code = "INVALID_ARGUMENT"
)

// Diagnosable is implemented by causes that know their own error code and,
// optionally, a human remediation hint.
type Diagnosable interface {
	error
	Code() Code
	Suggestion() string
}

// Error is furukawad's structured error: a stable code, a message, an
// optional suggestion, and an optional wrapped cause.
type Error struct {
	code       Code
	message    string
	suggestion string
	cause      error
}

// New builds an Error from a code and a message.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf builds an Error from a code and a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an existing cause.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{code: code, message: message, cause: cause}
}

// WithSuggestion attaches a remediation hint and returns the same error.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.suggestion = suggestion
	return e
}

// Code returns the machine-readable error code.
func (e *Error) Code() Code { return e.code }

// Suggestion returns the remediation hint, if any.
func (e *Error) Suggestion() string { return e.suggestion }

// Cause returns the wrapped error, if any, for github.com/pkg/errors interop.
func (e *Error) Cause() error { return e.cause }

// Unwrap supports errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// As extracts an *Error from any error chain, for handlers that need the code.
func As(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
