package domain

import "errors"

// Sentinel errors for the capture pipeline's failure taxonomy. Callers wrap
// them with fmt.Errorf("...: %w", ...) to attach detail and match with
// errors.Is.
var (
	ErrPermissionDenied      = errors.New("microphone permission denied")
	ErrDeviceUnavailable     = errors.New("no usable audio input device")
	ErrCredentialUnavailable = errors.New("streaming credential unavailable")
	ErrTransport             = errors.New("transport failure")
	ErrMalformedMessage      = errors.New("malformed vendor message")
)

// CodeForError maps a pipeline error to its taxonomy code. Unrecognized
// errors are reported as transport failures, the broadest fatal category.
func CodeForError(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return ErrorCodePermissionDenied
	case errors.Is(err, ErrDeviceUnavailable):
		return ErrorCodeDeviceUnavailable
	case errors.Is(err, ErrCredentialUnavailable):
		return ErrorCodeCredentialUnavailable
	case errors.Is(err, ErrMalformedMessage):
		return ErrorCodeParse
	default:
		return ErrorCodeTransport
	}
}
