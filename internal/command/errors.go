package command

import (
	"errors"
	"fmt"
)

// Error codes returned to the caller of a command.
const (
	CodeInternalError        = 1
	CodeBadValue             = 2
	CodeUnauthorized         = 13
	CodeFileRenameFailed     = 17
	CodeAuthenticationFailed = 18
	CodeCommandNotFound      = 59
	CodeInvalidOptions       = 72
	CodeRotationFailed       = 8000
)

// Error is a failed command. Code is a stable numeric identifier.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("command failed (code %d): %s", e.Code, e.Message)
}

func errorf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the command error code carried by err, or
// CodeInternalError when err is not a command Error.
func CodeOf(err error) int {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternalError
}
