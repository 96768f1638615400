package types

import (
	"errors"
	"fmt"
)

// InternalError reports a broken internal invariant, such as a record that
// reaches the manifest writer without a digest. It signals a defect rather
// than bad input and is kept distinct so callers can tell the two apart.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Msg
}

// Internalf returns an *InternalError with a formatted message.
func Internalf(format string, args ...any) error {
	return &InternalError{Msg: fmt.Sprintf(format, args...)}
}

// IsInternal reports whether err wraps an *InternalError.
func IsInternal(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}
