package measurement

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRecord marks upstream data that cannot become a Record.
	ErrMalformedRecord = errors.New("malformed measurement record")
	// ErrSourceUnavailable marks transport failures talking to the upstream.
	ErrSourceUnavailable = errors.New("measurement source unavailable")
)

// FieldError names the offending field of a malformed record.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: field %q %s", ErrMalformedRecord, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return ErrMalformedRecord
}
