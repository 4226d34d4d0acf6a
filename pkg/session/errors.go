package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFrame is returned for frames that are empty or cannot be decoded.
	ErrInvalidFrame = errors.New("session: invalid frame")

	// ErrSourceUnavailable is returned when the landmark source cannot be
	// opened, or the engine has been closed.
	ErrSourceUnavailable = errors.New("session: landmark source unavailable")
)

// TeardownError reports a failure to release the landmark source.
type TeardownError struct {
	Err error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("session: release landmark source: %v", e.Err)
}

func (e *TeardownError) Unwrap() error {
	return e.Err
}
