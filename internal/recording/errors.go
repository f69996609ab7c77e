package recording

import (
	"errors"
	"fmt"
)

// ErrEmptyRef is returned when a call has no recording reference.
var ErrEmptyRef = errors.New("recording: empty reference")

// FetchError reports a non-success answer from the recording source.
type FetchError struct {
	URL        string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("recording: fetch %s: status %d", e.URL, e.StatusCode)
}
