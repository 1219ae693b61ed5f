package codec

import "fmt"

// RadiotapError reports a radiotap header that cannot be decoded.
type RadiotapError struct {
	Offset int
	Reason string
}

func (e *RadiotapError) Error() string {
	return fmt.Sprintf("radiotap: %s at offset %d", e.Reason, e.Offset)
}

// MPDUError reports a frame truncated inside one of its mandatory fields.
type MPDUError struct {
	Field string
	Need  int
	Have  int
}

func (e *MPDUError) Error() string {
	return fmt.Sprintf("mpdu: truncated %s (need %d bytes, have %d)", e.Field, e.Need, e.Have)
}

func radiotapErr(off int, format string, args ...any) *RadiotapError {
	return &RadiotapError{Offset: off, Reason: fmt.Sprintf(format, args...)}
}
