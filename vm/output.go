package vm

import (
	"fmt"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Output: captured program output
// ---------------------------------------------------------------------------

// Output is an append-only byte buffer collecting everything a run emits:
// hint writes during execution and the output builtin's cells at halt. It
// is owned by one runner for one run and read back after the run ends.
type Output struct {
	buf []byte
}

// NewOutput creates an empty sink.
func NewOutput() *Output {
	return &Output{}
}

// Write appends p to the sink. It never fails; io.Writer is implemented so
// hints and the runner can share the sink with formatting helpers.
func (o *Output) Write(p []byte) (int, error) {
	o.buf = append(o.buf, p...)
	return len(p), nil
}

// Bytes returns the captured output in write order.
func (o *Output) Bytes() []byte {
	return o.buf
}

// Len returns the number of captured bytes.
func (o *Output) Len() int {
	return len(o.buf)
}

// Text renders the output as a string, failing with ErrOutputEncoding when
// the bytes are not valid UTF-8. Invalid text is never silently
// substituted.
func (o *Output) Text() (string, error) {
	if !utf8.Valid(o.buf) {
		return "", fmt.Errorf("%w: %d bytes captured", ErrOutputEncoding, len(o.buf))
	}
	return string(o.buf), nil
}

// String renders best-effort text for logs; invalid sequences are shown as
// replacement runes. Use Text for validated rendering.
func (o *Output) String() string {
	return string(o.buf)
}
