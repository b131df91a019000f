package protocol

import "errors"

// Sentinel errors for the codec and framing layers. Callers match with
// errors.Is; the wrapped message carries position detail for logging.
var (
	// ErrMalformedWireData covers truncated buffers, negative length
	// prefixes, and unrecognized type tags.
	ErrMalformedWireData = errors.New("malformed wire data")

	// ErrFrameTooLarge is returned when a declared frame length exceeds
	// the configured maximum.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrIncompleteFrame is returned when the stream ends mid-frame.
	ErrIncompleteFrame = errors.New("incomplete frame")
)
