package codec

import "fmt"

// ErrorKind is a closed set of decoder failure modes. None of them panic the
// process; primitive and engine failures are returned as a DecodeError
// carrying one of these. An error returned by a channel processor is passed
// through Engine.Run unchanged.
type ErrorKind int

const (
	// ChannelNotFound means the byte at the current (aligned) cursor
	// position did not match any registered channel selector.
	ChannelNotFound ErrorKind = iota
	// ShortBuffer means a primitive ran past the end of the payload.
	ShortBuffer
	// NotAligned means a byte-aligned primitive was attempted at a
	// non-byte bit position.
	NotAligned
)

func (k ErrorKind) String() string {
	switch k {
	case ChannelNotFound:
		return "CHANNEL_NOT_FOUND"
	case ShortBuffer:
		return "SHORT_BUFFER"
	case NotAligned:
		return "NOT_ALIGNED"
	default:
		return "UNKNOWN"
	}
}

// DecodeError reports a failed decode, tagged with its ErrorKind so callers
// can branch on kind without string matching.
type DecodeError struct {
	Kind ErrorKind
	Msg  string
}

func (e *DecodeError) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newError(kind ErrorKind, msg string) *DecodeError {
	return &DecodeError{Kind: kind, Msg: msg}
}
