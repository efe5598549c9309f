package dloom

import "errors"

// Kind is a stable category for programmatic error handling. Callers
// branch on Kind (via IsKind or errors.As), never on message text.
type Kind string

const (
	// KindFormat covers malformed container bytes: bad magic,
	// truncated prefix, impossible lengths.
	KindFormat Kind = "Format"
	// KindUnsupported covers unrecognized format versions and
	// algorithm identifiers.
	KindUnsupported Kind = "Unsupported"
	// KindState covers writer/reader state machine violations, such
	// as writing after Close.
	KindState Kind = "State"
	// KindChunkIntegrity covers a chunk whose bytes fail hash or
	// authentication verification. Fatal for that chunk only; the
	// container remains readable.
	KindChunkIntegrity Kind = "ChunkIntegrity"
	// KindAuthentication covers a wrong password or key for an
	// encrypted container. No partial plaintext is ever exposed.
	KindAuthentication Kind = "Authentication"
)

// Error is the codec's structured error type. Chunk is the 0-based
// index of the affected chunk, or -1 when the error is not tied to a
// specific chunk.
type Error struct {
	Kind    Kind
	Chunk   int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, msg string) error {
	return &Error{Kind: kind, Chunk: -1, Message: msg}
}

func newChunkError(kind Kind, chunk int, msg string, cause error) error {
	return &Error{Kind: kind, Chunk: chunk, Message: msg, Cause: cause}
}

func wrapError(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Chunk: -1, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given
// Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// ChunkIndex returns the chunk index carried by a structured error, or
// -1 if err carries none.
func ChunkIndex(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return -1
	}
	return e.Chunk
}
