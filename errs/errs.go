// Package errs defines the sentinel errors shared by every tracefile package.
//
// Errors are grouped into five kinds. Specific errors wrap their kind so callers
// can test either level with errors.Is:
//
//	if errors.Is(err, errs.ErrSchema) { ... }          // any footer problem
//	if errors.Is(err, errs.ErrChecksumMismatch) { ... } // one specific cause
package errs

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrIO reports a failed open, read, write, seek or sync. The file is left in
	// its prior durable state.
	ErrIO = errors.New("i/o failure")
	// ErrSchema reports an unreadable footer: missing key, wrong type tag or a
	// schema version newer than this reader.
	ErrSchema = errors.New("schema error")
	// ErrInvalidIndex reports an index beyond the current count or a write that
	// would leave a hole.
	ErrInvalidIndex = errors.New("invalid index")
	// ErrSeriesIncompatible reports a validator rejection.
	ErrSeriesIncompatible = errors.New("series incompatible")
	// ErrClosedFileMutation reports a mutation of a store that is closed for
	// writing or opened read-only.
	ErrClosedFileMutation = errors.New("mutation of closed file")
)

// Schema errors.
var (
	ErrFooterMissing        = kind(ErrSchema, "footer missing")
	ErrInvalidTrailer       = kind(ErrSchema, "invalid trailer")
	ErrInvalidTrailerSize   = kind(ErrSchema, "invalid trailer size")
	ErrUnknownSchemaVersion = kind(ErrSchema, "unknown schema version")
	ErrTypeTagMismatch      = kind(ErrSchema, "unexpected type tag")
	ErrMissingFooterKey     = kind(ErrSchema, "missing footer key")
	ErrMalformedFooter      = kind(ErrSchema, "malformed footer")
	ErrChecksumMismatch     = kind(ErrSchema, "footer checksum mismatch")
)

// Index errors.
var (
	ErrRecordOutOfRange  = kind(ErrInvalidIndex, "record index out of range")
	ErrNonSequential     = kind(ErrInvalidIndex, "non-sequential record write")
	ErrPayloadSize       = kind(ErrInvalidIndex, "payload size does not match record stride")
	ErrSegmentOutOfRange = kind(ErrInvalidIndex, "segment index out of range")
	ErrUnknownChannel    = kind(ErrInvalidIndex, "unknown channel")
	ErrEmptySeries       = kind(ErrInvalidIndex, "series has no members")
	ErrOffsetOutOfRange  = kind(ErrInvalidIndex, "packet offset out of range")
	ErrDenseTooLarge     = kind(ErrInvalidIndex, "dense trace exceeds sample limit")
)

// Validation and configuration errors.
var (
	ErrInvalidGrid      = errors.New("invalid sampling grid")
	ErrInvalidLayout    = errors.New("invalid record layout")
	ErrDuplicateChannel = errors.New("duplicate channel name")
	ErrInvalidChannel   = errors.New("invalid channel definition")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// Lifecycle errors.
var (
	ErrAlreadyClosed = kind(ErrClosedFileMutation, "store already closed")
	ErrReadOnly      = kind(ErrClosedFileMutation, "store is read-only")
	ErrNotWritable   = kind(ErrClosedFileMutation, "series has no open writer")
)

// IO wraps err as an ErrIO failure for the given operation.
// Returns nil when err is nil.
func IO(op string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

func kind(parent error, msg string) error {
	return &kindError{kind: parent, msg: msg}
}
