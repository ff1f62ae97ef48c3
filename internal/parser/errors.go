package parser

import "fmt"

// ParseErrorKind classifies parse failures for status reporting.
type ParseErrorKind string

const (
	// KindUnsupportedType means no handler is registered for the media type.
	KindUnsupportedType ParseErrorKind = "unsupported_type"
	// KindDecodeFailure means the bytes could not be decoded as the
	// declared format.
	KindDecodeFailure ParseErrorKind = "decode_failure"
	// KindIOFailure means reading the source failed.
	KindIOFailure ParseErrorKind = "io_failure"
)

// ParseError describes a document parse failure.
type ParseError struct {
	Kind      ParseErrorKind
	MediaType string
	Err       error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.MediaType, e.Kind, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.MediaType, e.Kind)
}

func (e *ParseError) Unwrap() error { return e.Err }

func newParseError(kind ParseErrorKind, mediaType string, err error) *ParseError {
	return &ParseError{Kind: kind, MediaType: mediaType, Err: err}
}
