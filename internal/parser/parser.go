// Package parser extracts plain text from uploaded documents. Handlers are
// registered per media type; the declared content type (not the filename
// extension) decides which handler runs.
package parser

import (
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"
)

// Handler extracts plain text from raw document bytes.
type Handler func(data []byte) (string, error)

// Parser dispatches raw bytes to a per-media-type text extractor.
type Parser struct {
	handlers map[string]Handler
	fallback Handler
}

// New returns a Parser with the built-in handlers registered: plain text,
// markdown, HTML, PDF and DOCX. Media types with no dedicated handler fall
// back to strict byte-to-text decoding, so an unknown type with readable
// content still ingests and only undecodable bytes fail.
func New() *Parser {
	p := &Parser{handlers: make(map[string]Handler), fallback: parseFallbackText}
	p.Register("text/plain", parseText)
	p.Register("text/markdown", parseText)
	p.Register("text/html", parseHTML)
	p.Register("application/pdf", parsePDF)
	p.Register("application/vnd.openxmlformats-officedocument.wordprocessingml.document", parseDOCX)
	return p
}

// Register installs a handler for a media type, replacing any existing one.
func (p *Parser) Register(mediaType string, h Handler) {
	p.handlers[strings.ToLower(mediaType)] = h
}

// Parse extracts plain text from data using the handler for contentType.
// Unknown media types go through the fallback handler when one is set and
// fail with kind unsupported_type otherwise; a handler rejecting the bytes
// fails with kind decode_failure.
func (p *Parser) Parse(contentType string, data []byte) (string, error) {
	mediaType := normalizeType(contentType)
	h, ok := p.handlers[mediaType]
	if !ok {
		if p.fallback == nil {
			return "", newParseError(KindUnsupportedType, mediaType, nil)
		}
		h = p.fallback
	}
	text, err := h(data)
	if err != nil {
		var pe *ParseError
		if ok := asParseError(err, &pe); ok {
			return "", pe
		}
		return "", newParseError(KindDecodeFailure, mediaType, err)
	}
	return text, nil
}

func asParseError(err error, target **ParseError) bool {
	pe, ok := err.(*ParseError)
	if ok {
		*target = pe
	}
	return ok
}

func normalizeType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

// parseText passes bytes through as UTF-8 text. Invalid byte sequences are
// replaced rather than rejected, matching how editors treat mixed-encoding
// files.
func parseText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

// parseFallbackText is the handler for media types without a dedicated
// extractor. Unlike parseText it is strict: bytes that are not valid UTF-8
// are rejected rather than replaced, since for an unknown type there is no
// basis for assuming the content is text at all.
func parseFallbackText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("content is not valid UTF-8 text")
	}
	return string(data), nil
}

func decodeFailure(mediaType string, format string, args ...any) error {
	return newParseError(KindDecodeFailure, mediaType, fmt.Errorf(format, args...))
}
