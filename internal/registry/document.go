// Package registry owns Document records and their lifecycle state machine.
// Documents live in the metadata collection of the vector store gateway
// (degenerate vector, filtered scans only); no other package writes them.
package registry

import (
	"time"
)

// Status is the lifecycle state of a document.
type Status string

const (
	// StatusUploaded means the file is stored but not yet processed.
	StatusUploaded Status = "uploaded"
	// StatusProcessing means an ingestion worker is working on the document.
	StatusProcessing Status = "processing"
	// StatusIngested means fragments are indexed and the document is queryable.
	StatusIngested Status = "ingested"
	// StatusFailed means ingestion failed; the error detail is retained on
	// the document record.
	StatusFailed Status = "failed"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUploaded, StatusProcessing, StatusIngested, StatusFailed:
		return true
	}
	return false
}

// allowedTransitions encodes the lifecycle state machine. Transitions out of
// a terminal state back to processing model explicit re-ingestion; they never
// happen without an external trigger.
var allowedTransitions = map[Status][]Status{
	StatusUploaded:   {StatusProcessing},
	StatusProcessing: {StatusIngested, StatusFailed},
	StatusFailed:     {StatusProcessing},
	StatusIngested:   {StatusProcessing},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Document is the metadata record for an uploaded file.
type Document struct {
	// ID is the document's opaque identifier (UUID).
	ID string

	// UserID identifies the uploading user.
	UserID string

	// Filename is the original upload filename.
	Filename string

	// ContentType is the declared media type used for parser dispatch.
	ContentType string

	// StorageURI locates the stored file bytes (blob store key or path).
	StorageURI string

	// Status is the current lifecycle state.
	Status Status

	// CreatedAt is when the document record was created.
	CreatedAt time.Time

	// UpdatedAt is when the record was last mutated. Zero until the first
	// status change.
	UpdatedAt time.Time

	// Tags are optional caller-supplied labels.
	Tags []string

	// Checksum is the optional SHA-256 of the uploaded content.
	Checksum string

	// Error holds the last ingestion failure description. Empty unless
	// Status is failed.
	Error string
}
