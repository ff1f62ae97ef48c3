package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ragworks/ragserve/internal/vecstore"
)

// ErrNotFound is returned when a document id does not exist.
var ErrNotFound = errors.New("document not found")

// ErrStatusConflict is returned by TransitionStatus when the document's
// current status does not match the expected prior status.
var ErrStatusConflict = errors.New("document status conflict")

// Registry stores document metadata in the gateway's documents collection.
// Every record is written with the degenerate vector; reads go through
// filtered scans, never similarity search.
type Registry struct {
	gw         vecstore.Gateway
	collection string

	// mu serializes per-document mutations so that concurrent deletes and
	// status transitions on the same id resolve to exactly one winner
	// within this process.
	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

// New returns a Registry backed by the given gateway collection.
func New(gw vecstore.Gateway, collection string) *Registry {
	return &Registry{
		gw:         gw,
		collection: collection,
		keys:       make(map[string]*sync.Mutex),
	}
}

func (r *Registry) lockDocument(id string) func() {
	r.mu.Lock()
	km, ok := r.keys[id]
	if !ok {
		km = &sync.Mutex{}
		r.keys[id] = km
	}
	r.mu.Unlock()
	km.Lock()
	return km.Unlock
}

// CreateDocument persists a new document record. The document's status must
// already be set; CreatedAt is stamped here if zero.
func (r *Registry) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		return fmt.Errorf("create document: empty id")
	}
	if !doc.Status.Valid() {
		return fmt.Errorf("create document %s: invalid status %q", doc.ID, doc.Status)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	point := vecstore.Point{
		ID:      doc.ID,
		Vector:  vecstore.DegenerateVector,
		Payload: toPayload(doc),
	}
	if err := r.gw.Upsert(ctx, r.collection, []vecstore.Point{point}); err != nil {
		return fmt.Errorf("create document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument fetches a single document by id. Returns ErrNotFound when the
// id does not exist.
func (r *Registry) GetDocument(ctx context.Context, id string) (*Document, error) {
	points, err := r.gw.QueryByFilter(ctx, r.collection, vecstore.Filter{"document_id": id}, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	if len(points) == 0 {
		return nil, ErrNotFound
	}
	doc, err := fromPayload(points[0].Payload)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// ListDocuments returns a page of documents ordered by creation time
// (newest first) together with the total count.
func (r *Registry) ListDocuments(ctx context.Context, skip, limit int) ([]*Document, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if skip < 0 {
		skip = 0
	}
	total, err := r.gw.Count(ctx, r.collection, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	if total == 0 {
		return []*Document{}, 0, nil
	}
	// The gateway pages by point id, not creation time, so fetch the full
	// set and sort here. Document counts are metadata-scale, not
	// fragment-scale.
	points, err := r.gw.QueryByFilter(ctx, r.collection, nil, total, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	docs := make([]*Document, 0, len(points))
	for _, p := range points {
		doc, err := fromPayload(p.Payload)
		if err != nil {
			return nil, 0, fmt.Errorf("list documents: %w", err)
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	if skip >= len(docs) {
		return []*Document{}, int(total), nil
	}
	end := skip + limit
	if end > len(docs) {
		end = len(docs)
	}
	return docs[skip:end], int(total), nil
}

// UpdateStatus unconditionally sets a document's status, updating the
// timestamp and error detail. Most callers want TransitionStatus instead.
func (r *Registry) UpdateStatus(ctx context.Context, id string, status Status, errMsg string) error {
	unlock := r.lockDocument(id)
	defer unlock()
	return r.writeStatus(ctx, id, status, errMsg)
}

// TransitionStatus moves a document from an expected prior status to a new
// one. It returns ErrStatusConflict when the stored status differs from the
// expected one, so racing workers observe exactly one winner, and rejects
// transitions the lifecycle state machine does not allow.
func (r *Registry) TransitionStatus(ctx context.Context, id string, from, to Status, errMsg string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("transition document %s: %s -> %s not allowed", id, from, to)
	}
	unlock := r.lockDocument(id)
	defer unlock()

	doc, err := r.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if doc.Status != from {
		return fmt.Errorf("transition document %s from %s to %s, currently %s: %w",
			id, from, to, doc.Status, ErrStatusConflict)
	}
	return r.writeStatus(ctx, id, to, errMsg)
}

func (r *Registry) writeStatus(ctx context.Context, id string, status Status, errMsg string) error {
	doc, err := r.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	doc.Status = status
	doc.UpdatedAt = time.Now().UTC()
	if status == StatusFailed {
		doc.Error = errMsg
	} else {
		doc.Error = ""
	}
	point := vecstore.Point{
		ID:      doc.ID,
		Vector:  vecstore.DegenerateVector,
		Payload: toPayload(doc),
	}
	if err := r.gw.Upsert(ctx, r.collection, []vecstore.Point{point}); err != nil {
		return fmt.Errorf("update document %s status: %w", id, err)
	}
	return nil
}

// DeleteDocument removes a document record. It reports whether a record was
// actually deleted, so concurrent deletes of the same id see exactly one
// true result within this process.
func (r *Registry) DeleteDocument(ctx context.Context, id string) (bool, error) {
	unlock := r.lockDocument(id)
	defer unlock()

	_, err := r.GetDocument(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := r.gw.DeleteByFilter(ctx, r.collection, vecstore.Filter{"document_id": id}); err != nil {
		return false, fmt.Errorf("delete document %s: %w", id, err)
	}
	return true, nil
}

func toPayload(doc *Document) map[string]any {
	payload := map[string]any{
		"document_id":  doc.ID,
		"user_id":      doc.UserID,
		"filename":     doc.Filename,
		"content_type": doc.ContentType,
		"storage_uri":  doc.StorageURI,
		"status":       string(doc.Status),
		"created_at":   doc.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if !doc.UpdatedAt.IsZero() {
		payload["updated_at"] = doc.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	if len(doc.Tags) > 0 {
		tags := make([]any, len(doc.Tags))
		for i, t := range doc.Tags {
			tags[i] = t
		}
		payload["tags"] = tags
	}
	if doc.Checksum != "" {
		payload["checksum"] = doc.Checksum
	}
	if doc.Error != "" {
		payload["error"] = doc.Error
	}
	return payload
}

func fromPayload(payload map[string]any) (*Document, error) {
	doc := &Document{
		ID:          stringField(payload, "document_id"),
		UserID:      stringField(payload, "user_id"),
		Filename:    stringField(payload, "filename"),
		ContentType: stringField(payload, "content_type"),
		StorageURI:  stringField(payload, "storage_uri"),
		Status:      Status(stringField(payload, "status")),
		Checksum:    stringField(payload, "checksum"),
		Error:       stringField(payload, "error"),
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("payload missing document_id")
	}
	if !doc.Status.Valid() {
		return nil, fmt.Errorf("payload has invalid status %q", doc.Status)
	}
	if raw := stringField(payload, "created_at"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		doc.CreatedAt = t
	}
	if raw := stringField(payload, "updated_at"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		doc.UpdatedAt = t
	}
	if raw, ok := payload["tags"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				doc.Tags = append(doc.Tags, s)
			}
		}
	}
	return doc, nil
}

func stringField(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}
