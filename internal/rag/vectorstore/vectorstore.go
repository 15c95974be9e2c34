package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"budgetrag/internal/rag/schema"
	"budgetrag/pkg/logger"
)

var (
	// ErrInvalidDocumentID is returned when an empty document id is supplied.
	ErrInvalidDocumentID = errors.New("document id cannot be empty")
	// ErrNoActiveDocument is returned when a store or query operation runs
	// before any document has been activated.
	ErrNoActiveDocument = errors.New("no active document set, ingest a document first")
)

// upsertBatchSize bounds the payload of a single backend upsert call.
const upsertBatchSize = 100

// Backend is the storage capability behind the Store facade. Implementations
// receive the document id explicitly on every call; they hold no document
// state of their own, so two backends are interchangeable.
type Backend interface {
	// Upsert writes one batch of embedded chunks under the given document id.
	Upsert(ctx context.Context, documentID string, chunks []schema.Chunk) error
	// Search returns up to topK results for the vector, restricted to the
	// given document id, ordered by descending similarity score.
	Search(ctx context.Context, documentID string, vector []float32, topK int) ([]schema.SearchResult, error)
	// Name identifies the backend in logs.
	Name() string
	// Close releases backend resources.
	Close() error
}

// Store scopes all vector operations to a single active document. The
// document vectors of different ingests share one physical index and are
// partitioned purely by the document id filter, which makes a missing or
// stale active id the most dangerous correctness bug in the system: every
// operation asserts a non-empty id before touching the backend, and
// StoreDocument/QueryDocument hold the lock across activate-then-operate so
// concurrent requests cannot cross-contaminate each other's results.
type Store struct {
	backend Backend
	log     *logger.Logger

	mu       sync.Mutex
	activeID string
}

// NewStore creates a Store over the given backend.
func NewStore(backend Backend, log *logger.Logger) *Store {
	return &Store{backend: backend, log: log}
}

// BackendName reports which backend the store ended up with.
func (s *Store) BackendName() string {
	return s.backend.Name()
}

// SetActiveDocument replaces the active document pointer.
func (s *Store) SetActiveDocument(documentID string) error {
	if documentID == "" {
		return ErrInvalidDocumentID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info(fmt.Sprintf("Setting active document id: %s", documentID))
	s.activeID = documentID
	return nil
}

// GetActiveDocument returns the active document id.
func (s *Store) GetActiveDocument() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == "" {
		return "", ErrNoActiveDocument
	}
	return s.activeID, nil
}

// ResetActiveDocument clears the active document pointer. Idempotent.
func (s *Store) ResetActiveDocument() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info("Resetting active document id")
	s.activeID = ""
}

// Store writes the embedded chunks under the currently active document.
func (s *Store) Store(ctx context.Context, chunks []schema.Chunk) error {
	documentID, err := s.GetActiveDocument()
	if err != nil {
		return err
	}
	return s.store(ctx, documentID, chunks)
}

// Query searches the currently active document.
func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]schema.SearchResult, error) {
	documentID, err := s.GetActiveDocument()
	if err != nil {
		return nil, err
	}
	return s.backend.Search(ctx, documentID, vector, topK)
}

// StoreDocument activates documentID and stores the chunks as one critical
// section, so no concurrent caller can observe a half-switched pointer.
func (s *Store) StoreDocument(ctx context.Context, documentID string, chunks []schema.Chunk) error {
	if documentID == "" {
		return ErrInvalidDocumentID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = documentID
	return s.store(ctx, documentID, chunks)
}

// QueryDocument activates documentID and searches it as one critical section.
func (s *Store) QueryDocument(ctx context.Context, documentID string, vector []float32, topK int) ([]schema.SearchResult, error) {
	if documentID == "" {
		return nil, ErrInvalidDocumentID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = documentID
	return s.backend.Search(ctx, documentID, vector, topK)
}

// store stamps every chunk with the partition key (and its legacy alias) and
// upserts in batches. Batches are independent, so they run concurrently.
func (s *Store) store(ctx context.Context, documentID string, chunks []schema.Chunk) error {
	stamped := make([]schema.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			continue
		}
		chunk.Metadata.DocumentID = documentID
		// Legacy alias, kept equal to the document id so indexes written by
		// older deployments stay filterable.
		chunk.Metadata.CityName = documentID
		stamped = append(stamped, chunk)
	}

	s.log.Info(fmt.Sprintf("Storing %d vectors for document id %s", len(stamped), documentID))

	eg, gCtx := errgroup.WithContext(ctx)
	for start := 0; start < len(stamped); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(stamped) {
			end = len(stamped)
		}
		batch := stamped[start:end]
		eg.Go(func() error {
			return s.backend.Upsert(gCtx, documentID, batch)
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("failed to store vectors for document %s: %w", documentID, err)
	}

	s.log.Info(fmt.Sprintf("Successfully stored %d vectors for document id %s", len(stamped), documentID))
	return nil
}
