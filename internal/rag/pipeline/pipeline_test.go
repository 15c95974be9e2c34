package pipeline

import (
	"context"
	"errors"
	"testing"

	"budgetrag/internal/rag/engine"
	"budgetrag/internal/rag/extract"
	"budgetrag/internal/rag/schema"
	"budgetrag/internal/rag/textproc"
	"budgetrag/pkg/logger"
)

type fakeExtractor struct {
	pages []extract.PageContent
	err   error
}

func (f *fakeExtractor) Extract(ctx context.Context, path string) ([]extract.PageContent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedChunks(ctx context.Context, chunks []schema.Chunk) error {
	if f.err != nil {
		return f.err
	}
	for i := range chunks {
		chunks[i].Embedding = []float32{1, 0}
	}
	return nil
}

type fakeStore struct {
	documentID string
	chunks     []schema.Chunk
	err        error
	active     string
}

func (f *fakeStore) StoreDocument(ctx context.Context, documentID string, chunks []schema.Chunk) error {
	if f.err != nil {
		return f.err
	}
	f.documentID = documentID
	f.chunks = chunks
	f.active = documentID
	return nil
}

func (f *fakeStore) GetActiveDocument() (string, error) {
	if f.active == "" {
		return "", errors.New("no active document")
	}
	return f.active, nil
}

func (f *fakeStore) ResetActiveDocument() { f.active = "" }

type fakeEngine struct {
	lastDocumentID string
	lastQuestion   string
}

func (f *fakeEngine) Answer(ctx context.Context, question, documentID string, useCache bool) *engine.Response {
	f.lastQuestion = question
	f.lastDocumentID = documentID
	return &engine.Response{Answer: "stub answer"}
}

func newTestCoordinator(t *testing.T, extractor *fakeExtractor, embedder *fakeEmbedder, store *fakeStore, eng *fakeEngine) *Coordinator {
	t.Helper()
	processor, err := textproc.NewProcessor(1000, 200)
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}
	return NewCoordinator(extractor, processor, embedder, store, eng, nil, logger.New("test", ""))
}

func budgetPages() []extract.PageContent {
	return []extract.PageContent{
		{PageNumber: 1, Text: "City of Springfield\nAnnual Budget\nFiscal Year 2024-25"},
		{PageNumber: 2, Text: "Revenue totals $45,000,000 for the general fund."},
	}
}

func TestIngestSuccess(t *testing.T) {
	store := &fakeStore{}
	extractor := &fakeExtractor{pages: budgetPages()}
	coord := newTestCoordinator(t, extractor, &fakeEmbedder{}, store, &fakeEngine{})

	meta := schema.DocumentMetadata{CityName: "springfield", FiscalYear: "2024", FileName: "budget.pdf"}
	result := coord.Ingest(context.Background(), "/tmp/budget.pdf", meta)

	if result.Status != "success" {
		t.Fatalf("status = %q (error %q), want success", result.Status, result.Error)
	}
	if result.DocumentID != "springfield_2024" {
		t.Errorf("document id = %q, want %q", result.DocumentID, "springfield_2024")
	}
	if result.PagesProcessed != 2 {
		t.Errorf("pages processed = %d, want 2", result.PagesProcessed)
	}
	if result.ChunksProcessed == 0 {
		t.Error("no chunks processed")
	}
	if store.documentID != "springfield_2024" {
		t.Errorf("store received document id %q, want %q", store.documentID, "springfield_2024")
	}
	if len(store.chunks) != result.ChunksProcessed {
		t.Errorf("store received %d chunks, result reports %d", len(store.chunks), result.ChunksProcessed)
	}
}

func TestIngestDetectsMetadata(t *testing.T) {
	store := &fakeStore{}
	coord := newTestCoordinator(t, &fakeExtractor{pages: budgetPages()}, &fakeEmbedder{}, store, &fakeEngine{})

	result := coord.Ingest(context.Background(), "/tmp/budget.pdf", schema.DocumentMetadata{FileName: "budget.pdf"})

	if result.Status != "success" {
		t.Fatalf("status = %q (error %q), want success", result.Status, result.Error)
	}
	if result.CityName != "Springfield" {
		t.Errorf("detected city = %q, want %q", result.CityName, "Springfield")
	}
	if result.FiscalYear != "2024-25" {
		t.Errorf("detected fiscal year = %q, want %q", result.FiscalYear, "2024-25")
	}
	if result.DocumentID != "springfield_2024-25" {
		t.Errorf("document id = %q, want %q", result.DocumentID, "springfield_2024-25")
	}
}

func TestIngestExtractFailure(t *testing.T) {
	extractor := &fakeExtractor{err: errors.New("corrupt file")}
	coord := newTestCoordinator(t, extractor, &fakeEmbedder{}, &fakeStore{}, &fakeEngine{})

	result := coord.Ingest(context.Background(), "/tmp/bad.pdf", schema.DocumentMetadata{FileName: "bad.pdf"})

	if result.Status != "error" {
		t.Fatalf("status = %q, want error", result.Status)
	}
	if result.Error == "" {
		t.Error("error field is empty")
	}
	if coord.CurrentDocument() != nil {
		t.Error("failed ingest should not update the current document")
	}
}

func TestIngestEmbeddingFailure(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("embedding service unreachable")}
	coord := newTestCoordinator(t, &fakeExtractor{pages: budgetPages()}, embedder, &fakeStore{}, &fakeEngine{})

	result := coord.Ingest(context.Background(), "/tmp/budget.pdf", schema.DocumentMetadata{CityName: "x", FiscalYear: "2024", FileName: "budget.pdf"})
	if result.Status != "error" {
		t.Fatalf("status = %q, want error", result.Status)
	}
}

func TestIngestUpdatesCurrentDocument(t *testing.T) {
	coord := newTestCoordinator(t, &fakeExtractor{pages: budgetPages()}, &fakeEmbedder{}, &fakeStore{}, &fakeEngine{})

	if coord.CurrentDocument() != nil {
		t.Fatal("current document should start nil")
	}
	result := coord.Ingest(context.Background(), "/tmp/budget.pdf", schema.DocumentMetadata{CityName: "springfield", FiscalYear: "2024", FileName: "budget.pdf"})
	if result.Status != "success" {
		t.Fatalf("ingest failed: %q", result.Error)
	}

	current := coord.CurrentDocument()
	if current == nil || current.DocumentID != "springfield_2024" {
		t.Errorf("current document = %+v, want the last successful ingest", current)
	}
}

func TestQueryDelegatesToEngine(t *testing.T) {
	eng := &fakeEngine{}
	coord := newTestCoordinator(t, &fakeExtractor{}, &fakeEmbedder{}, &fakeStore{}, eng)

	resp := coord.Query(context.Background(), "what is the budget?", "springfield_2024", true)

	if resp.Answer != "stub answer" {
		t.Errorf("answer = %q, want the engine output", resp.Answer)
	}
	if eng.lastDocumentID != "springfield_2024" {
		t.Errorf("engine received document id %q, want %q", eng.lastDocumentID, "springfield_2024")
	}
	if eng.lastQuestion != "what is the budget?" {
		t.Errorf("engine received question %q", eng.lastQuestion)
	}
}
