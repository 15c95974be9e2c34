package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"budgetrag/internal/rag/cache"
	"budgetrag/internal/rag/schema"
	"budgetrag/pkg/logger"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

type fakeRetriever struct {
	results []schema.SearchResult
	err     error
}

func (f *fakeRetriever) QueryDocument(ctx context.Context, documentID string, vector []float32, topK int) ([]schema.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeGenerator struct {
	answer string
	err    error
	calls  int
	panics bool
}

func (f *fakeGenerator) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	if f.panics {
		panic("generator blew up")
	}
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeCache struct {
	entries map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (f *fakeCache) Lookup(ctx context.Context, documentID, question string) cache.Result {
	if value, ok := f.entries[cache.Key(documentID, question)]; ok {
		return cache.Result{Status: cache.Hit, Value: value}
	}
	return cache.Result{Status: cache.Miss}
}

func (f *fakeCache) Store(ctx context.Context, documentID, question string, value []byte) {
	f.entries[cache.Key(documentID, question)] = value
}

func retrievedChunks() []schema.SearchResult {
	return []schema.SearchResult{
		{
			Content: "The police budget is $12 million.",
			Metadata: schema.ChunkMetadata{
				DocumentID: "springfield_2024",
				CityName:   "springfield_2024",
				FiscalYear: "2024",
				PageNumber: 7,
				FileName:   "budget.pdf",
			},
			Score: 0.91234,
		},
		{
			Content: "Fire services cost $8 million.",
			Metadata: schema.ChunkMetadata{
				DocumentID: "springfield_2024",
				PageNumber: 9,
				FileName:   "budget.pdf",
			},
			Score: 0.8,
		},
	}
}

func newTestEngine(embedder *fakeEmbedder, retriever *fakeRetriever, generator *fakeGenerator, answerCache AnswerCache) *Engine {
	return New(embedder, retriever, generator, answerCache, 5, logger.New("test", ""))
}

func TestAnswerFullFlow(t *testing.T) {
	generator := &fakeGenerator{answer: "The police budget is $12 million [1]."}
	eng := newTestEngine(&fakeEmbedder{}, &fakeRetriever{results: retrievedChunks()}, generator, newFakeCache())

	resp := eng.Answer(context.Background(), "What is the police budget?", "springfield_2024", true)

	if resp.Error != "" {
		t.Fatalf("unexpected error in response: %q", resp.Error)
	}
	if resp.Answer != generator.answer {
		t.Errorf("answer = %q, want generator output", resp.Answer)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(resp.Sources))
	}
	if resp.Sources[0].Reference != "[1]" || resp.Sources[1].Reference != "[2]" {
		t.Errorf("references = %q, %q, want [1], [2]", resp.Sources[0].Reference, resp.Sources[1].Reference)
	}
	if resp.Sources[0].Score != 0.912 {
		t.Errorf("score = %v, want 0.912 (rounded to 3 decimals)", resp.Sources[0].Score)
	}
	if resp.Metadata.ChunksRetrieved != 2 {
		t.Errorf("chunks retrieved = %d, want 2", resp.Metadata.ChunksRetrieved)
	}
	if resp.Metadata.DocumentID != "springfield_2024" {
		t.Errorf("metadata document id = %q, want %q", resp.Metadata.DocumentID, "springfield_2024")
	}
	if resp.Timestamp == "" {
		t.Error("timestamp is empty")
	}
}

func TestAnswerCacheHitSkipsPipeline(t *testing.T) {
	generator := &fakeGenerator{answer: "answer"}
	embedder := &fakeEmbedder{}
	answerCache := newFakeCache()
	eng := newTestEngine(embedder, &fakeRetriever{results: retrievedChunks()}, generator, answerCache)

	first := eng.Answer(context.Background(), "question", "doc", true)
	if first.Error != "" {
		t.Fatalf("first answer failed: %q", first.Error)
	}
	second := eng.Answer(context.Background(), "question", "doc", true)

	if generator.calls != 1 {
		t.Errorf("generator called %d times, want 1 (second answer from cache)", generator.calls)
	}
	if embedder.calls != 1 {
		t.Errorf("embedder called %d times, want 1", embedder.calls)
	}
	if second.Answer != first.Answer {
		t.Errorf("cached answer = %q, want %q", second.Answer, first.Answer)
	}
}

func TestAnswerCacheDisabled(t *testing.T) {
	generator := &fakeGenerator{answer: "answer"}
	eng := newTestEngine(&fakeEmbedder{}, &fakeRetriever{results: retrievedChunks()}, generator, newFakeCache())

	eng.Answer(context.Background(), "question", "doc", false)
	eng.Answer(context.Background(), "question", "doc", false)

	if generator.calls != 2 {
		t.Errorf("generator called %d times with caching disabled, want 2", generator.calls)
	}
}

func TestAnswerEmptyRetrievalFallsBack(t *testing.T) {
	generator := &fakeGenerator{answer: "should not be used"}
	eng := newTestEngine(&fakeEmbedder{}, &fakeRetriever{}, generator, newFakeCache())

	resp := eng.Answer(context.Background(), "question", "doc", false)

	if resp.Answer != fallbackAnswer {
		t.Errorf("answer = %q, want the fixed fallback", resp.Answer)
	}
	if generator.calls != 0 {
		t.Errorf("generator called %d times on empty retrieval, want 0", generator.calls)
	}
	if resp.Metadata.ChunksRetrieved != 0 {
		t.Errorf("chunks retrieved = %d, want 0", resp.Metadata.ChunksRetrieved)
	}
}

func TestAnswerMissingDocumentID(t *testing.T) {
	eng := newTestEngine(&fakeEmbedder{}, &fakeRetriever{}, &fakeGenerator{}, newFakeCache())

	resp := eng.Answer(context.Background(), "question", "", true)

	if resp.Error == "" {
		t.Fatal("expected an error for a missing document id")
	}
	if !strings.Contains(resp.Error, ErrMissingDocument.Error()) {
		t.Errorf("error = %q, want mention of missing document", resp.Error)
	}
	if resp.Answer != degradedAnswer {
		t.Errorf("answer = %q, want the degraded answer", resp.Answer)
	}
}

func TestAnswerEmptyQuestion(t *testing.T) {
	eng := newTestEngine(&fakeEmbedder{}, &fakeRetriever{}, &fakeGenerator{}, newFakeCache())

	resp := eng.Answer(context.Background(), "   ", "doc", true)
	if !strings.Contains(resp.Error, ErrEmptyQuestion.Error()) {
		t.Errorf("error = %q, want mention of empty question", resp.Error)
	}
}

func TestAnswerRetrievalFailureDegrades(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("backend down")}
	eng := newTestEngine(&fakeEmbedder{}, retriever, &fakeGenerator{}, newFakeCache())

	resp := eng.Answer(context.Background(), "question", "doc", false)
	if resp.Error == "" {
		t.Fatal("expected a degraded response when retrieval fails")
	}
	if resp.Answer != degradedAnswer {
		t.Errorf("answer = %q, want the degraded answer", resp.Answer)
	}
	if resp.Sources == nil || len(resp.Sources) != 0 {
		t.Errorf("sources = %v, want empty slice", resp.Sources)
	}
}

func TestAnswerRecoversFromPanic(t *testing.T) {
	generator := &fakeGenerator{panics: true}
	eng := newTestEngine(&fakeEmbedder{}, &fakeRetriever{results: retrievedChunks()}, generator, newFakeCache())

	resp := eng.Answer(context.Background(), "question", "doc", false)
	if resp == nil {
		t.Fatal("Answer() returned nil after panic")
	}
	if resp.Answer != degradedAnswer {
		t.Errorf("answer = %q, want the degraded answer", resp.Answer)
	}
	if !strings.Contains(resp.Error, "internal error") {
		t.Errorf("error = %q, want internal error marker", resp.Error)
	}
}

func TestFormatResponseUnknownFields(t *testing.T) {
	chunks := []schema.SearchResult{{Content: "text", Score: 0.5}}
	resp := formatResponse("answer", chunks)

	if resp.Sources[0].City != "Unknown" || resp.Sources[0].FiscalYear != "Unknown" {
		t.Errorf("missing metadata should render as Unknown, got %+v", resp.Sources[0])
	}
	if resp.Metadata.DocumentID != "Unknown" {
		t.Errorf("document id = %q, want Unknown", resp.Metadata.DocumentID)
	}
}
