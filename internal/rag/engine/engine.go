package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"budgetrag/internal/rag/cache"
	"budgetrag/internal/rag/schema"
	"budgetrag/pkg/logger"
)

var (
	// ErrMissingDocument is returned when a query arrives without a document
	// id. Enforced before any embedding or retrieval call so no external
	// request is wasted.
	ErrMissingDocument = errors.New("no document id provided for query, upload a document first")
	// ErrEmptyQuestion is returned when the question text is blank.
	ErrEmptyQuestion = errors.New("question cannot be empty")
)

// fallbackAnswer is returned when retrieval produces no usable context;
// calling the generation service with nothing to ground it would only invite
// hallucination.
const fallbackAnswer = "The budget document does not include a specific section for this topic. " +
	"The information may appear in the detailed departmental budget rather than in the Budget in Brief."

const degradedAnswer = "Sorry, an error occurred while processing your query."

const systemPrompt = "You are a municipal budget analyst."

// Embedder converts a query into a vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator synthesizes an answer from a prompt pair.
type Generator interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Retriever searches one document's vectors.
type Retriever interface {
	QueryDocument(ctx context.Context, documentID string, vector []float32, topK int) ([]schema.SearchResult, error)
}

// AnswerCache stores formatted responses keyed by document and question.
type AnswerCache interface {
	Lookup(ctx context.Context, documentID, question string) cache.Result
	Store(ctx context.Context, documentID, question string, value []byte)
}

// Source is one provenance entry of a response.
type Source struct {
	Reference  string  `json:"reference"` // 1-based, e.g. "[1]"
	Page       int     `json:"page"`
	Document   string  `json:"document"`
	City       string  `json:"city"`
	FiscalYear string  `json:"fiscal_year"`
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"` // Rounded to 3 decimals
}

// ResponseMetadata carries retrieval diagnostics alongside the answer.
type ResponseMetadata struct {
	ChunksRetrieved  int       `json:"chunks_retrieved"`
	ConfidenceScores []float64 `json:"confidence_scores"`
	DocumentID       string    `json:"document_id"`
}

// Response is the always-well-formed result of a query. Error is populated
// only on the degraded path.
type Response struct {
	Answer    string           `json:"answer"`
	Sources   []Source         `json:"sources"`
	Timestamp string           `json:"timestamp"`
	Metadata  ResponseMetadata `json:"metadata"`
	Error     string           `json:"error,omitempty"`
}

// Engine answers natural-language questions against a single document:
// cache check, query embedding, retrieval, synthesis, formatting, cache
// write — in that order, with the cache consulted before any external call.
type Engine struct {
	embedder  Embedder
	retriever Retriever
	generator Generator
	cache     AnswerCache
	topK      int
	log       *logger.Logger
}

// New creates an Engine. topK values below 1 fall back to 5.
func New(embedder Embedder, retriever Retriever, generator Generator, answerCache AnswerCache, topK int, log *logger.Logger) *Engine {
	if topK < 1 {
		topK = 5
	}
	return &Engine{
		embedder:  embedder,
		retriever: retriever,
		generator: generator,
		cache:     answerCache,
		topK:      topK,
		log:       log,
	}
}

// Answer runs the full query flow. Whatever goes wrong inside, the caller
// always receives a well-formed response; failures surface in its Error
// field, never as a panic or error value.
func (e *Engine) Answer(ctx context.Context, question, documentID string, useCache bool) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error(fmt.Sprintf("Recovered from panic during query: %v", r))
			resp = degradedResponse(fmt.Sprintf("internal error: %v", r))
		}
	}()

	resp, err := e.answer(ctx, question, documentID, useCache)
	if err != nil {
		e.log.WithError(err).Error("Query failed")
		return degradedResponse(err.Error())
	}
	return resp
}

func (e *Engine) answer(ctx context.Context, question, documentID string, useCache bool) (*Response, error) {
	if documentID == "" {
		return nil, ErrMissingDocument
	}
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	if useCache {
		if cached := e.cache.Lookup(ctx, documentID, question); cached.Status == cache.Hit {
			var resp Response
			if err := json.Unmarshal(cached.Value, &resp); err == nil {
				e.log.Info(fmt.Sprintf("Cache hit for query with document id %s", documentID))
				return &resp, nil
			}
			e.log.Warn("Failed to decode cached response, regenerating")
		}
	}

	e.log.Info("Generating query embedding")
	vector, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	e.log.Info(fmt.Sprintf("Retrieving relevant chunks for document id %s", documentID))
	chunks, err := e.retriever.QueryDocument(ctx, documentID, vector, e.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve chunks: %w", err)
	}
	e.log.Info(fmt.Sprintf("Retrieved %d chunks", len(chunks)))

	answer, err := e.synthesize(ctx, question, chunks)
	if err != nil {
		return nil, err
	}

	resp := formatResponse(answer, chunks)

	if useCache {
		if encoded, err := json.Marshal(resp); err == nil {
			e.cache.Store(ctx, documentID, question, encoded)
		}
	}

	return resp, nil
}

// synthesize builds the context block and asks the generator for an answer.
// With no usable context it returns the fixed fallback without calling the
// generation service at all.
func (e *Engine) synthesize(ctx context.Context, question string, chunks []schema.SearchResult) (string, error) {
	hasContent := false
	var sb strings.Builder
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk.Content) != "" {
			hasContent = true
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(fmt.Sprintf("[Source: Page %d, %s]\n%s",
			chunk.Metadata.PageNumber, chunk.Metadata.FileName, chunk.Content))
	}

	if len(chunks) == 0 || !hasContent {
		e.log.Warn("No relevant chunks found, returning explanatory fallback")
		return fallbackAnswer, nil
	}

	prompt := fmt.Sprintf(`You are analyzing city budget documents. Answer based ONLY on the provided context.

Context:
%s

Question: %s

Instructions:
1. Use only the context provided.
2. Cite page numbers and document names where possible.
3. If the document does not include the specific information requested, explain that it is not detailed in this document and, if relevant, mention where such information might typically appear (for example, in a department-level or detailed budget section).
4. If you find partial information, summarize what is available instead of saying there is not enough information.
5. Be clear, factual, and concise.

Answer:`, sb.String(), question)

	e.log.Info("Sending query to LLM for answer generation")
	answer, err := e.generator.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return answer, nil
}

// formatResponse shapes the answer, per-chunk sources, and diagnostics into
// the response contract.
func formatResponse(answer string, chunks []schema.SearchResult) *Response {
	sources := make([]Source, 0, len(chunks))
	scores := make([]float64, 0, len(chunks))

	for i, chunk := range chunks {
		sources = append(sources, Source{
			Reference:  fmt.Sprintf("[%d]", i+1),
			Page:       chunk.Metadata.PageNumber,
			Document:   chunk.Metadata.FileName,
			City:       orUnknown(chunk.Metadata.CityName),
			FiscalYear: orUnknown(chunk.Metadata.FiscalYear),
			DocumentID: orUnknown(chunk.Metadata.DocumentID),
			Score:      math.Round(chunk.Score*1000) / 1000,
		})
		scores = append(scores, chunk.Score)
	}

	documentID := "Unknown"
	if len(chunks) > 0 && chunks[0].Metadata.DocumentID != "" {
		documentID = chunks[0].Metadata.DocumentID
	}

	return &Response{
		Answer:    answer,
		Sources:   sources,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Metadata: ResponseMetadata{
			ChunksRetrieved:  len(chunks),
			ConfidenceScores: scores,
			DocumentID:       documentID,
		},
	}
}

func degradedResponse(errMsg string) *Response {
	return &Response{
		Answer:    degradedAnswer,
		Sources:   []Source{},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Error:     errMsg,
	}
}

func orUnknown(value string) string {
	if value == "" {
		return "Unknown"
	}
	return value
}
