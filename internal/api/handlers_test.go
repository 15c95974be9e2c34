package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"budgetrag/internal/rag/engine"
	"budgetrag/internal/rag/extract"
	"budgetrag/internal/rag/pipeline"
	"budgetrag/internal/rag/schema"
	"budgetrag/internal/rag/textproc"
	"budgetrag/pkg/logger"
)

type stubExtractor struct{}

func (stubExtractor) Extract(ctx context.Context, path string) ([]extract.PageContent, error) {
	return []extract.PageContent{{PageNumber: 1, Text: "Revenue is $1,000."}}, nil
}

type stubEmbedder struct{}

func (stubEmbedder) EmbedChunks(ctx context.Context, chunks []schema.Chunk) error {
	for i := range chunks {
		chunks[i].Embedding = []float32{1}
	}
	return nil
}

type stubStore struct {
	active string
}

func (s *stubStore) StoreDocument(ctx context.Context, documentID string, chunks []schema.Chunk) error {
	s.active = documentID
	return nil
}

func (s *stubStore) GetActiveDocument() (string, error) {
	if s.active == "" {
		return "", errors.New("no active document")
	}
	return s.active, nil
}

func (s *stubStore) ResetActiveDocument() { s.active = "" }

type stubEngine struct {
	lastDocumentID string
}

func (s *stubEngine) Answer(ctx context.Context, question, documentID string, useCache bool) *engine.Response {
	s.lastDocumentID = documentID
	return &engine.Response{Answer: "the budget is $1,000", Sources: []engine.Source{}}
}

func newTestRouter(t *testing.T, store *stubStore, eng *stubEngine) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	processor, err := textproc.NewProcessor(1000, 200)
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}
	log := logger.New("test", "")
	coordinator := pipeline.NewCoordinator(stubExtractor{}, processor, stubEmbedder{}, store, eng, nil, log)

	router := gin.New()
	apiHandler := NewAPI(coordinator, nil, t.TempDir(), "memory", log)
	RegisterRoutes(router, apiHandler, nil)
	return router
}

func multipartUpload(t *testing.T, fieldName, fileName string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(fieldName, fileName)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.4 test payload")); err != nil {
		t.Fatalf("writing file part: %v", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestIngestRejectsNonPDF(t *testing.T) {
	router := newTestRouter(t, &stubStore{}, &stubEngine{})

	body, contentType := multipartUpload(t, "file", "notes.txt", nil)
	req := httptest.NewRequest(http.MethodPost, "/ingest", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if !strings.Contains(w.Body.String(), "PDF") {
		t.Errorf("body = %q, want PDF rejection message", w.Body.String())
	}
}

func TestIngestRejectsMissingFile(t *testing.T) {
	router := newTestRouter(t, &stubStore{}, &stubEngine{})

	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestQueryUsesActiveDocumentByDefault(t *testing.T) {
	store := &stubStore{active: "springfield_2024"}
	eng := &stubEngine{}
	router := newTestRouter(t, store, eng)

	payload, _ := json.Marshal(map[string]interface{}{"question": "what is the budget?"})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if eng.lastDocumentID != "springfield_2024" {
		t.Errorf("engine received document id %q, want the active document", eng.lastDocumentID)
	}

	var resp engine.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Answer != "the budget is $1,000" {
		t.Errorf("answer = %q, want the engine output", resp.Answer)
	}
}

func TestQueryExplicitDocumentID(t *testing.T) {
	eng := &stubEngine{}
	router := newTestRouter(t, &stubStore{active: "other_doc"}, eng)

	payload, _ := json.Marshal(map[string]interface{}{
		"question":    "what is the budget?",
		"document_id": "shelbyville_2023",
	})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if eng.lastDocumentID != "shelbyville_2023" {
		t.Errorf("engine received document id %q, want the explicit one", eng.lastDocumentID)
	}
}

func TestQueryInvalidPayload(t *testing.T) {
	router := newTestRouter(t, &stubStore{}, &stubEngine{})

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDocumentsEmpty(t *testing.T) {
	router := newTestRouter(t, &stubStore{}, &stubEngine{})

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("count = %d, want 0", resp.Count)
	}
}

func TestIngestThenDocuments(t *testing.T) {
	store := &stubStore{}
	router := newTestRouter(t, store, &stubEngine{})

	body, contentType := multipartUpload(t, "file", "budget.pdf", map[string]string{
		"city_name":   "City of Springfield",
		"fiscal_year": "2024",
	})
	req := httptest.NewRequest(http.MethodPost, "/ingest", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("ingest status = %d, body %s", w.Code, w.Body.String())
	}
	if store.active != "springfield_2024" {
		t.Errorf("stored document id = %q, want %q", store.active, "springfield_2024")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp struct {
		Count     int                     `json:"count"`
		Documents []pipeline.IngestResult `json:"documents"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Count != 1 || len(resp.Documents) != 1 {
		t.Fatalf("documents = %+v, want exactly one", resp)
	}
	if resp.Documents[0].DocumentID != "springfield_2024" {
		t.Errorf("document id = %q, want %q", resp.Documents[0].DocumentID, "springfield_2024")
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, &stubStore{active: "doc"}, &stubEngine{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field = %v, want ok", resp["status"])
	}
	if resp["vector_backend"] != "memory" {
		t.Errorf("vector_backend = %v, want memory", resp["vector_backend"])
	}
	if resp["active_document"] != "doc" {
		t.Errorf("active_document = %v, want doc", resp["active_document"])
	}
}
