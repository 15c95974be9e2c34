package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"budgetrag/internal/queue"
	"budgetrag/internal/rag/identity"
	"budgetrag/internal/rag/pipeline"
	"budgetrag/internal/rag/schema"
	"budgetrag/pkg/logger"
)

// API provides the HTTP handlers for the budget question answering service.
type API struct {
	coordinator *pipeline.Coordinator
	publisher   *queue.TaskPublisher // nil when async ingestion is disabled
	uploadDir   string
	backendName string
	logger      *logger.Logger
}

// NewAPI creates a new API handler. publisher may be nil.
func NewAPI(coordinator *pipeline.Coordinator, publisher *queue.TaskPublisher, uploadDir, backendName string, log *logger.Logger) *API {
	return &API{
		coordinator: coordinator,
		publisher:   publisher,
		uploadDir:   uploadDir,
		backendName: backendName,
		logger:      log,
	}
}

// IngestHandler accepts a PDF upload and runs it through the ingestion
// pipeline. With async=true and a configured queue the file is staged and a
// task is published instead.
func (a *API) IngestHandler(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}

	if !strings.EqualFold(filepath.Ext(file.Filename), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF files are supported"})
		return
	}

	// Prefix with a short unique id so repeated uploads of the same file
	// never collide on disk.
	savedName := fmt.Sprintf("%s_%s", uuid.New().String()[:8], filepath.Base(file.Filename))
	savedPath := filepath.Join(a.uploadDir, savedName)
	if err := c.SaveUploadedFile(file, savedPath); err != nil {
		a.logger.WithError(err).Error("Failed to save uploaded file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save uploaded file"})
		return
	}

	meta := schema.DocumentMetadata{
		CityName:   identity.CleanCityName(c.PostForm("city_name")),
		FiscalYear: strings.TrimSpace(c.PostForm("fiscal_year")),
		FileName:   file.Filename,
	}

	if c.PostForm("async") == "true" && a.publisher != nil {
		task := queue.NewIngestTask(savedPath, meta)
		if err := a.publisher.Publish(c.Request.Context(), task); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue ingestion task"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "queued", "task_id": task.TaskID})
		return
	}

	result := a.coordinator.Ingest(c.Request.Context(), savedPath, meta)
	if result.Status != "success" {
		c.JSON(http.StatusInternalServerError, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// QueryHandler answers a question against the uploaded document. The
// response is always well formed; pipeline failures surface in its error
// field with a 200 status.
func (a *API) QueryHandler(c *gin.Context) {
	var payload struct {
		Question   string `json:"question"`
		DocumentID string `json:"document_id"`
		UseCache   *bool  `json:"use_cache"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		a.logger.WithError(err).Warn("Invalid query payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	documentID := payload.DocumentID
	if documentID == "" {
		if active, err := a.coordinator.ActiveDocumentID(); err == nil {
			documentID = active
		}
	}

	useCache := true
	if payload.UseCache != nil {
		useCache = *payload.UseCache
	}

	resp := a.coordinator.Query(c.Request.Context(), payload.Question, documentID, useCache)
	c.JSON(http.StatusOK, resp)
}

// DocumentsHandler reports the document currently being served.
func (a *API) DocumentsHandler(c *gin.Context) {
	current := a.coordinator.CurrentDocument()
	if current == nil {
		c.JSON(http.StatusOK, gin.H{"documents": []gin.H{}, "count": 0})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"documents": []*pipeline.IngestResult{current},
		"count":     1,
	})
}

// HealthHandler reports liveness and the active vector backend.
func (a *API) HealthHandler(c *gin.Context) {
	status := gin.H{
		"status":         "ok",
		"vector_backend": a.backendName,
	}
	if active, err := a.coordinator.ActiveDocumentID(); err == nil {
		status["active_document"] = active
	}
	c.JSON(http.StatusOK, status)
}
