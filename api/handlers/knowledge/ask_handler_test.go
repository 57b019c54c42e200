package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend/internal/auth"
	"backend/internal/models"
	"backend/internal/rag"
	"backend/internal/rag/parsers"
)

// stubService 可编程的知识库服务替身
type stubService struct {
	answer    *rag.AnswerResult
	answerErr error
	doc       *models.Document
	ingestErr error
	resetErr  error

	lastUserID   string
	lastQuestion string
}

func (s *stubService) IngestDocument(_ context.Context, userID, filename string, data []byte) (*models.Document, error) {
	s.lastUserID = userID
	if s.ingestErr != nil {
		return nil, s.ingestErr
	}
	if s.doc != nil {
		return s.doc, nil
	}
	return &models.Document{ID: "doc-1", UserID: userID, Filename: filename, Status: models.StatusIndexed}, nil
}

func (s *stubService) ListDocuments(_ context.Context, userID string) ([]*models.Document, error) {
	return []*models.Document{{ID: "doc-1", UserID: userID}}, nil
}

func (s *stubService) DeleteDocument(_ context.Context, _, documentID string) (bool, error) {
	return documentID == "doc-1", nil
}

func (s *stubService) Answer(_ context.Context, userID, question string) (*rag.AnswerResult, error) {
	s.lastUserID = userID
	s.lastQuestion = question
	if s.answerErr != nil {
		return nil, s.answerErr
	}
	return s.answer, nil
}

func (s *stubService) History(context.Context, string, int) ([]*models.ChatMessage, error) {
	return nil, nil
}

func (s *stubService) Stats(context.Context, string) (*rag.DocumentStats, error) {
	return &rag.DocumentStats{TotalChunks: 3, DocumentCount: 1}, nil
}

func (s *stubService) Reset(_ context.Context, userID string) error {
	s.lastUserID = userID
	return s.resetErr
}

func newTestRouter(service Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// 测试里直接注入用户身份，跳过 JWT 校验
	r.Use(func(c *gin.Context) {
		c.Set(auth.UserIDKey, "test-user")
	})

	ask := NewAskHandler(service)
	docs := NewDocumentHandler(service)
	r.POST("/api/ask", ask.Ask)
	r.GET("/api/chat/history", ask.History)
	r.GET("/api/knowledge/stats", ask.Stats)
	r.DELETE("/api/knowledge", ask.Reset)
	r.POST("/api/documents", docs.Upload)
	r.GET("/api/documents", docs.List)
	r.DELETE("/api/documents/:id", docs.Delete)
	return r
}

func TestAskHandler_Ask(t *testing.T) {
	svc := &stubService{answer: &rag.AnswerResult{
		Answer: "Mary visits on Sundays.", Confidence: 0.92, SourcesUsed: 2,
	}}
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"question":"Who visits on Sunday?"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Mary visits on Sundays.")
	assert.Contains(t, w.Body.String(), "0.92")
	assert.Equal(t, "test-user", svc.lastUserID)
	assert.Equal(t, "Who visits on Sunday?", svc.lastQuestion)
}

func TestAskHandler_AskMissingQuestion(t *testing.T) {
	router := newTestRouter(&stubService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAskHandler_AskServiceError(t *testing.T) {
	router := newTestRouter(&stubService{answerErr: fmt.Errorf("boom")})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"question":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAskHandler_Reset(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/knowledge", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test-user", svc.lastUserID)
}

func TestAskHandler_Stats(t *testing.T) {
	router := newTestRouter(&stubService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/knowledge/stats", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"totalChunks":3`)
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestDocumentHandler_Upload(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	body, contentType := multipartBody(t, "notes.txt", "My daughter Mary visits on Sundays.")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "doc-1")
}

func TestDocumentHandler_UploadPendingReturnsAccepted(t *testing.T) {
	svc := &stubService{doc: &models.Document{ID: "doc-2", Status: models.StatusPending}}
	router := newTestRouter(svc)

	body, contentType := multipartBody(t, "notes.txt", "content")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestDocumentHandler_UploadUnsupportedFormat(t *testing.T) {
	svc := &stubService{ingestErr: fmt.Errorf("包装: %w", parsers.ErrUnsupportedFormat)}
	router := newTestRouter(svc)

	body, contentType := multipartBody(t, "photo.jpg", "binary")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentHandler_UploadMissingFile(t *testing.T) {
	router := newTestRouter(&stubService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentHandler_Delete(t *testing.T) {
	router := newTestRouter(&stubService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/documents/doc-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/documents/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
