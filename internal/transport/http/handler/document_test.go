package handler

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfquiz/internal/app"
	"pdfquiz/internal/model"
	"pdfquiz/internal/transport/http/response"
)

type fakeDocuments struct {
	uploads   []app.UploadInput
	uploadDoc *model.DocumentRecord
	uploadErr error
	docs      map[string]model.DocumentRecord
	context   *app.ContextResult
	ask       *app.AskResult
	askErr    error
	lastTopK  int
}

func (f *fakeDocuments) DefaultOptions() model.IngestOptions {
	return model.IngestOptions{MinTextLength: 50, OCRLanguage: "eng", EnableOCR: true, SkipImageOnlyPages: true}
}

func (f *fakeDocuments) Upload(_ context.Context, input app.UploadInput) (*model.DocumentRecord, error) {
	f.uploads = append(f.uploads, input)
	return f.uploadDoc, f.uploadErr
}

func (f *fakeDocuments) GetDocument(_ context.Context, id string) (*model.DocumentRecord, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, app.ErrDocumentNotFound
	}
	return &doc, nil
}

func (f *fakeDocuments) ListDocuments(_ context.Context, chatID string) ([]model.DocumentRecord, error) {
	var out []model.DocumentRecord
	for _, d := range f.docs {
		if d.ChatID == chatID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDocuments) GetContext(_ context.Context, _, _ string, topK int) (*app.ContextResult, error) {
	f.lastTopK = topK
	return f.context, nil
}

func (f *fakeDocuments) Ask(context.Context, app.AskInput) (*app.AskResult, error) {
	return f.ask, f.askErr
}

func (f *fakeDocuments) AskStream(_ context.Context, _ app.AskInput, onChunk func(string) error) (*app.AskResult, error) {
	if f.askErr != nil {
		return nil, f.askErr
	}
	for _, part := range strings.SplitAfter(f.ask.Answer, " ") {
		if err := onChunk(part); err != nil {
			return nil, err
		}
	}
	return f.ask, nil
}

func newTestRouter(svc DocumentService, maxUploadMB int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewDocumentHandler(svc, maxUploadMB, false)
	r := gin.New()
	r.POST("/api/v1/documents", h.Upload)
	r.GET("/api/v1/documents/:id", h.Get)
	r.GET("/api/v1/chats/:chat_id/documents", h.ListByChat)
	r.POST("/api/v1/chats/:chat_id/context", h.Context)
	r.POST("/api/v1/chats/:chat_id/ask", h.Ask)
	r.POST("/api/v1/chats/:chat_id/ask/stream", h.AskStream)
	return r
}

func uploadRequest(t *testing.T, fileName string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response.APIResponse {
	t.Helper()
	var out response.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestUploadSyncReady(t *testing.T) {
	svc := &fakeDocuments{uploadDoc: &model.DocumentRecord{ID: "d1", Status: model.DocumentReady, ChunkCount: 4}}
	rec := httptest.NewRecorder()

	newTestRouter(svc, 20).ServeHTTP(rec, uploadRequest(t, "notes.PDF", []byte("%PDF-1.4\n..."), map[string]string{
		"chat_id":         "42",
		"min_text_length": "10",
		"enable_ocr":      "false",
		"ocr_language":    "deu",
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, response.CodeOK, decode(t, rec).Code)
	require.Len(t, svc.uploads, 1)
	in := svc.uploads[0]
	assert.Equal(t, "42", in.ChatID)
	assert.Equal(t, "notes.PDF", in.FileName)
	assert.Equal(t, model.IngestOptions{MinTextLength: 10, OCRLanguage: "deu", EnableOCR: false, SkipImageOnlyPages: true}, in.Options)
	assert.False(t, in.Async)
}

func TestUploadAsyncAccepted(t *testing.T) {
	svc := &fakeDocuments{uploadDoc: &model.DocumentRecord{ID: "d1", Status: model.DocumentProcessing}}
	rec := httptest.NewRecorder()

	newTestRouter(svc, 20).ServeHTTP(rec, uploadRequest(t, "a.pdf", []byte("%PDF-1.7"), map[string]string{"async": "true"}))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, svc.uploads, 1)
	assert.True(t, svc.uploads[0].Async)
}

func TestUploadRejections(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		content  []byte
		fields   map[string]string
		status   int
		code     int
	}{
		{name: "not a pdf extension", fileName: "a.docx", content: []byte("%PDF-1.4"), status: http.StatusBadRequest, code: response.CodeInvalidPDF},
		{name: "bad magic", fileName: "a.pdf", content: []byte("GIF89a"), status: http.StatusBadRequest, code: response.CodeInvalidPDF},
		{name: "bad option", fileName: "a.pdf", content: []byte("%PDF-1.4"), fields: map[string]string{"enable_ocr": "maybe"}, status: http.StatusBadRequest, code: response.CodeBadRequest},
		{name: "too large", fileName: "a.pdf", content: append([]byte("%PDF-1.4"), make([]byte, 3<<19)...), status: http.StatusRequestEntityTooLarge, code: response.CodePayloadTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeDocuments{}
			rec := httptest.NewRecorder()
			newTestRouter(svc, 1).ServeHTTP(rec, uploadRequest(t, tt.fileName, tt.content, tt.fields))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode(t, rec).Code)
			assert.Empty(t, svc.uploads)
		})
	}
}

func TestUploadMissingFile(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeDocuments{}, 20).ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/v1/documents", `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadIngestFailure(t *testing.T) {
	svc := &fakeDocuments{
		uploadDoc: &model.DocumentRecord{ID: "d1", Status: model.DocumentFailed, FailureReason: "could not process this document"},
		uploadErr: errors.New("no extractable content"),
	}
	rec := httptest.NewRecorder()
	newTestRouter(svc, 20).ServeHTTP(rec, uploadRequest(t, "scan.pdf", []byte("%PDF-1.4"), nil))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, response.CodeUnprocessable, body.Code)
	assert.Equal(t, "could not process this document", body.Message)
	assert.NotNil(t, body.Data)
}

func TestUploadQueueDown(t *testing.T) {
	svc := &fakeDocuments{uploadErr: app.ErrEnqueueFailed}
	rec := httptest.NewRecorder()
	newTestRouter(svc, 20).ServeHTTP(rec, uploadRequest(t, "a.pdf", []byte("%PDF-1.4"), nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetAndListDocuments(t *testing.T) {
	svc := &fakeDocuments{docs: map[string]model.DocumentRecord{
		"d1": {ID: "d1", ChatID: "42", Status: model.DocumentReady},
	}}
	r := newTestRouter(svc, 20)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/documents/d1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/documents/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, response.CodeDocumentNotFound, decode(t, rec).Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/chats/7/documents", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"code":0,"message":"ok","data":[]}`, rec.Body.String())
}

func TestContextEndpoint(t *testing.T) {
	svc := &fakeDocuments{context: &app.ContextResult{PageNotAvailable: true, Page: 10}}
	r := newTestRouter(svc, 20)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/v1/chats/5/context", `{"query":"what's on page 10","top_k":3}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"code":0,"message":"ok","data":{"context":"","page_not_available":true,"page":10}}`, rec.Body.String())
	assert.Equal(t, 3, svc.lastTopK)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/v1/chats/5/context", `{"top_k":3}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/v1/chats/5/context", `{"query":"x","top_k":500}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskEndpoint(t *testing.T) {
	svc := &fakeDocuments{ask: &app.AskResult{Answer: "Water moves by osmosis.", Grounded: true}}
	r := newTestRouter(svc, 20)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/v1/chats/5/ask", `{"question":"what is osmosis?"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"grounded":true`)

	svc.askErr = app.ErrInvalidInput
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/v1/chats/5/ask", `{"question":"  "}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.askErr = errors.New("llm down")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/v1/chats/5/ask", `{"question":"hi"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAskStreamEndpoint(t *testing.T) {
	svc := &fakeDocuments{ask: &app.AskResult{Answer: "line one\nline two"}}
	rec := httptest.NewRecorder()

	newTestRouter(svc, 20).ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/v1/chats/5/ask/stream", `{"question":"hi"}`))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "data: line \n\n")
	assert.True(t, strings.HasSuffix(body, "event: done\ndata: line one\\nline two\n\n"))
}
