package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"pdfquiz/internal/app"
	"pdfquiz/internal/model"
	"pdfquiz/internal/transport/http/response"
)

var pdfMagic = []byte("%PDF-")

type DocumentService interface {
	DefaultOptions() model.IngestOptions
	Upload(ctx context.Context, input app.UploadInput) (*model.DocumentRecord, error)
	GetDocument(ctx context.Context, id string) (*model.DocumentRecord, error)
	ListDocuments(ctx context.Context, chatID string) ([]model.DocumentRecord, error)
	GetContext(ctx context.Context, chatID, query string, topK int) (*app.ContextResult, error)
	Ask(ctx context.Context, input app.AskInput) (*app.AskResult, error)
	AskStream(ctx context.Context, input app.AskInput, onChunk func(string) error) (*app.AskResult, error)
}

type DocumentHandler struct {
	svc            DocumentService
	maxUploadBytes int64
	asyncDefault   bool
}

type ContextRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k" binding:"gte=0,lte=50"`
}

type AskRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k" binding:"gte=0,lte=50"`
}

func NewDocumentHandler(svc DocumentService, maxUploadMB int, asyncDefault bool) *DocumentHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 20
	}
	return &DocumentHandler{
		svc:            svc,
		maxUploadBytes: int64(maxUploadMB) << 20,
		asyncDefault:   asyncDefault,
	}
}

// Upload accepts a multipart form with "file" (PDF), "chat_id" and optional
// extraction overrides.
func (h *DocumentHandler) Upload(c *gin.Context) {
	// Leave room for the other form fields.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, h.tooLargeMessage())
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > h.maxUploadBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, h.tooLargeMessage())
		return
	}
	if strings.ToLower(filepath.Ext(file.Filename)) != ".pdf" {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidPDF, "only PDF files are allowed")
		return
	}

	content, err := readUpload(file)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	if !bytes.HasPrefix(content, pdfMagic) {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidPDF, "file is not a PDF")
		return
	}

	opts, async, err := h.parseUploadOptions(c)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}

	doc, err := h.svc.Upload(c.Request.Context(), app.UploadInput{
		ChatID:   c.PostForm("chat_id"),
		FileName: filepath.Base(file.Filename),
		Content:  content,
		Options:  opts,
		Async:    async,
	})
	switch {
	case err == nil && doc.Status == model.DocumentProcessing:
		response.Accepted(c, doc)
	case err == nil:
		response.OK(c, doc)
	case doc != nil:
		response.ErrorWithData(c, http.StatusUnprocessableEntity, response.CodeUnprocessable, doc.FailureReason, doc)
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrEnqueueFailed):
		response.Error(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, "ingestion queue unavailable")
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "upload failed")
	}
}

func (h *DocumentHandler) tooLargeMessage() string {
	return fmt.Sprintf("file too large (max %dMB)", h.maxUploadBytes>>20)
}

func readUpload(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *DocumentHandler) parseUploadOptions(c *gin.Context) (model.IngestOptions, bool, error) {
	opts := h.svc.DefaultOptions()
	async := h.asyncDefault

	if raw := c.PostForm("min_text_length"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, false, errors.New("invalid min_text_length")
		}
		opts.MinTextLength = n
	}
	if raw := strings.TrimSpace(c.PostForm("ocr_language")); raw != "" {
		opts.OCRLanguage = raw
	}
	for field, dst := range map[string]*bool{
		"enable_ocr":            &opts.EnableOCR,
		"skip_image_only_pages": &opts.SkipImageOnlyPages,
		"async":                 &async,
	} {
		raw := c.PostForm(field)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, false, fmt.Errorf("invalid %s", field)
		}
		*dst = v
	}
	return opts, async, nil
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.svc.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrDocumentNotFound):
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		default:
			_ = c.Error(err)
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get document failed")
		}
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) ListByChat(c *gin.Context) {
	docs, err := h.svc.ListDocuments(c.Request.Context(), c.Param("chat_id"))
	if err != nil {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}
	if docs == nil {
		docs = []model.DocumentRecord{}
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Context(c *gin.Context) {
	var req ContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	res, err := h.svc.GetContext(c.Request.Context(), c.Param("chat_id"), req.Query, req.TopK)
	if err != nil {
		h.queryError(c, err, "context lookup failed")
		return
	}
	response.OK(c, res)
}

func (h *DocumentHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	res, err := h.svc.Ask(c.Request.Context(), app.AskInput{
		ChatID:   c.Param("chat_id"),
		Question: req.Question,
		TopK:     req.TopK,
	})
	if err != nil {
		h.queryError(c, err, "ask failed")
		return
	}
	response.OK(c, res)
}

// AskStream relays the answer as server-sent events and ends with a "done"
// event carrying the full answer.
func (h *DocumentHandler) AskStream(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	res, err := h.svc.AskStream(c.Request.Context(), app.AskInput{
		ChatID:   c.Param("chat_id"),
		Question: req.Question,
		TopK:     req.TopK,
	}, func(chunk string) error {
		if _, writeErr := c.Writer.Write([]byte("data: " + sanitizeSSE(chunk) + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		_ = c.Error(err)
		if _, writeErr := c.Writer.Write([]byte("event: error\ndata: " + sanitizeSSE(err.Error()) + "\n\n")); writeErr == nil {
			flusher.Flush()
		}
		return
	}
	if _, writeErr := c.Writer.Write([]byte("event: done\ndata: " + sanitizeSSE(res.Answer) + "\n\n")); writeErr == nil {
		flusher.Flush()
	}
}

func (h *DocumentHandler) queryError(c *gin.Context, err error, message string) {
	if errors.Is(err, app.ErrInvalidInput) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}
	_ = c.Error(err)
	response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, message)
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
