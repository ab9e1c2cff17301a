package model

// IngestOptions mirrors the per-upload extraction knobs.
type IngestOptions struct {
	MinTextLength      int    `json:"min_text_length"`
	OCRLanguage        string `json:"ocr_language"`
	EnableOCR          bool   `json:"enable_ocr"`
	SkipImageOnlyPages bool   `json:"skip_image_only_pages"`
}

// IngestJob is the queued form of an asynchronous upload.
type IngestJob struct {
	DocumentID string        `json:"document_id"`
	ChatID     string        `json:"chat_id"`
	FileName   string        `json:"file_name"`
	Content    []byte        `json:"content"`
	Options    IngestOptions `json:"options"`
}

// DocumentReadyEvent is published once a document finishes ingestion, whether
// or not index visibility was confirmed.
type DocumentReadyEvent struct {
	DocumentID string `json:"document_id"`
	ChatID     string `json:"chat_id"`
	Namespace  string `json:"namespace"`
	FileName   string `json:"file_name"`
	PageCount  int    `json:"page_count"`
	ChunkCount int    `json:"chunk_count"`
	Visible    bool   `json:"visible"`
}
