package model

import "time"

type DocumentStatus string

const (
	DocumentProcessing DocumentStatus = "processing"
	DocumentReady      DocumentStatus = "ready"
	DocumentFailed     DocumentStatus = "failed"
)

// DocumentRecord tracks one uploaded PDF. The raw bytes are never stored.
type DocumentRecord struct {
	ID            string         `gorm:"primaryKey;size:36" json:"id"`
	ChatID        string         `gorm:"size:128;index" json:"chat_id"`
	Namespace     string         `gorm:"size:160;not null" json:"namespace"`
	FileName      string         `gorm:"size:256;not null" json:"file_name"`
	Status        DocumentStatus `gorm:"size:16;not null;index" json:"status"`
	PageCount     int            `json:"page_count"`
	ChunkCount    int            `json:"chunk_count"`
	Visible       bool           `json:"visible"`
	FailureReason string         `gorm:"size:512" json:"failure_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (DocumentRecord) TableName() string {
	return "documents"
}
