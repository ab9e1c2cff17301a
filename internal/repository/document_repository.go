package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"pdfquiz/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.DocumentRecord) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

// GetByID returns nil, nil when the document does not exist.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*model.DocumentRecord, error) {
	var doc model.DocumentRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByChatID(ctx context.Context, chatID string) ([]model.DocumentRecord, error) {
	var list []model.DocumentRecord
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) MarkReady(ctx context.Context, id string, pageCount, chunkCount int, visible bool) error {
	return r.update(ctx, id, map[string]any{
		"status":         model.DocumentReady,
		"page_count":     pageCount,
		"chunk_count":    chunkCount,
		"visible":        visible,
		"failure_reason": "",
	})
}

func (r *DocumentRepository) MarkFailed(ctx context.Context, id, reason string) error {
	if runes := []rune(reason); len(runes) > 512 {
		reason = string(runes[:512])
	}
	return r.update(ctx, id, map[string]any{
		"status":         model.DocumentFailed,
		"failure_reason": reason,
	})
}

func (r *DocumentRepository) update(ctx context.Context, id string, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&model.DocumentRecord{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update document failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update document %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}
