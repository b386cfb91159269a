package repository

import (
	"context"
	"fmt"

	"echo-widget-go/internal/model"

	"gorm.io/gorm"
)

// DocumentRepository 定义了知识库文档分块的读取接口。
type DocumentRepository interface {
	// FindByChunkIDs 按 chunk_id 批量取正文，返回顺序与传入的 id 顺序一致。
	FindByChunkIDs(ctx context.Context, tenantID string, chunkIDs []string) ([]model.DocumentChunk, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// FindByChunkIDs 批量回表取分块正文。
func (r *documentRepository) FindByChunkIDs(ctx context.Context, tenantID string, chunkIDs []string) ([]model.DocumentChunk, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	var rows []model.DocumentChunk
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND chunk_id IN ?", tenantID, chunkIDs).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query document chunks: %w", err)
	}

	// 数据库不保证 IN 查询的返回顺序，这里按向量检索的相关度顺序重排
	byID := make(map[string]model.DocumentChunk, len(rows))
	for _, row := range rows {
		byID[row.ChunkID] = row
	}
	ordered := make([]model.DocumentChunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if row, ok := byID[id]; ok {
			ordered = append(ordered, row)
		}
	}
	return ordered, nil
}
