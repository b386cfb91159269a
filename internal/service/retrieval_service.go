package service

import (
	"context"
	"time"

	"echo-widget-go/internal/model"
	"echo-widget-go/internal/repository"
	"echo-widget-go/pkg/embedding"
	"echo-widget-go/pkg/es"
	"echo-widget-go/pkg/log"
)

// VectorIndex 是向量索引的查询抽象，便于测试时替换。
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, topK int, tenantID string) ([]es.Match, error)
}

// RetrievalService 定义了知识库检索增强的接口。
// 检索是尽力而为的质量增强：任何失败（超时、向量化错误、存储错误）
// 都返回空结果放行，绝不中断整个请求。
type RetrievalService interface {
	FetchContext(ctx context.Context, tenantID, query string) []model.RetrievedChunk
}

type retrievalService struct {
	embedder embedding.Client
	index    VectorIndex
	docs     repository.DocumentRepository
	topK     int
	timeout  time.Duration
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。
func NewRetrievalService(embedder embedding.Client, index VectorIndex, docs repository.DocumentRepository, topK, timeoutSeconds int) RetrievalService {
	if topK <= 0 {
		topK = 3
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 5
	}
	return &retrievalService{
		embedder: embedder,
		index:    index,
		docs:     docs,
		topK:     topK,
		timeout:  time.Duration(timeoutSeconds) * time.Second,
	}
}

// FetchContext 向量化查询、按租户过滤检索近邻，再回表补全正文。
// 整个流程共享一个时间预算，超出预算即放弃本轮增强。
func (s *retrievalService) FetchContext(ctx context.Context, tenantID, query string) []model.RetrievedChunk {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vector, err := s.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		log.Warnf("[Retrieval] 向量化查询失败, tenant: %s, err: %v", tenantID, err)
		return nil
	}

	matches, err := s.index.Query(ctx, vector, s.topK, tenantID)
	if err != nil {
		log.Warnf("[Retrieval] 向量检索失败, tenant: %s, err: %v", tenantID, err)
		return nil
	}
	if len(matches) == 0 {
		return nil
	}

	chunkIDs := make([]string, 0, len(matches))
	scoreByID := make(map[string]float64, len(matches))
	for _, m := range matches {
		chunkIDs = append(chunkIDs, m.ChunkID)
		scoreByID[m.ChunkID] = m.Score
	}

	rows, err := s.docs.FindByChunkIDs(ctx, tenantID, chunkIDs)
	if err != nil {
		log.Warnf("[Retrieval] 回表取正文失败, tenant: %s, err: %v", tenantID, err)
		return nil
	}

	chunks := make([]model.RetrievedChunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, model.RetrievedChunk{
			Title:   row.Title,
			Source:  row.Source,
			Content: row.Content,
			Score:   scoreByID[row.ChunkID],
		})
	}
	return chunks
}
