package model

import "time"

// DocumentChunk 是知识库文档分块，正文存储在 MySQL 中，
// 向量索引（Elasticsearch）只保存 chunk_id 与标题，命中后按 id 回表取正文。
type DocumentChunk struct {
	ID          uint       `gorm:"primaryKey" json:"-"`
	ChunkID     string     `gorm:"uniqueIndex;size:64;not null" json:"chunkId"`
	DocumentID  string     `gorm:"index;size:64;not null" json:"documentId"`
	TenantID    string     `gorm:"index;size:64;not null" json:"tenantId"`
	Title       string     `gorm:"size:256" json:"title"`
	Source      string     `gorm:"size:512" json:"source"`
	Content     string     `gorm:"type:text" json:"content"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// RetrievedChunk 是一条已回表补全正文的检索命中。
type RetrievedChunk struct {
	Title   string
	Source  string
	Content string
	Score   float64
}

// PromptContext 是上下文增强阶段的产物：两段可选的、已渲染好的提示词区块。
// 任何一段为空都表示对应的增强器未触发或已失败放行。
type PromptContext struct {
	RetrievalSection string
	SearchSection    string
}

// Empty 判断是否没有任何增强内容。
func (p *PromptContext) Empty() bool {
	return p == nil || (p.RetrievalSection == "" && p.SearchSection == "")
}
