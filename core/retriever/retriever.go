package retriever

import (
	"context"

	"github.com/Malowking/ragsearch/core/encoder"
	"github.com/Malowking/ragsearch/core/errors"
	"github.com/Malowking/ragsearch/core/vector_store"
	"github.com/Malowking/ragsearch/pkg/schema"
	"github.com/gogf/gf/v2/frame/g"
)

// Retriever 查询协调器
// 向量化查询文本并通过索引网关执行相似度检索
type Retriever struct {
	encoder encoder.Encoder
	store   vector_store.VectorStore
}

// HealthStatus 服务健康状态
type HealthStatus struct {
	IndexReachable bool  `json:"index_reachable"`
	RecordCount    int64 `json:"record_count"`
}

// NewRetriever 创建查询协调器
func NewRetriever(enc encoder.Encoder, store vector_store.VectorStore) *Retriever {
	return &Retriever{
		encoder: enc,
		store:   store,
	}
}

// Search 执行语义检索
// 按网关返回顺序输出命中结果，不做重排序；索引为空时返回空列表而不是错误
func (r *Retriever) Search(ctx context.Context, req *schema.QueryRequest) ([]*schema.Hit, error) {
	if req == nil {
		return nil, errors.New(errors.ErrInvalidInput, "query request cannot be nil")
	}
	// 不做静默修正：非法top_k直接报错
	if req.TopK < 1 {
		return nil, errors.Newf(errors.ErrInvalidInput, "top_k must be >= 1, got %d", req.TopK)
	}

	// 空查询文本由encoder以InvalidInputError拒绝
	vector, err := r.encoder.Encode(ctx, req.QueryText)
	if err != nil {
		return nil, err
	}

	hits, err := r.store.Query(ctx, vector, req.TopK, req.Filters)
	if err != nil {
		return nil, err
	}

	g.Log().Infof(ctx, "Search returned %d hits (top_k: %d)", len(hits), req.TopK)
	return hits, nil
}

// Health 检查索引可达性及记录数
func (r *Retriever) Health(ctx context.Context) *HealthStatus {
	stats, err := r.store.Stats(ctx)
	if err != nil {
		g.Log().Warningf(ctx, "Index health check failed: %v", err)
		return &HealthStatus{IndexReachable: false}
	}
	return &HealthStatus{
		IndexReachable: true,
		RecordCount:    stats.RecordCount,
	}
}
