package schema

// Document 待入库的原始文档
type Document struct {
	// ID 文档唯一标识（由调用方提供）
	ID string `json:"id"`
	// Text 文档正文
	Text string `json:"text"`
	// Meta 文档元数据（标量键值）
	Meta map[string]any `json:"meta,omitempty"`
}

// IndexRecord 向量索引中的持久化单元
type IndexRecord struct {
	// ID 记录唯一标识，与文档ID一致
	ID string `json:"id"`
	// Vector 定长向量
	Vector []float32 `json:"vector"`
	// Meta 元数据，随记录一起存储并在查询时返回
	Meta map[string]any `json:"meta,omitempty"`
}

// Hit 单条检索命中结果（仅查询时临时产生，不持久化）
type Hit struct {
	// ID 命中记录的标识
	ID string `json:"id"`
	// Similarity 相似度得分 - 使用float32以直接与向量库兼容
	Similarity float32 `json:"similarity"`
	// Meta 命中记录的元数据
	Meta map[string]any `json:"meta,omitempty"`
}

// QueryRequest 语义检索请求
type QueryRequest struct {
	// QueryText 自然语言查询
	QueryText string `json:"query_text"`
	// TopK 返回结果数量上限
	TopK int `json:"top_k"`
	// Filters 元数据等值过滤条件
	Filters map[string]any `json:"filters,omitempty"`
}

// RejectedDocument 入库批次中被拒绝的单个文档
type RejectedDocument struct {
	// ID 被拒绝文档的标识
	ID string `json:"id"`
	// Reason 拒绝原因（错误码名称）
	Reason string `json:"reason"`
}

// IngestionResult 入库批次结果（部分成功语义）
type IngestionResult struct {
	// Accepted 成功入库的文档数
	Accepted int `json:"accepted"`
	// Rejected 被拒绝的文档及原因，按原始顺序
	Rejected []RejectedDocument `json:"rejected"`
}

// IndexStats 索引统计信息
type IndexStats struct {
	// RecordCount 索引中的记录总数
	RecordCount int64 `json:"record_count"`
	// Dimension 向量维度
	Dimension int `json:"dimension"`
	// Metric 相似度度量类型
	Metric string `json:"metric"`
}
