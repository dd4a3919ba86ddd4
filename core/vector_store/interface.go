package vector_store

import (
	"context"
	"fmt"
	"sort"

	"github.com/Malowking/ragsearch/core/errors"
	"github.com/Malowking/ragsearch/pkg/schema"
)

// VectorStoreType 向量数据库类型
type VectorStoreType string

const (
	VectorStoreTypeEndee  VectorStoreType = "endee"
	VectorStoreTypeMilvus VectorStoreType = "milvus"
	// 未来可以扩展其他类型
	// VectorStoreTypeChroma VectorStoreType = "chroma"
	// VectorStoreTypeWeaviate VectorStoreType = "weaviate"
)

// Metric 相似度度量类型
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricDot       Metric = "dot"
	MetricEuclidean Metric = "euclidean"
)

// Precision 向量存储精度/量化模式
type Precision string

const (
	PrecisionFloat32 Precision = "float32"
	PrecisionFloat16 Precision = "float16"
	PrecisionInt8    Precision = "int8"
	PrecisionBinary  Precision = "binary"
)

// IndexConfig 索引配置，进程启动时确定，之后不可变
// 变更任何字段意味着新建索引，而不是原地修改
type IndexConfig struct {
	Name      string    // 索引名称
	Dimension int       // 向量维度
	Metric    Metric    // 相似度度量
	Precision Precision // 存储精度
}

// Validate 校验索引配置
func (c *IndexConfig) Validate() error {
	if c.Name == "" {
		return errors.New(errors.ErrInvalidInput, "index name cannot be empty")
	}
	if c.Dimension <= 0 {
		return errors.Newf(errors.ErrInvalidInput, "index dimension must be positive, got %d", c.Dimension)
	}
	switch c.Metric {
	case MetricCosine, MetricDot, MetricEuclidean:
	default:
		return errors.Newf(errors.ErrInvalidInput, "unsupported metric: %s", c.Metric)
	}
	switch c.Precision {
	case PrecisionFloat32, PrecisionFloat16, PrecisionInt8, PrecisionBinary:
	default:
		return errors.Newf(errors.ErrInvalidInput, "unsupported precision: %s", c.Precision)
	}
	return nil
}

// VectorStoreConfig 向量数据库配置
type VectorStoreConfig struct {
	Type  VectorStoreType // 向量数据库类型
	Index IndexConfig     // 索引配置
	// Endee 后端
	BaseURL   string // 服务基础地址
	AuthToken string // 可选鉴权令牌
	// Milvus 后端
	Address  string // 服务地址
	Database string // 数据库名称
}

// VectorStore 向量索引网关接口
// 唯一允许与外部ANN索引通信的组件
type VectorStore interface {
	// EnsureIndex 确保索引存在（幂等）
	// 同名索引的维度/度量与配置不一致时返回 ErrConfigMismatch，绝不静默复用
	EnsureIndex(ctx context.Context) error

	// DropIndex 删除索引（用于显式的重建流程）
	DropIndex(ctx context.Context) error

	// Upsert 批量写入记录（insert-or-replace，同ID后写覆盖）
	// 任一向量维度与配置不一致时整批失败，不做部分写入
	Upsert(ctx context.Context, records []*schema.IndexRecord) (int, error)

	// Query 向量检索，返回不超过topK条命中
	// 按相似度降序排列，相同分数按ID升序保证确定性
	Query(ctx context.Context, vector []float32, topK int, filters map[string]any) ([]*schema.Hit, error)

	// Stats 获取索引统计信息
	Stats(ctx context.Context) (*schema.IndexStats, error)
}

// validateRecords 写入前校验整批记录的维度和ID
// 在到达后端的原子写入边界之前失败，保证不产生部分写入
func validateRecords(records []*schema.IndexRecord, dimension int) error {
	for i, record := range records {
		if record.ID == "" {
			return errors.Newf(errors.ErrInvalidInput, "record %d has empty id", i)
		}
		if len(record.Vector) != dimension {
			return errors.Newf(errors.ErrDimensionMismatch,
				"record %q (index %d) has vector of dimension %d, index expects %d",
				record.ID, i, len(record.Vector), dimension)
		}
	}
	return nil
}

// sortHits 按相似度降序稳定排序，分数相同时按ID升序
// 外部索引不保证稳定顺序，这里统一兜底以获得可复现的结果
func sortHits(hits []*schema.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
}

func (t VectorStoreType) String() string {
	return string(t)
}

// ParseMetric 解析度量类型字符串
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, MetricDot, MetricEuclidean:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("unsupported metric: %s (expected cosine/dot/euclidean)", s)
	}
}

// ParsePrecision 解析精度类型字符串
func ParsePrecision(s string) (Precision, error) {
	switch Precision(s) {
	case PrecisionFloat32, PrecisionFloat16, PrecisionInt8, PrecisionBinary:
		return Precision(s), nil
	default:
		return "", fmt.Errorf("unsupported precision: %s (expected float32/float16/int8/binary)", s)
	}
}
