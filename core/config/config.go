package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/Malowking/ragsearch/core/vector_store"
	"github.com/gogf/gf/v2/frame/g"
)

// ValidateConfiguration validates all required configuration items
func ValidateConfiguration(ctx context.Context) error {
	var missingConfigs []string
	var warnings []string

	// 验证索引配置
	indexName := g.Cfg().MustGet(ctx, "index.name", "").String()
	indexDim := g.Cfg().MustGet(ctx, "index.dimension", 0).Int()
	indexMetric := g.Cfg().MustGet(ctx, "index.metric", "cosine").String()
	indexPrecision := g.Cfg().MustGet(ctx, "index.precision", "float32").String()
	backend := g.Cfg().MustGet(ctx, "index.backend", "endee").String()

	if indexName == "" {
		missingConfigs = append(missingConfigs, "index.name")
	}
	if indexDim <= 0 {
		missingConfigs = append(missingConfigs, "index.dimension")
	}
	if _, err := vector_store.ParseMetric(indexMetric); err != nil {
		return fmt.Errorf("invalid index.metric: %w", err)
	}
	if _, err := vector_store.ParsePrecision(indexPrecision); err != nil {
		return fmt.Errorf("invalid index.precision: %w", err)
	}

	// 验证后端配置
	switch vector_store.VectorStoreType(backend) {
	case vector_store.VectorStoreTypeEndee:
		if g.Cfg().MustGet(ctx, "endee.baseURL", "").String() == "" {
			missingConfigs = append(missingConfigs, "endee.baseURL")
		}
		if g.Cfg().MustGet(ctx, "endee.authToken", "").String() == "" {
			warnings = append(warnings, "endee.authToken is not set, connecting without authentication")
		}
	case vector_store.VectorStoreTypeMilvus:
		if g.Cfg().MustGet(ctx, "milvus.address", "").String() == "" {
			missingConfigs = append(missingConfigs, "milvus.address")
		}
	default:
		return fmt.Errorf("invalid index.backend: %s (expected endee/milvus)", backend)
	}

	// 验证 Embedding 配置
	embeddingAPIKey := g.Cfg().MustGet(ctx, "embedding.apiKey", "").String()
	embeddingBaseURL := g.Cfg().MustGet(ctx, "embedding.baseURL", "").String()
	embeddingModel := g.Cfg().MustGet(ctx, "embedding.model", "").String()
	embeddingDim := g.Cfg().MustGet(ctx, "embedding.dimension", 0).Int()

	if embeddingAPIKey == "" {
		missingConfigs = append(missingConfigs, "embedding.apiKey")
	}
	if embeddingBaseURL == "" {
		missingConfigs = append(missingConfigs, "embedding.baseURL")
	}
	if embeddingModel == "" {
		missingConfigs = append(missingConfigs, "embedding.model")
	}
	if embeddingDim <= 0 {
		missingConfigs = append(missingConfigs, "embedding.dimension")
	}

	// 维度必须一致，否则相似度结果会静默损坏
	if indexDim > 0 && embeddingDim > 0 && indexDim != embeddingDim {
		return fmt.Errorf("embedding.dimension (%d) must equal index.dimension (%d); changing either requires a new index",
			embeddingDim, indexDim)
	}

	// 输出警告信息
	if len(warnings) > 0 {
		g.Log().Warningf(ctx, "Configuration warnings:\n- %s", strings.Join(warnings, "\n- "))
	}

	// 检查是否有缺失的必需配置
	if len(missingConfigs) > 0 {
		return fmt.Errorf("missing required configuration items:\n- %s\n\nPlease check your config.yaml file and ensure all required settings are properly configured", strings.Join(missingConfigs, "\n- "))
	}

	g.Log().Info(ctx, "✓ All required configuration items are present")

	return nil
}

// LoadVectorStoreConfig 从配置文件装载向量存储配置
func LoadVectorStoreConfig(ctx context.Context) (*vector_store.VectorStoreConfig, error) {
	metric, err := vector_store.ParseMetric(g.Cfg().MustGet(ctx, "index.metric", "cosine").String())
	if err != nil {
		return nil, err
	}
	precision, err := vector_store.ParsePrecision(g.Cfg().MustGet(ctx, "index.precision", "float32").String())
	if err != nil {
		return nil, err
	}

	return &vector_store.VectorStoreConfig{
		Type: vector_store.VectorStoreType(g.Cfg().MustGet(ctx, "index.backend", "endee").String()),
		Index: vector_store.IndexConfig{
			Name:      g.Cfg().MustGet(ctx, "index.name", "documents").String(),
			Dimension: g.Cfg().MustGet(ctx, "index.dimension", 0).Int(),
			Metric:    metric,
			Precision: precision,
		},
		BaseURL:   g.Cfg().MustGet(ctx, "endee.baseURL", "").String(),
		AuthToken: g.Cfg().MustGet(ctx, "endee.authToken", "").String(),
		Address:   g.Cfg().MustGet(ctx, "milvus.address", "").String(),
		Database:  g.Cfg().MustGet(ctx, "milvus.database", "default").String(),
	}, nil
}

// EmbeddingSettings embedding服务配置
type EmbeddingSettings struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
}

func (s *EmbeddingSettings) GetAPIKey() string         { return s.APIKey }
func (s *EmbeddingSettings) GetBaseURL() string        { return s.BaseURL }
func (s *EmbeddingSettings) GetEmbeddingModel() string { return s.Model }
func (s *EmbeddingSettings) GetDimension() int         { return s.Dimension }

// LoadEmbeddingSettings 从配置文件装载embedding配置
func LoadEmbeddingSettings(ctx context.Context) *EmbeddingSettings {
	return &EmbeddingSettings{
		APIKey:    g.Cfg().MustGet(ctx, "embedding.apiKey", "").String(),
		BaseURL:   g.Cfg().MustGet(ctx, "embedding.baseURL", "").String(),
		Model:     g.Cfg().MustGet(ctx, "embedding.model", "").String(),
		Dimension: g.Cfg().MustGet(ctx, "embedding.dimension", 0).Int(),
	}
}
