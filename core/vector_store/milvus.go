package vector_store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Malowking/ragsearch/core/errors"
	"github.com/Malowking/ragsearch/pkg/schema"
	"github.com/bytedance/sonic"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

const (
	milvusFieldID     = "id"
	milvusFieldVector = "vector"
	milvusFieldMeta   = "metadata"
)

// MilvusStore Milvus向量数据库实现
// 一个索引对应一个collection，collection名即索引名
type MilvusStore struct {
	client *milvusclient.Client
	index  IndexConfig
}

// NewMilvusStore 创建Milvus向量存储实例
func NewMilvusStore(config *VectorStoreConfig) (VectorStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.Address == "" {
		return nil, fmt.Errorf("milvus address cannot be empty")
	}

	database := config.Database
	if database == "" {
		database = "default"
	}

	client, err := milvusclient.New(context.Background(), &milvusclient.ClientConfig{
		Address: config.Address,
		DBName:  database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client (address: %s, database: %s): %w",
			config.Address, database, err)
	}

	return &MilvusStore{
		client: client,
		index:  config.Index,
	}, nil
}

// milvusMetricType 将度量类型映射为Milvus度量
func milvusMetricType(m Metric) entity.MetricType {
	switch m {
	case MetricCosine:
		return entity.COSINE
	case MetricDot:
		return entity.IP
	case MetricEuclidean:
		return entity.L2
	default:
		return entity.COSINE
	}
}

// collectionFields 索引记录的collection字段定义
func collectionFields(dimension int) []*entity.Field {
	return []*entity.Field{
		{
			Name:        milvusFieldID,
			DataType:    entity.FieldTypeVarChar,
			TypeParams:  map[string]string{"max_length": "256"},
			PrimaryKey:  true,
			AutoID:      false,
			Description: "Record unique ID (primary key)",
		},
		{
			Name:        milvusFieldVector,
			DataType:    entity.FieldTypeFloatVector,
			TypeParams:  map[string]string{"dim": strconv.Itoa(dimension)},
			Description: "Document embedding vector",
		},
		{
			Name:        milvusFieldMeta,
			DataType:    entity.FieldTypeJSON,
			Description: "Record metadata (JSON)",
		},
	}
}

// EnsureIndex 确保collection存在（幂等）
func (m *MilvusStore) EnsureIndex(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(m.index.Name))
	if err != nil {
		return errors.Newf(errors.ErrBackendUnavailable, "failed to check if collection exists: %v", err)
	}

	if has {
		return m.checkExistingCollection(ctx)
	}

	collSchema := &entity.Schema{
		CollectionName: m.index.Name,
		Description:    "存储文档向量及元数据",
		AutoID:         false,
		Fields:         collectionFields(m.index.Dimension),
	}

	metric := milvusMetricType(m.index.Metric)
	err = m.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(m.index.Name, collSchema).
		WithIndexOptions(milvusclient.NewCreateIndexOption(m.index.Name, milvusFieldVector,
			index.NewHNSWIndex(metric, 64, 128))))
	if err != nil {
		return errors.Newf(errors.ErrIndexInit, "failed to create Milvus collection: %v", err)
	}

	// Load collection into memory
	_, err = m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(m.index.Name))
	if err != nil {
		return errors.Newf(errors.ErrIndexInit, "failed to load Milvus collection: %v", err)
	}

	g.Log().Infof(ctx, "Collection '%s' created with dimension %d, metric %s, index built and loaded",
		m.index.Name, m.index.Dimension, metric)
	return nil
}

// checkExistingCollection 校验已存在collection的配置与期望一致
func (m *MilvusStore) checkExistingCollection(ctx context.Context) error {
	coll, err := m.client.DescribeCollection(ctx, milvusclient.NewDescribeCollectionOption(m.index.Name))
	if err != nil {
		return errors.Newf(errors.ErrBackendUnavailable, "failed to describe collection: %v", err)
	}

	for _, field := range coll.Schema.Fields {
		if field.Name != milvusFieldVector {
			continue
		}
		dimStr := field.TypeParams["dim"]
		dim, convErr := strconv.Atoi(dimStr)
		if convErr != nil {
			return errors.Newf(errors.ErrIndexInit, "collection %q has invalid vector dimension %q", m.index.Name, dimStr)
		}
		if dim != m.index.Dimension {
			return errors.Newf(errors.ErrConfigMismatch,
				"collection %q exists with dimension %d, expected %d", m.index.Name, dim, m.index.Dimension)
		}
	}

	// 度量类型从向量字段索引中读取，读不到时只做维度校验
	if idx, descErr := m.client.DescribeIndex(ctx, milvusclient.NewDescribeIndexOption(m.index.Name, milvusFieldVector)); descErr == nil {
		if metricType, ok := idx.Params()["metric_type"]; ok {
			expected := string(milvusMetricType(m.index.Metric))
			if !strings.EqualFold(metricType, expected) {
				return errors.Newf(errors.ErrConfigMismatch,
					"collection %q exists with metric %s, expected %s", m.index.Name, metricType, expected)
			}
		}
	}

	g.Log().Infof(ctx, "Collection '%s' already exists, skipping creation", m.index.Name)
	return nil
}

// DropIndex 删除collection
func (m *MilvusStore) DropIndex(ctx context.Context) error {
	err := m.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(m.index.Name))
	if err != nil {
		return errors.Newf(errors.ErrOperationFailed, "failed to drop collection: %v", err)
	}
	g.Log().Infof(ctx, "Collection '%s' dropped", m.index.Name)
	return nil
}

// Upsert 批量写入记录
func (m *MilvusStore) Upsert(ctx context.Context, records []*schema.IndexRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	if err := validateRecords(records, m.index.Dimension); err != nil {
		return 0, err
	}

	ids := make([]string, len(records))
	vectors := make([][]float32, len(records))
	metadataList := make([][]byte, len(records))

	for idx, record := range records {
		ids[idx] = record.ID
		vectors[idx] = record.Vector

		meta := record.Meta
		if meta == nil {
			meta = map[string]any{}
		}
		metaBytes, err := sonic.Marshal(meta)
		if err != nil {
			return 0, errors.Newf(errors.ErrVectorUpsert, "failed to marshal metadata for record %q: %v", record.ID, err)
		}
		metadataList[idx] = metaBytes
	}

	columns := []column.Column{
		column.NewColumnVarChar(milvusFieldID, ids),
		column.NewColumnFloatVector(milvusFieldVector, m.index.Dimension, vectors),
		column.NewColumnJSONBytes(milvusFieldMeta, metadataList),
	}

	result, err := m.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(m.index.Name, columns...))
	if err != nil {
		return 0, errors.Newf(errors.ErrVectorUpsert, "failed to upsert vectors: %v", err)
	}

	g.Log().Infof(ctx, "Successfully upserted %d vectors into collection '%s'", result.UpsertCount, m.index.Name)
	return int(result.UpsertCount), nil
}

// Query 向量检索
func (m *MilvusStore) Query(ctx context.Context, vector []float32, topK int, filters map[string]any) ([]*schema.Hit, error) {
	if topK < 1 {
		return nil, errors.Newf(errors.ErrInvalidInput, "top_k must be >= 1, got %d", topK)
	}
	if len(vector) != m.index.Dimension {
		return nil, errors.Newf(errors.ErrDimensionMismatch,
			"query vector has dimension %d, index expects %d", len(vector), m.index.Dimension)
	}

	searchOpt := milvusclient.NewSearchOption(m.index.Name, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(milvusFieldVector).
		WithOutputFields(milvusFieldID, milvusFieldMeta).
		WithConsistencyLevel(entity.ClBounded)

	if expr := buildMetadataFilter(filters); expr != "" {
		searchOpt = searchOpt.WithFilter(expr)
	}

	results, err := m.client.Search(ctx, searchOpt)
	if err != nil {
		return nil, errors.Newf(errors.ErrVectorSearch, "search has error: %v", err)
	}
	if len(results) == 0 {
		return []*schema.Hit{}, nil
	}

	hits, err := m.convertResultsToHits(results[0].Fields, results[0].Scores)
	if err != nil {
		return nil, err
	}
	sortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// convertResultsToHits 转换搜索结果为Hit
func (m *MilvusStore) convertResultsToHits(columns []column.Column, scores []float32) ([]*schema.Hit, error) {
	if len(columns) == 0 {
		return []*schema.Hit{}, nil
	}

	numHits := columns[0].Len()
	hits := make([]*schema.Hit, numHits)
	for i := range hits {
		hits[i] = &schema.Hit{Meta: make(map[string]any)}
	}

	// L2是距离而非相似度，转换为1/(1+d)保证降序排序语义一致
	for i := 0; i < numHits && i < len(scores); i++ {
		if m.index.Metric == MetricEuclidean {
			hits[i].Similarity = 1 / (1 + scores[i])
		} else {
			hits[i].Similarity = scores[i]
		}
	}

	for _, col := range columns {
		switch col.Name() {
		case milvusFieldID:
			for i := 0; i < col.Len(); i++ {
				val, err := col.Get(i)
				if err != nil {
					return nil, errors.Newf(errors.ErrVectorSearch, "failed to get id: %v", err)
				}
				if str, ok := val.(string); ok {
					hits[i].ID = str
				}
			}
		case milvusFieldMeta:
			for i := 0; i < col.Len(); i++ {
				val, err := col.Get(i)
				if err != nil {
					continue
				}
				switch v := val.(type) {
				case string:
					var metadata map[string]any
					if err := sonic.Unmarshal([]byte(v), &metadata); err == nil {
						hits[i].Meta = metadata
					}
				case []byte:
					var metadata map[string]any
					if err := sonic.Unmarshal(v, &metadata); err == nil {
						hits[i].Meta = metadata
					}
				}
			}
		}
	}

	return hits, nil
}

// Stats 获取collection统计信息
func (m *MilvusStore) Stats(ctx context.Context) (*schema.IndexStats, error) {
	stats, err := m.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(m.index.Name))
	if err != nil {
		return nil, errors.Newf(errors.ErrBackendUnavailable, "failed to get collection stats: %v", err)
	}

	var rowCount int64
	if rc, ok := stats["row_count"]; ok {
		rowCount, _ = strconv.ParseInt(rc, 10, 64)
	}

	return &schema.IndexStats{
		RecordCount: rowCount,
		Dimension:   m.index.Dimension,
		Metric:      string(m.index.Metric),
	}, nil
}

// buildMetadataFilter 将键值过滤转换为Milvus JSON字段过滤表达式
// 形如 metadata["title"] == "ML" and metadata["year"] == 2024
func buildMetadataFilter(filters map[string]any) string {
	if len(filters) == 0 {
		return ""
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	// 按键排序保证表达式可复现
	sort.Strings(keys)

	exprs := make([]string, 0, len(keys))
	for _, k := range keys {
		safeKey := strings.ReplaceAll(k, `"`, `\"`)
		switch v := filters[k].(type) {
		case string:
			safeVal := strings.ReplaceAll(v, `"`, `\"`)
			exprs = append(exprs, fmt.Sprintf(`%s["%s"] == "%s"`, milvusFieldMeta, safeKey, safeVal))
		case bool:
			exprs = append(exprs, fmt.Sprintf(`%s["%s"] == %t`, milvusFieldMeta, safeKey, v))
		default:
			exprs = append(exprs, fmt.Sprintf(`%s["%s"] == %v`, milvusFieldMeta, safeKey, v))
		}
	}
	return strings.Join(exprs, " and ")
}
