package ingestion

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/Malowking/ragsearch/core/common"
	"github.com/Malowking/ragsearch/core/encoder"
	"github.com/Malowking/ragsearch/core/errors"
	"github.com/Malowking/ragsearch/core/vector_store"
	"github.com/Malowking/ragsearch/pkg/schema"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/google/uuid"
)

// 配置参数（可以根据需要调整）
const (
	batchSize   = 30 // 每批30个文本（避免API限制）
	concurrency = 3  // 3个并发（避免API限流）

	// snippetLength 存入元数据的摘要长度
	snippetLength = 200
)

// Coordinator 入库协调器
// 校验并批量处理文档，驱动向量化和索引写入
type Coordinator struct {
	encoder encoder.Encoder
	store   vector_store.VectorStore
}

// batchInfo 批次信息
type batchInfo struct {
	Index int
	Start int
	Texts []string
}

// batchResult 批次结果
type batchResult struct {
	BatchIndex int
	Vectors    [][]float32
	Error      error
}

// NewCoordinator 创建入库协调器
func NewCoordinator(enc encoder.Encoder, store vector_store.VectorStore) *Coordinator {
	return &Coordinator{
		encoder: enc,
		store:   store,
	}
}

// Ingest 批量入库文档
// 逐文档校验（空ID、批内重复ID、空文本）失败的单独拒绝，不影响其余文档；
// 向量化和索引写入的基础设施错误使整个调用失败（发生在原子写入边界之前）
func (c *Coordinator) Ingest(ctx context.Context, docs []*schema.Document) (*schema.IngestionResult, error) {
	result := &schema.IngestionResult{
		Rejected: []schema.RejectedDocument{},
	}
	if len(docs) == 0 {
		return result, nil
	}

	batchId := uuid.New().String()[:8]
	g.Log().Infof(ctx, "[batch %s] Starting ingestion of %d documents", batchId, len(docs))

	// 1. 逐文档校验
	accepted := make([]*schema.Document, 0, len(docs))
	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if err := validateDocument(doc, seen); err != nil {
			result.Rejected = append(result.Rejected, schema.RejectedDocument{
				ID:     doc.ID,
				Reason: errors.ReasonOf(err),
			})
			g.Log().Warningf(ctx, "[batch %s] Document %q rejected: %v", batchId, doc.ID, err)
			continue
		}
		seen[doc.ID] = true
		accepted = append(accepted, doc)
	}
	if len(accepted) == 0 {
		return result, nil
	}

	// 2. 并发分批向量化，按输入顺序重组
	texts := make([]string, len(accepted))
	for i, doc := range accepted {
		texts[i] = doc.Text
	}
	vectors, err := c.encodeBatches(ctx, texts)
	if err != nil {
		return nil, err
	}

	// 3. 组装索引记录
	records := make([]*schema.IndexRecord, len(accepted))
	for i, doc := range accepted {
		records[i] = &schema.IndexRecord{
			ID:     doc.ID,
			Vector: vectors[i],
			Meta:   buildRecordMeta(doc),
		}
	}

	// 4. 单次原子写入
	if _, err := c.store.Upsert(ctx, records); err != nil {
		return nil, err
	}

	result.Accepted = len(accepted)
	g.Log().Infof(ctx, "[batch %s] Ingestion completed: %d accepted, %d rejected",
		batchId, result.Accepted, len(result.Rejected))
	return result, nil
}

// validateDocument 校验单个文档
func validateDocument(doc *schema.Document, seen map[string]bool) error {
	if doc.ID == "" {
		return errors.New(errors.ErrInvalidInput, "document id cannot be empty")
	}
	if seen[doc.ID] {
		return errors.Newf(errors.ErrInvalidInput, "duplicate document id %q within batch", doc.ID)
	}
	if strings.TrimSpace(doc.Text) == "" {
		return errors.Newf(errors.ErrInvalidInput, "document %q has empty text", doc.ID)
	}
	return nil
}

// encodeBatches 并发分批向量化，输出顺序与输入一致
func (c *Coordinator) encodeBatches(ctx context.Context, texts []string) ([][]float32, error) {
	batches := createBatches(texts, batchSize)
	if len(batches) == 1 {
		return c.encoder.EncodeBatch(ctx, batches[0].Texts)
	}

	resultChan := make(chan batchResult, len(batches))
	semaphore := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, batch := range batches {
		wg.Add(1)
		b := batch
		common.SafeGo(ctx, "encode-batch", func() {
			defer wg.Done()

			// 获取并发许可
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			vectors, err := c.encoder.EncodeBatch(ctx, b.Texts)
			resultChan <- batchResult{
				BatchIndex: b.Index,
				Vectors:    vectors,
				Error:      err,
			}
		})
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	batchResults := make([]batchResult, len(batches))
	for result := range resultChan {
		if result.Error != nil {
			return nil, result.Error
		}
		batchResults[result.BatchIndex] = result
	}

	// 按批次顺序重组
	all := make([][]float32, 0, len(texts))
	for i := range batches {
		all = append(all, batchResults[i].Vectors...)
	}
	return all, nil
}

// createBatches 创建批次
func createBatches(texts []string, size int) []batchInfo {
	batchCount := int(math.Ceil(float64(len(texts)) / float64(size)))
	batches := make([]batchInfo, 0, batchCount)

	for i := 0; i < batchCount; i++ {
		start := i * size
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, batchInfo{
			Index: i,
			Start: start,
			Texts: texts[start:end],
		})
	}
	return batches
}

// buildRecordMeta 复制文档元数据并附加展示用摘要
func buildRecordMeta(doc *schema.Document) map[string]any {
	meta := make(map[string]any, len(doc.Meta)+1)
	for k, v := range doc.Meta {
		meta[k] = v
	}
	meta["snippet"] = makeSnippet(doc.Text)
	return meta
}

// makeSnippet 截取文本前snippetLength个字符作为摘要
func makeSnippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetLength {
		return text
	}
	return string(runes[:snippetLength]) + "..."
}
