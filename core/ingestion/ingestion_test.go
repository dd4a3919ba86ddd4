package ingestion

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/Malowking/ragsearch/core/errors"
	"github.com/Malowking/ragsearch/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEncoder 确定性的模拟向量化器
// 向量首元素编码文本长度，便于验证文本与向量的对应关系
type fakeEncoder struct {
	mu       sync.Mutex
	calls    int
	failFrom int // 从第N次调用起返回错误，0表示不失败
}

func (f *fakeEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	shouldFail := f.failFrom > 0 && f.calls >= f.failFrom
	f.mu.Unlock()

	if shouldFail {
		return nil, errors.New(errors.ErrEncodingFailed, "mock encoding failure")
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = []float32{float32(len(text)), 0, 0}
	}
	return vectors, nil
}

// fakeStore 记录写入的模拟向量存储
type fakeStore struct {
	mu        sync.Mutex
	records   []*schema.IndexRecord
	upserts   int
	upsertErr error
}

func (f *fakeStore) EnsureIndex(ctx context.Context) error { return nil }
func (f *fakeStore) DropIndex(ctx context.Context) error   { return nil }

func (f *fakeStore) Upsert(ctx context.Context, records []*schema.IndexRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.upserts++
	f.records = append(f.records, records...)
	return len(records), nil
}

func (f *fakeStore) Query(ctx context.Context, vector []float32, topK int, filters map[string]any) ([]*schema.Hit, error) {
	return []*schema.Hit{}, nil
}

func (f *fakeStore) Stats(ctx context.Context) (*schema.IndexStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &schema.IndexStats{RecordCount: int64(len(f.records))}, nil
}

// TestIngestValidation 测试逐文档校验的部分成功语义
func TestIngestValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("非法文档单独拒绝不影响其余", func(t *testing.T) {
		store := &fakeStore{}
		coordinator := NewCoordinator(&fakeEncoder{}, store)

		docs := []*schema.Document{
			{ID: "good1", Text: "first document"},
			{ID: "", Text: "missing id"},
			{ID: "good2", Text: "second document"},
			{ID: "good1", Text: "duplicate id"},
			{ID: "empty", Text: "   "},
		}

		result, err := coordinator.Ingest(ctx, docs)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Accepted)
		require.Len(t, result.Rejected, 3)

		// 拒绝原因使用错误码名称，顺序与输入一致
		assert.Equal(t, "", result.Rejected[0].ID)
		assert.Equal(t, "good1", result.Rejected[1].ID)
		assert.Equal(t, "empty", result.Rejected[2].ID)
		for _, rejected := range result.Rejected {
			assert.Equal(t, errors.ErrInvalidInput.Name(), rejected.Reason)
		}

		// 只有通过校验的文档被写入
		require.Len(t, store.records, 2)
		assert.Equal(t, "good1", store.records[0].ID)
		assert.Equal(t, "good2", store.records[1].ID)
	})

	t.Run("全部被拒绝时不触发写入", func(t *testing.T) {
		store := &fakeStore{}
		coordinator := NewCoordinator(&fakeEncoder{}, store)

		result, err := coordinator.Ingest(ctx, []*schema.Document{
			{ID: "", Text: "no id"},
		})
		require.NoError(t, err)
		assert.Equal(t, 0, result.Accepted)
		assert.Len(t, result.Rejected, 1)
		assert.Equal(t, 0, store.upserts)
	})

	t.Run("空批次无操作", func(t *testing.T) {
		store := &fakeStore{}
		coordinator := NewCoordinator(&fakeEncoder{}, store)

		result, err := coordinator.Ingest(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Accepted)
		assert.Empty(t, result.Rejected)
		assert.Equal(t, 0, store.upserts)
	})
}

// TestIngestAtomicity 测试基础设施错误使整个调用失败
func TestIngestAtomicity(t *testing.T) {
	ctx := context.Background()

	t.Run("向量化失败整个调用失败", func(t *testing.T) {
		store := &fakeStore{}
		coordinator := NewCoordinator(&fakeEncoder{failFrom: 1}, store)

		_, err := coordinator.Ingest(ctx, []*schema.Document{
			{ID: "doc1", Text: "some text"},
		})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrEncodingFailed))
		// 写入边界之前失败，索引保持不变
		assert.Equal(t, 0, store.upserts)
	})

	t.Run("写入失败整个调用失败", func(t *testing.T) {
		store := &fakeStore{upsertErr: errors.New(errors.ErrBackendUnavailable, "backend down")}
		coordinator := NewCoordinator(&fakeEncoder{}, store)

		_, err := coordinator.Ingest(ctx, []*schema.Document{
			{ID: "doc1", Text: "some text"},
		})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrBackendUnavailable))
	})
}

// TestIngestSnippetMeta 测试元数据复制和摘要附加
func TestIngestSnippetMeta(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	coordinator := NewCoordinator(&fakeEncoder{}, store)

	longText := ""
	for i := 0; i < 50; i++ {
		longText += "0123456789"
	}

	result, err := coordinator.Ingest(ctx, []*schema.Document{
		{ID: "short", Text: "short text", Meta: map[string]any{"author": "alice"}},
		{ID: "long", Text: longText},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Accepted)
	require.Len(t, store.records, 2)

	// 原有元数据保留，附加摘要
	assert.Equal(t, "alice", store.records[0].Meta["author"])
	assert.Equal(t, "short text", store.records[0].Meta["snippet"])

	// 长文本摘要被截断
	snippet, ok := store.records[1].Meta["snippet"].(string)
	require.True(t, ok)
	assert.Len(t, []rune(snippet), snippetLength+3)
	assert.Equal(t, "...", snippet[len(snippet)-3:])
}

// TestIngestMultiBatchOrdering 测试跨批次并发向量化后顺序保持
func TestIngestMultiBatchOrdering(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	enc := &fakeEncoder{}
	coordinator := NewCoordinator(enc, store)

	// 超过单批上限，触发并发分批路径
	total := batchSize*2 + 7
	docs := make([]*schema.Document, total)
	for i := range docs {
		// 文本长度编码位置，向量首元素可用于核对顺序
		text := fmt.Sprintf("%0*d", i+1, 0)
		docs[i] = &schema.Document{ID: fmt.Sprintf("doc-%03d", i), Text: text}
	}

	result, err := coordinator.Ingest(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, total, result.Accepted)
	require.Len(t, store.records, total)

	// 单次原子写入
	assert.Equal(t, 1, store.upserts)

	// 每个记录的向量必须对应其自己的文本
	for i, record := range store.records {
		assert.Equal(t, fmt.Sprintf("doc-%03d", i), record.ID)
		assert.Equal(t, float32(i+1), record.Vector[0], "record %d vector out of order", i)
	}
}

// TestCreateBatches 测试批次划分
func TestCreateBatches(t *testing.T) {
	texts := make([]string, 65)
	for i := range texts {
		texts[i] = "t"
	}

	batches := createBatches(texts, 30)
	require.Len(t, batches, 3)
	assert.Equal(t, 0, batches[0].Start)
	assert.Len(t, batches[0].Texts, 30)
	assert.Len(t, batches[1].Texts, 30)
	assert.Len(t, batches[2].Texts, 5)
}

// TestMakeSnippet 测试摘要截断的rune安全性
func TestMakeSnippet(t *testing.T) {
	t.Run("短文本原样返回", func(t *testing.T) {
		assert.Equal(t, "hello", makeSnippet("hello"))
	})

	t.Run("多字节字符按字符截断", func(t *testing.T) {
		text := ""
		for i := 0; i < snippetLength+10; i++ {
			text += "中"
		}
		snippet := makeSnippet(text)
		runes := []rune(snippet)
		assert.Len(t, runes, snippetLength+3)
	})
}
