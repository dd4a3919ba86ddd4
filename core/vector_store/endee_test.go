package vector_store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Malowking/ragsearch/core/errors"
	"github.com/Malowking/ragsearch/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEndeeConfig(baseURL string) *VectorStoreConfig {
	return &VectorStoreConfig{
		Type: VectorStoreTypeEndee,
		Index: IndexConfig{
			Name:      "test_index",
			Dimension: 3,
			Metric:    MetricCosine,
			Precision: PrecisionFloat32,
		},
		BaseURL: baseURL,
	}
}

// TestEndeeEnsureIndex 测试索引创建的幂等性和配置冲突检测
func TestEndeeEnsureIndex(t *testing.T) {
	t.Run("索引已存在且配置一致", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodGet, r.Method)
			require.Equal(t, "/index/test_index", r.URL.Path)
			_ = json.NewEncoder(w).Encode(endeeIndexInfo{
				Name: "test_index", Dimension: 3, SpaceType: "cosine", Precision: "float32",
			})
		}))
		defer server.Close()

		store, err := NewEndeeStore(testEndeeConfig(server.URL))
		require.NoError(t, err)
		assert.NoError(t, store.EnsureIndex(context.Background()))
	})

	t.Run("维度冲突返回配置不一致错误", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(endeeIndexInfo{
				Name: "test_index", Dimension: 768, SpaceType: "cosine",
			})
		}))
		defer server.Close()

		store, err := NewEndeeStore(testEndeeConfig(server.URL))
		require.NoError(t, err)
		err = store.EnsureIndex(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrConfigMismatch))
	})

	t.Run("度量冲突返回配置不一致错误", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(endeeIndexInfo{
				Name: "test_index", Dimension: 3, SpaceType: "euclidean",
			})
		}))
		defer server.Close()

		store, err := NewEndeeStore(testEndeeConfig(server.URL))
		require.NoError(t, err)
		err = store.EnsureIndex(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrConfigMismatch))
	})

	t.Run("索引不存在时创建", func(t *testing.T) {
		var created atomic.Bool
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/index", r.URL.Path)

			var req endeeCreateIndexRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "test_index", req.Name)
			assert.Equal(t, 3, req.Dimension)
			assert.Equal(t, "cosine", req.SpaceType)
			assert.Equal(t, "float32", req.Precision)

			created.Store(true)
			w.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		store, err := NewEndeeStore(testEndeeConfig(server.URL))
		require.NoError(t, err)
		require.NoError(t, store.EnsureIndex(context.Background()))
		assert.True(t, created.Load())
	})
}

// TestEndeeDropIndex 测试索引删除
func TestEndeeDropIndex(t *testing.T) {
	t.Run("删除成功", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		store, _ := NewEndeeStore(testEndeeConfig(server.URL))
		assert.NoError(t, store.DropIndex(context.Background()))
	})

	t.Run("索引不存在视为成功", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		store, _ := NewEndeeStore(testEndeeConfig(server.URL))
		assert.NoError(t, store.DropIndex(context.Background()))
	})
}

// TestEndeeUpsert 测试批量写入
func TestEndeeUpsert(t *testing.T) {
	t.Run("写入成功", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/index/test_index/vectors", r.URL.Path)
			var req endeeUpsertRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Len(t, req.Vectors, 2)
			assert.Equal(t, "doc1", req.Vectors[0].ID)
			_ = json.NewEncoder(w).Encode(endeeUpsertResponse{UpsertedCount: 2})
		}))
		defer server.Close()

		store, _ := NewEndeeStore(testEndeeConfig(server.URL))
		count, err := store.Upsert(context.Background(), []*schema.IndexRecord{
			{ID: "doc1", Vector: []float32{1, 2, 3}},
			{ID: "doc2", Vector: []float32{4, 5, 6}},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("维度不一致在传输前整批失败", func(t *testing.T) {
		var called atomic.Bool
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called.Store(true)
		}))
		defer server.Close()

		store, _ := NewEndeeStore(testEndeeConfig(server.URL))
		_, err := store.Upsert(context.Background(), []*schema.IndexRecord{
			{ID: "doc1", Vector: []float32{1, 2, 3}},
			{ID: "doc2", Vector: []float32{4, 5}},
		})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrDimensionMismatch))
		// 校验失败时不应发出任何HTTP请求
		assert.False(t, called.Load())
	})

	t.Run("空批次无操作", func(t *testing.T) {
		store, _ := NewEndeeStore(testEndeeConfig("http://localhost:1"))
		count, err := store.Upsert(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

// TestEndeeQuery 测试向量检索
func TestEndeeQuery(t *testing.T) {
	t.Run("检索成功并保持确定性排序", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/index/test_index/search", r.URL.Path)
			var req endeeQueryRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, 2, req.TopK)
			// 服务端返回乱序结果
			_ = json.NewEncoder(w).Encode(endeeQueryResponse{Results: []*schema.Hit{
				{ID: "b", Similarity: 0.8},
				{ID: "a", Similarity: 0.8},
				{ID: "c", Similarity: 0.9},
			}})
		}))
		defer server.Close()

		store, _ := NewEndeeStore(testEndeeConfig(server.URL))
		hits, err := store.Query(context.Background(), []float32{1, 2, 3}, 2, nil)
		require.NoError(t, err)
		// 相似度降序，同分按ID升序，截断到topK
		require.Len(t, hits, 2)
		assert.Equal(t, "c", hits[0].ID)
		assert.Equal(t, "a", hits[1].ID)
	})

	t.Run("过滤条件转换为等值匹配格式", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req endeeQueryRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Len(t, req.Filter, 1)
			assert.Equal(t, map[string]any{"$eq": "alice"}, req.Filter[0]["author"])
			_ = json.NewEncoder(w).Encode(endeeQueryResponse{})
		}))
		defer server.Close()

		store, _ := NewEndeeStore(testEndeeConfig(server.URL))
		hits, err := store.Query(context.Background(), []float32{1, 2, 3}, 5, map[string]any{"author": "alice"})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("非法topK直接报错", func(t *testing.T) {
		store, _ := NewEndeeStore(testEndeeConfig("http://localhost:1"))
		_, err := store.Query(context.Background(), []float32{1, 2, 3}, 0, nil)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrInvalidInput))
	})

	t.Run("查询向量维度不一致", func(t *testing.T) {
		store, _ := NewEndeeStore(testEndeeConfig("http://localhost:1"))
		_, err := store.Query(context.Background(), []float32{1, 2}, 5, nil)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrDimensionMismatch))
	})

	t.Run("索引不存在", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		store, _ := NewEndeeStore(testEndeeConfig(server.URL))
		_, err := store.Query(context.Background(), []float32{1, 2, 3}, 5, nil)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrIndexNotFound))
	})
}

// TestEndeeRetry 测试瞬时故障重试和鉴权失败不重试
func TestEndeeRetry(t *testing.T) {
	t.Run("5xx重试后成功", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(endeeIndexInfo{
				Name: "test_index", Dimension: 3, SpaceType: "cosine", VectorCount: 42,
			})
		}))
		defer server.Close()

		store, _ := NewEndeeStore(testEndeeConfig(server.URL))
		stats, err := store.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(42), stats.RecordCount)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("重试耗尽返回后端不可用", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		store, _ := NewEndeeStore(testEndeeConfig(server.URL))
		_, err := store.Stats(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrBackendUnavailable))
		assert.Equal(t, int32(endeeMaxRetries), calls.Load())
	})

	t.Run("鉴权失败不重试", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		store, _ := NewEndeeStore(testEndeeConfig(server.URL))
		_, err := store.Stats(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrUnauthorized))
		assert.Equal(t, int32(1), calls.Load())
	})
}

// TestEndeeAuthHeader 测试鉴权头的发送
func TestEndeeAuthHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(endeeIndexInfo{Name: "test_index", Dimension: 3, SpaceType: "cosine"})
	}))
	defer server.Close()

	config := testEndeeConfig(server.URL)
	config.AuthToken = "secret-token"
	store, err := NewEndeeStore(config)
	require.NoError(t, err)
	_, err = store.Stats(context.Background())
	require.NoError(t, err)
}
