package vector_store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Malowking/ragsearch/core/errors"
	"github.com/Malowking/ragsearch/pkg/schema"
	"github.com/bytedance/sonic"
	"github.com/gogf/gf/v2/frame/g"
)

// 重试参数（可以根据需要调整）
const (
	endeeMaxRetries   = 3                      // 最大尝试次数
	endeeInitialDelay = 500 * time.Millisecond // 初始延迟
	endeeMaxDelay     = 8 * time.Second        // 最大延迟
	endeeMultiplier   = 2.0                    // 指数退避倍数
)

// EndeeStore Endee向量数据库实现（HTTP API）
type EndeeStore struct {
	index      IndexConfig
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// endeeIndexInfo 索引描述响应
type endeeIndexInfo struct {
	Name        string `json:"name"`
	Dimension   int    `json:"dimension"`
	SpaceType   string `json:"space_type"`
	Precision   string `json:"precision"`
	VectorCount int64  `json:"vector_count"`
}

// endeeCreateIndexRequest 创建索引请求
type endeeCreateIndexRequest struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	SpaceType string `json:"space_type"`
	Precision string `json:"precision"`
}

// endeeUpsertRequest 批量写入请求
type endeeUpsertRequest struct {
	Vectors []*schema.IndexRecord `json:"vectors"`
}

// endeeUpsertResponse 批量写入响应
type endeeUpsertResponse struct {
	UpsertedCount int `json:"upserted_count"`
}

// endeeQueryRequest 检索请求
type endeeQueryRequest struct {
	Vector []float32                   `json:"vector"`
	TopK   int                         `json:"top_k"`
	Filter []map[string]map[string]any `json:"filter,omitempty"`
}

// endeeQueryResponse 检索响应
type endeeQueryResponse struct {
	Results []*schema.Hit `json:"results"`
}

// endeeErrorResponse API错误响应
type endeeErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewEndeeStore 创建Endee向量存储实例
func NewEndeeStore(config *VectorStoreConfig) (VectorStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("endee base URL cannot be empty")
	}

	// 创建自定义HTTP客户端，设置合理的超时时间
	httpClient := &http.Client{
		Timeout: 2 * time.Minute,
		Transport: &http.Transport{
			Dial: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).Dial,
			TLSHandshakeTimeout:   30 * time.Second,
			ResponseHeaderTimeout: 1 * time.Minute,
			ExpectContinueTimeout: 1 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
		},
	}

	return &EndeeStore{
		index:      config.Index,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		authToken:  config.AuthToken,
		httpClient: httpClient,
	}, nil
}

// EnsureIndex 确保索引存在（幂等）
func (s *EndeeStore) EnsureIndex(ctx context.Context) error {
	status, body, err := s.call(ctx, http.MethodGet, s.indexURL(), nil)
	if err != nil {
		return err
	}

	switch status {
	case http.StatusOK:
		var info endeeIndexInfo
		if err := sonic.Unmarshal(body, &info); err != nil {
			return errors.Newf(errors.ErrIndexInit, "failed to decode index info: %v", err)
		}
		// 同名索引已存在，配置必须完全一致，否则相似度结果会静默损坏
		if info.Dimension != s.index.Dimension {
			return errors.Newf(errors.ErrConfigMismatch,
				"index %q exists with dimension %d, expected %d", s.index.Name, info.Dimension, s.index.Dimension)
		}
		if info.SpaceType != string(s.index.Metric) {
			return errors.Newf(errors.ErrConfigMismatch,
				"index %q exists with metric %s, expected %s", s.index.Name, info.SpaceType, s.index.Metric)
		}
		g.Log().Infof(ctx, "Index '%s' already exists (dimension: %d, metric: %s), skipping creation",
			s.index.Name, info.Dimension, info.SpaceType)
		return nil
	case http.StatusNotFound:
		// 索引不存在，创建
	default:
		return errors.Newf(errors.ErrIndexInit, "unexpected status %d checking index %q: %s",
			status, s.index.Name, errorMessage(body))
	}

	createReq := endeeCreateIndexRequest{
		Name:      s.index.Name,
		Dimension: s.index.Dimension,
		SpaceType: string(s.index.Metric),
		Precision: string(s.index.Precision),
	}
	status, body, err = s.call(ctx, http.MethodPost, s.baseURL+"/index", createReq)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return errors.Newf(errors.ErrIndexInit, "failed to create index %q (status %d): %s",
			s.index.Name, status, errorMessage(body))
	}

	g.Log().Infof(ctx, "Index '%s' created (dimension: %d, metric: %s, precision: %s)",
		s.index.Name, s.index.Dimension, s.index.Metric, s.index.Precision)
	return nil
}

// DropIndex 删除索引
func (s *EndeeStore) DropIndex(ctx context.Context) error {
	status, body, err := s.call(ctx, http.MethodDelete, s.indexURL(), nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		// 已不存在，视为成功
		return nil
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return errors.Newf(errors.ErrOperationFailed, "failed to drop index %q (status %d): %s",
			s.index.Name, status, errorMessage(body))
	}
	g.Log().Infof(ctx, "Index '%s' dropped", s.index.Name)
	return nil
}

// Upsert 批量写入记录，整批原子提交
func (s *EndeeStore) Upsert(ctx context.Context, records []*schema.IndexRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	// 维度校验在传输之前完成，保证不会出现部分写入
	if err := validateRecords(records, s.index.Dimension); err != nil {
		return 0, err
	}

	status, body, err := s.call(ctx, http.MethodPost, s.indexURL()+"/vectors", endeeUpsertRequest{Vectors: records})
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, errors.Newf(errors.ErrVectorUpsert, "upsert to index %q failed (status %d): %s",
			s.index.Name, status, errorMessage(body))
	}

	var resp endeeUpsertResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return 0, errors.Newf(errors.ErrVectorUpsert, "failed to decode upsert response: %v", err)
	}
	count := resp.UpsertedCount
	if count == 0 {
		count = len(records)
	}

	g.Log().Infof(ctx, "Successfully upserted %d vectors into index '%s'", count, s.index.Name)
	return count, nil
}

// Query 向量检索
func (s *EndeeStore) Query(ctx context.Context, vector []float32, topK int, filters map[string]any) ([]*schema.Hit, error) {
	if topK < 1 {
		return nil, errors.Newf(errors.ErrInvalidInput, "top_k must be >= 1, got %d", topK)
	}
	if len(vector) != s.index.Dimension {
		return nil, errors.Newf(errors.ErrDimensionMismatch,
			"query vector has dimension %d, index expects %d", len(vector), s.index.Dimension)
	}

	req := endeeQueryRequest{
		Vector: vector,
		TopK:   topK,
		Filter: normalizeFilters(filters),
	}
	status, body, err := s.call(ctx, http.MethodPost, s.indexURL()+"/search", req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, errors.Newf(errors.ErrIndexNotFound, "index %q not found", s.index.Name)
	}
	if status != http.StatusOK {
		return nil, errors.Newf(errors.ErrVectorSearch, "search on index %q failed (status %d): %s",
			s.index.Name, status, errorMessage(body))
	}

	var resp endeeQueryResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return nil, errors.Newf(errors.ErrVectorSearch, "failed to decode search response: %v", err)
	}

	hits := resp.Results
	if hits == nil {
		hits = []*schema.Hit{}
	}
	sortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Stats 获取索引统计信息
func (s *EndeeStore) Stats(ctx context.Context) (*schema.IndexStats, error) {
	status, body, err := s.call(ctx, http.MethodGet, s.indexURL(), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, errors.Newf(errors.ErrIndexNotFound, "index %q not found", s.index.Name)
	}
	if status != http.StatusOK {
		return nil, errors.Newf(errors.ErrOperationFailed, "failed to get stats for index %q (status %d): %s",
			s.index.Name, status, errorMessage(body))
	}

	var info endeeIndexInfo
	if err := sonic.Unmarshal(body, &info); err != nil {
		return nil, errors.Newf(errors.ErrOperationFailed, "failed to decode index info: %v", err)
	}
	return &schema.IndexStats{
		RecordCount: info.VectorCount,
		Dimension:   info.Dimension,
		Metric:      info.SpaceType,
	}, nil
}

func (s *EndeeStore) indexURL() string {
	return s.baseURL + "/index/" + s.index.Name
}

// call 发送HTTP请求，对瞬时故障做有界指数退避重试
// 传输错误、5xx、429 重试；鉴权/配置类4xx绝不重试
func (s *EndeeStore) call(ctx context.Context, method, url string, reqBody any) (int, []byte, error) {
	var payload []byte
	if reqBody != nil {
		var err error
		payload, err = sonic.Marshal(reqBody)
		if err != nil {
			return 0, nil, errors.Newf(errors.ErrInternalError, "failed to marshal request: %v", err)
		}
	}

	var lastErr error
	delay := endeeInitialDelay

	for attempt := 0; attempt < endeeMaxRetries; attempt++ {
		if attempt > 0 {
			g.Log().Infof(ctx, "Retrying %s %s attempt %d/%d after %v delay", method, url, attempt+1, endeeMaxRetries, delay)
			select {
			case <-ctx.Done():
				return 0, nil, errors.Newf(errors.ErrBackendUnavailable, "request cancelled: %v", ctx.Err())
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * endeeMultiplier)
			if delay > endeeMaxDelay {
				delay = endeeMaxDelay
			}
		}

		status, body, err := s.doOnce(ctx, method, url, payload)
		if err != nil {
			// 传输层错误，可重试
			lastErr = err
			g.Log().Warningf(ctx, "Request %s %s failed: %v", method, url, err)
			continue
		}

		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			// 鉴权失败是配置错误，重试无意义
			return status, body, errors.Newf(errors.ErrUnauthorized, "authentication failed (status %d): %s", status, errorMessage(body))
		case status >= 500 || status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("server error (status %d): %s", status, errorMessage(body))
			g.Log().Warningf(ctx, "Request %s %s returned status %d, will retry", method, url, status)
			continue
		default:
			return status, body, nil
		}
	}

	return 0, nil, errors.Newf(errors.ErrBackendUnavailable,
		"index backend unavailable after %d attempts (%s %s): %v", endeeMaxRetries, method, url, lastErr)
}

func (s *EndeeStore) doOnce(ctx context.Context, method, url string, payload []byte) (int, []byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if s.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// normalizeFilters 将简单键值过滤转换为Endee过滤格式: [{"key": {"$eq": "value"}}]
// 按键排序保证请求体可复现
func normalizeFilters(filters map[string]any) []map[string]map[string]any {
	if len(filters) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	normalized := make([]map[string]map[string]any, 0, len(keys))
	for _, k := range keys {
		normalized = append(normalized, map[string]map[string]any{
			k: {"$eq": filters[k]},
		})
	}
	return normalized
}

// errorMessage 尽力从错误响应体中提取可读消息
func errorMessage(body []byte) string {
	if len(body) == 0 {
		return "(empty response)"
	}
	var errResp endeeErrorResponse
	if err := sonic.Unmarshal(body, &errResp); err == nil {
		if errResp.Message != "" {
			return errResp.Message
		}
		if errResp.Error != "" {
			return errResp.Error
		}
	}
	msg := string(body)
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return msg
}
