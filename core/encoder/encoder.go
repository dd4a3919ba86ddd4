package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Malowking/ragsearch/core/errors"
)

// Config 接口，用于提取embedding配置
type Config interface {
	GetAPIKey() string
	GetBaseURL() string
	GetEmbeddingModel() string
	GetDimension() int
}

// Encoder 文本向量化接口
// 对固定的模型版本和输入是确定性的：相同文本总是产生相同向量
type Encoder interface {
	// Encode 将单条非空文本转换为定长向量
	Encode(ctx context.Context, text string) ([]float32, error)

	// EncodeBatch 批量向量化，输出与输入一一对应且顺序一致
	// 任一文本失败则整批失败，不产生部分结果
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIEncoder OpenAI兼容embedding API客户端
type OpenAIEncoder struct {
	apiKey     string
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
}

// embeddingRequest OpenAI embedding API请求结构
type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions *int     `json:"dimensions,omitempty"`
}

// embeddingResponse OpenAI embedding API响应结构
type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
		Object    string    `json:"object"`
	} `json:"data"`
	Model  string `json:"model"`
	Object string `json:"object"`
	Usage  struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// errorResponse API错误响应
type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

// NewOpenAIEncoder 创建embedding客户端
func NewOpenAIEncoder(ctx context.Context, conf Config) (*OpenAIEncoder, error) {
	apiKey := conf.GetAPIKey()
	baseURL := conf.GetBaseURL()
	model := conf.GetEmbeddingModel()
	dimension := conf.GetDimension()

	if apiKey == "" {
		return nil, errors.Newf(errors.ErrModelNotConfigured, "embedding apiKey is required")
	}
	if baseURL == "" {
		return nil, errors.Newf(errors.ErrModelNotConfigured, "embedding baseURL is required")
	}
	if model == "" {
		return nil, errors.Newf(errors.ErrModelNotConfigured, "embedding model is required")
	}
	if dimension <= 0 {
		return nil, errors.Newf(errors.ErrModelNotConfigured, "embedding dimension must be positive, got %d", dimension)
	}

	// 创建自定义HTTP客户端，设置合理的超时时间
	httpClient := &http.Client{
		Timeout: 5 * time.Minute, // 总体超时5分钟
		Transport: &http.Transport{
			Dial: (&net.Dialer{
				Timeout:   30 * time.Second, // 连接超时
				KeepAlive: 30 * time.Second,
			}).Dial,
			TLSHandshakeTimeout:   30 * time.Second,
			ResponseHeaderTimeout: 2 * time.Minute,
			ExpectContinueTimeout: 1 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
		},
	}

	return &OpenAIEncoder{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimension:  dimension,
		httpClient: httpClient,
	}, nil
}

// Dimension 返回配置的向量维度
func (e *OpenAIEncoder) Dimension() int {
	return e.dimension
}

// Encode 单条文本向量化
func (e *OpenAIEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, errors.Newf(errors.ErrEncodingFailed, "invalid return length of vector, got=%d, expected=1", len(vectors))
	}
	return vectors[0], nil
}

// EncodeBatch 批量文本向量化
func (e *OpenAIEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// 空文本不是有意义的语义点，拒绝而不是静默向量化
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, errors.Newf(errors.ErrInvalidInput, "text at index %d is empty or whitespace-only", i)
		}
	}

	req := embeddingRequest{
		Input:      texts,
		Model:      e.model,
		Dimensions: &e.dimension,
	}

	// 序列化请求
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Newf(errors.ErrEncodingFailed, "failed to marshal request: %v", err)
	}

	// 创建HTTP请求
	url := e.baseURL + "/embeddings"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, errors.Newf(errors.ErrEncodingFailed, "failed to create request: %v", err)
	}

	// 设置请求头
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	// 发送请求
	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Newf(errors.ErrEncodingFailed, "failed to send request: %v", err)
	}
	defer resp.Body.Close()

	// 检查HTTP状态码
	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return nil, errors.Newf(errors.ErrEncodingFailed, "HTTP %d: failed to decode error response: %v", resp.StatusCode, err)
		}
		return nil, errors.Newf(errors.ErrEncodingFailed, "API error (HTTP %d): %s", resp.StatusCode, errResp.Error.Message)
	}

	// 解析响应
	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, errors.Newf(errors.ErrEncodingFailed, "failed to decode response: %v", err)
	}

	// 验证响应数据
	if len(embResp.Data) != len(texts) {
		return nil, errors.Newf(errors.ErrEncodingFailed, "response data length (%d) doesn't match input length (%d)", len(embResp.Data), len(texts))
	}

	// 按index重组向量并转换为float32，保证输出顺序与输入一致
	result := make([][]float32, len(texts))
	for _, data := range embResp.Data {
		if data.Index < 0 || data.Index >= len(result) {
			return nil, errors.Newf(errors.ErrEncodingFailed, "invalid embedding index: %d", data.Index)
		}
		if len(data.Embedding) != e.dimension {
			return nil, errors.Newf(errors.ErrDimensionMismatch,
				"model returned vector of dimension %d, expected %d", len(data.Embedding), e.dimension)
		}
		float32Vec := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			float32Vec[i] = float32(v)
		}
		result[data.Index] = float32Vec
	}

	return result, nil
}
