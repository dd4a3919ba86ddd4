package v1

import (
	"github.com/Malowking/ragsearch/pkg/schema"
	"github.com/gogf/gf/v2/frame/g"
)

type SearchReq struct {
	g.Meta    `path:"/v1/search" method:"post" tags:"ragsearch" summary:"Semantic search over the vector index"`
	QueryText string         `json:"query_text" dc:"自然语言查询" v:"required"`
	TopK      int            `json:"top_k" dc:"返回结果数量上限" v:"min:1|max:50" d:"5"`
	Filters   map[string]any `json:"filters" dc:"可选元数据等值过滤"`
}

type SearchRes struct {
	g.Meta `mime:"application/json"`
	Hits   []*schema.Hit `json:"hits" dc:"命中结果，按相似度降序"`
}
