package v1

import (
	"github.com/Malowking/ragsearch/pkg/schema"
	"github.com/gogf/gf/v2/frame/g"
)

type IndexStatsReq struct {
	g.Meta `path:"/v1/index/stats" method:"get" tags:"ragsearch" summary:"Vector index statistics"`
}

type IndexStatsRes struct {
	g.Meta `mime:"application/json"`
	Stats  *schema.IndexStats `json:"stats" dc:"索引统计信息"`
}
