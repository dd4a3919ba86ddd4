package v1

import (
	"github.com/gogf/gf/v2/frame/g"
)

type HealthReq struct {
	g.Meta `path:"/v1/health" method:"get" tags:"ragsearch" summary:"Service health check"`
}

type HealthRes struct {
	g.Meta         `mime:"application/json"`
	IndexReachable bool  `json:"index_reachable" dc:"索引后端是否可达"`
	RecordCount    int64 `json:"record_count" dc:"索引中的记录总数"`
}
