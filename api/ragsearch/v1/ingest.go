package v1

import (
	"github.com/Malowking/ragsearch/pkg/schema"
	"github.com/gogf/gf/v2/frame/g"
)

type DocumentInput struct {
	ID   string         `json:"id" dc:"文档唯一标识" v:"required"`
	Text string         `json:"text" dc:"文档正文"`
	Meta map[string]any `json:"meta" dc:"可选元数据"`
}

type IngestReq struct {
	g.Meta    `path:"/v1/ingest" method:"post" tags:"ragsearch" summary:"Ingest documents into the vector index"`
	Documents []DocumentInput `json:"documents" dc:"待入库文档列表" v:"required"`
}

type IngestRes struct {
	g.Meta   `mime:"application/json"`
	Accepted int                       `json:"accepted" dc:"成功入库的文档数"`
	Rejected []schema.RejectedDocument `json:"rejected" dc:"被拒绝的文档及原因"`
}
