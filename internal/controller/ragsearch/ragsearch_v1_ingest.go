package ragsearch

import (
	"context"

	v1 "github.com/Malowking/ragsearch/api/ragsearch/v1"
	"github.com/Malowking/ragsearch/internal/service"
	"github.com/Malowking/ragsearch/pkg/schema"
	"github.com/gogf/gf/v2/frame/g"
)

func (c *ControllerV1) Ingest(ctx context.Context, req *v1.IngestReq) (res *v1.IngestRes, err error) {
	g.Log().Infof(ctx, "Ingest request received, documents: %d", len(req.Documents))

	ingestor, err := service.GetIngestor()
	if err != nil {
		return nil, err
	}

	docs := make([]*schema.Document, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = &schema.Document{
			ID:   d.ID,
			Text: d.Text,
			Meta: d.Meta,
		}
	}

	result, err := ingestor.Ingest(ctx, docs)
	if err != nil {
		return nil, err
	}

	return &v1.IngestRes{
		Accepted: result.Accepted,
		Rejected: result.Rejected,
	}, nil
}
