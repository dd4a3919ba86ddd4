package ragsearch

import (
	"context"

	v1 "github.com/Malowking/ragsearch/api/ragsearch/v1"
	"github.com/Malowking/ragsearch/internal/service"
	"github.com/Malowking/ragsearch/pkg/schema"
)

func (c *ControllerV1) Search(ctx context.Context, req *v1.SearchReq) (res *v1.SearchRes, err error) {
	rtr, err := service.GetRetriever()
	if err != nil {
		return nil, err
	}

	hits, err := rtr.Search(ctx, &schema.QueryRequest{
		QueryText: req.QueryText,
		TopK:      req.TopK,
		Filters:   req.Filters,
	})
	if err != nil {
		return nil, err
	}

	return &v1.SearchRes{Hits: hits}, nil
}
