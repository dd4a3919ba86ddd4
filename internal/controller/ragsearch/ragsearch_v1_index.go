package ragsearch

import (
	"context"

	v1 "github.com/Malowking/ragsearch/api/ragsearch/v1"
	"github.com/Malowking/ragsearch/internal/service"
)

func (c *ControllerV1) IndexStats(ctx context.Context, req *v1.IndexStatsReq) (res *v1.IndexStatsRes, err error) {
	store, err := service.GetVectorStore()
	if err != nil {
		return nil, err
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	return &v1.IndexStatsRes{Stats: stats}, nil
}
