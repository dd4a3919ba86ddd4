package ragsearch

import (
	"context"

	v1 "github.com/Malowking/ragsearch/api/ragsearch/v1"
	"github.com/Malowking/ragsearch/internal/service"
)

func (c *ControllerV1) Health(ctx context.Context, req *v1.HealthReq) (res *v1.HealthRes, err error) {
	rtr, err := service.GetRetriever()
	if err != nil {
		return nil, err
	}

	status := rtr.Health(ctx)
	return &v1.HealthRes{
		IndexReachable: status.IndexReachable,
		RecordCount:    status.RecordCount,
	}, nil
}
