package cmd

import (
	"context"

	"github.com/Malowking/ragsearch/core/config"
	"github.com/Malowking/ragsearch/internal/service"
	"github.com/gogf/gf/v2/frame/g"
)

// init initializes all components of the application
func init() {
	ctx := context.Background()

	// Validate configuration before initializing components
	g.Log().Info(ctx, "Validating application configuration...")
	err := config.ValidateConfiguration(ctx)
	if err != nil {
		g.Log().Fatalf(ctx, "Configuration validation failed:\n%v", err)
	}

	// Initialize vector store and make sure the index exists with the expected config
	store, err := service.GetVectorStore()
	if err != nil {
		g.Log().Fatalf(ctx, "Vector store initialization failed: %v", err)
	}
	if err = store.EnsureIndex(ctx); err != nil {
		g.Log().Fatalf(ctx, "Index initialization failed: %v", err)
	}

	// Initialize encoder and pre-load the embedding model
	enc, err := service.GetEncoder()
	if err != nil {
		g.Log().Fatalf(ctx, "Encoder initialization failed: %v", err)
	}
	if _, err = enc.Encode(ctx, "warmup"); err != nil {
		// 预热失败不致命，首个请求会再次触发模型加载
		g.Log().Warningf(ctx, "Encoder warmup failed: %v", err)
	}

	g.Log().Info(ctx, "✓ All components initialized successfully")
}
