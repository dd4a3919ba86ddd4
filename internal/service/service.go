package service

import (
	"sync"

	"github.com/Malowking/ragsearch/core/config"
	"github.com/Malowking/ragsearch/core/encoder"
	"github.com/Malowking/ragsearch/core/errors"
	"github.com/Malowking/ragsearch/core/ingestion"
	"github.com/Malowking/ragsearch/core/retriever"
	"github.com/Malowking/ragsearch/core/vector_store"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/os/gctx"
)

var (
	storeOnce    sync.Once
	vectorClient vector_store.VectorStore
	storeErr     error

	encoderOnce   sync.Once
	encoderClient encoder.Encoder
	encoderErr    error
)

// GetVectorStore returns the singleton vector index gateway
func GetVectorStore() (vector_store.VectorStore, error) {
	storeOnce.Do(func() {
		ctx := gctx.New()

		storeConfig, err := config.LoadVectorStoreConfig(ctx)
		if err != nil {
			storeErr = errors.Newf(errors.ErrIndexInit, "failed to load vector store config: %v", err)
			return
		}

		g.Log().Infof(ctx, "Initializing vector store with type: %s", storeConfig.Type)
		vectorClient, err = vector_store.NewVectorStore(storeConfig)
		if err != nil {
			storeErr = errors.Newf(errors.ErrIndexInit, "failed to initialize %s vector store: %v", storeConfig.Type, err)
			return
		}
		g.Log().Infof(ctx, "%s vector store initialized successfully", storeConfig.Type)
	})
	return vectorClient, storeErr
}

// GetEncoder returns the singleton text encoder
func GetEncoder() (encoder.Encoder, error) {
	encoderOnce.Do(func() {
		ctx := gctx.New()
		encoderClient, encoderErr = encoder.NewOpenAIEncoder(ctx, config.LoadEmbeddingSettings(ctx))
		if encoderErr == nil {
			g.Log().Info(ctx, "Embedding encoder initialized successfully")
		}
	})
	return encoderClient, encoderErr
}

// GetIngestor returns an ingestion coordinator wired to the shared encoder and store
func GetIngestor() (*ingestion.Coordinator, error) {
	enc, err := GetEncoder()
	if err != nil {
		return nil, err
	}
	store, err := GetVectorStore()
	if err != nil {
		return nil, err
	}
	return ingestion.NewCoordinator(enc, store), nil
}

// GetRetriever returns a query coordinator wired to the shared encoder and store
func GetRetriever() (*retriever.Retriever, error) {
	enc, err := GetEncoder()
	if err != nil {
		return nil, err
	}
	store, err := GetVectorStore()
	if err != nil {
		return nil, err
	}
	return retriever.NewRetriever(enc, store), nil
}
