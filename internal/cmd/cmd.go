package cmd

import (
	"context"

	"github.com/Malowking/ragsearch/core/indexer"
	"github.com/Malowking/ragsearch/internal/controller/ragsearch"
	"github.com/Malowking/ragsearch/internal/service"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/net/ghttp"
	"github.com/gogf/gf/v2/os/gcmd"
)

var (
	Main = gcmd.Command{
		Name:  "main",
		Usage: "main",
		Brief: "start http server",
		Func: func(ctx context.Context, parser *gcmd.Parser) (err error) {
			s := g.Server()

			s.Group("/api", func(group *ghttp.RouterGroup) {
				group.Middleware(MiddlewareHandlerResponse, ghttp.MiddlewareCORS)
				group.Bind(
					ragsearch.NewV1(),
				)
			})
			s.Run()
			return nil
		},
	}

	// Ingest 从本地目录批量入库文档
	Ingest = gcmd.Command{
		Name:  "ingest",
		Usage: "ingest -d <dir> [-r]",
		Brief: "load documents from a directory into the vector index",
		Arguments: []gcmd.Argument{
			{Name: "dir", Short: "d", Brief: "directory containing .md/.txt/.rst documents"},
			{Name: "recreate", Short: "r", Brief: "drop and recreate the index before ingesting", Orphan: true},
		},
		Func: func(ctx context.Context, parser *gcmd.Parser) (err error) {
			dir := parser.GetOpt("dir", "data/docs").String()

			store, err := service.GetVectorStore()
			if err != nil {
				return err
			}

			// 显式的重建流程：索引配置变更时删除旧索引再按当前配置创建
			if parser.GetOpt("recreate") != nil {
				g.Log().Infof(ctx, "Recreating index before ingestion")
				if err = store.DropIndex(ctx); err != nil {
					return err
				}
				if err = store.EnsureIndex(ctx); err != nil {
					return err
				}
			}

			loader, err := indexer.NewDocumentLoader(ctx)
			if err != nil {
				return err
			}
			docs, err := loader.LoadDirectory(ctx, dir)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				g.Log().Warningf(ctx, "No documents found to ingest in %s", dir)
				return nil
			}

			ingestor, err := service.GetIngestor()
			if err != nil {
				return err
			}
			result, err := ingestor.Ingest(ctx, docs)
			if err != nil {
				return err
			}

			g.Log().Infof(ctx, "Ingested %d documents (%d rejected)", result.Accepted, len(result.Rejected))
			for _, rejected := range result.Rejected {
				g.Log().Warningf(ctx, "Document %q rejected: %s", rejected.ID, rejected.Reason)
			}
			return nil
		},
	}
)

func init() {
	if err := Main.AddCommand(&Ingest); err != nil {
		panic(err)
	}
}
