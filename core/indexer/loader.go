package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Malowking/ragsearch/core/errors"
	"github.com/Malowking/ragsearch/pkg/schema"
	"github.com/cloudwego/eino-ext/components/document/loader/file"
	document_url "github.com/cloudwego/eino-ext/components/document/loader/url"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/gogf/gf/v2/frame/g"
)

// loadableExtensions 目录装载时识别的文件类型
var loadableExtensions = map[string]bool{
	".md":  true,
	".txt": true,
	".rst": true,
}

// DocumentLoader 文档装载器
// 本地路径走文件装载，http(s)地址走URL装载
type DocumentLoader struct {
	fileLoader document.Loader
	urlLoader  document.Loader
}

// NewDocumentLoader 创建文档装载器
func NewDocumentLoader(ctx context.Context) (*DocumentLoader, error) {
	fldr, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: false,
		Parser:      parser.TextParser{},
	})
	if err != nil {
		return nil, errors.Newf(errors.ErrOperationFailed, "failed to create file loader: %v", err)
	}

	uldr, err := document_url.NewLoader(ctx, &document_url.LoaderConfig{})
	if err != nil {
		return nil, errors.Newf(errors.ErrOperationFailed, "failed to create url loader: %v", err)
	}

	return &DocumentLoader{
		fileLoader: fldr,
		urlLoader:  uldr,
	}, nil
}

// Load 装载单个来源（本地文件或URL）为文档
func (l *DocumentLoader) Load(ctx context.Context, uri string) ([]*schema.Document, error) {
	ldr := l.fileLoader
	if isURL(uri) {
		ldr = l.urlLoader
	}

	loaded, err := ldr.Load(ctx, document.Source{URI: uri})
	if err != nil {
		return nil, errors.Newf(errors.ErrOperationFailed, "failed to load %q: %v", uri, err)
	}

	docs := make([]*schema.Document, 0, len(loaded))
	for _, d := range loaded {
		docs = append(docs, &schema.Document{
			ID:   docIDFromURI(uri),
			Text: d.Content,
			Meta: map[string]any{
				"title":  titleFromURI(uri),
				"source": filepath.Base(uri),
			},
		})
	}
	return docs, nil
}

// LoadDirectory 装载目录下所有可识别的文本文件（.md/.txt/.rst），按文件名排序
func (l *DocumentLoader) LoadDirectory(ctx context.Context, dir string) ([]*schema.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Newf(errors.ErrOperationFailed, "failed to read docs directory %q: %v", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !loadableExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var docs []*schema.Document
	for _, name := range names {
		loaded, err := l.Load(ctx, filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		docs = append(docs, loaded...)
	}

	g.Log().Infof(ctx, "Loaded %d documents from directory %s", len(docs), dir)
	return docs, nil
}

// isURL 判断URI是否为网络地址
func isURL(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")
}

// docIDFromURI 取文件名主干作为文档ID
func docIDFromURI(uri string) string {
	base := filepath.Base(uri)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// titleFromURI 将文件名主干转换为可读标题
func titleFromURI(uri string) string {
	stem := docIDFromURI(uri)
	stem = strings.ReplaceAll(stem, "-", " ")
	stem = strings.ReplaceAll(stem, "_", " ")

	words := strings.Fields(stem)
	for i, w := range words {
		runes := []rune(w)
		words[i] = strings.ToUpper(string(runes[0])) + string(runes[1:])
	}
	return strings.Join(words, " ")
}
