package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/typedapi/core/search"
	"github.com/elastic/go-elasticsearch/v9/typedapi/types"

	"github.com/takumi-1234/postsearch/internal/apperr"
	"github.com/takumi-1234/postsearch/internal/config"
	"github.com/takumi-1234/postsearch/internal/normalize"
	"github.com/takumi-1234/postsearch/internal/port"
)

// トランスポート種別
const (
	TransportTyped = "typed"
	TransportRaw   = "raw"
)

const indexNotFoundType = "index_not_found_exception"

// ClientConfig は設定から elasticsearch.Config を組み立てます。
// CA 証明書のパスが指定されていればその内容を読み込みます。
func ClientConfig(cfg config.ElasticsearchConfig, transport http.RoundTripper) (elasticsearch.Config, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	}
	if cfg.CACertPath != "" {
		cert, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return elasticsearch.Config{}, fmt.Errorf("failed to read elasticsearch CA certificate: %w", err)
		}
		esCfg.CACert = cert
	}
	return esCfg, nil
}

// NewEngine は設定されたトランスポートで port.Engine を生成します。
func NewEngine(cfg config.ElasticsearchConfig, transport http.RoundTripper) (port.Engine, error) {
	esCfg, err := ClientConfig(cfg, transport)
	if err != nil {
		return nil, err
	}

	switch cfg.Transport {
	case TransportTyped, "":
		client, err := elasticsearch.NewTypedClient(esCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create elasticsearch typed client: %w", err)
		}
		return NewTypedEngine(client), nil
	case TransportRaw:
		client, err := elasticsearch.NewClient(esCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
		}
		return NewRawEngine(client), nil
	default:
		return nil, apperr.New(apperr.KindInvalidArgument, map[string]any{"transport": cfg.Transport})
	}
}

// typedEngine は型付きクライアントで Elasticsearch と通信します。
type typedEngine struct {
	es *elasticsearch.TypedClient
}

// NewTypedEngine は型付きクライアントを使う port.Engine を生成します。
func NewTypedEngine(client *elasticsearch.TypedClient) port.Engine {
	return &typedEngine{es: client}
}

// Ping はクラスタが応答するかを確認します。
func (e *typedEngine) Ping(ctx context.Context) (bool, error) {
	ok, err := e.es.Ping().IsSuccess(ctx)
	if err != nil {
		return false, apperr.Wrap(apperr.KindEngineUnavailable, err, nil)
	}
	return ok, nil
}

// IndexExists はインデックスの存在を確認します。
func (e *typedEngine) IndexExists(ctx context.Context, indexName string) (bool, error) {
	ok, err := e.es.Indices.Exists(indexName).IsSuccess(ctx)
	if err != nil {
		return false, classifyError(indexName, err)
	}
	return ok, nil
}

// Search は検索を実行し、レスポンスを共通形式に変換します。
func (e *typedEngine) Search(ctx context.Context, indexName string, req *search.Request) (*port.Response, error) {
	res, err := e.es.Search().
		Index(indexName).
		Request(req).
		TypedKeys(true).
		Do(ctx)
	if err != nil {
		return nil, classifyError(indexName, err)
	}
	return normalize.FromTyped(res)
}

// classifyError は型付きクライアントのエラーを apperr に変換します。
func classifyError(indexName string, err error) error {
	var esErr *types.ElasticsearchError
	if errors.As(err, &esErr) {
		if esErr.Status == http.StatusNotFound && esErr.ErrorCause.Type == indexNotFoundType {
			return apperr.Wrap(apperr.KindIndexMissing, err, map[string]any{"index": indexName})
		}
		return apperr.Wrap(apperr.KindInternal, fmt.Errorf("elasticsearch search request failed: %w", err), map[string]any{"index": indexName})
	}
	return apperr.Wrap(apperr.KindEngineUnavailable, err, map[string]any{"index": indexName})
}
