package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
	"github.com/elastic/go-elasticsearch/v9/typedapi/core/search"

	"github.com/takumi-1234/postsearch/internal/apperr"
	"github.com/takumi-1234/postsearch/internal/normalize"
	"github.com/takumi-1234/postsearch/internal/port"
)

// rawEngine は低レベルクライアント (esapi) で通信し、レスポンスをJSONマップとして扱います。
type rawEngine struct {
	es *elasticsearch.Client
}

// NewRawEngine は低レベルクライアントを使う port.Engine を生成します。
func NewRawEngine(client *elasticsearch.Client) port.Engine {
	return &rawEngine{es: client}
}

// Ping はクラスタが応答するかを確認します。
func (e *rawEngine) Ping(ctx context.Context) (bool, error) {
	res, err := e.es.Ping(e.es.Ping.WithContext(ctx))
	if err != nil {
		return false, apperr.Wrap(apperr.KindEngineUnavailable, err, nil)
	}
	defer closeBody(res)
	return !res.IsError(), nil
}

// IndexExists はインデックスの存在を確認します。
func (e *rawEngine) IndexExists(ctx context.Context, indexName string) (bool, error) {
	res, err := e.es.Indices.Exists([]string{indexName}, e.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, apperr.Wrap(apperr.KindEngineUnavailable, err, map[string]any{"index": indexName})
	}
	defer closeBody(res)

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, apperr.New(apperr.KindInternal, map[string]any{"index": indexName, "status": res.StatusCode})
	}
}

// Search は検索リクエストをJSONにして送信し、レスポンスマップを共通形式に変換します。
func (e *rawEngine) Search(ctx context.Context, indexName string, req *search.Request) (*port.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	res, err := e.es.Search(
		e.es.Search.WithContext(ctx),
		e.es.Search.WithIndex(indexName),
		e.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEngineUnavailable, err, map[string]any{"index": indexName})
	}
	defer closeBody(res)

	if res.IsError() {
		return nil, rawError(indexName, res)
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, fmt.Errorf("failed to decode search response: %w", err), map[string]any{"index": indexName})
	}
	return normalize.FromRaw(raw)
}

type rawErrorBody struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

func rawError(indexName string, res *esapi.Response) error {
	var body rawErrorBody
	payload, _ := io.ReadAll(res.Body)
	_ = json.Unmarshal(payload, &body)

	ctx := map[string]any{"index": indexName, "status": res.StatusCode}
	if body.Error.Type != "" {
		ctx["type"] = body.Error.Type
	}
	if res.StatusCode == http.StatusNotFound && body.Error.Type == indexNotFoundType {
		return apperr.New(apperr.KindIndexMissing, ctx)
	}
	return apperr.Wrap(apperr.KindInternal, fmt.Errorf("elasticsearch search request failed: %s", body.Error.Reason), ctx)
}

func closeBody(res *esapi.Response) {
	if res != nil && res.Body != nil {
		_ = res.Body.Close()
	}
}
