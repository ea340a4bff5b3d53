package port

import (
	"context"

	"github.com/elastic/go-elasticsearch/v9/typedapi/core/search"
)

// Hit は検索エンジンが返したヒット1件の正規化済み表現です。
type Hit struct {
	ID     string
	Index  string
	Score  *float64
	Source map[string]interface{}
}

// SuggestOption はサジェスタが返した訂正候補です。
type SuggestOption struct {
	Text  string
	Score float64
}

// SuggestEntry はサジェストを要求したテキスト1件に対する結果です。
type SuggestEntry struct {
	Text    string
	Options []SuggestOption
}

// Response はトランスポートに依存しない検索レスポンスです。
// Suggest が nil の場合、エンジンのレスポンスに suggest セクションが存在しなかったことを表します。
type Response struct {
	Hits    []Hit
	Suggest map[string][]SuggestEntry
}

// Engine は検索エンジンへの読み取り専用アクセスを抽象化します。
type Engine interface {
	Ping(ctx context.Context) (bool, error)
	IndexExists(ctx context.Context, indexName string) (bool, error)
	Search(ctx context.Context, indexName string, req *search.Request) (*Response, error)
}
