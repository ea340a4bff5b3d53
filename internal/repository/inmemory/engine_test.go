package inmemory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/takumi-1234/postsearch/internal/apperr"
	"github.com/takumi-1234/postsearch/internal/port"
	"github.com/takumi-1234/postsearch/internal/query"
)

func newSeeded(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine()
	require.NoError(t, SeedSampleData(e))
	return e
}

func ids(res *port.Response) []string {
	out := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		out = append(out, h.ID)
	}
	return out
}

func TestEngineSearch(t *testing.T) {
	ctx := context.Background()
	e := newSeeded(t)
	builder := query.NewBuilder(zap.NewNop())

	search := func(filters []port.Filter, req port.SearchRequest) *port.Response {
		res, err := e.Search(ctx, TwitterIndex, builder.Build(query.Base(filters), req))
		require.NoError(t, err)
		return res
	}

	t.Run("and は全トークンが必要", func(t *testing.T) {
		res := search(nil, port.SearchRequest{Text: "happy new year", Operator: port.OperatorAnd, Fields: []string{"text"}, Size: 5})
		assert.Equal(t, []string{"tweet-1"}, ids(res))
	})

	t.Run("or は一部のトークンで一致しスコア順", func(t *testing.T) {
		res := search(nil, port.SearchRequest{Text: "happy new year", Operator: port.OperatorOr, Fields: []string{"text"}, Size: 5})
		assert.Equal(t, []string{"tweet-1", "tweet-2"}, ids(res))
	})

	t.Run("件数上限", func(t *testing.T) {
		res := search(nil, port.SearchRequest{Text: "happy new year", Operator: port.OperatorOr, Fields: []string{"text"}, Size: 1})
		assert.Equal(t, []string{"tweet-1"}, ids(res))
	})

	t.Run("term と terms フィルタ", func(t *testing.T) {
		req := port.SearchRequest{Text: "new year", Operator: port.OperatorOr, Fields: []string{"text"}, Size: 5}
		assert.Equal(t, []string{"tweet-2"}, ids(search([]port.Filter{{Field: "username_owner", Value: port.Exact("bob")}}, req)))
		assert.Equal(t, []string{"tweet-1", "tweet-2"}, ids(search([]port.Filter{{Field: "username_owner", Value: port.AnyOf("alice", "bob")}}, req)))
		assert.Empty(t, ids(search([]port.Filter{{Field: "username_timeline", Value: port.AnyOf("carol")}}, req)))
	})

	t.Run("_source の射影", func(t *testing.T) {
		res := search(nil, port.SearchRequest{Text: "coffee", Operator: port.OperatorAnd, Fields: []string{"text"}, Size: 5, Includes: []string{"text"}})
		require.Len(t, res.Hits, 1)
		assert.Equal(t, map[string]interface{}{"text": "Coffee before the standup"}, res.Hits[0].Source)

		res = search(nil, port.SearchRequest{Text: "coffee", Operator: port.OperatorAnd, Fields: []string{"text"}, Size: 5, Excludes: []string{"likes", "is_retweet"}})
		require.Len(t, res.Hits, 1)
		assert.NotContains(t, res.Hits[0].Source, "likes")
		assert.Contains(t, res.Hits[0].Source, "username_owner")
	})

	assert.NotEmpty(t, e.Requests())
}

func TestEngineSuggest(t *testing.T) {
	ctx := context.Background()
	e := newSeeded(t)

	req, err := query.Suggestion(port.SuggestionRequest{Text: "helo wrld", Field: "text", Kind: port.SuggestPhrase, Name: "post_suggest"})
	require.NoError(t, err)

	res, err := e.Search(ctx, TwitterIndex, req)
	require.NoError(t, err)
	require.Contains(t, res.Suggest, "post_suggest")
	options := res.Suggest["post_suggest"][0].Options
	require.Len(t, options, 2)
	assert.Equal(t, "hello world", options[0].Text)
	assert.Greater(t, options[0].Score, options[1].Score)

	// ドキュメントの無いインデックスは suggest セクションを返さない
	res, err = e.Search(ctx, FacebookIndex, req)
	require.NoError(t, err)
	assert.Nil(t, res.Suggest)
}

func TestEngineSuggestConcurrentSeed(t *testing.T) {
	ctx := context.Background()
	e := newSeeded(t)

	req, err := query.Suggestion(port.SuggestionRequest{Text: "sunst", Field: "text", Kind: port.SuggestPhrase, Name: "s1"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = e.SeedSuggestions(InstagramIndex, "sunst", "sunset", "sunsets")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			res, err := e.Search(ctx, InstagramIndex, req)
			assert.NoError(t, err)
			assert.NotEmpty(t, res.Suggest["s1"][0].Options)
		}
	}()
	wg.Wait()

	res, err := e.Search(ctx, InstagramIndex, req)
	require.NoError(t, err)
	assert.Equal(t, "sunsets", res.Suggest["s1"][0].Options[1].Text)
}

func TestEngineMissingIndexAndPing(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()

	_, err := e.Search(ctx, "nope", query.Base(nil))
	assert.True(t, apperr.IsKind(err, apperr.KindIndexMissing))

	ok, err := e.IndexExists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = e.Ping(ctx)
	assert.True(t, ok)
	e.SetAvailable(false)
	ok, _ = e.Ping(ctx)
	assert.False(t, ok)
}
