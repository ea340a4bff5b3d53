package query

import (
	"encoding/json"
	"testing"

	"github.com/elastic/go-elasticsearch/v9/typedapi/core/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/takumi-1234/postsearch/internal/apperr"
	"github.com/takumi-1234/postsearch/internal/port"
)

func toMap(t *testing.T, req *search.Request) map[string]interface{} {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &m))
	return m
}

func TestBuild(t *testing.T) {
	builder := NewBuilder(zap.NewNop())

	t.Run("フィルタなしは multi_match のみ", func(t *testing.T) {
		req := builder.Build(Base(nil), port.SearchRequest{
			Text:     "happy new year",
			Operator: port.OperatorAnd,
			Fields:   []string{"text"},
			Size:     5,
		})
		body := toMap(t, req)

		assert.EqualValues(t, 5, body["size"])
		query := body["query"].(map[string]interface{})
		mm := query["multi_match"].(map[string]interface{})
		assert.Equal(t, "happy new year", mm["query"])
		assert.Equal(t, "and", mm["operator"])
		assert.Equal(t, []interface{}{"text"}, mm["fields"])
		assert.NotContains(t, body, "_source")
	})

	t.Run("フィルタは filter context に残り multi_match は must に入る", func(t *testing.T) {
		base := Base([]port.Filter{{Field: "username_owner", Value: port.Exact("alice")}})
		req := builder.Build(base, port.SearchRequest{
			Text:     "new year",
			Operator: port.OperatorOr,
			Fields:   []string{"text", "comments.text"},
			Size:     3,
		})
		body := toMap(t, req)

		boolQuery := body["query"].(map[string]interface{})["bool"].(map[string]interface{})
		require.Len(t, boolQuery["filter"], 1)
		must := boolQuery["must"].([]interface{})
		require.Len(t, must, 1)
		mm := must[0].(map[string]interface{})["multi_match"].(map[string]interface{})
		assert.Equal(t, "or", mm["operator"])
		assert.Equal(t, []interface{}{"text", "comments.text"}, mm["fields"])

		// base は変更されない
		assert.Empty(t, base.Query.Bool.Must)
		assert.Nil(t, base.Size)
	})

	t.Run("includes と excludes", func(t *testing.T) {
		inc := toMap(t, builder.Build(Base(nil), port.SearchRequest{
			Text: "x", Operator: port.OperatorAnd, Fields: []string{"text"}, Size: 1,
			Includes: []string{"text", "likes"},
		}))
		assert.Equal(t, map[string]interface{}{"includes": []interface{}{"text", "likes"}}, inc["_source"])

		exc := toMap(t, builder.Build(Base(nil), port.SearchRequest{
			Text: "x", Operator: port.OperatorAnd, Fields: []string{"text"}, Size: 1,
			Excludes: []string{"entries"},
		}))
		assert.Equal(t, map[string]interface{}{"excludes": []interface{}{"entries"}}, exc["_source"])
	})

	t.Run("組み立てたクエリをログに出す", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		NewBuilder(zap.New(core)).Build(Base(nil), port.SearchRequest{
			Text: "x", Operator: port.OperatorAnd, Fields: []string{"text"}, Size: 2,
		})
		entries := logs.FilterMessage("query").All()
		require.Len(t, entries, 1)
		assert.Contains(t, entries[0].ContextMap(), "query")
	})
}

func TestFilterClauseKinds(t *testing.T) {
	single := toMap(t, &search.Request{Query: ptr(FilterClause(port.Filter{Field: "username", Value: port.Exact("alice")}))})
	set := toMap(t, &search.Request{Query: ptr(FilterClause(port.Filter{Field: "username", Value: port.AnyOf("alice")}))})

	singleQuery := single["query"].(map[string]interface{})
	setQuery := set["query"].(map[string]interface{})

	require.Contains(t, singleQuery, "term")
	assert.NotContains(t, singleQuery, "terms")
	require.Contains(t, setQuery, "terms")
	assert.NotContains(t, setQuery, "term")

	term := singleQuery["term"].(map[string]interface{})["username"].(map[string]interface{})
	assert.Equal(t, "alice", term["value"])
	assert.Equal(t, []interface{}{"alice"}, setQuery["terms"].(map[string]interface{})["username"])
}

func TestSuggestion(t *testing.T) {
	t.Run("phrase", func(t *testing.T) {
		req, err := Suggestion(port.SuggestionRequest{
			Text: "hapy new yaer", Field: "text", Kind: port.SuggestPhrase, Name: "post_suggest", MaxErrors: 3,
		})
		require.NoError(t, err)
		body := toMap(t, req)
		s := body["suggest"].(map[string]interface{})["post_suggest"].(map[string]interface{})
		assert.Equal(t, "hapy new yaer", s["text"])
		phrase := s["phrase"].(map[string]interface{})
		assert.Equal(t, "text", phrase["field"])
		assert.EqualValues(t, 3, phrase["max_errors"])
		assert.NotContains(t, body, "query")
	})

	t.Run("term は編集距離を 2 に制限する", func(t *testing.T) {
		req, err := Suggestion(port.SuggestionRequest{
			Text: "insta", Field: "username", Kind: port.SuggestTerm, Name: "s1", MaxErrors: 3,
		})
		require.NoError(t, err)
		s := toMap(t, req)["suggest"].(map[string]interface{})["s1"].(map[string]interface{})
		term := s["term"].(map[string]interface{})
		assert.Equal(t, "username", term["field"])
		assert.EqualValues(t, 2, term["max_edits"])
	})

	t.Run("未対応の種類は InvalidArgument", func(t *testing.T) {
		_, err := Suggestion(port.SuggestionRequest{Text: "x", Field: "text", Kind: "completion", Name: "s"})
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindInvalidArgument))
	})
}

func ptr[T any](v T) *T { return &v }
