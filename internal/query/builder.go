// Package query は Elasticsearch の検索リクエストを組み立てます。
package query

import (
	"github.com/elastic/go-elasticsearch/v9/typedapi/core/search"
	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
	"github.com/elastic/go-elasticsearch/v9/typedapi/types/enums/operator"
	"go.uber.org/zap"

	"github.com/takumi-1234/postsearch/internal/apperr"
	"github.com/takumi-1234/postsearch/internal/port"
)

// Builder は複数フィールドのテキスト検索クエリを組み立てます。
type Builder struct {
	logger *zap.Logger
}

// NewBuilder は新しい Builder を生成します。
func NewBuilder(logger *zap.Logger) *Builder {
	return &Builder{logger: logger}
}

// Base は filter context だけを持つ検索リクエストを返します。
func Base(filters []port.Filter) *search.Request {
	req := search.NewRequest()
	if len(filters) == 0 {
		return req
	}

	clauses := make([]types.Query, 0, len(filters))
	for _, f := range filters {
		clauses = append(clauses, FilterClause(f))
	}
	req.Query = &types.Query{
		Bool: &types.BoolQuery{Filter: clauses},
	}
	return req
}

// FilterClause は単一値なら term、集合なら terms のクエリを返します。
// 1要素の集合を term に畳み込んではいけません。
func FilterClause(f port.Filter) types.Query {
	if !f.Value.IsSet() {
		return types.Query{
			Term: map[string]types.TermQuery{
				f.Field: {Value: f.Value.Value()},
			},
		}
	}

	values := make([]types.FieldValue, 0, len(f.Value.Values()))
	for _, v := range f.Value.Values() {
		values = append(values, v)
	}
	return types.Query{
		Terms: &types.TermsQuery{
			TermsQuery: map[string]types.TermsQueryField{
				f.Field: values,
			},
		},
	}
}

// Build は base に射影・multi_match・件数上限を適用した新しいリクエストを返します。
// base 自体は変更しません。
func (b *Builder) Build(base *search.Request, req port.SearchRequest) *search.Request {
	out := search.NewRequest()
	if base != nil {
		*out = *base
	}

	switch {
	case len(req.Includes) > 0:
		out.Source_ = &types.SourceFilter{Includes: req.Includes}
	case len(req.Excludes) > 0:
		out.Source_ = &types.SourceFilter{Excludes: req.Excludes}
	}

	op := operator.And
	if req.Operator == port.OperatorOr {
		op = operator.Or
	}
	match := types.Query{
		MultiMatch: &types.MultiMatchQuery{
			Query:    req.Text,
			Fields:   req.Fields,
			Operator: &op,
		},
	}

	if base != nil && base.Query != nil && base.Query.Bool != nil {
		boolQuery := *base.Query.Bool
		boolQuery.Must = append(append([]types.Query(nil), boolQuery.Must...), match)
		out.Query = &types.Query{Bool: &boolQuery}
	} else {
		out.Query = &match
	}

	size := req.Size
	out.Size = &size

	b.logger.Info("query", zap.Any("query", out))

	return out
}

// Suggestion はサジェストのみを要求するリクエストを返します。
func Suggestion(req port.SuggestionRequest) (*search.Request, error) {
	text := req.Text
	field := types.FieldSuggester{Text: &text}

	maxErrors := req.MaxErrors
	if maxErrors <= 0 {
		maxErrors = port.DefaultMaxErrors
	}

	switch req.Kind {
	case port.SuggestPhrase:
		limit := types.Float64(maxErrors)
		field.Phrase = &types.PhraseSuggester{
			Field:     req.Field,
			MaxErrors: &limit,
		}
	case port.SuggestTerm:
		// term サジェスタの編集距離は 1 か 2 のみ受け付けられる
		edits := maxErrors
		if edits > maxTermEdits {
			edits = maxTermEdits
		}
		field.Term = &types.TermSuggester{
			Field:    req.Field,
			MaxEdits: &edits,
		}
	default:
		return nil, apperr.New(apperr.KindInvalidArgument, map[string]any{
			"suggestion_kind": req.Kind,
			"allowed":         []port.SuggestKind{port.SuggestPhrase, port.SuggestTerm},
		})
	}

	out := search.NewRequest()
	out.Suggest = &types.Suggester{
		Suggesters: map[string]types.FieldSuggester{req.Name: field},
	}
	return out, nil
}

const maxTermEdits = 2
