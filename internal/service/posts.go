package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/takumi-1234/postsearch/internal/apperr"
	"github.com/takumi-1234/postsearch/internal/port"
)

// ContentType は投稿のコンテンツ種別です。
type ContentType string

const (
	Twitter   ContentType = "twitter"
	Instagram ContentType = "instagram"
	Facebook  ContentType = "facebook"
)

// ContentTypes は対応しているコンテンツ種別の一覧です。
var ContentTypes = []ContentType{Twitter, Instagram, Facebook}

// 検索対象フィールド。コメント本文などを追加する場合はここに足す。
var searchFields = map[ContentType][]string{
	Twitter:   {"text"},
	Instagram: {"text"},
	Facebook:  {"text"},
}

// NewResolver はコンテンツ種別に対応する Resolver を生成します。
func NewResolver(ct ContentType, engine port.Engine, indexName string, defaultSize int, logger *zap.Logger) (*Resolver, error) {
	fields, ok := searchFields[ct]
	if !ok {
		return nil, apperr.New(apperr.KindInvalidArgument, map[string]any{"content_type": ct})
	}
	if defaultSize <= 0 {
		defaultSize = port.DefaultSize
	}

	logger = logger.With(zap.String("content_type", string(ct)), zap.String("index", indexName))
	base := NewBase(engine, indexName, fields, logger)

	var posts PostSearcher
	switch ct {
	case Twitter:
		posts = &filteredSearcher{base: base, filterFields: []string{"username_timeline", "username_owner"}}
	case Instagram:
		posts = &filteredSearcher{base: base, filterFields: []string{"username"}, skipEmpty: true}
	case Facebook:
		posts = facebookSearcher{}
	}

	return &Resolver{
		contentType: ct,
		base:        base,
		posts:       posts,
		defaultSize: defaultSize,
		logger:      logger,
		tracer:      newTracer(),
	}, nil
}

// filteredSearcher は許可されたキーワードフィールドに filter context を付けて検索します。
// Twitter は username_timeline と username_owner、Instagram は username を受け付けます。
// skipEmpty が true の場合、空文字列や空集合のフィルタは適用しません。
type filteredSearcher struct {
	base         *Base
	filterFields []string
	skipEmpty    bool
}

func (s *filteredSearcher) SearchPost(ctx context.Context, text string, op port.Operator, opts SearchOptions) ([]port.Record, error) {
	filters, err := s.filters(opts.Filters)
	if err != nil {
		return nil, err
	}

	return s.base.Run(ctx, filters, port.SearchRequest{
		Text:     text,
		Operator: op,
		Size:     opts.Size,
		Includes: opts.Includes,
		Excludes: opts.Excludes,
	}, opts.IncludeMeta)
}

// filters は filterFields の順に filter context を組み立てます。各フィルタは独立に適用されます。
func (s *filteredSearcher) filters(values map[string]port.FilterValue) ([]port.Filter, error) {
	allowed := make(map[string]struct{}, len(s.filterFields))
	for _, f := range s.filterFields {
		allowed[f] = struct{}{}
	}

	var unknown []string
	for field := range values {
		if _, ok := allowed[field]; !ok {
			unknown = append(unknown, field)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, apperr.New(apperr.KindInvalidArgument, map[string]any{
			"filters": unknown,
			"allowed": s.filterFields,
		})
	}

	filters := make([]port.Filter, 0, len(values))
	for _, field := range s.filterFields {
		v, ok := values[field]
		if !ok || (s.skipEmpty && isEmpty(v)) {
			continue
		}
		filters = append(filters, port.Filter{Field: field, Value: v})
	}
	return filters, nil
}

func isEmpty(v port.FilterValue) bool {
	if v.IsSet() {
		return len(v.Values()) == 0
	}
	return v.Value() == ""
}

// facebookSearcher は拡張ポイントのみを提供します。
type facebookSearcher struct{}

func (facebookSearcher) SearchPost(context.Context, string, port.Operator, SearchOptions) ([]port.Record, error) {
	return nil, apperr.New(apperr.KindNotImplemented, map[string]any{"content_type": Facebook})
}
