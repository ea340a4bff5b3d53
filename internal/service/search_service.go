package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/takumi-1234/postsearch/internal/apperr"
	"github.com/takumi-1234/postsearch/internal/normalize"
	"github.com/takumi-1234/postsearch/internal/port"
	"github.com/takumi-1234/postsearch/internal/query"
)

const (
	// primaryField はサジェストの参照フィールドです。
	primaryField = "text"
	// postSuggestName はエスカレーション時のサジェスト識別子です。
	postSuggestName = "post_suggest"
)

// Policy はオペレータの適用方針です。
type Policy string

const (
	PolicyEscalate Policy = "escalate"
	PolicyAnd      Policy = "and"
	PolicyOr       Policy = "or"
)

// SearchOptions は投稿検索のオプションです。
type SearchOptions struct {
	Policy      Policy
	Size        int
	Filters     map[string]port.FilterValue
	Includes    []string
	Excludes    []string
	IncludeMeta bool
}

// Base はコンテンツ種別に共通する検索操作 (クエリ構築・実行・サジェスト・シリアライズ) を提供します。
type Base struct {
	engine  port.Engine
	index   string
	fields  []string
	builder *query.Builder
	logger  *zap.Logger
}

// NewBase は indexName を対象とする Base を生成します。
func NewBase(engine port.Engine, indexName string, fields []string, logger *zap.Logger) *Base {
	return &Base{
		engine:  engine,
		index:   indexName,
		fields:  fields,
		builder: query.NewBuilder(logger),
		logger:  logger,
	}
}

// Index は対象インデックス名を返します。
func (b *Base) Index() string { return b.index }

// Run は filters を filter context として検索を実行し、結果をシリアライズします。
func (b *Base) Run(ctx context.Context, filters []port.Filter, req port.SearchRequest, includeMeta bool) ([]port.Record, error) {
	if len(req.Fields) == 0 {
		req.Fields = b.fields
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	built := b.builder.Build(query.Base(filters), req)
	res, err := b.engine.Search(ctx, b.index, built)
	if err != nil {
		return nil, err
	}
	return normalize.Serialize(res, includeMeta), nil
}

// Suggest はテキストの訂正候補をエンジンのスコア順で返します。候補が無ければ空のスライスです。
// レスポンスに suggest セクションが無い場合は KindUnresolvedSuggestion を返します。
func (b *Base) Suggest(ctx context.Context, req port.SuggestionRequest) ([]string, error) {
	if req.MaxErrors <= 0 {
		req.MaxErrors = port.DefaultMaxErrors
	}
	built, err := query.Suggestion(req)
	if err != nil {
		return nil, err
	}

	res, err := b.engine.Search(ctx, b.index, built)
	if err != nil {
		return nil, err
	}

	if res.Suggest == nil {
		return nil, apperr.New(apperr.KindUnresolvedSuggestion, map[string]any{
			"index":      b.index,
			"suggestion": req.Name,
		})
	}

	// 要求したサジェストは1つなので先頭のエントリだけを見る
	entries := res.Suggest[req.Name]
	if len(entries) == 0 {
		return []string{}, nil
	}
	suggestions := make([]string, 0, len(entries[0].Options))
	for _, opt := range entries[0].Options {
		suggestions = append(suggestions, opt.Text)
	}
	return suggestions, nil
}

// PostSearcher はコンテンツ種別ごとの1段階分の投稿検索です。
type PostSearcher interface {
	SearchPost(ctx context.Context, text string, op port.Operator, opts SearchOptions) ([]port.Record, error)
}

// Resolver は AND → OR → サジェストの順で検索を段階的に緩めます。
type Resolver struct {
	contentType ContentType
	base        *Base
	posts       PostSearcher
	defaultSize int
	logger      *zap.Logger
	tracer      trace.Tracer
}

// Index は対象インデックス名を返します。
func (r *Resolver) Index() string { return r.base.Index() }

// ContentType はコンテンツ種別を返します。
func (r *Resolver) ContentType() ContentType { return r.contentType }

// Search は投稿を検索します。PolicyEscalate では AND、OR、訂正後のテキストで OR の順に試し、
// 最初に空でない結果を返します。エラーは段階を進めずにそのまま返します。
func (r *Resolver) Search(ctx context.Context, text string, opts SearchOptions) ([]port.Record, error) {
	if opts.Size < 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, map[string]any{"size": opts.Size})
	}
	if opts.Size == 0 {
		opts.Size = r.defaultSize
	}
	if len(opts.Includes) > 0 && len(opts.Excludes) > 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, map[string]any{
			"includes": opts.Includes,
			"excludes": opts.Excludes,
		})
	}

	switch opts.Policy {
	case PolicyAnd:
		return r.tier(ctx, "strict", text, port.OperatorAnd, opts)
	case PolicyOr:
		return r.tier(ctx, "relaxed", text, port.OperatorOr, opts)
	case PolicyEscalate, "":
	default:
		return nil, apperr.New(apperr.KindInvalidArgument, map[string]any{"operator_policy": opts.Policy})
	}

	posts, err := r.tier(ctx, "strict", text, port.OperatorAnd, opts)
	if err != nil || len(posts) > 0 {
		return posts, err
	}

	posts, err = r.tier(ctx, "relaxed", text, port.OperatorOr, opts)
	if err != nil || len(posts) > 0 {
		return posts, err
	}

	return r.suggestPost(ctx, text, opts)
}

// suggestPost はテキストを訂正し、訂正できた場合に先頭候補で OR 検索を行います。
// suggest セクションが無いのはドキュメントの無いインデックスに限られ、その場合は前段の検索も
// 空なので、KindUnresolvedSuggestion は空の結果として扱います。直接の Suggest ではエラーのままです。
func (r *Resolver) suggestPost(ctx context.Context, text string, opts SearchOptions) ([]port.Record, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.suggest", trace.WithAttributes(
		attribute.String("content_type", string(r.contentType)),
		attribute.String("index", r.base.Index()),
	))
	defer span.End()

	suggestions, err := r.base.Suggest(ctx, port.SuggestionRequest{
		Text:      text,
		Field:     primaryField,
		Kind:      port.SuggestPhrase,
		Name:      postSuggestName,
		MaxErrors: port.DefaultMaxErrors,
	})
	if apperr.IsKind(err, apperr.KindUnresolvedSuggestion) {
		r.logger.Warn("suggest section missing, returning empty result",
			zap.String("index", r.base.Index()),
			zap.String("text", text),
		)
		span.SetAttributes(attribute.Bool("suggest.unresolved", true))
		return []port.Record{}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("suggest.candidates", len(suggestions)))
	if len(suggestions) == 0 {
		return []port.Record{}, nil
	}

	r.logger.Debug("retrying with suggested text",
		zap.String("text", text),
		zap.String("suggested", suggestions[0]),
	)
	return r.tier(ctx, "suggested", suggestions[0], port.OperatorOr, opts)
}

func (r *Resolver) tier(ctx context.Context, name, text string, op port.Operator, opts SearchOptions) ([]port.Record, error) {
	ctx, span := r.tracer.Start(ctx, "resolver."+name, trace.WithAttributes(
		attribute.String("content_type", string(r.contentType)),
		attribute.String("index", r.base.Index()),
		attribute.String("operator", string(op)),
	))
	defer span.End()

	posts, err := r.posts.SearchPost(ctx, text, op, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("search tier failed",
			zap.String("tier", name),
			zap.String("kind", apperr.KindOf(err).String()),
			zap.Error(err),
		)
		return nil, err
	}

	span.SetAttributes(attribute.Int("hits", len(posts)))
	r.logger.Debug("search tier finished",
		zap.String("tier", name),
		zap.String("text", text),
		zap.Int("hit_count", len(posts)),
	)
	return posts, nil
}

// Suggest はエスカレーションとは独立してサジェストを直接取得します。
func (r *Resolver) Suggest(ctx context.Context, req port.SuggestionRequest) ([]string, error) {
	return r.base.Suggest(ctx, req)
}

func newTracer() trace.Tracer {
	return otel.Tracer("github.com/takumi-1234/postsearch/internal/service")
}
