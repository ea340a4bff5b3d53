package service

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/takumi-1234/postsearch/internal/apperr"
	"github.com/takumi-1234/postsearch/internal/port"
)

// Registry はコンテンツ種別ごとの Resolver を保持します。
type Registry struct {
	engine    port.Engine
	resolvers map[ContentType]*Resolver
	logger    *zap.Logger
}

// NewRegistry は indices に含まれるコンテンツ種別の Resolver を生成します。
// インデックス名が空の種別は登録しません。
func NewRegistry(engine port.Engine, indices map[ContentType]string, defaultSize int, logger *zap.Logger) (*Registry, error) {
	resolvers := make(map[ContentType]*Resolver, len(indices))
	for ct, indexName := range indices {
		if indexName == "" {
			continue
		}
		r, err := NewResolver(ct, engine, indexName, defaultSize, logger)
		if err != nil {
			return nil, err
		}
		resolvers[ct] = r
	}
	return &Registry{engine: engine, resolvers: resolvers, logger: logger}, nil
}

// Resolver はコンテンツ種別の Resolver を返します。
func (r *Registry) Resolver(ct ContentType) (*Resolver, error) {
	res, ok := r.resolvers[ct]
	if !ok {
		return nil, apperr.New(apperr.KindInvalidArgument, map[string]any{"content_type": ct})
	}
	return res, nil
}

// CheckReady はエンジンが応答しない場合に KindEngineUnavailable を返します。再試行はしません。
func (r *Registry) CheckReady(ctx context.Context) error {
	ok, err := r.engine.Ping(ctx)
	if err != nil {
		if apperr.IsKind(err, apperr.KindEngineUnavailable) {
			return err
		}
		return apperr.Wrap(apperr.KindEngineUnavailable, err, nil)
	}
	if !ok {
		return apperr.New(apperr.KindEngineUnavailable, nil)
	}
	return nil
}

// VerifyIndices は登録済みの全インデックスの存在を確認します。
// 起動時に一度だけ呼び出し、クエリごとには確認しません。
func (r *Registry) VerifyIndices(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	for ct, res := range r.resolvers {
		ct, indexName := ct, res.Index()
		g.Go(func() error {
			ok, err := r.engine.IndexExists(gCtx, indexName)
			if err != nil {
				return err
			}
			if !ok {
				r.logger.Error("index does not exist",
					zap.String("content_type", string(ct)),
					zap.String("index", indexName),
				)
				return apperr.New(apperr.KindIndexMissing, map[string]any{
					"content_type": ct,
					"index":        indexName,
				})
			}
			return nil
		})
	}
	return g.Wait()
}
