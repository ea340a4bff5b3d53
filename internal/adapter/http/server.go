// Package http は投稿検索を HTTP/JSON で公開します。
package http

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/takumi-1234/postsearch/internal/apperr"
	"github.com/takumi-1234/postsearch/internal/port"
	"github.com/takumi-1234/postsearch/internal/service"
)

// Server は HTTP ハンドラの実装です。
type Server struct {
	registry *service.Registry
	logger   *zap.Logger
}

// NewServer は新しい Server インスタンスを生成します。
func NewServer(registry *service.Registry, logger *zap.Logger) *Server {
	return &Server{
		registry: registry,
		logger:   logger,
	}
}

// Router はルーティングを組み立てます。metrics が nil の場合 /metrics は登録しません。
func (s *Server) Router(metrics http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(mws...)

	r.Get("/healthz", s.Health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	r.Route("/v1/{contentType}", func(r chi.Router) {
		r.Post("/search", s.SearchPosts)
		r.Post("/suggest", s.Suggest)
	})
	return r
}

type searchRequest struct {
	Text        string                     `json:"text"`
	Operator    string                     `json:"operator"`
	Size        int                        `json:"size"`
	Filters     map[string]json.RawMessage `json:"filters"`
	Includes    []string                   `json:"includes"`
	Excludes    []string                   `json:"excludes"`
	IncludeMeta bool                       `json:"includeMeta"`
}

type searchResponse struct {
	Results []port.Record `json:"results"`
}

type suggestRequest struct {
	Text  string `json:"text"`
	Field string `json:"field"`
	Kind  string `json:"kind"`
	Name  string `json:"name"`
}

type suggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Health はエンジンの疎通を確認します。
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.CheckReady(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SearchPosts は POST /v1/{contentType}/search を処理します。
func (s *Server) SearchPosts(w http.ResponseWriter, r *http.Request) {
	resolver, err := s.registry.Resolver(service.ContentType(chi.URLParam(r, "contentType")))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperr.Wrap(apperr.KindInvalidArgument, err, map[string]any{"body": "invalid json"}))
		return
	}
	if req.Text == "" {
		s.writeError(w, apperr.New(apperr.KindInvalidArgument, map[string]any{"text": "required"}))
		return
	}

	filters, err := parseFilters(req.Filters)
	if err != nil {
		s.writeError(w, err)
		return
	}

	records, err := resolver.Search(r.Context(), req.Text, service.SearchOptions{
		Policy:      service.Policy(req.Operator),
		Size:        req.Size,
		Filters:     filters,
		Includes:    req.Includes,
		Excludes:    req.Excludes,
		IncludeMeta: req.IncludeMeta,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{Results: records})
}

// Suggest は POST /v1/{contentType}/suggest を処理します。
func (s *Server) Suggest(w http.ResponseWriter, r *http.Request) {
	resolver, err := s.registry.Resolver(service.ContentType(chi.URLParam(r, "contentType")))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperr.Wrap(apperr.KindInvalidArgument, err, map[string]any{"body": "invalid json"}))
		return
	}
	if req.Text == "" || req.Field == "" || req.Name == "" {
		s.writeError(w, apperr.New(apperr.KindInvalidArgument, map[string]any{"required": []string{"text", "field", "name"}}))
		return
	}

	suggestions, err := resolver.Suggest(r.Context(), port.SuggestionRequest{
		Text:      req.Text,
		Field:     req.Field,
		Kind:      port.SuggestKind(req.Kind),
		Name:      req.Name,
		MaxErrors: port.DefaultMaxErrors,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, suggestResponse{Suggestions: suggestions})
}

// parseFilters は JSON の文字列を単一値、配列を集合として解釈します。
func parseFilters(raw map[string]json.RawMessage) (map[string]port.FilterValue, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	filters := make(map[string]port.FilterValue, len(raw))
	for field, msg := range raw {
		trimmed := bytes.TrimSpace(msg)
		switch {
		case len(trimmed) > 0 && trimmed[0] == '"':
			var v string
			if err := json.Unmarshal(trimmed, &v); err != nil {
				return nil, apperr.Wrap(apperr.KindInvalidArgument, err, map[string]any{"filter": field})
			}
			filters[field] = port.Exact(v)
		case len(trimmed) > 0 && trimmed[0] == '[':
			var vs []string
			if err := json.Unmarshal(trimmed, &vs); err != nil {
				return nil, apperr.Wrap(apperr.KindInvalidArgument, err, map[string]any{"filter": field})
			}
			if len(vs) == 0 {
				return nil, apperr.New(apperr.KindInvalidArgument, map[string]any{"filter": field, "values": "empty"})
			}
			filters[field] = port.AnyOf(vs...)
		default:
			return nil, apperr.New(apperr.KindInvalidArgument, map[string]any{"filter": field, "value": string(trimmed)})
		}
	}
	return filters, nil
}

func statusFromKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidArgument:
		return http.StatusBadRequest
	case apperr.KindIndexMissing:
		return http.StatusNotFound
	case apperr.KindNotImplemented:
		return http.StatusNotImplemented
	case apperr.KindEngineUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := statusFromKind(kind)

	msg := apperr.Format(err)
	if kind == apperr.KindInternal {
		s.logger.Error("internal error", zap.Error(err))
		msg = "internal error"
	} else {
		s.logger.Warn("request failed", zap.String("kind", kind.String()), zap.Error(err))
	}

	writeJSON(w, status, errorResponse{Kind: kind.String(), Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
