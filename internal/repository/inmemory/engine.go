package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/elastic/go-elasticsearch/v9/typedapi/core/search"
	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
	"github.com/elastic/go-elasticsearch/v9/typedapi/types/enums/operator"

	"github.com/takumi-1234/postsearch/internal/apperr"
	"github.com/takumi-1234/postsearch/internal/port"
)

const defaultSize = 10

// Document is a document that can be injected into the in-memory engine.
type Document struct {
	ID     string
	Fields map[string]interface{}
}

// RecordedRequest is a search request observed by the engine.
type RecordedRequest struct {
	Index   string
	Request *search.Request
}

type indexData struct {
	docs        []Document
	suggestions map[string][]string
}

// Engine provides a thread-safe in-memory implementation of port.Engine.
// It understands the subset of the query DSL the resolvers emit: bool filter/must,
// multi_match with and/or operators, term, terms, _source filtering and suggesters.
type Engine struct {
	mu          sync.RWMutex
	indexes     map[string]*indexData
	unavailable bool
	requests    []RecordedRequest
}

// NewEngine creates an empty in-memory engine.
func NewEngine() *Engine {
	return &Engine{indexes: make(map[string]*indexData)}
}

// CreateIndex registers an empty index. Creating an existing index is a no-op.
func (e *Engine) CreateIndex(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.indexes[name]; ok {
		return
	}
	e.indexes[name] = &indexData{suggestions: make(map[string][]string)}
}

// SeedDocuments appends documents to an index in insertion order.
func (e *Engine) SeedDocuments(indexName string, docs ...Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := e.indexes[indexName]
	if !ok {
		return apperr.New(apperr.KindIndexMissing, map[string]any{"index": indexName})
	}
	for _, doc := range docs {
		idx.docs = append(idx.docs, Document{ID: doc.ID, Fields: copyFields(doc.Fields)})
	}
	return nil
}

// SeedSuggestions registers ranked correction candidates for a text.
func (e *Engine) SeedSuggestions(indexName, text string, candidates ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := e.indexes[indexName]
	if !ok {
		return apperr.New(apperr.KindIndexMissing, map[string]any{"index": indexName})
	}
	idx.suggestions[text] = append([]string(nil), candidates...)
	return nil
}

// SetAvailable toggles the result of Ping.
func (e *Engine) SetAvailable(available bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unavailable = !available
}

// Requests returns the search requests received so far.
func (e *Engine) Requests() []RecordedRequest {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]RecordedRequest(nil), e.requests...)
}

// Ping reports whether the engine is available.
func (e *Engine) Ping(_ context.Context) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.unavailable, nil
}

// IndexExists reports whether the index has been created.
func (e *Engine) IndexExists(_ context.Context, indexName string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.indexes[indexName]
	return ok, nil
}

// Search evaluates the request against the index. As with Elasticsearch, an index without
// documents answers a suggest request without a suggest section.
func (e *Engine) Search(_ context.Context, indexName string, req *search.Request) (*port.Response, error) {
	e.mu.Lock()
	e.requests = append(e.requests, RecordedRequest{Index: indexName, Request: req})
	idx, ok := e.indexes[indexName]
	var docs []Document
	candidates := make(map[string][]string)
	if ok {
		docs = append([]Document(nil), idx.docs...)
		if req.Suggest != nil {
			for name, fs := range req.Suggest.Suggesters {
				text := suggestText(req.Suggest, fs)
				candidates[name] = append([]string(nil), idx.suggestions[text]...)
			}
		}
	}
	e.mu.Unlock()

	if !ok {
		return nil, apperr.New(apperr.KindIndexMissing, map[string]any{"index": indexName})
	}

	res := &port.Response{Hits: []port.Hit{}}

	if req.Suggest != nil && len(docs) > 0 {
		res.Suggest = make(map[string][]port.SuggestEntry, len(req.Suggest.Suggesters))
		for name, fs := range req.Suggest.Suggesters {
			text := suggestText(req.Suggest, fs)
			options := make([]port.SuggestOption, 0)
			for i, candidate := range candidates[name] {
				options = append(options, port.SuggestOption{Text: candidate, Score: 1 / float64(i+1)})
			}
			res.Suggest[name] = []port.SuggestEntry{{Text: text, Options: options}}
		}
	}

	if req.Query == nil {
		return res, nil
	}

	type scored struct {
		doc   Document
		score float64
	}
	matched := make([]scored, 0, len(docs))
	for _, doc := range docs {
		if ok, score := evaluate(*req.Query, doc.Fields); ok {
			matched = append(matched, scored{doc: doc, score: score})
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].score > matched[j].score
	})

	limit := defaultSize
	if req.Size != nil {
		limit = *req.Size
	}
	if limit > len(matched) {
		limit = len(matched)
	}

	for _, m := range matched[:limit] {
		score := m.score
		res.Hits = append(res.Hits, port.Hit{
			ID:     m.doc.ID,
			Index:  indexName,
			Score:  &score,
			Source: project(m.doc.Fields, req.Source_),
		})
	}
	return res, nil
}

func suggestText(s *types.Suggester, fs types.FieldSuggester) string {
	if fs.Text != nil {
		return *fs.Text
	}
	if s.Text != nil {
		return *s.Text
	}
	return ""
}

func evaluate(q types.Query, fields map[string]interface{}) (bool, float64) {
	switch {
	case q.Bool != nil:
		for _, f := range q.Bool.Filter {
			if ok, _ := evaluate(f, fields); !ok {
				return false, 0
			}
		}
		total := 0.0
		for _, m := range q.Bool.Must {
			ok, score := evaluate(m, fields)
			if !ok {
				return false, 0
			}
			total += score
		}
		return true, total
	case q.MultiMatch != nil:
		return evaluateMultiMatch(q.MultiMatch, fields)
	case len(q.Term) > 0:
		for field, tq := range q.Term {
			if !containsValue(fields[field], fmt.Sprint(tq.Value)) {
				return false, 0
			}
		}
		return true, 0
	case q.Terms != nil:
		for field, raw := range q.Terms.TermsQuery {
			values, ok := raw.([]types.FieldValue)
			if !ok {
				return false, 0
			}
			hit := false
			for _, v := range values {
				if containsValue(fields[field], fmt.Sprint(v)) {
					hit = true
					break
				}
			}
			if !hit {
				return false, 0
			}
		}
		return true, 0
	default:
		return false, 0
	}
}

func evaluateMultiMatch(mm *types.MultiMatchQuery, fields map[string]interface{}) (bool, float64) {
	queryTokens := tokenize(mm.Query)
	if len(queryTokens) == 0 {
		return false, 0
	}
	requireAll := mm.Operator == nil || *mm.Operator == operator.And

	best := 0
	for _, field := range mm.Fields {
		text, _ := fields[field].(string)
		docTokens := make(map[string]struct{})
		for _, tok := range tokenize(text) {
			docTokens[tok] = struct{}{}
		}
		count := 0
		for _, tok := range queryTokens {
			if _, ok := docTokens[tok]; ok {
				count++
			}
		}
		if requireAll && count < len(queryTokens) {
			continue
		}
		if count > best {
			best = count
		}
	}
	if best == 0 {
		return false, 0
	}
	return true, float64(best)
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

func containsValue(v interface{}, want string) bool {
	switch val := v.(type) {
	case nil:
		return false
	case []interface{}:
		for _, item := range val {
			if fmt.Sprint(item) == want {
				return true
			}
		}
		return false
	case []string:
		for _, item := range val {
			if item == want {
				return true
			}
		}
		return false
	default:
		return fmt.Sprint(val) == want
	}
}

func project(fields map[string]interface{}, sourceConfig types.SourceConfig) map[string]interface{} {
	out := copyFields(fields)

	var filter *types.SourceFilter
	switch sc := sourceConfig.(type) {
	case *types.SourceFilter:
		filter = sc
	case types.SourceFilter:
		filter = &sc
	}
	if filter == nil {
		return out
	}

	if len(filter.Includes) > 0 {
		keep := make(map[string]interface{}, len(filter.Includes))
		for _, name := range filter.Includes {
			if v, ok := out[name]; ok {
				keep[name] = v
			}
		}
		return keep
	}
	for _, name := range filter.Excludes {
		delete(out, name)
	}
	return out
}

func copyFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
