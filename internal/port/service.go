package port

import (
	"github.com/takumi-1234/postsearch/internal/apperr"
)

// Operator はクエリのトークン結合条件です。
type Operator string

const (
	OperatorAnd Operator = "and"
	OperatorOr  Operator = "or"
)

// DefaultSize は検索結果件数の既定値です。
const DefaultSize = 5

// FilterValue はフィルタの値です。単一値 (term) と集合 (terms) は別の操作として扱います。
type FilterValue struct {
	value  string
	values []string
	set    bool
}

// Exact は単一値の完全一致フィルタ値を返します。
func Exact(value string) FilterValue {
	return FilterValue{value: value}
}

// AnyOf は集合メンバーシップのフィルタ値を返します。要素が1つでも集合として扱います。
func AnyOf(values ...string) FilterValue {
	return FilterValue{values: append([]string(nil), values...), set: true}
}

// IsSet は集合フィルタかどうかを返します。
func (f FilterValue) IsSet() bool { return f.set }

// Value は単一値を返します。
func (f FilterValue) Value() string { return f.value }

// Values は集合の値を返します。
func (f FilterValue) Values() []string { return f.values }

// Filter はフィールドに対する filter context です。
type Filter struct {
	Field string
	Value FilterValue
}

// SearchRequest は複数フィールドに対するテキスト検索の条件です。
type SearchRequest struct {
	Text     string
	Operator Operator
	Fields   []string
	Size     int
	Includes []string
	Excludes []string
	Filters  []Filter
}

// Validate はリクエストの不変条件を検証します。
func (r SearchRequest) Validate() error {
	if r.Operator != OperatorAnd && r.Operator != OperatorOr {
		return apperr.New(apperr.KindInvalidArgument, map[string]any{"operator": r.Operator})
	}
	if r.Size <= 0 {
		return apperr.New(apperr.KindInvalidArgument, map[string]any{"size": r.Size})
	}
	if len(r.Includes) > 0 && len(r.Excludes) > 0 {
		return apperr.New(apperr.KindInvalidArgument, map[string]any{
			"includes": r.Includes,
			"excludes": r.Excludes,
		})
	}
	return nil
}

// SuggestKind はサジェスタの種類です。
type SuggestKind string

const (
	SuggestPhrase SuggestKind = "phrase"
	SuggestTerm   SuggestKind = "term"
)

// DefaultMaxErrors はサジェストで許容する編集数です。
const DefaultMaxErrors = 3

// SuggestionRequest はスペル訂正の要求です。
type SuggestionRequest struct {
	Text      string
	Field     string
	Kind      SuggestKind
	Name      string
	MaxErrors int
}

// Record は検索結果1件です。メタ情報を含む場合は _id, _score, _index, _source を持ちます。
type Record map[string]interface{}
