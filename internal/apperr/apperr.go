// Package apperr は検索処理で発生するエラーの種別を定義します。
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind はエラーの種別です。種別は閉じた集合で、追加時はここに定義します。
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindUnresolvedSuggestion
	KindEngineUnavailable
	KindIndexMissing
	KindNotImplemented
)

var kindNames = map[Kind]string{
	KindInternal:             "internal",
	KindInvalidArgument:      "invalid_argument",
	KindUnresolvedSuggestion: "unresolved_suggestion_state",
	KindEngineUnavailable:    "engine_unavailable",
	KindIndexMissing:         "index_missing",
	KindNotImplemented:       "not_implemented",
}

var kindMessages = map[Kind]string{
	KindInternal:             "internal error",
	KindInvalidArgument:      "invalid argument",
	KindUnresolvedSuggestion: "suggest section missing from engine response",
	KindEngineUnavailable:    "search engine is not ready",
	KindIndexMissing:         "index does not exist",
	KindNotImplemented:       "operation is not implemented",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error は種別と構造化されたコンテキストを保持するエラーです。
type Error struct {
	Kind    Kind
	Context map[string]any
	Err     error
}

// New はコンテキスト付きのエラーを生成します。
func New(kind Kind, ctx map[string]any) *Error {
	return &Error{Kind: kind, Context: ctx}
}

// Wrap は下位のエラーを種別付きで包みます。
func Wrap(kind Kind, err error, ctx map[string]any) *Error {
	return &Error{Kind: kind, Context: ctx, Err: err}
}

func (e *Error) Error() string {
	return Format(e)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is は同じ種別の *Error と一致します。errors.Is(err, apperr.New(kind, nil)) のように使えます。
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf は err の種別を返します。*Error でなければ KindInternal です。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind は err が指定の種別かどうかを判定します。
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Format はエラーを表示用の文字列に整形します。
// コンテキストはキー順に key=value として付加されます。
func Format(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		if err == nil {
			return ""
		}
		return err.Error()
	}

	var b strings.Builder
	b.WriteString(kindMessages[e.Kind])
	if b.Len() == 0 {
		b.WriteString(e.Kind.String())
	}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString(")")
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}
