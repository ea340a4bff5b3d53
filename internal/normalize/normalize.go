// Package normalize は2種類の検索レスポンス形式を共通の形に揃え、結果レコードへ変換します。
package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v9/typedapi/core/search"

	"github.com/takumi-1234/postsearch/internal/apperr"
	"github.com/takumi-1234/postsearch/internal/port"
)

// メタフィールド名
const (
	FieldID     = "_id"
	FieldScore  = "_score"
	FieldIndex  = "_index"
	FieldSource = "_source"
)

// FromTyped は型付きクライアントのレスポンスを port.Response に変換します。
func FromTyped(res *search.Response) (*port.Response, error) {
	if res == nil {
		return &port.Response{}, nil
	}

	hits := make([]port.Hit, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		var source map[string]interface{}
		if len(hit.Source_) > 0 {
			if err := json.Unmarshal(hit.Source_, &source); err != nil {
				return nil, apperr.Wrap(apperr.KindInternal, err, map[string]any{"index": hit.Index_})
			}
		}

		h := port.Hit{
			Index:  hit.Index_,
			Source: source,
		}
		if hit.Id_ != nil {
			h.ID = *hit.Id_
		}
		if hit.Score_ != nil {
			score := float64(*hit.Score_)
			h.Score = &score
		}
		hits = append(hits, h)
	}

	out := &port.Response{Hits: hits}
	// NewResponse は Suggest を常に空マップで初期化するため、長さで有無を判定する
	if len(res.Suggest) > 0 {
		out.Suggest = make(map[string][]port.SuggestEntry, len(res.Suggest))
		for name, entries := range res.Suggest {
			converted := make([]port.SuggestEntry, 0, len(entries))
			for _, entry := range entries {
				// types.Suggest は completion/phrase/term の union なので JSON 経由で共通形に落とす
				payload, err := json.Marshal(entry)
				if err != nil {
					return nil, apperr.Wrap(apperr.KindInternal, err, map[string]any{"suggestion": name})
				}
				var se suggestEntryJSON
				if err := json.Unmarshal(payload, &se); err != nil {
					return nil, apperr.Wrap(apperr.KindInternal, err, map[string]any{"suggestion": name})
				}
				converted = append(converted, se.toPort())
			}
			out.Suggest[name] = converted
		}
	}
	return out, nil
}

type suggestEntryJSON struct {
	Text    string `json:"text"`
	Options []struct {
		Text  string  `json:"text"`
		Score float64 `json:"score"`
	} `json:"options"`
}

func (s suggestEntryJSON) toPort() port.SuggestEntry {
	options := make([]port.SuggestOption, 0, len(s.Options))
	for _, o := range s.Options {
		options = append(options, port.SuggestOption{Text: o.Text, Score: o.Score})
	}
	return port.SuggestEntry{Text: s.Text, Options: options}
}

// FromRaw は低レベルクライアントが返すJSONマップ (hits.hits) を port.Response に変換します。
func FromRaw(raw map[string]interface{}) (*port.Response, error) {
	out := &port.Response{}

	if hitsObj, ok := raw["hits"].(map[string]interface{}); ok {
		list, _ := hitsObj["hits"].([]interface{})
		out.Hits = make([]port.Hit, 0, len(list))
		for i, item := range list {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, apperr.New(apperr.KindInternal, map[string]any{"hit": i, "type": fmt.Sprintf("%T", item)})
			}
			h := port.Hit{}
			h.ID, _ = m[FieldID].(string)
			h.Index, _ = m[FieldIndex].(string)
			if score, ok := m[FieldScore].(float64); ok {
				h.Score = &score
			}
			if source, ok := m[FieldSource].(map[string]interface{}); ok {
				h.Source = source
			}
			out.Hits = append(out.Hits, h)
		}
	}

	suggest, ok := raw["suggest"].(map[string]interface{})
	if !ok || len(suggest) == 0 {
		return out, nil
	}
	// 形が多様なので一度JSONに戻して型付きの構造へ読み直す
	payload, err := json.Marshal(suggest)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, nil)
	}
	var entries map[string][]suggestEntryJSON
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, nil)
	}
	out.Suggest = make(map[string][]port.SuggestEntry, len(entries))
	for name, list := range entries {
		converted := make([]port.SuggestEntry, 0, len(list))
		for _, e := range list {
			converted = append(converted, e.toPort())
		}
		out.Suggest[name] = converted
	}
	return out, nil
}

// Serialize はヒットを順序どおりにレコードへ変換します。
// includeMeta が true の場合は _id, _score, _index と _source を含むヒット全体、false の場合は _source のみを返します。
func Serialize(res *port.Response, includeMeta bool) []port.Record {
	if res == nil {
		return []port.Record{}
	}

	records := make([]port.Record, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if !includeMeta {
			records = append(records, copySource(hit.Source))
			continue
		}

		var score interface{}
		if hit.Score != nil {
			score = *hit.Score
		}
		records = append(records, port.Record{
			FieldID:     hit.ID,
			FieldIndex:  hit.Index,
			FieldScore:  score,
			FieldSource: map[string]interface{}(copySource(hit.Source)),
		})
	}
	return records
}

func copySource(source map[string]interface{}) port.Record {
	rec := make(port.Record, len(source))
	for k, v := range source {
		rec[k] = v
	}
	return rec
}
