package retrieval

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// Snippet is one ranked context fragment returned for a query.
type Snippet struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// Retriever supplies ranked background-knowledge snippets for a query. The
// production embedding/cross-encoder service implements this; the pipeline
// only depends on the contract.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Snippet, error)
}

// Document is one entry of a keyword-searchable knowledge base.
type Document struct {
	Source string
	Text   string
}

// KeywordIndex is a small token-overlap retriever over a static knowledge
// base. It stands in for the external embedding service in tests and local
// runs; scoring is plain normalized term overlap.
type KeywordIndex struct {
	docs   []Document
	tokens [][]string
}

// NewKeywordIndex builds an index over the given documents. The index is
// constructed once at process start and injected where needed; it holds no
// hidden global state.
func NewKeywordIndex(docs []Document) *KeywordIndex {
	idx := &KeywordIndex{docs: docs, tokens: make([][]string, len(docs))}
	for i, d := range docs {
		idx.tokens[i] = tokenize(d.Text)
	}
	return idx
}

// Retrieve returns up to topK documents ranked by term overlap with query.
// Documents with zero overlap are omitted.
func (idx *KeywordIndex) Retrieve(_ context.Context, query string, topK int) ([]Snippet, error) {
	if topK <= 0 {
		topK = 3
	}
	qTokens := tokenize(query)
	if len(qTokens) == 0 {
		return nil, nil
	}
	qSet := map[string]struct{}{}
	for _, t := range qTokens {
		qSet[t] = struct{}{}
	}

	var out []Snippet
	for i, d := range idx.docs {
		matched := 0
		seen := map[string]struct{}{}
		for _, t := range idx.tokens[i] {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			if _, ok := qSet[t]; ok {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		out = append(out, Snippet{
			Text:   d.Text,
			Source: d.Source,
			Score:  float64(matched) / float64(len(qSet)),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

var _ Retriever = (*KeywordIndex)(nil)
