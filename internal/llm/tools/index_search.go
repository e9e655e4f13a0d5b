package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/vectorstores"
)

// IndexSearchTool retrieves passages from a vector store.
type IndexSearchTool struct {
	Store vectorstores.VectorStore
	K     int
}

func NewIndexSearch(store vectorstores.VectorStore, k int) *IndexSearchTool {
	if k <= 0 {
		k = 4
	}
	return &IndexSearchTool{Store: store, K: k}
}

func (t *IndexSearchTool) Name() string {
	return "index_search"
}

func (t *IndexSearchTool) Description() string {
	return `Find passages in the indexed documents. Input is a query, or JSON {"query": "...", "k": 3}.`
}

func (t *IndexSearchTool) Call(ctx context.Context, input string) (string, error) {
	query, k := strings.TrimSpace(input), t.K
	if strings.HasPrefix(query, "{") {
		var params struct {
			Query string `json:"query"`
			K     int    `json:"k"`
		}
		if err := json.Unmarshal([]byte(query), &params); err != nil {
			return "ERROR:invalid parameters", fmt.Errorf("invalid parameters: %w", err)
		}
		query = params.Query
		if params.K > 0 {
			k = params.K
		}
	}
	if query == "" {
		return "ERROR:empty query", fmt.Errorf("empty query")
	}

	docs, err := t.Store.SimilaritySearch(ctx, query, k)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return NoSearchResult, nil
	}
	passages := make([]string, len(docs))
	for i, d := range docs {
		passages[i] = d.PageContent
		if src, ok := d.Metadata["source"].(string); ok && src != "" {
			passages[i] += "\n(source: " + src + ")"
		}
	}
	return strings.Join(passages, "\n\n"), nil
}
