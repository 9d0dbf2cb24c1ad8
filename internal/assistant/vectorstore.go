package assistant

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// VectorStoreSearcher queries the vendor's document-embedding index for
// contextual snippets. It satisfies the orchestrator's ContextSearcher
// interface.
type VectorStoreSearcher struct {
	api           openai.Client
	vectorStoreID string
}

// NewVectorStoreSearcher returns a searcher over the configured vector
// store, or an error when no store ID is configured.
func NewVectorStoreSearcher(c *Client) (*VectorStoreSearcher, error) {
	if c.cfg.VectorStoreID == "" {
		return nil, fmt.Errorf("vector store id is required (set assistant.vector_store_id)")
	}
	return &VectorStoreSearcher{
		api:           c.api,
		vectorStoreID: c.cfg.VectorStoreID,
	}, nil
}

// Search returns up to limit text snippets relevant to the query.
func (s *VectorStoreSearcher) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}

	page, err := s.api.VectorStores.Search(ctx, s.vectorStoreID, openai.VectorStoreSearchParams{
		Query: openai.VectorStoreSearchParamsQueryUnion{
			OfString: openai.String(query),
		},
		MaxNumResults: openai.Int(int64(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("search vector store: %w", err)
	}

	var snippets []string
	for _, result := range page.Data {
		for _, content := range result.Content {
			if content.Text != "" {
				snippets = append(snippets, content.Text)
			}
		}
	}
	if len(snippets) > limit {
		snippets = snippets[:limit]
	}
	return snippets, nil
}
