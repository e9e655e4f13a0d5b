package platform

import (
	"context"
	"fmt"
)

// EmbeddingIndex wraps an embedding-index plugin instance.
type EmbeddingIndex struct {
	client   *Client
	instance *PluginInstance
}

func (c *Client) EmbeddingIndex(inst *PluginInstance) *EmbeddingIndex {
	return &EmbeddingIndex{client: c, instance: inst}
}

func (idx *EmbeddingIndex) Instance() *PluginInstance { return idx.instance }

// Insert embeds and stores items.
func (idx *EmbeddingIndex) Insert(ctx context.Context, items []IndexItem) error {
	payload := map[string]any{"pluginInstance": idx.instance.Handle, "items": items}
	if err := idx.client.call(ctx, "plugin/instance/embeddingIndex/insert", payload, nil); err != nil {
		return fmt.Errorf("index insert: %w", err)
	}
	return nil
}

// Search starts a k-nearest search. The finished task's output decodes into
// SearchOutput.
func (idx *EmbeddingIndex) Search(ctx context.Context, query string, k int) (*Task, error) {
	payload := map[string]any{"pluginInstance": idx.instance.Handle, "query": query, "k": k}
	task, err := idx.client.callTask(ctx, "plugin/instance/embeddingIndex/search", payload)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}
	return task, nil
}
