package tools

import (
	"context"
	"fmt"
	"log"

	"steamchain/internal/platform"
)

const (
	PluginSERP     = "serpapi-wrapper"
	searchCacheID  = "search-tool-serpapi-wrapper"
	NoSearchResult = "No search result found"
)

// SearchPlatform is the part of the platform client the search tool needs.
type SearchPlatform interface {
	UsePlugin(ctx context.Context, req platform.PluginRequest) (*platform.PluginInstance, error)
	Tag(ctx context.Context, inst *platform.PluginInstance, req platform.TagRequest) (*platform.Task, error)
	Wait(ctx context.Context, task *platform.Task, opts platform.WaitOptions) (*platform.Task, error)
	KeyValueStore(identifier string) *platform.KeyValueStore
}

// SearchTool answers queries with a web search plugin, optionally caching
// answers in the workspace.
type SearchTool struct {
	client SearchPlatform
	inst   *platform.PluginInstance
	cache  *platform.KeyValueStore
}

func NewSearch(ctx context.Context, client SearchPlatform, cache bool) (*SearchTool, error) {
	inst, err := client.UsePlugin(ctx, platform.PluginRequest{PluginHandle: PluginSERP, FetchIfExists: true})
	if err != nil {
		return nil, err
	}
	t := &SearchTool{client: client, inst: inst}
	if cache {
		t.cache = client.KeyValueStore(searchCacheID)
	}
	return t, nil
}

func (t *SearchTool) Name() string {
	return "search"
}

func (t *SearchTool) Description() string {
	return "Search the web for current events and facts. Input is a search query."
}

// Call never returns an error: platform failures yield NoSearchResult.
func (t *SearchTool) Call(ctx context.Context, input string) (string, error) {
	answer, err := t.search(ctx, input)
	if err != nil {
		log.Printf("[tools.SearchTool.Call] search for %q failed: %v", input, err)
		return NoSearchResult, nil
	}
	return answer, nil
}

func (t *SearchTool) search(ctx context.Context, query string) (string, error) {
	if t.cache != nil {
		value, ok, err := t.cache.Get(ctx, query)
		if err != nil {
			return "", err
		}
		if ok {
			s, _ := value[platform.ValueString].(string)
			return s, nil
		}
	}

	task, err := t.client.Tag(ctx, t.inst, platform.TagRequest{Text: query})
	if err != nil {
		return "", err
	}
	task, err = t.client.Wait(ctx, task, platform.WaitOptions{})
	if err != nil {
		return "", err
	}
	var out platform.TagOutput
	if err := task.DecodeOutput(&out); err != nil {
		return "", err
	}
	answer, ok := firstBlockTagValue(out.File, platform.KindSearchResult)
	if !ok {
		return "", fmt.Errorf("no %s tag in output", platform.KindSearchResult)
	}

	if t.cache != nil {
		if err := t.cache.Set(ctx, query, map[string]any{platform.ValueString: answer}); err != nil {
			log.Printf("[tools.SearchTool.search] could not cache answer: %v", err)
		}
	}
	return answer, nil
}

func firstBlockTagValue(f platform.File, kind string) (string, bool) {
	for _, b := range f.Blocks {
		for _, tag := range b.Tags {
			if tag.Kind == kind {
				return tag.StringValue(), true
			}
		}
	}
	return "", false
}
