// Package cache stores language model generations in platform key/value
// stores, one store per model configuration.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	lccache "github.com/tmc/langchaingo/llms/cache"

	"steamchain/internal/llm"
	"steamchain/internal/platform"
)

const generationPrefix = "generation-"

// Store is the key/value interface a cache store needs.
type Store interface {
	Get(ctx context.Context, key string) (map[string]any, bool, error)
	Set(ctx context.Context, key string, value map[string]any) error
	Reset(ctx context.Context) error
}

// StoreFactory opens the store with the given identifier.
type StoreFactory func(identifier string) Store

// Cache maps (prompt, llm string) pairs to generations.
type Cache struct {
	open   StoreFactory
	logger *slog.Logger

	mu     sync.Mutex
	stores map[string]Store
}

// New creates a cache backed by the workspace of client.
func New(client *platform.Client) *Cache {
	return NewWithStores(func(id string) Store { return client.KeyValueStore(id) })
}

func NewWithStores(open StoreFactory) *Cache {
	return &Cache{open: open, logger: slog.Default(), stores: map[string]Store{}}
}

// WithLogger sets the logger used for lookup and update tracing.
func (c *Cache) WithLogger(l *slog.Logger) *Cache {
	c.logger = l
	return c
}

func handleFor(llmString string) string {
	sum := sha256.Sum256([]byte(llmString))
	return "cache-" + hex.EncodeToString(sum[:])
}

func keyFor(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return "prompt-" + hex.EncodeToString(sum[:])
}

func (c *Cache) store(llmString string) (Store, string) {
	handle := handleFor(llmString)
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stores[handle]
	if !ok {
		s = c.open(handle)
		c.stores[handle] = s
	}
	return s, handle
}

// Lookup returns the cached generations for prompt, ordered by index.
func (c *Cache) Lookup(ctx context.Context, prompt, llmString string) ([]llm.Generation, bool, error) {
	s, handle := c.store(llmString)
	c.logger.Debug("cache lookup", "prompt", prompt, "store", handle)

	value, ok, err := s.Get(ctx, keyFor(prompt))
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}
	if !ok || len(value) == 0 {
		c.logger.Debug("cache miss", "prompt", prompt)
		return nil, false, nil
	}
	c.logger.Debug("cache hit", "prompt", prompt)

	keys := make([]string, 0, len(value))
	for k := range value {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return generationIndex(keys[i]) < generationIndex(keys[j]) })

	gens := make([]llm.Generation, 0, len(keys))
	for _, k := range keys {
		text, _ := value[k].(string)
		gens = append(gens, llm.Generation{Text: text})
	}
	return gens, true, nil
}

func failed(gens []llm.Generation) bool {
	if len(gens) == 0 {
		return true
	}
	for _, g := range gens {
		if g.Text != llm.GenerationFailed {
			return false
		}
	}
	return true
}

func generationIndex(key string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(key, generationPrefix))
	if err != nil {
		return -1
	}
	return n
}

// Update stores generations for prompt, replacing any previous entry.
// Failure placeholders are never stored.
func (c *Cache) Update(ctx context.Context, prompt, llmString string, gens []llm.Generation) error {
	s, handle := c.store(llmString)
	if failed(gens) {
		c.logger.Debug("cache skip failed generation", "prompt", prompt, "store", handle)
		return nil
	}
	c.logger.Debug("cache update", "prompt", prompt, "store", handle)

	value := make(map[string]any, len(gens))
	for i, g := range gens {
		value[generationPrefix+strconv.Itoa(i)] = g.Text
	}
	if err := s.Set(ctx, keyFor(prompt), value); err != nil {
		return fmt.Errorf("cache update: %w", err)
	}
	return nil
}

// Clear drops every entry cached for llmString.
func (c *Cache) Clear(ctx context.Context, llmString string) error {
	s, _ := c.store(llmString)
	return s.Reset(ctx)
}

// Backend adapts the cache to langchaingo's cache.Backend for one model.
type Backend struct {
	cache     *Cache
	llmString string
}

var _ lccache.Backend = (*Backend)(nil)

// ForModel returns a backend whose entries are scoped to llmString.
func (c *Cache) ForModel(llmString string) *Backend {
	return &Backend{cache: c, llmString: llmString}
}

func (b *Backend) Get(ctx context.Context, key string) *llms.ContentResponse {
	gens, ok, err := b.cache.Lookup(ctx, key, b.llmString)
	if err != nil {
		b.cache.logger.Warn("cache get failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	resp := &llms.ContentResponse{}
	for _, g := range gens {
		resp.Choices = append(resp.Choices, &llms.ContentChoice{Content: g.Text})
	}
	return resp
}

func (b *Backend) Put(ctx context.Context, key string, response *llms.ContentResponse) {
	if response == nil {
		return
	}
	gens := make([]llm.Generation, 0, len(response.Choices))
	for _, c := range response.Choices {
		gens = append(gens, llm.Generation{Text: c.Content})
	}
	if err := b.cache.Update(ctx, key, b.llmString, gens); err != nil {
		b.cache.logger.Warn("cache put failed", "error", err)
	}
}

// Identified is a model that can describe its configuration as a string.
type Identified interface {
	llms.Model
	LLMString(ctx context.Context) (string, error)
}

// Wrap returns model with its responses cached under its own llm string.
func (c *Cache) Wrap(ctx context.Context, model Identified) (*lccache.Cacher, error) {
	s, err := model.LLMString(ctx)
	if err != nil {
		return nil, fmt.Errorf("llm string: %w", err)
	}
	return lccache.New(model, c.ForModel(s)), nil
}
