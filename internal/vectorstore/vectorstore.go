// Package vectorstore exposes a platform embedding index as a langchaingo
// vector store.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"steamchain/internal/platform"
)

const (
	PluginEmbeddingIndex = "embedding-index"
	PluginEmbedder       = "openai-embedder"
)

type options struct {
	fetchIfExists bool
	embedder      string
}

type Option func(*options)

// WithFetchIfExists reopens an index that already exists under the name
// instead of failing to create it.
func WithFetchIfExists(v bool) Option {
	return func(o *options) { o.fetchIfExists = v }
}

// WithEmbedderPlugin overrides the plugin that embeds indexed texts.
func WithEmbedderPlugin(handle string) Option {
	return func(o *options) { o.embedder = handle }
}

var ErrMMRUnsupported = errors.New("max marginal relevance search is not supported")

var familyDimensionality = map[string]int{"ada": 1024, "babbage": 2048, "curie": 4096, "davinci": 12288}

var modelDimensionality = func() map[string]int {
	m := map[string]int{"text-embedding-ada-002": 1536}
	for family, dim := range familyDimensionality {
		m["text-similarity-"+family+"-001"] = dim
		for _, kind := range []string{"doc", "query"} {
			m["text-search-"+family+"-"+kind+"-001"] = dim
		}
	}
	for _, family := range []string{"babbage", "ada"} {
		for _, kind := range []string{"code", "text"} {
			m["code-search-"+family+"-"+kind+"-001"] = familyDimensionality[family]
		}
	}
	return m
}()

// Dimensionality returns the embedding size of a supported model.
func Dimensionality(model string) (int, error) {
	dim, ok := modelDimensionality[model]
	if !ok {
		valid := make([]string, 0, len(modelDimensionality))
		for k := range modelDimensionality {
			valid = append(valid, k)
		}
		sort.Strings(valid)
		return 0, fmt.Errorf("model %s is not supported by the embedder; valid models are: %s", model, strings.Join(valid, ", "))
	}
	return dim, nil
}

// Platform is the part of the platform client the store needs.
type Platform interface {
	UsePlugin(ctx context.Context, req platform.PluginRequest) (*platform.PluginInstance, error)
	EmbeddingIndex(inst *platform.PluginInstance) *platform.EmbeddingIndex
	Wait(ctx context.Context, task *platform.Task, opts platform.WaitOptions) (*platform.Task, error)
}

type Store struct {
	client    Platform
	index     *platform.EmbeddingIndex
	indexName string
}

var _ vectorstores.VectorStore = (*Store)(nil)

// New creates the embedding index indexName (a random name when empty) that
// embeds with the given model. Creating a name that is already taken fails
// unless WithFetchIfExists is given.
func New(ctx context.Context, client Platform, embeddingModel, indexName string, opts ...Option) (*Store, error) {
	o := options{embedder: PluginEmbedder}
	for _, opt := range opts {
		opt(&o)
	}
	dim, err := Dimensionality(embeddingModel)
	if err != nil {
		return nil, err
	}
	if indexName == "" {
		indexName = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	inst, err := client.UsePlugin(ctx, platform.PluginRequest{
		PluginHandle:   PluginEmbeddingIndex,
		InstanceHandle: indexName,
		Config: map[string]any{
			"embedder": map[string]any{
				"plugin_handle":   o.embedder,
				"instance_handle": indexName,
				"fetch_if_exists": o.fetchIfExists,
				"config": map[string]any{
					"model":          embeddingModel,
					"dimensionality": dim,
				},
			},
		},
		FetchIfExists: o.fetchIfExists,
	})
	if err != nil {
		return nil, fmt.Errorf("create index %s: %w", indexName, err)
	}
	return &Store{client: client, index: client.EmbeddingIndex(inst), indexName: indexName}, nil
}

// FromTexts creates a store and adds texts to it.
func FromTexts(ctx context.Context, client Platform, embeddingModel, indexName string, texts []string, metadatas []map[string]any, opts ...Option) (*Store, error) {
	s, err := New(ctx, client, embeddingModel, indexName, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.AddTexts(ctx, texts, metadatas); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) IndexName() string {
	return s.indexName
}

// AddTexts indexes texts; missing metadata entries are left empty.
func (s *Store) AddTexts(ctx context.Context, texts []string, metadatas []map[string]any) error {
	items := make([]platform.IndexItem, len(texts))
	for i, text := range texts {
		items[i] = platform.IndexItem{Text: text}
		if i < len(metadatas) {
			items[i].Value = metadatas[i]
		}
	}
	return s.index.Insert(ctx, items)
}

// AddDocuments indexes docs. The platform does not report item ids, so one
// empty id is returned per indexed document.
func (s *Store) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := vectorstores.Options{}
	for _, opt := range options {
		opt(&opts)
	}

	texts := make([]string, 0, len(docs))
	metadatas := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		if opts.Deduplicater != nil && opts.Deduplicater(ctx, doc) {
			continue
		}
		texts = append(texts, doc.PageContent)
		metadatas = append(metadatas, doc.Metadata)
	}
	if len(texts) == 0 {
		return nil, nil
	}
	if err := s.AddTexts(ctx, texts, metadatas); err != nil {
		return nil, err
	}
	return make([]string, len(texts)), nil
}

func (s *Store) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	opts := vectorstores.Options{}
	for _, opt := range options {
		opt(&opts)
	}
	if numDocuments <= 0 {
		numDocuments = 4
	}

	task, err := s.index.Search(ctx, query, numDocuments)
	if err != nil {
		return nil, err
	}
	task, err = s.client.Wait(ctx, task, platform.WaitOptions{})
	if err != nil {
		return nil, err
	}
	var out platform.SearchOutput
	if err := task.DecodeOutput(&out); err != nil {
		return nil, err
	}

	docs := make([]schema.Document, 0, len(out.Items))
	for _, item := range out.Items {
		score := float32(item.Score)
		if opts.ScoreThreshold > 0 && score < opts.ScoreThreshold {
			continue
		}
		docs = append(docs, schema.Document{
			PageContent: item.Tag.Text,
			Metadata:    item.Tag.Value,
			Score:       score,
		})
	}
	return docs, nil
}

func (s *Store) MaxMarginalRelevanceSearch(ctx context.Context, query string, k, fetchK int) ([]schema.Document, error) {
	return nil, ErrMMRUnsupported
}
