package vectorstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"steamchain/internal/platform/platformtest"
)

func TestDimensionality(t *testing.T) {
	tests := map[string]int{
		"text-embedding-ada-002":        1536,
		"text-similarity-curie-001":     4096,
		"text-search-davinci-query-001": 12288,
		"code-search-babbage-code-001":  2048,
		"code-search-ada-text-001":      1024,
		"text-search-babbage-doc-001":   2048,
	}
	for model, want := range tests {
		got, err := Dimensionality(model)
		if err != nil || got != want {
			t.Fatalf("Dimensionality(%s) = %d, %v; want %d", model, got, err, want)
		}
	}
	_, err := Dimensionality("code-search-curie-code-001")
	if err == nil || !strings.Contains(err.Error(), "text-embedding-ada-002") {
		t.Fatalf("expected error listing valid models, got %v", err)
	}
}

func TestNewConfiguresEmbedder(t *testing.T) {
	fake := platformtest.New(t)
	store, err := New(context.Background(), fake.Client(t), "text-embedding-ada-002", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(store.IndexName()) != 32 {
		t.Fatalf("expected uuid hex index name, got %q", store.IndexName())
	}
	inst, ok := fake.Instance(store.IndexName())
	if !ok {
		t.Fatal("expected index instance to exist")
	}
	embedder := inst.Config["embedder"].(map[string]any)
	cfg := embedder["config"].(map[string]any)
	if embedder["plugin_handle"] != PluginEmbedder || embedder["instance_handle"] != store.IndexName() || cfg["dimensionality"] != float64(1536) {
		t.Fatalf("unexpected embedder config: %#v", embedder)
	}
}

func TestAddAndSearch(t *testing.T) {
	fake := platformtest.New(t)
	ctx := context.Background()
	store, err := FromTexts(ctx, fake.Client(t), "text-similarity-curie-001", "docs",
		[]string{"the cat sat on the mat", "dogs chase cats", "stock prices fell"},
		[]map[string]any{{"source": "a"}})
	if err != nil {
		t.Fatalf("FromTexts: %v", err)
	}
	ids, err := store.AddDocuments(ctx, []schema.Document{
		{PageContent: "a cat nap", Metadata: map[string]any{"source": "b"}},
		{PageContent: "skip me"},
	}, vectorstores.WithDeduplicater(func(_ context.Context, d schema.Document) bool {
		return d.PageContent == "skip me"
	}))
	if err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected one id per indexed document, got %v", ids)
	}
	if got := len(fake.IndexItems("docs")); got != 4 {
		t.Fatalf("expected 4 indexed items, got %d", got)
	}

	docs, err := store.SimilaritySearch(ctx, "cat mat", 2)
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	if len(docs) != 2 || docs[0].PageContent != "the cat sat on the mat" || docs[0].Metadata["source"] != "a" {
		t.Fatalf("unexpected docs: %+v", docs)
	}
	if docs[0].Score != 1 {
		t.Fatalf("expected full score for best match, got %v", docs[0].Score)
	}

	docs, err = store.SimilaritySearch(ctx, "cat mat", 4, vectorstores.WithScoreThreshold(0.9))
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("score threshold not applied: %+v", docs)
	}

	retriever := vectorstores.ToRetriever(store, 1)
	rdocs, err := retriever.GetRelevantDocuments(ctx, "stock prices")
	if err != nil || len(rdocs) != 1 || rdocs[0].PageContent != "stock prices fell" {
		t.Fatalf("unexpected retriever result: %+v, %v", rdocs, err)
	}
}

func TestMMRUnsupported(t *testing.T) {
	fake := platformtest.New(t)
	store, _ := New(context.Background(), fake.Client(t), "text-embedding-ada-002", "idx")
	if _, err := store.MaxMarginalRelevanceSearch(context.Background(), "q", 4, 20); !errors.Is(err, ErrMMRUnsupported) {
		t.Fatalf("expected ErrMMRUnsupported, got %v", err)
	}
}

func TestReopenExistingIndex(t *testing.T) {
	fake := platformtest.New(t)
	client := fake.Client(t)
	ctx := context.Background()

	if _, err := FromTexts(ctx, client, "text-embedding-ada-002", "notes", []string{"remember the milk"}, nil); err != nil {
		t.Fatalf("FromTexts: %v", err)
	}
	if _, err := New(ctx, client, "text-embedding-ada-002", "notes"); err == nil {
		t.Fatal("expected creating a taken index name to fail")
	}

	store, err := New(ctx, client, "text-embedding-ada-002", "notes", WithFetchIfExists(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	docs, err := store.SimilaritySearch(ctx, "milk", 1)
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	if len(docs) != 1 || docs[0].PageContent != "remember the milk" {
		t.Fatalf("reopened index lost its items: %+v", docs)
	}
	reqs := fake.Requests("plugin/instance/create")
	if reqs[len(reqs)-1]["fetchIfExists"] != true {
		t.Fatalf("expected fetchIfExists on reopen: %#v", reqs[len(reqs)-1])
	}
}

func TestEmbedderPluginOverride(t *testing.T) {
	fake := platformtest.New(t)
	store, err := New(context.Background(), fake.Client(t), "text-embedding-ada-002", "alt",
		WithEmbedderPlugin("openai-embedder-test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	inst, _ := fake.Instance(store.IndexName())
	embedder := inst.Config["embedder"].(map[string]any)
	if embedder["plugin_handle"] != "openai-embedder-test" {
		t.Fatalf("unexpected embedder plugin: %#v", embedder)
	}
}
