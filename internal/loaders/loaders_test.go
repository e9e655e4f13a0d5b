package loaders

import (
	"context"
	"errors"
	"testing"

	"github.com/tmc/langchaingo/textsplitter"

	"steamchain/internal/platform"
	"steamchain/internal/platform/platformtest"
)

func seed(fake *platformtest.Server) {
	fake.AddFile(platform.File{
		Handle: "guide",
		Blocks: []platform.Block{{Text: "intro"}, {Text: "details"}},
		Tags: []platform.Tag{
			{Kind: platform.KindProvenance, Name: platform.ProvenanceURL, Value: map[string]any{platform.ValueString: "https://example.com/guide"}},
			{Kind: "topic", Name: "docs"},
		},
	})
	fake.AddFile(platform.File{
		Handle: "scratch",
		Blocks: []platform.Block{{Text: "notes"}},
	})
}

func TestLoadByQueryCollapsesBlocks(t *testing.T) {
	fake := platformtest.New(t)
	seed(fake)

	l, err := NewPlatform(fake.Client(t), WithQuery(`kind "topic"`))
	if err != nil {
		t.Fatalf("NewPlatform: %v", err)
	}
	docs, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected one document, got %d", len(docs))
	}
	if docs[0].PageContent != "intro\n\ndetails" {
		t.Fatalf("unexpected content: %q", docs[0].PageContent)
	}
	if docs[0].Metadata["source"] != "guide" || docs[0].Metadata["provenance"] != "https://example.com/guide" {
		t.Fatalf("unexpected metadata: %#v", docs[0].Metadata)
	}
}

func TestLoadFilesPerBlock(t *testing.T) {
	fake := platformtest.New(t)
	seed(fake)

	l, err := NewPlatform(fake.Client(t), WithFiles(fake.Files()...), WithCollapseBlocks(false))
	if err != nil {
		t.Fatalf("NewPlatform: %v", err)
	}
	docs, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected one document per block, got %d", len(docs))
	}
	if _, ok := docs[2].Metadata["provenance"]; ok {
		t.Fatalf("provenance should be omitted when absent: %#v", docs[2].Metadata)
	}
	if got := fake.Calls("file/query"); got != 0 {
		t.Fatalf("explicit files must not be queried, got %d calls", got)
	}
}

func TestQueryAndFilesAreExclusive(t *testing.T) {
	_, err := NewPlatform(nil, WithQuery("all"), WithFiles(platform.File{}))
	if !errors.Is(err, ErrQueryAndFiles) {
		t.Fatalf("expected ErrQueryAndFiles, got %v", err)
	}
}

func TestNoSourceLoadsNothing(t *testing.T) {
	l, err := NewPlatform(nil)
	if err != nil {
		t.Fatalf("NewPlatform: %v", err)
	}
	docs, err := l.Load(context.Background())
	if err != nil || len(docs) != 0 {
		t.Fatalf("expected no documents, got %d (%v)", len(docs), err)
	}
}

func TestLoadAndSplit(t *testing.T) {
	fake := platformtest.New(t)
	fake.AddFile(platform.File{Handle: "long", Blocks: []platform.Block{{Text: "one two three four five six"}}})

	l, _ := NewPlatform(fake.Client(t), WithFiles(fake.Files()...))
	splitter := textsplitter.NewRecursiveCharacter(textsplitter.WithChunkSize(10), textsplitter.WithChunkOverlap(0))
	docs, err := l.LoadAndSplit(context.Background(), splitter)
	if err != nil {
		t.Fatalf("LoadAndSplit: %v", err)
	}
	if len(docs) < 3 {
		t.Fatalf("expected the document to be split, got %d chunks", len(docs))
	}
	for _, d := range docs {
		if d.Metadata["source"] != "long" {
			t.Fatalf("metadata lost in split: %#v", d.Metadata)
		}
	}
}
