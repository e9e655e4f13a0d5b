package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"

	"steamchain/internal/llm"
	"steamchain/internal/llm/tools"
	"steamchain/internal/platform"
	"steamchain/internal/platform/platformtest"
	"steamchain/internal/storage"
)

// capture redirects command output for the duration of the test.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var out bytes.Buffer
	oldOut, oldErr := stdout, stderr
	stdout, stderr = &out, io.Discard
	t.Cleanup(func() { stdout, stderr = oldOut, oldErr })
	return &out
}

// useConfig writes a config file pointing at base and a temporary ledger,
// followed by any extra sections.
func useConfig(t *testing.T, base string, extra ...string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "steamchain.ini")
	content := fmt.Sprintf("[platform]\napi_key = test-key\napi_base = %s\n\n[storage]\npath = %s\n\n[log]\nlevel = error\n",
		base, filepath.Join(dir, "ledger.db"))
	content += strings.Join(extra, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STEAMCHAIN_CONFIG", path)
	t.Setenv("STEAMCHAIN_DB_PATH", "")
	t.Setenv("STEAMCHAIN_API_KEY", "")
	storage.ResetForTest()
	t.Cleanup(storage.ResetForTest)
}

func parse(t *testing.T, args ...string) (*kong.Context, *CLI) {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Name("steamchain"), kong.Exit(func(int) { t.Fatalf("parser exited for %v", args) }))
	if err != nil {
		t.Fatalf("kong.New: %v", err)
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	return ctx, cli
}

func TestCommandsParse(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"generate", "a", "b", "--stop", "\n"}, "generate"},
		{[]string{"chat", "--session", "s1", "--reset"}, "chat"},
		{[]string{"ask", "what", "--index", "--no-cache-search"}, "ask"},
		{[]string{"index", "add", "--query", "kind \"doc\""}, "index add"},
		{[]string{"index", "search", "go", "-k", "2"}, "index search"},
		{[]string{"load", "owner/repo", "--kind", "github"}, "load"},
		{[]string{"search", "go", "modules", "--no-cache"}, "search"},
		{[]string{"usage", "--clear"}, "usage"},
		{[]string{"init"}, "init"},
	}
	for _, tt := range tests {
		ctx, _ := parse(t, tt.args...)
		if !strings.HasPrefix(ctx.Command(), tt.want) {
			t.Fatalf("%v parsed as %q, want %q", tt.args, ctx.Command(), tt.want)
		}
	}

	_, cli := parse(t, "ask", "what", "--no-cache-search")
	if cli.Ask.CacheSearch || cli.Ask.K != 4 || cli.Ask.MaxIterations != 5 {
		t.Fatalf("unexpected ask flags: %+v", cli.Ask)
	}
	_, cli = parse(t, "load", "x", "-m", "a=1", "-m", "b=2")
	if cli.Load.Meta["a"] != "1" || cli.Load.Meta["b"] != "2" || cli.Load.Kind != "auto" || cli.Load.Glob != "**/*" {
		t.Fatalf("unexpected load flags: %+v", cli.Load)
	}
}

func TestLoadKind(t *testing.T) {
	tests := map[string]string{
		"https://www.youtube.com/watch?v=abc": "youtube",
		"https://youtu.be/abc":                "youtube",
		"README.md":                           "markdown",
		"page.HTML":                           "html",
		"docs":                                "dir",
		"notes.txt":                           "text",
	}
	for src, want := range tests {
		c := &LoadCmd{Source: src, Kind: "auto"}
		if got := c.kind(); got != want {
			t.Fatalf("kind(%q) = %q, want %q", src, got, want)
		}
	}
	if got := (&LoadCmd{Source: "README.md", Kind: "text"}).kind(); got != "text" {
		t.Fatalf("explicit kind overridden: %q", got)
	}
}

func TestInitWritesConfigAndBacksUp(t *testing.T) {
	out := capture(t)
	target := filepath.Join(t.TempDir(), "nested", "config.ini")
	cli := &CLI{}

	if err := (&InitCmd{Path: target}).Run(cli); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out.String(), "Wrote "+target) {
		t.Fatalf("unexpected output: %s", out.String())
	}
	if err := (&InitCmd{Path: target}).Run(cli); err == nil {
		t.Fatal("expected an error when the config exists")
	}

	if err := os.WriteFile(target, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := (&InitCmd{Path: target, Force: true}).Run(cli); err != nil {
		t.Fatalf("init --force: %v", err)
	}
	if b, _ := os.ReadFile(target + ".bak"); string(b) != "old" {
		t.Fatalf("backup not kept: %q", b)
	}
	if b, _ := os.ReadFile(target); !strings.Contains(string(b), "[platform]") {
		t.Fatalf("config not rewritten: %q", b)
	}
}

func TestSplitCommand(t *testing.T) {
	out := capture(t)
	path := filepath.Join(t.TempDir(), "mod.py")
	src := "def a():\n    return 1\n\n\nclass B:\n    x = 1\n\n    def c(self):\n        pass\n"
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := (&SplitCmd{File: path, MaxLines: 3}).Run(&CLI{Plain: true}); err != nil {
		t.Fatalf("split: %v", err)
	}
	got := out.String()
	for _, want := range []string{"3 segments", "def a():\n    return 1", "class B:\n    def c(self):"} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in:\n%s", want, got)
		}
	}
}

func TestGenerateRecordsUsage(t *testing.T) {
	fake := platformtest.New(t)
	fake.OnTag(llm.PluginGPT3, func(_ platform.PluginInstance, f *platform.File) error {
		for i := range f.Blocks {
			f.Blocks[i].Tags = append(f.Blocks[i].Tags, platform.Tag{
				Kind:  platform.KindGeneration,
				Value: map[string]any{platform.ValueString: strings.ToUpper(f.Blocks[i].Text)},
			})
		}
		f.Tags = append(f.Tags, platform.Tag{
			Kind:  platform.KindTokenUsage,
			Value: map[string]any{"prompt_tokens": 2, "completion_tokens": 3, "total_tokens": 5},
		})
		return nil
	})
	useConfig(t, fake.URL+"/api/v1")
	out := capture(t)
	cli := &CLI{Plain: true}

	if err := (&GenerateCmd{Prompts: []string{"hello", "world"}}).Run(cli); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(out.String(), "HELLO") || !strings.Contains(out.String(), "WORLD") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}

	totals, err := storage.UsageTotals(context.Background())
	if err != nil {
		t.Fatalf("UsageTotals: %v", err)
	}
	if len(totals) != 1 || totals[0].TotalTokens != 5 {
		t.Fatalf("unexpected usage: %+v", totals)
	}

	out.Reset()
	if err := (&UsageCmd{}).Run(cli); err != nil {
		t.Fatalf("usage: %v", err)
	}
	if !strings.Contains(out.String(), "| **all** | 1 | 2 | 3 | 5 |") {
		t.Fatalf("unexpected usage table:\n%s", out.String())
	}
}

func TestGenerateKeepsFailedPromptInPlace(t *testing.T) {
	fake := platformtest.New(t)
	fake.OnTag(llm.PluginGPT3, func(_ platform.PluginInstance, f *platform.File) error {
		if f.Blocks[0].Text == "bbb" {
			return errors.New("model overloaded")
		}
		for i := range f.Blocks {
			f.Blocks[i].Tags = append(f.Blocks[i].Tags, platform.Tag{
				Kind:  platform.KindGeneration,
				Value: map[string]any{platform.ValueString: strings.ToUpper(f.Blocks[i].Text)},
			})
		}
		return nil
	})
	useConfig(t, fake.URL+"/api/v1", "\n[llm]\nbatch_size = 1\n")
	out := capture(t)

	if err := (&GenerateCmd{Prompts: []string{"aaa", "bbb", "ccc"}}).Run(&CLI{Plain: true}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	got := out.String()
	order := []string{"AAA", "> bbb", llm.GenerationFailed, "> ccc", "CCC"}
	last := -1
	for _, want := range order {
		i := strings.Index(got, want)
		if i <= last {
			t.Fatalf("expected %q after position %d in:\n%s", want, last, got)
		}
		last = i
	}
}

func TestIndexAddThenSearch(t *testing.T) {
	fake := platformtest.New(t)
	useConfig(t, fake.URL+"/api/v1")
	out := capture(t)
	cli := &CLI{Plain: true}

	path := filepath.Join(t.TempDir(), "pets.md")
	if err := os.WriteFile(path, []byte("the cat sat on the mat"), 0o600); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := (&IndexAddCmd{Files: []string{path}, ChunkSize: 1000}).Run(cli); err != nil {
			t.Fatalf("index add #%d: %v", i+1, err)
		}
	}
	if got := len(fake.IndexItems("steamchain")); got != 2 {
		t.Fatalf("expected both adds in the same index, got %d items", got)
	}

	out.Reset()
	if err := (&IndexSearchCmd{Query: []string{"cat"}, K: 1}).Run(cli); err != nil {
		t.Fatalf("index search: %v", err)
	}
	if got := out.String(); strings.Contains(got, "_Nothing found._") || !strings.Contains(got, "the cat sat on the mat") {
		t.Fatalf("search did not see indexed documents:\n%s", got)
	}
}

func TestLoadRecordsAndReplacesImports(t *testing.T) {
	fake := platformtest.New(t)
	useConfig(t, fake.URL+"/api/v1")
	capture(t)

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("some notes"), 0o600); err != nil {
		t.Fatal(err)
	}
	cli := &CLI{Plain: true}
	load := &LoadCmd{Source: path, Kind: "auto"}
	if err := load.Run(cli); err != nil {
		t.Fatalf("load: %v", err)
	}
	first, err := storage.LoadImports(context.Background(), path)
	if err != nil || len(first) != 1 || first[0].Loader != "text" {
		t.Fatalf("unexpected import records: %+v, %v", first, err)
	}

	load.Replace = true
	if err := load.Run(cli); err != nil {
		t.Fatalf("load --replace: %v", err)
	}
	files := fake.Files()
	if len(files) != 1 || files[0].ID == first[0].FileID {
		t.Fatalf("previous import not replaced: %+v", files)
	}
}

func TestMissingAPIKey(t *testing.T) {
	useConfig(t, "http://127.0.0.1:1/api/v1")
	path := os.Getenv("STEAMCHAIN_CONFIG")
	if err := os.WriteFile(path, []byte("[log]\nlevel = error\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := (&CLI{}).env(); err == nil || !strings.Contains(err.Error(), "no API key") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestSearchCommand(t *testing.T) {
	fake := platformtest.New(t)
	fake.OnTag(tools.PluginSERP, func(_ platform.PluginInstance, f *platform.File) error {
		f.Blocks[0].Tags = append(f.Blocks[0].Tags, platform.Tag{
			Kind:  platform.KindSearchResult,
			Value: map[string]any{platform.ValueString: "answer for " + f.Blocks[0].Text},
		})
		return nil
	})
	useConfig(t, fake.URL+"/api/v1")
	out := capture(t)

	if err := (&SearchCmd{Query: []string{"go", "modules"}, NoCache: true}).Run(&CLI{Plain: true}); err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out.String(), "answer for go modules") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}
