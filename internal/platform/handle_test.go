package platform_test

import (
	"strings"
	"testing"

	"steamchain/internal/platform"
)

func TestCanonicalJSON(t *testing.T) {
	got, err := platform.CanonicalJSON(map[string]any{
		"temperature": 0.7,
		"max_words":   256,
		"top_p":       1.0,
		"stop":        "",
		"model":       "text-davinci-003",
		"nested":      map[string]any{"b": []any{true, nil}, "a": "é<"},
		"tiny":        1e-5,
	})
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	want := `{"max_words": 256, "model": "text-davinci-003", "nested": {"a": "\u00e9<", "b": [true, null]}, "stop": "", "temperature": 0.7, "tiny": 1e-05, "top_p": 1.0}`
	if string(got) != want {
		t.Fatalf("unexpected canonical json:\n got %s\nwant %s", got, want)
	}
}

func TestHashHandleIgnoresKeyOrder(t *testing.T) {
	a, err := platform.HashHandle("gpt-", map[string]any{"a": 1, "b": "x"})
	if err != nil {
		t.Fatalf("HashHandle: %v", err)
	}
	b, _ := platform.HashHandle("gpt-", map[string]any{"b": "x", "a": 1})
	if a != b {
		t.Fatalf("expected equal handles, got %s and %s", a, b)
	}
	if !strings.HasPrefix(a, "gpt-") || len(a) != len("gpt-")+64 {
		t.Fatalf("unexpected handle shape: %s", a)
	}
	c, _ := platform.HashHandle("gpt-", map[string]any{"a": 2, "b": "x"})
	if c == a {
		t.Fatal("different configs must not collide")
	}
}
