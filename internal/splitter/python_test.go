package splitter

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func readDefinitions(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile("testdata/definitions.py")
	if err != nil {
		t.Fatalf("read testdata: %v", err)
	}
	return string(b)
}

func TestSplitDefinitions(t *testing.T) {
	segments, err := NewPython(WithMaxFileLines(5)).SplitText(readDefinitions(t))
	if err != nil {
		t.Fatalf("SplitText: %v", err)
	}
	prefixes := []string{
		"def foo(baz: str) -> str:",
		"class FooClass:\n    \"\"\"Test class with some docstring.",
		"class FooClass:\n\n    foo_help: str  # segment",
		"class FooClass:\n    def __init__(self, **kwargs):",
		"class FooClass:\n    class NestedFoo:",
		"class FooClass:\n    class NestedFoo:\n        class DoublyNestedFoo:\n            def bar(self) -> []:",
		"class FooClass:\n    @property\n    def has_a_decorator(self):",
		"class FooClass:\n    def func_with_nesting(self):",
		"class SubFoo(FooClass):",
		"async def bar(none: str):",
	}
	if len(segments) != len(prefixes) {
		t.Fatalf("expected %d segments, got %d: %q", len(prefixes), len(segments), segments)
	}
	for i, p := range prefixes {
		if !strings.HasPrefix(segments[i], p) {
			t.Fatalf("segment %d = %q, want prefix %q", i, segments[i], p)
		}
	}

	// Nested functions stay inside their parent.
	if !strings.Contains(segments[7], "def nested():") || !strings.HasSuffix(segments[7], "return nested()") {
		t.Fatalf("nested function split off: %q", segments[7])
	}
	// The doubly nested class owns no lines of its own once bar is removed.
	for _, s := range segments {
		if strings.HasSuffix(s, "class DoublyNestedFoo:") {
			t.Fatalf("empty class region emitted: %q", s)
		}
	}
	// Module-level statements are dropped.
	for _, s := range segments {
		if strings.Contains(s, "DROPPED") {
			t.Fatalf("module statement kept: %q", s)
		}
	}
}

func TestShortFileIsUnchanged(t *testing.T) {
	src := readDefinitions(t)
	segments, err := NewPython(WithMaxFileLines(500)).SplitText(src)
	if err != nil {
		t.Fatalf("SplitText: %v", err)
	}
	if len(segments) != 1 || segments[0] != src {
		t.Fatalf("expected the input back unchanged")
	}

	crlf := "def a():\r\n    return 1\r\n"
	segments, _ = NewPython().SplitText(crlf)
	if len(segments) != 1 || segments[0] != crlf {
		t.Fatalf("expected the input back unchanged, got %q", segments)
	}
}

func TestSplitHandlesStringsAndBrackets(t *testing.T) {
	src := strings.Join([]string{
		"def first(",
		"    a,",
		"    b,",
		"):",
		`    s = "def not_a_function():"`,
		`    t = """`,
		"class NotAClass:",
		`"""`,
		"    return (a +",
		"            b)",
		"# trailing comment",
		"def second(): return 2",
		"class Short: pass",
	}, "\n")

	segments, err := NewPython(WithMaxFileLines(3)).SplitText(src)
	if err != nil {
		t.Fatalf("SplitText: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %q", segments)
	}
	if !strings.HasSuffix(segments[0], "            b)") {
		t.Fatalf("function end not found: %q", segments[0])
	}
	if segments[1] != "def second(): return 2" || segments[2] != "class Short: pass" {
		t.Fatalf("unexpected one-line definitions: %q", segments[1:])
	}
}

func TestSplitSyntaxErrors(t *testing.T) {
	tests := map[string]string{
		"unterminated string": "x = 'abc\n",
		"unterminated triple": "x = \"\"\"abc\n",
		"unclosed bracket":    "x = (1,\n",
		"unmatched bracket":   "x = 1)\n",
	}
	for name, src := range tests {
		src = src + strings.Repeat("\n", 5)
		if _, err := NewPython(WithMaxFileLines(2)).SplitText(src); !errors.Is(err, ErrSyntax) {
			t.Fatalf("%s: expected syntax error, got %v", name, err)
		}
	}
}
