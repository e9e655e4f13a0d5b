package callbacks

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

func newTestLogger(level slog.Level) (*Logging, *bytes.Buffer) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})
	return NewLogging(slog.New(h)), &buf
}

func TestLoggingLevels(t *testing.T) {
	l, buf := newTestLogger(slog.LevelInfo)
	ctx := context.Background()

	l.HandleLLMStart(ctx, []string{"secret prompt"})
	l.HandleStreamingFunc(ctx, []byte("tok"))
	if buf.Len() != 0 {
		t.Fatalf("debug events logged at info level: %s", buf.String())
	}

	l.HandleChainStart(ctx, map[string]any{"input": "x"})
	l.HandleChainEnd(ctx, nil)
	l.HandleAgentAction(ctx, schema.AgentAction{Tool: "search", Log: "Thought: look it up"})
	l.HandleToolError(ctx, errors.New("boom"))

	out := buf.String()
	for _, want := range []string{"Entering new chain...", "Finished chain.", "Thought: look it up", "level=ERROR", "boom"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %s", want, out)
		}
	}
}

func TestLoggingPromptsAsJSON(t *testing.T) {
	l, buf := newTestLogger(slog.LevelDebug)
	ctx := context.Background()

	l.HandleLLMStart(ctx, []string{"a", "b"})
	if !strings.Contains(buf.String(), `prompts="[\"a\",\"b\"]"`) {
		t.Fatalf("unexpected prompt log: %s", buf.String())
	}

	buf.Reset()
	l.HandleLLMGenerateContentStart(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "hi")})
	l.HandleLLMGenerateContentEnd(ctx, &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "yo"}}})
	out := buf.String()
	if !strings.Contains(out, "on_llm_start") || !strings.Contains(out, "choices=1") {
		t.Fatalf("unexpected generate logs: %s", out)
	}
}

func TestNewLoggingDefaultsLogger(t *testing.T) {
	if NewLogging(nil).log == nil {
		t.Fatal("expected default logger")
	}
}
