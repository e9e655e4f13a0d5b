// Package callbacks logs chain, agent, tool and model events through slog.
package callbacks

import (
	"context"
	"encoding/json"
	"log/slog"

	lccallbacks "github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// Logging is a langchaingo callback handler that writes every event to a
// structured logger. Prompts and streamed tokens are logged at debug level.
type Logging struct {
	log *slog.Logger
}

var _ lccallbacks.Handler = (*Logging)(nil)

// NewLogging returns a handler writing to logger, or slog.Default() when nil.
func NewLogging(logger *slog.Logger) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logging{log: logger}
}

func (l *Logging) HandleText(ctx context.Context, text string) {
	l.log.InfoContext(ctx, text)
}

func (l *Logging) HandleLLMStart(ctx context.Context, prompts []string) {
	l.log.DebugContext(ctx, "on_llm_start", "prompts", jsonString(prompts))
}

func (l *Logging) HandleLLMGenerateContentStart(ctx context.Context, ms []llms.MessageContent) {
	prompts := make([]map[string]any, 0, len(ms))
	for _, m := range ms {
		var texts []string
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				texts = append(texts, t.Text)
			}
		}
		prompts = append(prompts, map[string]any{"role": m.Role, "text": texts})
	}
	l.log.DebugContext(ctx, "on_llm_start", "prompts", jsonString(prompts))
}

func (l *Logging) HandleLLMGenerateContentEnd(ctx context.Context, res *llms.ContentResponse) {
	choices := 0
	if res != nil {
		choices = len(res.Choices)
	}
	l.log.DebugContext(ctx, "on_llm_end", "choices", choices)
}

func (l *Logging) HandleStreamingFunc(ctx context.Context, chunk []byte) {
	l.log.DebugContext(ctx, "on_llm_new_token", "token", string(chunk))
}

func (l *Logging) HandleLLMError(ctx context.Context, err error) {
	l.log.ErrorContext(ctx, "on_llm_error", "error", err)
}

func (l *Logging) HandleChainStart(ctx context.Context, inputs map[string]any) {
	l.log.InfoContext(ctx, "Entering new chain...", "inputs", len(inputs))
}

func (l *Logging) HandleChainEnd(ctx context.Context, _ map[string]any) {
	l.log.InfoContext(ctx, "Finished chain.")
}

func (l *Logging) HandleChainError(ctx context.Context, err error) {
	l.log.ErrorContext(ctx, "on_chain_error", "error", err)
}

func (l *Logging) HandleToolStart(ctx context.Context, input string) {
	l.log.DebugContext(ctx, "on_tool_start", "input", input)
}

func (l *Logging) HandleToolEnd(ctx context.Context, output string) {
	l.log.InfoContext(ctx, output)
}

func (l *Logging) HandleToolError(ctx context.Context, err error) {
	l.log.ErrorContext(ctx, "on_tool_error", "error", err)
}

func (l *Logging) HandleAgentAction(ctx context.Context, action schema.AgentAction) {
	l.log.InfoContext(ctx, action.Log, "tool", action.Tool)
}

func (l *Logging) HandleAgentFinish(ctx context.Context, finish schema.AgentFinish) {
	l.log.InfoContext(ctx, finish.Log)
}

func (l *Logging) HandleRetrieverStart(ctx context.Context, query string) {
	l.log.DebugContext(ctx, "on_retriever_start", "query", query)
}

func (l *Logging) HandleRetrieverEnd(ctx context.Context, query string, documents []schema.Document) {
	l.log.DebugContext(ctx, "on_retriever_end", "query", query, "documents", len(documents))
}

func jsonString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return err.Error()
	}
	return string(b)
}
