package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	lcmemory "github.com/tmc/langchaingo/memory"
	"github.com/tmc/langchaingo/schema"
)

// ConversationBuffer stores each exchange of a chain as one block of the
// file whose handle is the conversation key.
type ConversationBuffer struct {
	HumanPrefix string
	AIPrefix    string
	MemoryKey   string
	// InputKey and OutputKey select the exchange when the chain has several
	// inputs or outputs.
	InputKey  string
	OutputKey string

	file conversationFile
}

var (
	_ schema.Memory = (*ConversationBuffer)(nil)
	_ schema.Memory = (*ConversationWindow)(nil)
)

type Option func(*ConversationBuffer)

func WithHumanPrefix(p string) Option { return func(b *ConversationBuffer) { b.HumanPrefix = p } }
func WithAIPrefix(p string) Option    { return func(b *ConversationBuffer) { b.AIPrefix = p } }
func WithMemoryKey(k string) Option   { return func(b *ConversationBuffer) { b.MemoryKey = k } }
func WithInputKey(k string) Option    { return func(b *ConversationBuffer) { b.InputKey = k } }
func WithOutputKey(k string) Option   { return func(b *ConversationBuffer) { b.OutputKey = k } }

func NewConversationBuffer(client Platform, key string, opts ...Option) *ConversationBuffer {
	b := &ConversationBuffer{
		HumanPrefix: "Human",
		AIPrefix:    "AI",
		MemoryKey:   "history",
		file:        conversationFile{client: client, handle: key},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *ConversationBuffer) GetMemoryKey(context.Context) string { return b.MemoryKey }

func (b *ConversationBuffer) MemoryVariables(context.Context) []string {
	return []string{b.MemoryKey}
}

func (b *ConversationBuffer) LoadMemoryVariables(ctx context.Context, _ map[string]any) (map[string]any, error) {
	return b.load(ctx, 0)
}

// load joins the last k entries, or all of them when k is 0.
func (b *ConversationBuffer) load(ctx context.Context, k int) (map[string]any, error) {
	entries, err := b.file.entries(ctx)
	if err != nil {
		return nil, err
	}
	if k > 0 && len(entries) > k {
		entries = entries[len(entries)-k:]
	}
	return map[string]any{b.MemoryKey: strings.Join(entries, "\n")}, nil
}

func (b *ConversationBuffer) SaveContext(ctx context.Context, inputs, outputs map[string]any) error {
	inKey := b.InputKey
	if inKey == "" {
		var err error
		if inKey, err = b.promptInputKey(inputs); err != nil {
			return err
		}
	}
	outKey := b.OutputKey
	if outKey == "" {
		if len(outputs) != 1 {
			return fmt.Errorf("%w: one output key expected, got %v", lcmemory.ErrInvalidInputValues, sortedKeys(outputs))
		}
		for k := range outputs {
			outKey = k
		}
	}
	in, ok := inputs[inKey]
	if !ok {
		return fmt.Errorf("%w: input key %q missing", lcmemory.ErrInvalidInputValues, inKey)
	}
	out, ok := outputs[outKey]
	if !ok {
		return fmt.Errorf("%w: output key %q missing", lcmemory.ErrInvalidInputValues, outKey)
	}
	text := fmt.Sprintf("%s: %v\n%s: %v", b.HumanPrefix, in, b.AIPrefix, out)
	return b.file.append(ctx, text)
}

// promptInputKey is the single input that is neither a memory variable nor
// the stop sequence.
func (b *ConversationBuffer) promptInputKey(inputs map[string]any) (string, error) {
	var keys []string
	for _, k := range sortedKeys(inputs) {
		if k != b.MemoryKey && k != "stop" {
			keys = append(keys, k)
		}
	}
	if len(keys) != 1 {
		return "", fmt.Errorf("%w: one input key expected, got %v", lcmemory.ErrInvalidInputValues, keys)
	}
	return keys[0], nil
}

func (b *ConversationBuffer) Clear(ctx context.Context) error {
	return b.file.delete(ctx)
}

// ConversationWindow is a ConversationBuffer that only loads the last K
// exchanges.
type ConversationWindow struct {
	*ConversationBuffer
	K int
}

const DefaultWindow = 5

func NewConversationWindow(client Platform, key string, k int, opts ...Option) *ConversationWindow {
	if k <= 0 {
		k = DefaultWindow
	}
	return &ConversationWindow{ConversationBuffer: NewConversationBuffer(client, key, opts...), K: k}
}

func (w *ConversationWindow) LoadMemoryVariables(ctx context.Context, _ map[string]any) (map[string]any, error) {
	return w.load(ctx, w.K)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
