package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

const (
	HumanPrefix = "Human: "
	AIPrefix    = "AI: "
)

// ChatMessageHistory stores human and AI messages in the file "history-<key>".
type ChatMessageHistory struct {
	file conversationFile
}

var _ schema.ChatMessageHistory = (*ChatMessageHistory)(nil)

func NewChatMessageHistory(client Platform, key string) *ChatMessageHistory {
	return &ChatMessageHistory{file: conversationFile{client: client, handle: "history-" + key}}
}

func (h *ChatMessageHistory) AddMessage(ctx context.Context, msg llms.ChatMessage) error {
	switch msg.GetType() {
	case llms.ChatMessageTypeHuman:
		return h.AddUserMessage(ctx, msg.GetContent())
	case llms.ChatMessageTypeAI:
		return h.AddAIMessage(ctx, msg.GetContent())
	default:
		return fmt.Errorf("unsupported message type %q", msg.GetType())
	}
}

func (h *ChatMessageHistory) AddUserMessage(ctx context.Context, text string) error {
	return h.file.append(ctx, HumanPrefix+text)
}

func (h *ChatMessageHistory) AddAIMessage(ctx context.Context, text string) error {
	return h.file.append(ctx, AIPrefix+text)
}

func (h *ChatMessageHistory) Messages(ctx context.Context) ([]llms.ChatMessage, error) {
	entries, err := h.file.entries(ctx)
	if err != nil {
		return nil, err
	}
	msgs := make([]llms.ChatMessage, 0, len(entries))
	for _, e := range entries {
		switch {
		case strings.HasPrefix(e, HumanPrefix):
			msgs = append(msgs, llms.HumanChatMessage{Content: strings.TrimPrefix(e, HumanPrefix)})
		case strings.HasPrefix(e, AIPrefix):
			msgs = append(msgs, llms.AIChatMessage{Content: strings.TrimPrefix(e, AIPrefix)})
		default:
			return nil, fmt.Errorf("found unsupported message type: %s", e)
		}
	}
	return msgs, nil
}

func (h *ChatMessageHistory) Clear(ctx context.Context) error {
	return h.file.delete(ctx)
}

// SetMessages replaces the stored conversation with msgs.
func (h *ChatMessageHistory) SetMessages(ctx context.Context, msgs []llms.ChatMessage) error {
	if err := h.Clear(ctx); err != nil {
		return err
	}
	for _, m := range msgs {
		if err := h.AddMessage(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
