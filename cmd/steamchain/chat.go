package main

import (
	"strings"

	"github.com/tmc/langchaingo/chains"
	lcmemory "github.com/tmc/langchaingo/memory"
	"github.com/tmc/langchaingo/schema"

	"steamchain/internal/callbacks"
	"steamchain/internal/chat"
	"steamchain/internal/memory"
)

// ChatCmd sends one message in a conversation kept in the workspace.
type ChatCmd struct {
	Message []string `arg:"" optional:"" help:"Message to send"`
	Session string   `short:"s" default:"default" help:"Conversation to continue"`
	Window  int      `help:"Only remember the last N exchanges (0 keeps everything)"`
	History bool     `help:"Store the conversation as individual chat messages"`
	Reset   bool     `help:"Forget the conversation before sending"`
}

func (c *ChatCmd) memory(e *env) schema.Memory {
	switch {
	case c.History:
		history := memory.NewChatMessageHistory(e.client, c.Session)
		return lcmemory.NewConversationBuffer(lcmemory.WithChatHistory(history))
	case c.Window > 0:
		return memory.NewConversationWindow(e.client, "chat-"+c.Session, c.Window)
	default:
		return memory.NewConversationBuffer(e.client, "chat-"+c.Session)
	}
}

// Run executes the chat command.
func (c *ChatCmd) Run(cli *CLI) error {
	e, err := cli.env()
	if err != nil {
		return err
	}
	ctx, cancel := runContext()
	defer cancel()

	mem := c.memory(e)
	if c.Reset {
		if err := mem.Clear(ctx); err != nil {
			return err
		}
		e.log.Info("conversation cleared", "session", c.Session)
	}
	message := strings.TrimSpace(strings.Join(c.Message, " "))
	if message == "" {
		return nil
	}

	model, err := chat.New(e.client,
		chat.WithModel(e.cfg.Chat.Model),
		chat.WithTemperature(e.cfg.Chat.Temperature),
		chat.WithModerateOutput(e.cfg.Chat.ModerateOutput),
	)
	if err != nil {
		return err
	}

	var answer string
	err = stage("Thinking", func() (string, error) {
		conv := chains.NewConversation(model, mem)
		answer, err = chains.Run(ctx, conv, message, chains.WithCallback(callbacks.NewLogging(e.log)))
		return "", err
	})
	if err != nil {
		return err
	}
	return cli.print(strings.TrimSpace(answer) + "\n")
}
