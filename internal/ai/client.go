package ai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/camuig/paper-trader/internal/config"
	"github.com/camuig/paper-trader/internal/logger"
)

// chatCompleter is the part of openai.Client the signal client uses.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client asks an OpenAI-compatible chat model (DeepSeek by default) for trade
// setups.
type Client struct {
	chat   chatCompleter
	model  string
	cfg    *config.Config
	logger *logger.Logger
}

func NewClient(cfg *config.Config, log *logger.Logger) *Client {
	ocfg := openai.DefaultConfig(cfg.AI.APIKey)
	ocfg.BaseURL = cfg.AI.BaseURL

	return &Client{
		chat:   openai.NewClientWithConfig(ocfg),
		model:  cfg.AI.Model,
		cfg:    cfg,
		logger: log,
	}
}

// Signals returns the parsed setups and the raw model response.
func (c *Client) Signals(ctx context.Context, req *SignalRequest) ([]Signal, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AITimeout())
	defer cancel()

	c.logger.Info("requesting trade signals",
		"strategy", req.Strategy.Name,
		"price", req.Price,
		"open_trades", len(req.OpenTrades))

	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildUserPrompt(req)},
		},
	})
	if err != nil {
		return nil, "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, "", errors.New("model returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	c.logger.Debug("AI raw response", "strategy", req.Strategy.Name, "content", raw)

	signals, err := ParseSignals(raw)
	if err != nil {
		return nil, raw, fmt.Errorf("parse AI response: %w", err)
	}
	return signals, raw, nil
}
