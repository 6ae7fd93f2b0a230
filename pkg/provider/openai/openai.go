// Package openai adapts the OpenAI chat completions API to the two
// completion flows the bot runs: casual chat and log analysis.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Moitr/stardew-qq-wikibot/pkg/config"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

type Client struct {
	client         osdk.Client
	chat           config.CompletionModel
	smapi          config.CompletionModel
	requestTimeout time.Duration
}

func New(cfg config.OpenAIConfig) (*Client, error) {
	apiKey := resolveAPIKey(cfg)
	if apiKey == "" {
		return nil, errors.New("openai.api_key_env is required or OPENAI_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.Chat.Model) == "" {
		return nil, errors.New("openai.ai_chat.model is required")
	}
	if strings.TrimSpace(cfg.Smapi.Model) == "" {
		return nil, errors.New("openai.ai_chat_smapi.model is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	requestTimeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	return &Client{
		client:         osdk.NewClient(opts...),
		chat:           cfg.Chat,
		smapi:          cfg.Smapi,
		requestTimeout: requestTimeout,
	}, nil
}

// Chat answers a group-chat message addressed to the bot.
func (c *Client) Chat(ctx context.Context, text string) (string, error) {
	return c.complete(ctx, "chat", c.chat, text)
}

// AnalyzeLog summarizes a cleaned game log.
func (c *Client) AnalyzeLog(ctx context.Context, logText string) (string, error) {
	return c.complete(ctx, "analyze_log", c.smapi, logText)
}

func (c *Client) complete(ctx context.Context, operation string, model config.CompletionModel, input string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", operation)
	startedAt := time.Now()

	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("input is required")
	}
	log.Debug("provider request started", "model", model.Model, "input_length", len(input))

	messages := []osdk.ChatCompletionMessageParamUnion{}
	if prompt := strings.TrimSpace(model.SystemPrompt); prompt != "" {
		messages = append(messages, osdk.SystemMessage(prompt))
	}
	messages = append(messages, osdk.UserMessage(input))

	stream := c.client.Chat.Completions.NewStreaming(ctx, osdk.ChatCompletionNewParams{
		Model:    osdk.ChatModel(model.Model),
		Messages: messages,
	})

	var output strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 {
			output.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", fmt.Errorf("completion failed: %w", err)
	}

	text := strings.TrimSpace(output.String())
	if text == "" {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", "no output text")
		return "", errors.New("completion succeeded but returned no text")
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))

	return text, nil
}

func providerLogger() *slog.Logger {
	return slog.Default().With("component", "provider.openai")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func resolveAPIKey(cfg config.OpenAIConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}
