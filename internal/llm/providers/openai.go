package providers

import (
	"context"
	"errors"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/modelcouncil/council/internal/llm"
)

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
}

// OpenAIClient implements llm.Client over the OpenAI chat completions API.
type OpenAIClient struct {
	client  *openai.Client
	retrier retrier
}

// NewOpenAIClient builds an OpenAIClient. APIKey is required.
func NewOpenAIClient(config OpenAIConfig) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}

	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}

	return &OpenAIClient{
		client:  openai.NewClientWithConfig(cfg),
		retrier: newRetrier("openai", config.MaxRetries, config.RetryDelay),
	}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	ch, err := c.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	return llm.Drain(ch)
}

func (c *OpenAIClient) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	chunks := make(chan llm.Chunk)

	go func() {
		defer close(chunks)

		chatReq := openai.ChatCompletionRequest{
			Model:    req.Model,
			Messages: convertOpenAIMessages(req.Messages, req.System),
			Stream:   true,
		}
		if req.MaxTokens > 0 {
			chatReq.MaxTokens = req.MaxTokens
		}
		if req.Temperature > 0 {
			chatReq.Temperature = float32(req.Temperature)
		}

		var stream *openai.ChatCompletionStream
		err := c.retrier.run(ctx, isRetryableErr, func() error {
			s, err := c.client.CreateChatCompletionStream(ctx, chatReq)
			if err != nil {
				return err
			}
			stream = s
			return nil
		})
		if err != nil {
			chunks <- llm.Chunk{Err: llm.NewCallError("openai", req.Model, err)}
			return
		}

		c.processStream(ctx, stream, chunks, req.Model)
	}()

	return chunks, nil
}

func (c *OpenAIClient) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- llm.Chunk, model string) {
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			chunks <- llm.Chunk{Err: ctx.Err()}
			return
		default:
		}

		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			chunks <- llm.Chunk{Done: true}
			return
		}
		if err != nil {
			chunks <- llm.Chunk{Err: llm.NewCallError("openai", model, err)}
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			chunks <- llm.Chunk{Text: delta}
		}
	}
}

func convertOpenAIMessages(messages []llm.CompletionMessage, system string) []openai.ChatCompletionMessage {
	var result []openai.ChatCompletionMessage
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
			continue
		}
		role := openai.ChatMessageRoleUser
		if m.Role == llm.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		result = append(result, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return result
}
