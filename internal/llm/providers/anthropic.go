package providers

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/modelcouncil/council/internal/llm"
)

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
}

// AnthropicClient implements llm.Client over the Anthropic Messages API.
type AnthropicClient struct {
	client  anthropic.Client
	retrier retrier
}

// NewAnthropicClient builds an AnthropicClient. APIKey is required.
func NewAnthropicClient(config AnthropicConfig) (*AnthropicClient, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicClient{
		client:  anthropic.NewClient(opts...),
		retrier: newRetrier("anthropic", config.MaxRetries, config.RetryDelay),
	}, nil
}

func (c *AnthropicClient) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	ch, err := c.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	return llm.Drain(ch)
}

func (c *AnthropicClient) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	chunks := make(chan llm.Chunk)

	go func() {
		defer close(chunks)

		params := c.buildParams(req)

		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		err := c.retrier.run(ctx, isRetryableErr, func() error {
			stream = c.client.Messages.NewStreaming(ctx, params)
			return nil
		})
		if err != nil {
			chunks <- llm.Chunk{Err: llm.NewCallError("anthropic", req.Model, err)}
			return
		}

		c.processStream(ctx, stream, chunks, req.Model)
	}()

	return chunks, nil
}

func (c *AnthropicClient) buildParams(req llm.CompletionRequest) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  convertMessages(req.Messages),
		MaxTokens: int64(maxTokensOrDefault(req.MaxTokens)),
	}
	system := req.System
	for _, m := range req.Messages {
		if m.Role != llm.RoleSystem {
			continue
		}
		if system != "" {
			system += "\n\n"
		}
		system += m.Content
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

func (c *AnthropicClient) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- llm.Chunk, model string) {
	const maxEmptyStreamEvents = 300
	empty := 0

	for stream.Next() {
		select {
		case <-ctx.Done():
			chunks <- llm.Chunk{Err: ctx.Err()}
			return
		default:
		}

		event := stream.Current()
		switch event.Type {
		case "content_block_delta":
			delta := event.Delta.AsAny()
			if textDelta, ok := delta.(anthropic.TextDelta); ok && textDelta.Text != "" {
				chunks <- llm.Chunk{Text: textDelta.Text}
				empty = 0
				continue
			}
			empty++
		case "message_stop":
			chunks <- llm.Chunk{Done: true}
			return
		case "error":
			chunks <- llm.Chunk{Err: llm.NewCallError("anthropic", model, errors.New(string(event.Type)))}
			return
		default:
			empty++
		}

		if empty > maxEmptyStreamEvents {
			chunks <- llm.Chunk{Err: llm.NewCallError("anthropic", model, errors.New("stream produced too many empty events"))}
			return
		}
	}

	if err := stream.Err(); err != nil {
		chunks <- llm.Chunk{Err: llm.NewCallError("anthropic", model, err)}
		return
	}
	chunks <- llm.Chunk{Done: true}
}

func convertMessages(messages []llm.CompletionMessage) []anthropic.MessageParam {
	var result []anthropic.MessageParam
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			continue // carried via params.System instead
		}
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == llm.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(block))
		} else {
			result = append(result, anthropic.NewUserMessage(block))
		}
	}
	return result
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return 4000
	}
	return n
}

func isRetryableErr(err error) bool {
	return llm.ClassifyError(err).IsRetryable()
}
