package providers

import (
	"context"
	"errors"
	"time"

	"google.golang.org/genai"

	"github.com/modelcouncil/council/internal/llm"
)

// GoogleConfig configures a GoogleClient.
type GoogleConfig struct {
	APIKey     string
	MaxRetries int
	RetryDelay time.Duration
}

// GoogleClient implements llm.Client over the Gemini GenerateContent API.
type GoogleClient struct {
	client  *genai.Client
	retrier retrier
}

// NewGoogleClient builds a GoogleClient. APIKey is required.
func NewGoogleClient(ctx context.Context, config GoogleConfig) (*GoogleClient, error) {
	if config.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	return &GoogleClient{
		client:  client,
		retrier: newRetrier("google", config.MaxRetries, config.RetryDelay),
	}, nil
}

func (c *GoogleClient) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	ch, err := c.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	return llm.Drain(ch)
}

func (c *GoogleClient) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	chunks := make(chan llm.Chunk)

	go func() {
		defer close(chunks)

		contents := convertGoogleMessages(req.Messages)
		config := buildGoogleConfig(req)

		err := c.retrier.run(ctx, isRetryableErr, func() error {
			streamIter := c.client.Models.GenerateContentStream(ctx, req.Model, contents, config)
			return processGoogleStream(ctx, streamIter, chunks)
		})
		if err != nil {
			chunks <- llm.Chunk{Err: llm.NewCallError("google", req.Model, err)}
			return
		}

		chunks <- llm.Chunk{Done: true}
	}()

	return chunks, nil
}

func processGoogleStream(ctx context.Context, streamIter func(func(*genai.GenerateContentResponse, error) bool), chunks chan<- llm.Chunk) error {
	var streamErr error
	streamIter(func(resp *genai.GenerateContentResponse, err error) bool {
		select {
		case <-ctx.Done():
			streamErr = ctx.Err()
			return false
		default:
		}
		if err != nil {
			streamErr = err
			return false
		}
		if resp == nil {
			return true
		}
		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part != nil && part.Text != "" {
					chunks <- llm.Chunk{Text: part.Text}
				}
			}
		}
		return true
	})
	return streamErr
}

func convertGoogleMessages(messages []llm.CompletionMessage) []*genai.Content {
	var result []*genai.Content
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			continue // carried via GenerateContentConfig.SystemInstruction
		}
		role := genai.RoleUser
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		result = append(result, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return result
}

func buildGoogleConfig(req llm.CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
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
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}
	return config
}
