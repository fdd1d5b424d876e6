package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/roomscape/roomscape-api/internal/logger"
)

const (
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
	providerNameOpenRouter = "openrouter"
)

// OpenRouterProvider implements Provider against the OpenRouter chat
// completions endpoint. OpenRouter is OpenAI wire compatible, so the official
// SDK is pointed at its base URL.
type OpenRouterProvider struct {
	client *openai.Client
	apiKey string
}

// NewOpenRouterProvider creates a provider. siteURL and siteName become the
// HTTP-Referer / X-Title attribution headers OpenRouter asks for.
func NewOpenRouterProvider(apiKey, siteURL, siteName string) *OpenRouterProvider {
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(openRouterBaseURL),
		option.WithHeader("HTTP-Referer", siteURL),
		option.WithHeader("X-Title", siteName),
	)
	return &OpenRouterProvider{
		client: &client,
		apiKey: apiKey,
	}
}

// Name returns the provider name
func (p *OpenRouterProvider) Name() string {
	return providerNameOpenRouter
}

// Complete sends a single-message chat request.
func (p *OpenRouterProvider) Complete(ctx context.Context, request *ChatRequest) (*ChatResponse, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY not configured: %w", ErrMissingAPIKey)
	}

	transaction := sentry.StartTransaction(ctx, "openrouter.complete")
	defer transaction.Finish()
	transaction.SetTag("model", request.Model)
	transaction.SetTag("provider", providerNameOpenRouter)

	logger.Info("sending chat completion request", logger.Fields{
		"provider":      providerNameOpenRouter,
		"model":         request.Model,
		"prompt_length": len(request.Prompt),
	})

	span := transaction.StartChild("openrouter.api_call")
	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(request.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(request.Prompt),
		},
	})
	span.Finish()

	if err != nil {
		transaction.SetTag("success", "false")
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			logger.Error("chat completion failed", err, logger.Fields{
				"provider":    providerNameOpenRouter,
				"model":       request.Model,
				"status_code": apiErr.StatusCode,
			})
			return nil, fmt.Errorf("chat completion returned status %d: %w", apiErr.StatusCode, err)
		}
		logger.Error("chat completion failed", err, logger.Fields{
			"provider": providerNameOpenRouter,
			"model":    request.Model,
		})
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	logger.Info("chat completion succeeded", logger.Fields{
		"provider":      providerNameOpenRouter,
		"model":         request.Model,
		"duration_ms":   time.Since(start).Milliseconds(),
		"total_tokens":  resp.Usage.TotalTokens,
		"output_tokens": resp.Usage.CompletionTokens,
	})
	transaction.SetTag("success", "true")

	out := &ChatResponse{
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		RawBody: resp.RawJSON(),
	}
	for _, choice := range resp.Choices {
		out.Choices = append(out.Choices, ChatChoice{
			Message: ChatMessage{
				Role:    string(choice.Message.Role),
				Content: choice.Message.Content,
			},
		})
	}
	return out, nil
}
