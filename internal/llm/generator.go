// Package llm produces the conversational text around the matching engine:
// patient introductions, preference questions and context-aware answers.
// Eligibility verdicts never depend on it.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/trial-matching-mcp-server/internal/domain"
)

const (
	defaultModel       = "gpt-4o-mini"
	defaultTemperature = 0.7
	defaultTimeout     = 60 * time.Second
	defaultRateLimit   = 2
	defaultMaxFailures = 3
)

// ErrUnavailable is returned while the generation circuit is open.
var ErrUnavailable = errors.New("text generation unavailable")

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OpenAIGenerator calls an OpenAI-compatible chat completion endpoint.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	logger      *logrus.Logger
}

// NewOpenAIGenerator creates a generator from LLM configuration.
func NewOpenAIGenerator(config domain.LLMConfig, logger *logrus.Logger) (*OpenAIGenerator, error) {
	if config.APIKey == "" {
		return nil, domain.NewValidationError("llm.api_key", "an API key is required for text generation", nil)
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.Temperature == 0 {
		config.Temperature = defaultTemperature
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.MaxFailures == 0 {
		config.MaxFailures = defaultMaxFailures
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	maxFailures := config.MaxFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       config.Model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		timeout:     config.Timeout,
		limiter:     rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker:     breaker,
		logger:      logger,
	}, nil
}

// Generate sends the prompt as a single user message and returns the first choice.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait failed: %w", err)
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		req := openai.ChatCompletionRequest{
			Model:       g.model,
			Temperature: g.temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		}
		if g.maxTokens > 0 {
			req.MaxTokens = g.maxTokens
		}

		resp, err := g.client.CreateChatCompletion(callCtx, req)
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("no choices returned")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", ErrUnavailable
		}
		g.logger.WithError(err).WithField("model", g.model).Error("Text generation failed")
		return "", fmt.Errorf("text generation failed: %w", err)
	}

	return result.(string), nil
}
