// Package generation produces career documents through an OpenAI-compatible
// chat completions endpoint, with a local fallback when the backend fails.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "careerkit-credits/internal/common/errors"
	commonhttp "careerkit-credits/internal/common/http"
	"careerkit-credits/internal/common/logger"
	"careerkit-credits/internal/common/metrics"
	"careerkit-credits/pkg/catalog"
)

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	MaxTokens   int
	Temperature float64
}

type Request struct {
	Feature string                 `json:"feature"`
	Input   map[string]interface{} `json:"input"`
}

// Result is a generated document. Content is a decoded JSON value for json
// features and an HTML string for html features.
type Result struct {
	Feature  string         `json:"feature"`
	Format   catalog.Format `json:"format"`
	Content  interface{}    `json:"content"`
	Fallback bool           `json:"fallback"`
	Reason   string         `json:"reason,omitempty"`
}

type Generator struct {
	config Config
	client *commonhttp.Client
	logger logger.Logger
}

func New(cfg Config, log logger.Logger) *Generator {
	return &Generator{
		config: cfg,
		client: commonhttp.NewClient(cfg.Timeout, cfg.MaxRetries),
		logger: log.WithFields(map[string]interface{}{"component": "generator"}),
	}
}

// Generate returns a document for req. Only an unknown feature is an error;
// any backend problem yields the fallback document.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	feature, ok := catalog.LookupFeature(req.Feature)
	if !ok {
		return nil, apperrors.NewUnknownFeatureError(req.Feature)
	}
	if req.Input == nil {
		req.Input = map[string]interface{}{}
	}

	start := time.Now()
	content, err := g.complete(ctx, feature, req.Input)
	metrics.GenerationDuration.WithLabelValues(feature.Name).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.GenerationRequests.WithLabelValues(feature.Name, "backend").Inc()
		return &Result{Feature: feature.Name, Format: feature.Format, Content: content}, nil
	}

	reason := classify(err)
	cause := backendError(err)
	g.logger.Warn("generation backend failed, using fallback", map[string]interface{}{
		"feature":   feature.Name,
		"reason":    reason,
		"code":      string(cause.Code),
		"retryable": apperrors.IsRetryableErrorCode(cause.Code),
		"error":     err.Error(),
	})
	metrics.GenerationRequests.WithLabelValues(feature.Name, "fallback").Inc()
	return &Result{
		Feature:  feature.Name,
		Format:   feature.Format,
		Content:  Fallback(feature, req.Input),
		Fallback: true,
		Reason:   reason,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

var errEmptyCompletion = errors.New("empty completion")

func (g *Generator) complete(ctx context.Context, feature catalog.Feature, input map[string]interface{}) (interface{}, error) {
	if g.config.APIKey == "" {
		return nil, errors.New("generation backend not configured")
	}

	system, user := BuildPrompt(feature, input)
	body := chatRequest{
		Model: g.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
	}

	var resp chatResponse
	url := strings.TrimSuffix(g.config.BaseURL, "/") + "/chat/completions"
	err := g.client.PostJSON(ctx, url, map[string]string{"Authorization": "Bearer " + g.config.APIKey}, body, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, errEmptyCompletion
	}

	return Parse(feature.Format, resp.Choices[0].Message.Content)
}

// backendError wraps a backend failure in the matching generation error.
func backendError(err error) *apperrors.StandardError {
	if errors.Is(err, commonhttp.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewGenerationTimeoutError()
	}
	return apperrors.NewGenerationFailedError(err)
}

func classify(err error) string {
	switch {
	case errors.Is(err, commonhttp.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return string(apperrors.ErrCodeGenerationTimeout)
	case errors.Is(err, errEmptyCompletion), errors.Is(err, ErrMalformedOutput):
		return "MALFORMED_OUTPUT"
	default:
		var se *commonhttp.StatusError
		if errors.As(err, &se) {
			return fmt.Sprintf("%s_%d", apperrors.ErrCodeGenerationFailed, se.StatusCode)
		}
		return string(apperrors.ErrCodeGenerationFailed)
	}
}
