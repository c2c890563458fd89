package providers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Domain errors for provider resolution and upstream failures. Known
// upstream categories carry actionable messages; anything else is masked
// behind a generic wrapper so internals never leak to clients.
var (
	ErrProviderNotFound = errors.New("no active provider configured")
	ErrInvalidKey       = errors.New("invalid OpenRouter API key, check your provider settings")
	ErrQuotaExceeded    = errors.New("provider quota exceeded, try again later or check your plan")
	ErrModelNotFound    = errors.New("requested model not found on the provider")
	ErrUpstreamFailure  = errors.New("failed to generate response")
)

// ClassifyUpstreamError maps an upstream API error onto the domain
// taxonomy by status code and message shape. No retries happen at this
// layer regardless of category.
func ClassifyUpstreamError(err error) error {
	if err == nil {
		return nil
	}

	status := 0
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		status = reqErr.HTTPStatusCode
	}

	msg := strings.ToLower(err.Error())

	switch {
	case status == 401 || status == 403 || strings.Contains(msg, "invalid api key") || strings.Contains(msg, "incorrect api key"):
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	case status == 429 || strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit"):
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	case status == 404 || strings.Contains(msg, "model not found") || strings.Contains(msg, "no such model"):
		return fmt.Errorf("%w: %v", ErrModelNotFound, err)
	default:
		return fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
}
