package aianthropic

import (
	"net/http"

	"github.com/Abraxas-365/remodel/pkg/errx"
)

var errorRegistry = errx.NewRegistry("ANTHROPIC")

var (
	ErrAPIRequest            = errorRegistry.Register("API_REQUEST_FAILED", errx.TypeExternal, http.StatusBadGateway, "Failed to make request to Anthropic API")
	ErrAPIUnauthorized       = errorRegistry.Register("API_UNAUTHORIZED", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid or missing Anthropic API key")
	ErrAPIRateLimit          = errorRegistry.Register("API_RATE_LIMIT", errx.TypeExternal, http.StatusTooManyRequests, "Anthropic API rate limit exceeded")
	ErrAPIOverloaded         = errorRegistry.Register("API_OVERLOADED", errx.TypeExternal, http.StatusServiceUnavailable, "Anthropic API is overloaded")
	ErrModelNotFound         = errorRegistry.Register("MODEL_NOT_FOUND", errx.TypeValidation, http.StatusNotFound, "Requested model not found or not accessible")
	ErrContextLengthExceeded = errorRegistry.Register("CONTEXT_LENGTH_EXCEEDED", errx.TypeValidation, http.StatusBadRequest, "Plan prompt exceeds the model context")
	ErrEmptyPrompt           = errorRegistry.Register("EMPTY_PROMPT", errx.TypeValidation, http.StatusBadRequest, "Prompt cannot be empty")
	ErrEmptyResponse         = errorRegistry.Register("EMPTY_RESPONSE", errx.TypeExternal, http.StatusBadGateway, "Response contained no text")
	ErrMissingAPIKey         = errorRegistry.Register("MISSING_API_KEY", errx.TypeValidation, http.StatusBadRequest, "Anthropic API key not provided")
)

var messageRules = []errx.Rule{
	{Code: ErrAPIUnauthorized, Contains: []string{"unauthorized", "invalid x-api-key", "authentication_error"}},
	{Code: ErrAPIRateLimit, Contains: []string{"rate limit", "rate_limit"}},
	{Code: ErrAPIOverloaded, Contains: []string{"overloaded"}},
	{Code: ErrModelNotFound, Contains: []string{"not_found"}, Also: "model"},
	{Code: ErrContextLengthExceeded, Contains: []string{"prompt is too long", "too many tokens"}},
}

// ParseAnthropicError maps an SDK error to an errx.Error.
func ParseAnthropicError(err error) *errx.Error {
	return errorRegistry.Classify(err, ErrAPIRequest, messageRules...)
}
