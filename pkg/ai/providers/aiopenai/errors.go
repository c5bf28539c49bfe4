package aiopenai

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/openai/openai-go/v3"
)

var errorRegistry = errx.NewRegistry("OPENAI")

var (
	ErrAPIRequest      = errorRegistry.Register("API_REQUEST_FAILED", errx.TypeExternal, http.StatusBadGateway, "Failed to make request to OpenAI API")
	ErrAPIResponse     = errorRegistry.Register("API_RESPONSE_INVALID", errx.TypeExternal, http.StatusBadGateway, "Invalid response from OpenAI API")
	ErrAPIUnauthorized = errorRegistry.Register("API_UNAUTHORIZED", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid or missing OpenAI API key")
	ErrAPIRateLimit    = errorRegistry.Register("API_RATE_LIMIT", errx.TypeExternal, http.StatusTooManyRequests, "OpenAI API rate limit exceeded")
	ErrModelNotFound   = errorRegistry.Register("MODEL_NOT_FOUND", errx.TypeValidation, http.StatusNotFound, "Image model not found or not accessible")
	ErrInvalidRequest  = errorRegistry.Register("INVALID_REQUEST", errx.TypeValidation, http.StatusBadRequest, "Invalid image request parameters")
	ErrContentPolicy   = errorRegistry.Register("CONTENT_POLICY", errx.TypeBusiness, http.StatusUnprocessableEntity, "Prompt rejected by the content policy")
	ErrNoImage         = errorRegistry.Register("NO_IMAGE", errx.TypeExternal, http.StatusBadGateway, "No image returned in API response")
	ErrMissingAPIKey   = errorRegistry.Register("MISSING_API_KEY", errx.TypeValidation, http.StatusBadRequest, "OpenAI API key not provided")
)

// messageRules apply to transport errors that never reached the API.
var messageRules = []errx.Rule{
	{Code: ErrAPIUnauthorized, Contains: []string{"unauthorized", "invalid api key", "incorrect api key"}},
	{Code: ErrAPIRateLimit, Contains: []string{"rate limit", "rate_limit"}},
	{Code: ErrContentPolicy, Contains: []string{"content_policy", "safety system"}},
}

// ParseOpenAIError maps an SDK error to an errx.Error, preferring the API
// status code when the error carries one.
func ParseOpenAIError(err error) *errx.Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return errorRegistry.NewWithCause(codeForStatus(apiErr.StatusCode, apiErr.Code, apiErr.Message), err).
			WithDetail("status_code", apiErr.StatusCode)
	}
	return errorRegistry.Classify(err, ErrAPIRequest, messageRules...)
}

func codeForStatus(statusCode int, code, message string) *errx.ErrorCode {
	message = strings.ToLower(message)
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ErrAPIUnauthorized
	case statusCode == http.StatusTooManyRequests:
		return ErrAPIRateLimit
	case statusCode == http.StatusNotFound && strings.Contains(message, "model"):
		return ErrModelNotFound
	case statusCode == http.StatusBadRequest && (strings.Contains(code, "content_policy") || strings.Contains(message, "safety system")):
		return ErrContentPolicy
	case statusCode == http.StatusBadRequest:
		return ErrInvalidRequest
	case statusCode >= 500:
		return ErrAPIResponse
	default:
		return ErrAPIRequest
	}
}
