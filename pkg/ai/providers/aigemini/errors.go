package aigemini

import (
	"net/http"

	"github.com/Abraxas-365/remodel/pkg/errx"
)

var errorRegistry = errx.NewRegistry("GEMINI")

var (
	ErrAPIRequest      = errorRegistry.Register("API_REQUEST_FAILED", errx.TypeExternal, http.StatusBadGateway, "Failed to make request to Gemini API")
	ErrAPIUnauthorized = errorRegistry.Register("API_UNAUTHORIZED", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid or missing Gemini API key")
	ErrAPIRateLimit    = errorRegistry.Register("API_RATE_LIMIT", errx.TypeExternal, http.StatusTooManyRequests, "Gemini API rate limit exceeded")
	ErrModelNotFound   = errorRegistry.Register("MODEL_NOT_FOUND", errx.TypeValidation, http.StatusNotFound, "Image model not found or not accessible")
	ErrContentBlocked  = errorRegistry.Register("CONTENT_BLOCKED", errx.TypeBusiness, http.StatusUnprocessableEntity, "Prompt was blocked by the safety filters")
	ErrNoImage         = errorRegistry.Register("NO_IMAGE", errx.TypeExternal, http.StatusBadGateway, "Gemini response contained no image")
	ErrMissingAPIKey   = errorRegistry.Register("MISSING_API_KEY", errx.TypeValidation, http.StatusBadRequest, "Gemini API key not provided")
	ErrClientInit      = errorRegistry.Register("CLIENT_INIT_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Failed to create Gemini client")
)

// messageRules classify genai errors, which only expose their text.
var messageRules = []errx.Rule{
	{Code: ErrAPIUnauthorized, Contains: []string{"unauthorized", "api key not valid", "invalid api key", "permission denied"}},
	{Code: ErrAPIRateLimit, Contains: []string{"rate limit", "resource exhausted", "resource_exhausted", "quota"}},
	{Code: ErrModelNotFound, Contains: []string{"not found"}, Also: "model"},
	{Code: ErrContentBlocked, Contains: []string{"safety", "blocked"}},
}

// ParseGeminiError maps a Gemini SDK error to an errx.Error.
func ParseGeminiError(err error) *errx.Error {
	return errorRegistry.Classify(err, ErrAPIRequest, messageRules...)
}
