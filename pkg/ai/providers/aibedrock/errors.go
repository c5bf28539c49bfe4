package aibedrock

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

var errorRegistry = errx.NewRegistry("BEDROCK")

var (
	ErrAPIRequest      = errorRegistry.Register("API_REQUEST_FAILED", errx.TypeExternal, http.StatusBadGateway, "Failed to make request to Bedrock API")
	ErrAPIResponse     = errorRegistry.Register("API_RESPONSE_INVALID", errx.TypeExternal, http.StatusBadGateway, "Invalid response from Bedrock API")
	ErrAPIUnauthorized = errorRegistry.Register("API_UNAUTHORIZED", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid or missing AWS credentials")
	ErrAPIRateLimit    = errorRegistry.Register("API_RATE_LIMIT", errx.TypeExternal, http.StatusTooManyRequests, "Bedrock API rate limit exceeded")
	ErrModelNotFound   = errorRegistry.Register("MODEL_NOT_FOUND", errx.TypeValidation, http.StatusNotFound, "Image model not found or not enabled in this region")
	ErrInvalidRequest  = errorRegistry.Register("INVALID_REQUEST", errx.TypeValidation, http.StatusBadRequest, "Invalid image request parameters")
	ErrContentBlocked  = errorRegistry.Register("CONTENT_BLOCKED", errx.TypeBusiness, http.StatusUnprocessableEntity, "Request blocked by the content filters")
	ErrNoImage         = errorRegistry.Register("NO_IMAGE", errx.TypeExternal, http.StatusBadGateway, "No image returned in API response")
	ErrJSONParsing     = errorRegistry.Register("JSON_PARSING_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Failed to encode or decode the model body")
)

var messageRules = []errx.Rule{
	{Code: ErrAPIUnauthorized, Contains: []string{"unauthorized", "accessdenied", "access denied", "credentials"}},
	{Code: ErrAPIRateLimit, Contains: []string{"throttl", "rate exceeded"}},
	{Code: ErrModelNotFound, Contains: []string{"not found"}, Also: "model"},
	{Code: ErrContentBlocked, Contains: []string{"content filter"}},
}

// ParseBedrockError maps an SDK error to an errx.Error. Typed service
// exceptions win over message matching.
func ParseBedrockError(err error) *errx.Error {
	var (
		throttled *types.ThrottlingException
		denied    *types.AccessDeniedException
		missing   *types.ResourceNotFoundException
		invalid   *types.ValidationException
	)
	switch {
	case errors.As(err, &throttled):
		return errorRegistry.NewWithCause(ErrAPIRateLimit, err)
	case errors.As(err, &denied):
		return errorRegistry.NewWithCause(ErrAPIUnauthorized, err)
	case errors.As(err, &missing):
		return errorRegistry.NewWithCause(ErrModelNotFound, err)
	case errors.As(err, &invalid):
		if isContentFilter(invalid.ErrorMessage()) {
			return errorRegistry.NewWithCause(ErrContentBlocked, err)
		}
		return errorRegistry.NewWithCause(ErrInvalidRequest, err)
	}
	return errorRegistry.Classify(err, ErrAPIRequest, messageRules...)
}

func isContentFilter(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "content filter")
}
