package aierrors

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v3"
)

// Code is a coarse classification of a completion failure, used as a log field and metric label.
type Code string

const (
	CodeNone        Code = ""
	CodeRateLimited Code = "rate_limited"
	CodeAuthFailed  Code = "auth_failed"
	CodeBilling     Code = "billing"
	CodeOverloaded  Code = "overloaded"
	CodeTimeout     Code = "timeout"
	CodeModel       Code = "model_not_found"
	CodeServer      Code = "server_error"
	CodeEmpty       Code = "empty_response"
	CodeUnknown     Code = "unknown"
)

// ErrEmptyResponse is returned when the backend answers without any choices or text.
var ErrEmptyResponse = errors.New("completion returned no content")

// Classify maps an error to a Code. Returns CodeNone for nil.
func Classify(err error) Code {
	switch {
	case err == nil:
		return CodeNone
	case errors.Is(err, ErrEmptyResponse):
		return CodeEmpty
	case IsBillingError(err):
		return CodeBilling
	case IsRateLimitError(err):
		return CodeRateLimited
	case IsAuthError(err):
		return CodeAuthFailed
	case IsModelNotFound(err):
		return CodeModel
	case IsTimeoutError(err):
		return CodeTimeout
	case IsOverloadedError(err):
		return CodeOverloaded
	case IsServerError(err):
		return CodeServer
	default:
		return CodeUnknown
	}
}

// IsRateLimitError checks if the error is a rate limit (429) error
func IsRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if strings.EqualFold(apiErr.Code, "rate_limit_exceeded") {
			return true
		}
		if apiErr.StatusCode == 429 {
			return true
		}
	}
	return ContainsAnyPattern(err, []string{
		"resource_exhausted",
		"too many requests",
		"usage limit",
	})
}

// IsServerError checks if the error is a server-side (5xx) error
func IsServerError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if strings.EqualFold(apiErr.Code, "server_error") {
			return true
		}
		return apiErr.StatusCode >= 500
	}
	return false
}

// IsAuthError checks if the error is an authentication error.
// Checks openai.Error status codes first, then falls back to string pattern matching.
func IsAuthError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 401 || apiErr.StatusCode == 403 {
			return true
		}
	}
	return ContainsAnyPattern(err, []string{
		"invalid api key",
		"invalid_api_key",
		"incorrect api key",
		"unauthorized",
		"forbidden",
	})
}

// IsModelNotFound checks if the error is a model not found (404) error.
// For this backend that means the persona key does not exist.
func IsModelNotFound(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404
	}
	return false
}

// IsBillingError checks if the error indicates exhausted credits.
func IsBillingError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 402 {
		return true
	}
	return ContainsAnyPattern(err, []string{
		"payment required",
		"insufficient credits",
		"credit balance",
		"exceeded your current quota",
		"quota exceeded",
	})
}

// IsOverloadedError checks if the error indicates the service is overloaded
func IsOverloadedError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 503 {
		return true
	}
	return ContainsAnyPattern(err, []string{
		"overloaded",
		"service unavailable",
	})
}

// IsTimeoutError checks if the error is a timeout error
func IsTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return ContainsAnyPattern(err, []string{
		"timeout",
		"timed out",
		"deadline exceeded",
	})
}

// ContainsAnyPattern checks if the lowercased error message contains any of the given patterns.
func ContainsAnyPattern(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range patterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
