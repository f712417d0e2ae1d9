package tryon

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/weliakcay/mirrorly-app/internal/fetch"
)

// Category is the closed taxonomy of user-facing failure classes. Every
// reachable failure path of the pipeline terminates in exactly one Category;
// raw technical detail never reaches the shopper.
type Category string

const (
	CategoryMissingCredentials    Category = "missing_credentials"
	CategoryInvalidCredentials    Category = "invalid_credentials"
	CategoryRateLimited           Category = "rate_limited"
	CategorySafetyRefusal         Category = "safety_refusal"
	CategoryUnrecognizableSubject Category = "unrecognizable_subject"
	CategoryGarmentFetchFailed    Category = "garment_fetch_failed"
	CategoryTimeout               Category = "timeout"
	CategoryNetworkError          Category = "network_error"
	CategoryEmptyResult           Category = "empty_result"
	CategoryInsufficientCredits   Category = "insufficient_credits"
	CategoryUnknown               Category = "unknown"
)

// Retryable reports whether re-running the same pipeline with the same inputs
// can plausibly succeed. Credential problems need an out-of-band fix first.
func (c Category) Retryable() bool {
	switch c {
	case CategoryMissingCredentials, CategoryInvalidCredentials, CategoryInsufficientCredits:
		return false
	default:
		return true
	}
}

// Classify maps a pipeline failure to its Category. It is total: any error,
// including nil or something never seen before, yields a category and never
// panics.
//
// Textual refusal matching is an interim heuristic, centralized here so the
// rules stay testable and swappable for structured error codes if the remote
// API ever provides them.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	switch {
	case errors.Is(err, ErrMissingAPIKey):
		return CategoryMissingCredentials
	case errors.Is(err, fetch.ErrGarmentUnavailable):
		return CategoryGarmentFetchFailed
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case errors.Is(err, ErrEmptyResponse):
		return CategoryEmptyResult
	}

	var refusal *RefusalError
	if errors.As(err, &refusal) {
		return classifyRefusal(refusal)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403:
			return CategoryInvalidCredentials
		case 429:
			return CategoryRateLimited
		}
		return classifyMessage(apiErr.Message)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetworkError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetworkError
	}

	return classifyMessage(err.Error())
}

// classifyRefusal mines the model's textual reply for a category.
func classifyRefusal(r *RefusalError) Category {
	if r.SafetyBlocked {
		return CategorySafetyRefusal
	}
	low := strings.ToLower(r.Text)
	if containsAny(low,
		"identify a person", "no person", "cannot see a person",
		"detect a person", "couldn't find a person", "unable to find a person",
	) {
		return CategoryUnrecognizableSubject
	}
	if containsAny(low,
		"safety", "policy", "cannot generate", "can't generate",
		"could not generate", "unable to generate", "not able to create", "refuse",
	) {
		return CategorySafetyRefusal
	}
	if strings.TrimSpace(r.Text) == "" {
		return CategoryEmptyResult
	}
	return CategoryUnknown
}

// classifyMessage applies coarse string heuristics for errors that carry no
// structure at all.
func classifyMessage(msg string) Category {
	low := strings.ToLower(msg)
	switch {
	case containsAny(low, "api key not valid", "api_key_invalid", "permission denied", "unauthenticated"):
		return CategoryInvalidCredentials
	case containsAny(low, "quota", "rate limit", "resource exhausted", "resource_exhausted"):
		return CategoryRateLimited
	case containsAny(low, "connection refused", "no such host", "network is unreachable", "broken pipe", "connection reset"):
		return CategoryNetworkError
	case containsAny(low, "deadline exceeded", "timed out", "timeout"):
		return CategoryTimeout
	default:
		return CategoryUnknown
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// messages holds the localized, user-safe line for each category. The shopper
// always gets one of these, never the raw failure.
var messages = map[Category]string{
	CategoryMissingCredentials:    "The mirror isn't set up yet. Please ask the boutique to finish configuration.",
	CategoryInvalidCredentials:    "The mirror's connection was refused. Please ask the boutique to check its setup.",
	CategoryRateLimited:           "The mirror is very busy right now. Please try again in a moment.",
	CategorySafetyRefusal:         "This photo couldn't be processed. Please try a different photo.",
	CategoryUnrecognizableSubject: "We couldn't spot you in that photo. Please use a clear, well-lit photo of yourself.",
	CategoryGarmentFetchFailed:    "This garment's image couldn't be loaded. Please try another item.",
	CategoryTimeout:               "The mirror took too long to respond. Please try again.",
	CategoryNetworkError:          "We couldn't reach the mirror. Please check your connection and try again.",
	CategoryEmptyResult:           "The mirror came back empty. Please try again.",
	CategoryInsufficientCredits:   "This boutique has used up its try-on allowance. Please check back later.",
	CategoryUnknown:               "The magic mirror is a bit cloudy right now. Please try again.",
}

// Message returns the user-safe message for a category. Unknown categories
// fall back to the generic line.
func Message(c Category) string {
	if m, ok := messages[c]; ok {
		return m
	}
	return messages[CategoryUnknown]
}
