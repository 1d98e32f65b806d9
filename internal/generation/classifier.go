package generation

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/vertex-studio/internal/redact"
)

// ErrorKind names a category of provider failure.
type ErrorKind string

// The nine failure categories, in the order Classify tests them. The string
// values are the errorType reported to clients.
const (
	KindCensorship ErrorKind = "content_censorship"
	KindAuth       ErrorKind = "auth_error"
	KindCredits    ErrorKind = "insufficient_credits"
	KindRateLimit  ErrorKind = "rate_limit"
	KindOverload   ErrorKind = "server_overload"
	KindGeo        ErrorKind = "geo_restriction"
	KindTimeout    ErrorKind = "timeout"
	KindSystem     ErrorKind = "system_error"
	KindUnknown    ErrorKind = "unknown_error"
)

// ClassifiedError is a provider failure mapped onto the error taxonomy,
// carrying what the caller needs to render it to a user.
type ClassifiedError struct {
	Kind            ErrorKind
	UserMessage     string
	Suggestions     []string
	Retryable       bool
	OriginalStatus  int
	OriginalMessage string
	Err             error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.OriginalMessage)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status to answer the client with: the upstream
// status when it is an error status, otherwise 500.
func (e *ClassifiedError) HTTPStatus() int {
	if e.OriginalStatus >= 400 && e.OriginalStatus <= 599 {
		return e.OriginalStatus
	}
	return http.StatusInternalServerError
}

// FullMessage renders the user message followed by the suggestion list.
func (e *ClassifiedError) FullMessage() string {
	if len(e.Suggestions) == 0 {
		return e.UserMessage
	}
	return e.UserMessage + "\n\nSuggestions:\n• " + strings.Join(e.Suggestions, "\n• ")
}

var censorshipKeywords = []string{
	"content policy",
	"policy violation",
	"unsafe content",
	"inappropriate content",
	"content filter",
	"content blocked",
	"content rejected",
	"moderation",
	"safety filter",
	"content safety",
	"violates our",
	"against our policy",
	"content guidelines",
	"safety guidelines",
	"harmful content",
	"inappropriate request",
	"content not allowed",
	"prohibited content",
	"content violation",
	"safety violation",
}

var censorshipCodes = map[string]struct{}{
	"content_policy_violation": {},
	"safety_violation":         {},
	"content_filtered":         {},
	"inappropriate_content":    {},
}

var censorshipTypes = map[string]struct{}{
	"content_policy_violation": {},
	"safety_filter":            {},
	"content_filter":           {},
}

var overloadKeywords = []string{
	"server overload",
	"too many concurrent",
	"service unavailable",
	"capacity exceeded",
	"temporarily unavailable",
	"server busy",
	"high demand",
	"resource limit",
	"queue full",
	"processing limit",
}

// failureFacts is the normalized view of a failure that the rules match on.
type failureFacts struct {
	status  int
	message string
	lower   string
	code    string
	typ     string
}

func factsOf(err error) failureFacts {
	facts := failureFacts{message: "Unknown error"}
	if err == nil {
		facts.lower = strings.ToLower(facts.message)
		return facts
	}

	facts.message = err.Error()
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		facts.status, _ = providerErr.status()
		facts.code = strings.ToLower(providerErr.Code)
		facts.typ = strings.ToLower(providerErr.Type)
		if providerErr.Message != "" {
			facts.message = providerErr.Message
		}
	}
	facts.lower = strings.ToLower(facts.message)
	return facts
}

func (f failureFacts) contains(keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(f.lower, kw) {
			return true
		}
	}
	return false
}

// Classify maps a terminal failure onto one of the nine error kinds. Rules
// are tested in a fixed order and the first match wins.
//
// Parameters:
//   - err: the failure returned by the provider (after retries)
//   - requestCount: the number of images in the originating request, used to
//     tailor suggestions; zero when not known
//
// Returns:
//   - A ClassifiedError wrapping err. A nil err classifies as KindUnknown.
func Classify(err error, requestCount int) *ClassifiedError {
	f := factsOf(err)
	c := &ClassifiedError{
		OriginalStatus:  f.status,
		OriginalMessage: f.message,
		Err:             err,
	}

	switch {
	case f.isCensorship():
		c.Kind = KindCensorship
		c.UserMessage = "🚫 The request was rejected by the content moderation of Vertex AI."
		c.Suggestions = []string{
			"Rephrase the prompt",
			"Remove potentially inappropriate words or descriptions",
			"Use a more neutral wording",
		}

	case f.status == http.StatusUnauthorized || f.status == http.StatusForbidden:
		c.Kind = KindAuth
		if f.contains("consumer_invalid", "permission denied") {
			c.UserMessage = "🔑 The Vertex AI API is not enabled or not accessible for this Google Cloud project."
			c.Suggestions = []string{
				"Enable the Vertex AI API in the Google Cloud Console (APIs & Services > Library)",
				"Wait 2-3 minutes after enabling the API",
				"Check that billing is enabled for the project",
			}
		} else {
			c.UserMessage = "🔑 Vertex AI authentication failed."
			c.Suggestions = []string{
				"Check the service account key file",
				"Make sure the service account has the \"Vertex AI User\" role",
				"Check the Google Cloud project settings",
			}
		}

	case f.status == http.StatusPaymentRequired || f.contains("insufficient", "credits", "quota"):
		c.Kind = KindCredits
		c.UserMessage = "💳 The Google Cloud quota is exhausted or the account is out of credits."
		c.Suggestions = []string{
			"Check the quotas in the Google Cloud Console",
			"Request a quota increase",
			"Check the billing account",
		}

	case f.status == http.StatusTooManyRequests || f.contains("rate limit", "too many requests"):
		c.Kind = KindRateLimit
		c.Retryable = true
		c.UserMessage = "⏰ Vertex AI request limit exceeded. Please wait before trying again."
		c.Suggestions = []string{
			"Wait a few minutes",
			"Reduce the number of concurrent requests",
		}
		if requestCount > 2 {
			c.Suggestions = append(c.Suggestions,
				fmt.Sprintf("Reduce the number of images to %d", max(1, requestCount/2)))
		}

	case f.status == http.StatusBadGateway || f.status == http.StatusServiceUnavailable ||
		f.status == http.StatusGatewayTimeout || f.contains(overloadKeywords...):
		c.Kind = KindOverload
		c.Retryable = true
		c.UserMessage = "🖥️ Vertex AI servers are overloaded. Please try again later."
		c.Suggestions = []string{
			"Wait 5-10 minutes",
			"Try another region (us-east1, europe-west1)",
		}
		if requestCount > 1 {
			c.Suggestions = append(c.Suggestions, "Reduce the number of images")
		}

	case f.contains("country", "location", "region") && f.contains("not supported"):
		c.Kind = KindGeo
		c.UserMessage = "🌍 The requested model is not available in your region."
		c.Suggestions = []string{
			"Use a VPN with a server in a supported region",
			"Try another model",
			"Contact the administrator",
		}

	case f.status == http.StatusRequestTimeout || f.contains("timeout", "time out"):
		c.Kind = KindTimeout
		c.Retryable = true
		c.UserMessage = "⏱️ Timed out waiting for a response from Vertex AI."
		c.Suggestions = []string{"Try again"}
		if requestCount > 2 {
			c.Suggestions = append(c.Suggestions,
				fmt.Sprintf("Reduce the number of images to %d", requestCount/2))
		}
		c.Suggestions = append(c.Suggestions, "Check your internet connection")

	case f.status >= 500 && f.status < 600:
		c.Kind = KindSystem
		c.Retryable = true
		c.UserMessage = "⚠️ Vertex AI system error."
		c.Suggestions = []string{
			"Try again in a few minutes",
			"Check the Google Cloud status page",
			"Try another region",
		}

	default:
		c.Kind = KindUnknown
		c.Retryable = true
		c.UserMessage = "❓ Unknown Vertex AI error: " + redact.String(f.message)
		c.Suggestions = []string{
			"Try again",
			"Check the prompt",
			"Contact Google Cloud support",
		}
	}

	return c
}

func (f failureFacts) isCensorship() bool {
	if (f.status == http.StatusBadRequest || f.status == http.StatusUnprocessableEntity) &&
		f.contains(censorshipKeywords...) {
		return true
	}
	if _, ok := censorshipCodes[f.code]; ok {
		return true
	}
	_, ok := censorshipTypes[f.typ]
	return ok
}
