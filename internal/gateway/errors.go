package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/googleapi"
	genai "google.golang.org/genai"
)

// Kind classifies every failure the gateway can surface. Transport errors and
// model refusals are normalized into this taxonomy before they reach callers.
type Kind string

const (
	KindQuotaExhausted    Kind = "quota_exhausted"
	KindServiceOverloaded Kind = "service_overloaded"
	KindPromptBlocked     Kind = "prompt_blocked"
	KindGenerationRefused Kind = "generation_refused"
	KindEmptyResponse     Kind = "empty_response"
	KindCancelled         Kind = "cancelled"
	KindValidation        Kind = "validation"
)

// RefusalReason sub-classifies KindGenerationRefused.
type RefusalReason string

const (
	ReasonSafety     RefusalReason = "safety"
	ReasonRecitation RefusalReason = "recitation"
	ReasonLikeness   RefusalReason = "likeness"
	ReasonOther      RefusalReason = "other"
)

// Error is the gateway's normalized error. Message is human-readable and
// includes guidance; raw provider payloads never pass through.
type Error struct {
	Kind    Kind
	Reason  RefusalReason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the normalized kind of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// MessageOf returns the user-facing message for err. Unclassified errors fall
// back to their plain Error string.
func MessageOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// IsQuota reports whether err is a quota/billing exhaustion failure.
func IsQuota(err error) bool { return KindOf(err) == KindQuotaExhausted }

// IsCancelled reports whether err is the cancellation sentinel. Cancellation
// is not a true failure and must never be rendered as one.
func IsCancelled(err error) bool { return KindOf(err) == KindCancelled }

// IsValidation reports whether err is a local precondition failure that never
// reached the network.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// Validationf builds a local precondition error.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func cancelled() *Error {
	return &Error{Kind: KindCancelled, Message: "cancelled"}
}

func quotaExhausted(err error) *Error {
	return &Error{
		Kind:    KindQuotaExhausted,
		Message: "API quota or billing limit reached. Wait a minute and retry; retries automatically switch to the cheaper image model.",
		Err:     err,
	}
}

func serviceOverloaded(err error) *Error {
	return &Error{
		Kind:    KindServiceOverloaded,
		Message: "The model service is overloaded or unreachable right now. Try again in a moment.",
		Err:     err,
	}
}

func promptBlocked(detail string) *Error {
	msg := "The prompt was blocked by the content policy. Rephrase the scene description and try again."
	if detail != "" {
		msg += " (" + detail + ")"
	}
	return &Error{Kind: KindPromptBlocked, Message: msg}
}

func generationRefused(reason RefusalReason) *Error {
	var msg string
	switch reason {
	case ReasonSafety:
		msg = "The model declined to generate this image for safety reasons. Soften or rephrase the scene description."
	case ReasonRecitation:
		msg = "The model declined because the output resembled copyrighted material. Avoid naming specific artworks or franchises."
	case ReasonLikeness:
		msg = "The model declined to render a real person's likeness. Rephrase to avoid real-person likeness or identifying details."
	default:
		msg = "The model declined to generate this image. Rephrasing the scene description usually helps."
	}
	return &Error{Kind: KindGenerationRefused, Reason: reason, Message: msg}
}

func emptyResponse() *Error {
	return &Error{
		Kind:    KindEmptyResponse,
		Message: "The model returned no usable output and no refusal reason. Retrying usually resolves this.",
	}
}

// normalizeTransport maps SDK and transport-level errors into the taxonomy.
// It is shared by both callers; refusal normalization happens where the
// response body is parsed.
func normalizeTransport(ctx context.Context, err error) *Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || (ctx != nil && ctx.Err() != nil) {
		return cancelled()
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 429:
			return quotaExhausted(err)
		case gerr.Code == 503 || gerr.Code == 529:
			return serviceOverloaded(err)
		}
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429 || apiErr.Status == "RESOURCE_EXHAUSTED":
			return quotaExhausted(err)
		case apiErr.Code == 503 || apiErr.Status == "UNAVAILABLE":
			return serviceOverloaded(err)
		}
	}

	// Some SDK paths only surface the status in the message.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "quota"):
		return quotaExhausted(err)
	case strings.Contains(msg, "503") || strings.Contains(msg, "UNAVAILABLE") || strings.Contains(msg, "overloaded"):
		return serviceOverloaded(err)
	}

	return serviceOverloaded(err)
}

// refusalFromFinishReason maps a candidate finish reason (matched on its wire
// string, so SDK constant churn cannot break classification) to a refusal.
// The empty string and STOP are not refusals.
func refusalFromFinishReason(reason string) *Error {
	switch reason {
	case "", "STOP", "MAX_TOKENS":
		return nil
	case "SAFETY", "IMAGE_SAFETY", "BLOCKLIST":
		return generationRefused(ReasonSafety)
	case "RECITATION", "IMAGE_RECITATION":
		return generationRefused(ReasonRecitation)
	case "PROHIBITED_CONTENT", "SPII", "IMAGE_PROHIBITED_CONTENT":
		return generationRefused(ReasonLikeness)
	default:
		return generationRefused(ReasonOther)
	}
}
