package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// statusOverloaded is Anthropic's "overloaded" status.
const statusOverloaded = 529

var overloadSignals = []string{
	"overloaded",
	"quota",
	"rate limit",
	"rate_limit",
	"too many requests",
	"resource exhausted",
	"resource_exhausted",
}

// IsOverloaded reports whether err means the provider is rate limited,
// overloaded or did not answer in time. Such errors trigger fallback; every
// other error is a hard failure.
func IsOverloaded(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) && overloadedStatus(gerr.Code) {
		return true
	}
	var oerr *openai.APIError
	if errors.As(err, &oerr) && overloadedStatus(oerr.HTTPStatusCode) {
		return true
	}
	var rerr *openai.RequestError
	if errors.As(err, &rerr) && overloadedStatus(rerr.HTTPStatusCode) {
		return true
	}
	var aerr *anthropic.Error
	if errors.As(err, &aerr) && overloadedStatus(aerr.StatusCode) {
		return true
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, s := range overloadSignals {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func overloadedStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable || code == statusOverloaded
}

// ProviderError records which provider failed and how.
type ProviderError struct {
	Provider   string
	Overloaded bool
	Err        error
}

func (e *ProviderError) Error() string {
	kind := "failed"
	if e.Overloaded {
		kind = "overloaded"
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ExhaustedError is returned when no provider could serve a request: every
// attempt but the last was overloaded, and the last one failed either way.
type ExhaustedError struct {
	Attempts []*ProviderError
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Error())
	}
	return "all model providers failed: " + strings.Join(parts, "; ")
}

// Overloaded reports whether every attempt failed because of load.
func (e *ExhaustedError) Overloaded() bool {
	for _, a := range e.Attempts {
		if !a.Overloaded {
			return false
		}
	}
	return true
}

func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a)
	}
	return errs
}
