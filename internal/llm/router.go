package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNoProviders is returned by a Router with an empty chain.
var ErrNoProviders = errors.New("no model providers configured")

// Result is a Response together with who served it.
type Result struct {
	Response     *Response
	Provider     string
	UsedFallback bool
}

// Router sends each request to the first provider in order and moves on to
// the next one only when a provider is overloaded.
type Router struct {
	providers []Provider
	timeout   time.Duration
}

// NewRouter creates a router over providers in priority order. A positive
// timeout bounds every single provider call; hitting it counts as overload.
func NewRouter(timeout time.Duration, providers ...Provider) *Router {
	return &Router{providers: providers, timeout: timeout}
}

// Primary returns the name of the first provider.
func (r *Router) Primary() string {
	if len(r.providers) == 0 {
		return ""
	}
	return r.providers[0].Name()
}

// Providers returns the provider names in order.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}
	return names
}

// Generate runs req against the provider chain. Each provider converts the
// neutral history and tool catalog into its own format, so every attempt
// sees the identical logical turn.
func (r *Router) Generate(ctx context.Context, req *Request) (*Result, error) {
	if len(r.providers) == 0 {
		return nil, ErrNoProviders
	}

	var attempts []*ProviderError
	for i, p := range r.providers {
		resp, err := r.call(ctx, p, req)
		if err == nil {
			if i > 0 {
				slog.Info("Model request served by fallback provider",
					"provider", p.Name(),
					"primary", r.providers[0].Name())
			}
			return &Result{Response: resp, Provider: p.Name(), UsedFallback: i > 0}, nil
		}

		// The caller gave up; no provider can help.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", p.Name(), ctx.Err())
		}

		overloaded := IsOverloaded(err)
		perr := &ProviderError{Provider: p.Name(), Overloaded: overloaded, Err: err}
		if !overloaded {
			if len(attempts) == 0 {
				return nil, perr
			}
			// Every provider tried has failed; report them together.
			return nil, &ExhaustedError{Attempts: append(attempts, perr)}
		}

		slog.Warn("Model provider overloaded, trying next",
			"provider", p.Name(),
			"attempt", i+1,
			"error", err)
		attempts = append(attempts, perr)
	}

	return nil, &ExhaustedError{Attempts: attempts}
}

func (r *Router) call(ctx context.Context, p Provider, req *Request) (*Response, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	resp, err := p.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%s returned no response", p.Name())
	}
	return resp, nil
}
