package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/haasonsaas/mdflow-engine/internal/observability"
	"github.com/haasonsaas/mdflow-engine/internal/retry"
)

// ModelRoute is one entry of the provider registry: an alias prefix maps to
// a concrete provider name plus the model name that provider expects.
// Kept as a tagged-variant table rather than dynamic attribute lookup (§9).
type ModelRoute struct {
	Alias       string // e.g. "qwen/qwen-max", "gemini", "openai"
	Provider    string // registry key into Registry.providers
	InvokeModel string // the name actually sent to the provider
}

// UsageRecorder is the C10 metering hook the registry calls after every
// completion and stream. Implementations must be best-effort: recording
// failures must never surface to the caller (see usage package).
type UsageRecorder interface {
	RecordLLMUsage(ctx context.Context, provider, model string, isStream bool, usage Usage, latency time.Duration, err error)
}

// nopRecorder is used when the registry is built without a recorder.
type nopRecorder struct{}

func (nopRecorder) RecordLLMUsage(context.Context, string, string, bool, Usage, time.Duration, error) {
}

// Registry resolves model aliases to providers and normalises per-family
// parameters before dispatching.
type Registry struct {
	providers   map[string]Provider
	routes      []ModelRoute
	recorder    UsageRecorder
	retryConfig retry.Config

	logger  *observability.Logger
	metrics *observability.Metrics
}

// SetObservability wires the process-wide structured logger and Prometheus
// metrics into the registry. Either may be nil.
func (r *Registry) SetObservability(logger *observability.Logger, metrics *observability.Metrics) {
	r.logger = logger
	r.metrics = metrics
}

// NewRegistry builds an empty registry. Use Register/Route to populate it.
// Provider calls retry with retry.DefaultConfig(); override via SetRetryConfig.
func NewRegistry() *Registry {
	return &Registry{
		providers:   make(map[string]Provider),
		recorder:    nopRecorder{},
		retryConfig: retry.DefaultConfig(),
	}
}

// SetRetryConfig overrides the backoff policy used to retry a provider's
// Complete/Stream call. A zero-value Config disables retries (MaxAttempts
// normalises to 1 in retry.Do).
func (r *Registry) SetRetryConfig(cfg retry.Config) {
	r.retryConfig = cfg
}

// classifyProviderErr marks context cancellation/deadlines and the
// registry's own resolution errors as permanent, so retry.Do never burns
// attempts on a request that can't succeed by retrying.
func classifyProviderErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Permanent(err)
	}
	var notSupported *ModelNotSupportedError
	if errors.As(err, &notSupported) {
		return retry.Permanent(err)
	}
	return err
}

// Register adds a concrete provider implementation under name.
func (r *Registry) Register(name string, p Provider) {
	r.providers[name] = p
}

// Route adds an alias-resolution rule. Routes are matched in registration
// order, longest/most-specific first is the caller's responsibility.
func (r *Registry) Route(route ModelRoute) {
	r.routes = append(r.routes, route)
}

// SetUsageRecorder wires the C10 metering hook.
func (r *Registry) SetUsageRecorder(rec UsageRecorder) {
	if rec == nil {
		rec = nopRecorder{}
	}
	r.recorder = rec
}

// resolve finds the provider and invoke-model name for an alias.
func (r *Registry) resolve(alias string) (Provider, ModelRoute, error) {
	for _, route := range r.routes {
		if route.Alias == alias || strings.HasPrefix(alias, route.Alias+"/") {
			p, ok := r.providers[route.Provider]
			if !ok {
				return nil, ModelRoute{}, &ModelNotSupportedError{Alias: alias}
			}
			return p, route, nil
		}
	}
	return nil, ModelRoute{}, &ModelNotSupportedError{Alias: alias}
}

// Complete resolves req.Model and issues a non-streaming completion,
// recording usage metering on the way out.
func (r *Registry) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	provider, route, err := r.resolve(req.Model)
	if err != nil {
		return nil, err
	}
	resolved := *req
	resolved.Model = route.InvokeModel
	resolved.Params = ResolveReloadParams(route.Provider, route.InvokeModel, req.Temperature)

	start := time.Now()
	result, attemptResult := retry.DoWithValue(ctx, r.retryConfig, func() (*CompletionResult, error) {
		res, err := provider.Complete(ctx, &resolved)
		return res, classifyProviderErr(err)
	})
	callErr := attemptResult.Err
	if pe, ok := callErr.(*retry.PermanentError); ok {
		callErr = pe.Unwrap()
	}
	latency := time.Since(start)

	var usage Usage
	if result != nil {
		usage = result.Usage
	}
	r.recorder.RecordLLMUsage(ctx, route.Provider, route.InvokeModel, false, usage, latency, callErr)
	r.observe(ctx, route, false, usage, latency, attemptResult.Attempts, callErr)

	if callErr != nil {
		return nil, &RequestFailedError{Model: req.Model, Provider: route.Provider, Err: callErr}
	}
	return result, nil
}

// observe records the logging/metrics side of a Complete/Stream call.
// Best-effort: a nil logger or metrics is a silent no-op.
func (r *Registry) observe(ctx context.Context, route ModelRoute, isStream bool, usage Usage, latency time.Duration, attempts int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	if r.metrics != nil {
		r.metrics.RecordLLMRequest(route.Provider, route.InvokeModel, status, latency.Seconds(), int(usage.InputTokens), int(usage.OutputTokens))
		if err != nil {
			r.metrics.RecordError("llm", "request_failed")
		}
		if attempts > 1 {
			r.metrics.RecordRunAttempt("retry")
		}
	}
	if r.logger == nil {
		return
	}
	if err != nil {
		r.logger.Error(ctx, "llm request failed", "provider", route.Provider, "model", route.InvokeModel, "stream", isStream, "attempts", attempts, "error", err)
		return
	}
	r.logger.Info(ctx, "llm request completed", "provider", route.Provider, "model", route.InvokeModel, "stream", isStream, "attempts", attempts, "duration_ms", latency.Milliseconds())
}

// Stream resolves req.Model and issues a streaming completion. Usage is
// recorded once the stream's terminal chunk arrives (or on early error).
func (r *Registry) Stream(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	provider, route, err := r.resolve(req.Model)
	if err != nil {
		return nil, err
	}
	resolved := *req
	resolved.Model = route.InvokeModel
	resolved.Params = ResolveReloadParams(route.Provider, route.InvokeModel, req.Temperature)

	start := time.Now()
	upstream, attemptResult := retry.DoWithValue(ctx, r.retryConfig, func() (<-chan *CompletionChunk, error) {
		ch, err := provider.Stream(ctx, &resolved)
		return ch, classifyProviderErr(err)
	})
	err = attemptResult.Err
	if pe, ok := err.(*retry.PermanentError); ok {
		err = pe.Unwrap()
	}
	if err != nil {
		r.recorder.RecordLLMUsage(ctx, route.Provider, route.InvokeModel, true, Usage{}, time.Since(start), err)
		r.observe(ctx, route, true, Usage{}, time.Since(start), attemptResult.Attempts, err)
		return nil, &RequestFailedError{Model: req.Model, Provider: route.Provider, Err: err}
	}

	out := make(chan *CompletionChunk)
	go func() {
		defer close(out)
		var lastUsage Usage
		var lastErr error
		for chunk := range upstream {
			if chunk.Usage != nil {
				lastUsage = *chunk.Usage
			}
			if chunk.Error != nil {
				lastErr = chunk.Error
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				r.recorder.RecordLLMUsage(ctx, route.Provider, route.InvokeModel, true, lastUsage, time.Since(start), ctx.Err())
				r.observe(ctx, route, true, lastUsage, time.Since(start), attemptResult.Attempts, ctx.Err())
				return
			}
		}
		r.recorder.RecordLLMUsage(ctx, route.Provider, route.InvokeModel, true, lastUsage, time.Since(start), lastErr)
		r.observe(ctx, route, true, lastUsage, time.Since(start), attemptResult.Attempts, lastErr)
	}()
	return out, nil
}
