package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const DefaultMaxTokens = 250

// ErrNoResponse means no provider produced text: none configured, all
// disabled, or all failed.
var ErrNoResponse = errors.New("no provider produced a response")

type AttemptStatus string

const (
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptSkipped   AttemptStatus = "skipped"
	AttemptFailed    AttemptStatus = "failed"
)

// Attempt records what happened when the gateway tried one provider.
type Attempt struct {
	Provider string
	Status   AttemptStatus
	Err      error
	Duration time.Duration
}

// Result is the aggregated outcome of one Generate call.
type Result struct {
	Text     string
	Provider string
	Attempts []Attempt
}

// Failures returns the attempts that reached a provider and failed.
func (r Result) Failures() []Attempt {
	var out []Attempt
	for _, a := range r.Attempts {
		if a.Status == AttemptFailed {
			out = append(out, a)
		}
	}
	return out
}

type Options struct {
	Order            []string
	DefaultMaxTokens int
	// BreakerFailures consecutive failures open a provider's breaker for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Gateway fans a generation request out over the configured providers in
// order and returns the first non-empty answer.
type Gateway struct {
	order            []string
	providers        map[string]Provider
	breakers         map[string]*gobreaker.CircuitBreaker
	defaultMaxTokens int
	logger           *zap.Logger
}

func NewGateway(providers []Provider, opts Options, logger *zap.Logger) *Gateway {
	if len(opts.Order) == 0 {
		opts.Order = DefaultOrder
	}
	if opts.DefaultMaxTokens <= 0 {
		opts.DefaultMaxTokens = DefaultMaxTokens
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = time.Minute
	}

	g := &Gateway{
		order:            append([]string(nil), opts.Order...),
		providers:        make(map[string]Provider, len(providers)),
		breakers:         make(map[string]*gobreaker.CircuitBreaker, len(providers)),
		defaultMaxTokens: opts.DefaultMaxTokens,
		logger:           logger,
	}
	for _, p := range providers {
		name := p.Name()
		g.providers[name] = p
		g.breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: opts.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= opts.BreakerFailures
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warn("Provider circuit breaker state changed",
					zap.String("provider", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
			IsSuccessful: func(err error) bool {
				// Caller cancellation says nothing about provider health.
				return err == nil || errors.Is(err, context.Canceled)
			},
		})
	}
	return g
}

// Available lists the usable providers in attempt order.
func (g *Gateway) Available() []string {
	var out []string
	for _, name := range g.order {
		if _, ok := g.providers[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// attemptOrder is the configured order with preferred moved, or inserted, at the front.
func (g *Gateway) attemptOrder(preferred string) []string {
	order := make([]string, 0, len(g.order)+1)
	if preferred != "" {
		order = append(order, preferred)
	}
	for _, name := range g.order {
		if name != preferred {
			order = append(order, name)
		}
	}
	return order
}

func (g *Gateway) params(p Provider, explicit Params) Params {
	merged := explicit.Over(p.Defaults())
	if merged.MaxTokens == 0 {
		merged.MaxTokens = g.defaultMaxTokens
	}
	return merged
}

// Generate tries each provider in order. A provider failure is recorded and
// the next provider is tried; only exhaustion yields ErrNoResponse.
func (g *Gateway) Generate(ctx context.Context, req Request) (Result, error) {
	var result Result
	for _, name := range g.attemptOrder(req.Provider) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		p, ok := g.providers[name]
		if !ok {
			result.Attempts = append(result.Attempts, Attempt{Provider: name, Status: AttemptSkipped})
			g.logger.Debug("Provider not available, skipping", zap.String("provider", name))
			continue
		}

		call := req
		call.Params = g.params(p, req.Params)

		start := time.Now()
		out, err := g.breakers[name].Execute(func() (interface{}, error) {
			text, err := p.Generate(ctx, call)
			if err == nil && text == "" {
				err = ErrEmptyResponse
			}
			return text, err
		})
		attempt := Attempt{Provider: name, Duration: time.Since(start)}
		if err != nil {
			attempt.Status = AttemptFailed
			attempt.Err = err
			result.Attempts = append(result.Attempts, attempt)
			g.logger.Error("Provider generation failed",
				zap.String("provider", name),
				zap.String("model", call.Params.Model),
				zap.Error(err))
			continue
		}

		attempt.Status = AttemptSucceeded
		result.Attempts = append(result.Attempts, attempt)
		result.Text = out.(string)
		result.Provider = name
		g.logger.Debug("Generated text",
			zap.String("provider", name),
			zap.String("model", call.Params.Model),
			zap.Duration("duration", attempt.Duration))
		return result, nil
	}

	g.logger.Error("All configured providers failed or none are available",
		zap.Int("attempts", len(result.Attempts)))
	return result, fmt.Errorf("%w after %d attempts", ErrNoResponse, len(result.Attempts))
}
