// Package breaker keeps one circuit breaker per downstream service.
package breaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/seo-maskinen/backend/metrics"
)

const (
	DefaultFailureThreshold = 3
	DefaultOpenTimeout      = 60 * time.Second
)

// Service names used by the pipeline
const (
	Crawler = "crawler"
	OpenAI  = "openai"
)

// ErrOpen is returned instead of calling a service whose breaker is open
var ErrOpen = errors.New("circuit breaker open")

type Settings struct {
	// FailureThreshold consecutive failures open the breaker
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before letting a trial request through
	OpenTimeout time.Duration
	// Ignore reports errors that are the caller's fault and must not count
	// as failures
	Ignore func(error) bool
}

type Registry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.TwoStepCircuitBreaker
	settings Settings
	logger   *slog.Logger
}

func NewRegistry(settings Settings, logger *slog.Logger) *Registry {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = DefaultFailureThreshold
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = DefaultOpenTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		breakers: make(map[string]*gobreaker.TwoStepCircuitBreaker),
		settings: settings,
		logger:   logger,
	}
}

func (r *Registry) get(name string) *gobreaker.TwoStepCircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	threshold := r.settings.FailureThreshold
	cb := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     r.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("circuit breaker state changed", "service", name, "from", from.String(), "to", to.String())
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	r.breakers[name] = cb
	metrics.BreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	return cb
}

// Execute runs fn through the named breaker. When the breaker is open fn is
// not called and the error wraps ErrOpen.
//
// Errors accepted by Settings.Ignore are neutral: they neither count as a
// failure nor reset the failure streak. A half-open breaker still needs a
// verdict to release its trial slot, so there they count as a success.
func (r *Registry) Execute(name string, fn func() error) (err error) {
	cb := r.get(name)
	done, err := cb.Allow()
	if err != nil {
		metrics.BreakerRejections.WithLabelValues(name).Inc()
		return errors.Join(ErrOpen, err)
	}

	defer func() {
		if e := recover(); e != nil {
			done(false)
			panic(e)
		}
	}()

	err = fn()
	switch {
	case err == nil:
		done(true)
	case r.ignored(err):
		if cb.State() == gobreaker.StateHalfOpen {
			done(true)
		}
	default:
		done(false)
	}
	return err
}

func (r *Registry) ignored(err error) bool {
	return r.settings.Ignore != nil && r.settings.Ignore(err)
}

// IsOpen reports whether err came from a rejecting breaker
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpen)
}

// State returns "closed", "half-open" or "open" for the named service
func (r *Registry) State(name string) string {
	return r.get(name).State().String()
}

// States reports every known breaker
func (r *Registry) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]string, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb.State().String()
	}
	return out
}
