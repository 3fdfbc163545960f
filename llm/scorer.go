// Package llm scores crawl data with a chat-completion model and validates
// what comes back before anything else sees it.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/seo-maskinen/backend/seo"
)

var tracer = otel.Tracer("github.com/seo-maskinen/backend/llm")

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.3
	DefaultTimeout     = 30 * time.Second
	defaultBaseDelay   = 1500 * time.Millisecond
	defaultMaxAttempts = 3
)

// Config configures a Scorer. Zero values fall back to the defaults above.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
	// BaseDelay is the first backoff delay; later retries double it
	BaseDelay   time.Duration
	MaxAttempts int
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Options carries the per-request business context
type Options struct {
	TargetKeyword string
	BusinessType  string
	Location      string
	Language      string
	Model         string
	Temperature   *float32
}

// Scorer turns crawl data into an OpenAIAnalysisResult
type Scorer struct {
	client      *openai.Client
	apiKey      string
	model       string
	temperature float32
	timeout     time.Duration
	baseDelay   time.Duration
	maxAttempts int
	logger      *slog.Logger
}

func NewScorer(cfg Config) *Scorer {
	s := &Scorer{
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		baseDelay:   cfg.BaseDelay,
		maxAttempts: cfg.MaxAttempts,
		logger:      cfg.Logger,
	}
	if s.model == "" {
		s.model = DefaultModel
	}
	if s.temperature <= 0 {
		s.temperature = DefaultTemperature
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.baseDelay <= 0 {
		s.baseDelay = defaultBaseDelay
	}
	if s.maxAttempts < 1 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	if s.apiKey != "" {
		clientCfg := openai.DefaultConfig(s.apiKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		if cfg.HTTPClient != nil {
			clientCfg.HTTPClient = cfg.HTTPClient
		}
		s.client = openai.NewClientWithConfig(clientCfg)
	}
	return s
}

// Enabled reports whether an API key is configured
func (s *Scorer) Enabled() bool {
	return s.client != nil
}

type completion struct {
	content    string
	usageTotal int
}

// Analyze asks the model for a structured analysis of crawl. Errors are
// always *Error.
func (s *Scorer) Analyze(ctx context.Context, crawl seo.CrawlData, opts Options) (*seo.OpenAIAnalysisResult, error) {
	if !s.Enabled() {
		return nil, ErrNoAPIKey()
	}

	ctx, span := tracer.Start(ctx, "llm.analyze")
	defer span.End()

	model := s.model
	if opts.Model != "" {
		model = opts.Model
	}
	temperature := s.temperature
	if opts.Temperature != nil && *opts.Temperature >= 0 && *opts.Temperature <= 2 {
		temperature = *opts.Temperature
	}
	span.SetAttributes(attribute.String("llm.model", model))

	msgs, err := buildMessages(crawl.Normalize(seo.MaxContentChars), opts)
	if err != nil {
		return nil, newError(CodeGeneric, err)
	}

	first, err := s.complete(ctx, model, temperature, msgs)
	if err != nil {
		return nil, s.fail(span, classify(err))
	}

	usage := first.usageTotal
	obj, err := parseContent(first.content)
	if err != nil {
		s.logger.Warn("model returned unparseable JSON, retrying with strict prompt", "error", err)

		retry, rerr := s.complete(ctx, model, temperature, strictMessages(msgs))
		if rerr != nil {
			return nil, s.fail(span, classify(rerr))
		}
		usage += retry.usageTotal
		if obj, err = parseContent(retry.content); err != nil {
			return nil, s.fail(span, newError(CodeMalformedResponse, err))
		}
	}

	validated, err := validateResponse(obj)
	if err != nil {
		return nil, s.fail(span, newError(CodeInvalidResponse, err))
	}

	result := validated.toResult(usage)
	span.SetAttributes(attribute.Int("llm.tokens", result.TokensUsed))
	return result, nil
}

func (s *Scorer) fail(span trace.Span, err *Error) *Error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(err.Code))
	s.logger.Error("llm analysis failed", "code", err.Code, "error", err)
	return err
}

// complete runs one chat completion, retrying 429 and 5xx answers with
// jittered exponential backoff. Every attempt gets its own timeout.
func (s *Scorer) complete(ctx context.Context, model string, temperature float32, msgs []openai.ChatCompletionMessage) (*completion, error) {
	// a zero temperature is dropped by omitempty and the API would use 1.0
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.baseDelay
	b.RandomizationFactor = 0.2
	b.Multiplier = 2
	b.MaxInterval = s.baseDelay * 8
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.maxAttempts-1)), ctx)

	var out *completion
	attempt := 0
	op := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		resp, err := s.client.CreateChatCompletion(callCtx, req)
		if err != nil {
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return backoff.Permanent(errCallTimeout)
			}
			if isRetryable(err) {
				s.logger.Warn("chat completion failed, will retry", "attempt", attempt, "status", statusCode(err))
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(newError(CodeInvalidResponse, errors.New("no choices in response")))
		}
		out = &completion{
			content:    resp.Choices[0].Message.Content,
			usageTotal: resp.Usage.TotalTokens,
		}
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errCallTimeout
		}
		return nil, err
	}
	return out, nil
}
