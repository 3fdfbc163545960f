package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/seo-maskinen/backend/breaker"
	"github.com/seo-maskinen/backend/crawler"
	"github.com/seo-maskinen/backend/llm"
	"github.com/seo-maskinen/backend/service"
)

// Error codes in the response envelope
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidURL         = "INVALID_URL"
	CodeAccessDenied       = "CRAWLER_ACCESS_DENIED"
	CodeCrawlerTimeout     = "CRAWLER_TIMEOUT"
	CodeNavigation         = "NAVIGATION_FAILURE"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeOpenAIRateLimit    = "OPENAI_RATE_LIMIT"
	CodeOpenAI             = "OPENAI_ERROR"
	CodeTimeout            = "TIMEOUT_ERROR"
	CodeAnalysis           = "ANALYSIS_ERROR"
	CodeDatabase           = "DATABASE_ERROR"
	CodeUnknown            = "UNKNOWN_ERROR"
)

const (
	msgURLRequired   = "URL krävs för analys"
	msgInvalidURL    = "Ogiltig URL. Kontrollera att adressen är korrekt."
	msgInvalidMode   = "Ogiltigt analysläge. Välj heuristic eller ai."
	msgKeywordLength = "Sökordet får vara högst 100 tecken."
	msgInvalidBody   = "Ogiltig begäran."
	msgNotFound      = "Analysen hittades inte."
	msgDatabase      = "Kunde inte hämta analyserna. Försök igen senare."
)

// failure is how an analysis error is shown to the client
type failure struct {
	status  int
	code    string
	message string
	// report marks failures nobody classified; they go to Sentry
	report bool
}

func classify(err error) failure {
	if breaker.IsOpen(err) {
		return failure{http.StatusServiceUnavailable, CodeServiceUnavailable, service.MsgServiceUnavailable, false}
	}

	msg := service.UserMessage(err)
	switch crawler.CodeOf(err) {
	case crawler.CodeInvalidURL:
		return failure{http.StatusBadRequest, CodeInvalidURL, msg, false}
	case crawler.CodeRobotsBlocked:
		return failure{http.StatusForbidden, CodeAccessDenied, msg, false}
	case crawler.CodeTimeout:
		return failure{http.StatusRequestTimeout, CodeCrawlerTimeout, msg, false}
	case crawler.CodeNavigation:
		return failure{http.StatusBadGateway, CodeNavigation, msg, false}
	case crawler.CodeGeneric:
		return failure{http.StatusInternalServerError, CodeAnalysis, msg, true}
	}

	switch llm.CodeOf(err) {
	case "":
	case llm.CodeRateLimit:
		return failure{http.StatusTooManyRequests, CodeOpenAIRateLimit, msg, false}
	case llm.CodeGeneric:
		return failure{http.StatusServiceUnavailable, CodeOpenAI, msg, true}
	default:
		return failure{http.StatusServiceUnavailable, CodeOpenAI, msg, false}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return failure{http.StatusRequestTimeout, CodeTimeout, service.MsgTimeout, false}
	}
	return failure{http.StatusInternalServerError, CodeUnknown, service.MsgUnknown, true}
}
