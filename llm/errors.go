package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Code classifies a scoring failure
type Code string

const (
	CodeNoAPIKey          Code = "NO_API_KEY"
	CodeTimeout           Code = "TIMEOUT"
	CodeRateLimit         Code = "RATE_LIMIT"
	CodeServerError       Code = "SERVER_ERROR"
	CodeInvalidResponse   Code = "INVALID_RESPONSE"
	CodeMalformedResponse Code = "MALFORMED_RESPONSE"
	CodeGeneric           Code = "GENERIC"
)

var messages = map[Code]string{
	CodeNoAPIKey:          "Saknar OpenAI-nyckel. Kontakta support om problemet kvarstår.",
	CodeTimeout:           "Analysen tog för lång tid. Försök igen.",
	CodeRateLimit:         "För många förfrågningar just nu. Försök igen om en liten stund.",
	CodeServerError:       "Ett tillfälligt fel uppstod. Försök igen senare.",
	CodeInvalidResponse:   "Ogiltigt svar från analysen. Försök igen.",
	CodeMalformedResponse: "Ogiltigt svar från analysen. Försök igen.",
	CodeGeneric:           "Kunde inte analysera innehållet. Försök igen senare.",
}

// Error is returned by Scorer.Analyze. Message never contains upstream text.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func newError(code Code, cause error) *Error {
	return &Error{Code: code, Message: messages[code], cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.cause)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// ErrNoAPIKey is returned when scoring is requested without a configured key
func ErrNoAPIKey() *Error {
	return newError(CodeNoAPIKey, nil)
}

// CodeOf returns the scoring error code carried by err, or "" if there is none
func CodeOf(err error) Code {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

var errCallTimeout = errors.New("chat completion timed out")

// statusCode digs the HTTP status out of a client error, 0 if there is none
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func isRetryable(err error) bool {
	status := statusCode(err)
	return status == 429 || (status >= 500 && status < 600)
}

// classify maps a transport level failure onto the taxonomy
func classify(err error) *Error {
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	if errors.Is(err, errCallTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return newError(CodeTimeout, err)
	}
	switch status := statusCode(err); {
	case status == 429:
		return newError(CodeRateLimit, err)
	case status >= 500:
		return newError(CodeServerError, err)
	}
	return newError(CodeGeneric, err)
}
