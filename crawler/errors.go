package crawler

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a crawl failure
type Code string

const (
	CodeInvalidURL    Code = "INVALID_URL"
	CodeRobotsBlocked Code = "ROBOTS_BLOCKED"
	CodeTimeout       Code = "TIMEOUT"
	CodeNavigation    Code = "NAVIGATION_FAILURE"
	CodeGeneric       Code = "GENERIC"
)

// Error is returned by Crawl. Message is safe to show to end users, the
// wrapped cause is for logs only.
type Error struct {
	Code    Code
	Message string
	cause   error
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

// CodeOf returns the crawl error code carried by err, or "" if there is none
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func invalidURLError(cause error) *Error {
	return &Error{Code: CodeInvalidURL, Message: "Ogiltig webbadress", cause: cause}
}

func robotsBlockedError(host string) *Error {
	return &Error{
		Code:    CodeRobotsBlocked,
		Message: "Blockerad av robots.txt för denna sökväg. Tips: prova startsidan (t.ex. https://" + host + "/) eller en sida som får crawlas.",
	}
}

func timeoutError(host string, cause error) *Error {
	return &Error{
		Code:    CodeTimeout,
		Message: "Laddningen tog för lång tid. Tips: prova startsidan (t.ex. https://" + host + "/) eller testa en annan sida.",
		cause:   cause,
	}
}

func genericError(cause error) *Error {
	return &Error{
		Code:    CodeGeneric,
		Message: "Ett fel uppstod vid hämtning av sidan. Tips: försök igen senare eller prova en annan URL.",
		cause:   cause,
	}
}

// classifyNavigation maps a failed navigation to a user-facing error by
// looking at the underlying error text.
func classifyNavigation(err error, target, host string) *Error {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "err_name_not_resolved"), strings.Contains(msg, "no such host"):
		return &Error{Code: CodeNavigation, Message: "Webbplatsen kunde inte hittas. Kontrollera URL:en.", cause: err}
	case strings.Contains(msg, "err_connection_refused"), strings.Contains(msg, "connection refused"):
		return &Error{Code: CodeNavigation, Message: "Anslutning nekades. Webbplatsen kanske blockerar crawlers.", cause: err}
	case strings.Contains(msg, "err_timed_out"), strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"):
		return timeoutError(host, err)
	case strings.Contains(msg, "net::"), strings.Contains(msg, "err_"), strings.Contains(msg, "navigat"),
		strings.Contains(msg, "status"), strings.Contains(msg, "dial"), strings.Contains(msg, "tls"):
		return &Error{
			Code: CodeNavigation,
			Message: "Kunde inte hämta sidan (" + target + "). Kontrollera att webbadressen är korrekt och att sidan är publik. " +
				"Tips: prova startsidan (t.ex. https://" + host + "/) eller en enklare undersida.",
			cause: err,
		}
	}
	return genericError(err)
}
