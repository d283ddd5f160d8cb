package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// Kind classifies the result of one remote call.
type Kind int

const (
	Success Kind = iota
	RateLimited
	Transient
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case RateLimited:
		return "rate_limited"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Platform error codes with special meaning.
const (
	CodeLikeExceeded = "LikeExceeded"
	CodeAuthRequired = "AuthRequired"
	CodeInvalidToken = "InvalidToken"
	CodeBlockedUser  = "BlockedUser"
)

// Outcome is the classified result of an action call.
type Outcome struct {
	Kind      Kind
	Status    int
	ErrorCode string
	Body      string
	Err       error
}

// OK reports whether the call succeeded.
func (o Outcome) OK() bool { return o.Kind == Success }

// RecipientDisabled reports whether the target user disabled incoming chats (412 on open).
func (o Outcome) RecipientDisabled() bool {
	return o.Kind == Transient && o.Status == http.StatusPreconditionFailed
}

func (o Outcome) String() string {
	switch {
	case o.Err != nil:
		return fmt.Sprintf("%s: %v", o.Kind, o.Err)
	case o.ErrorCode != "":
		return fmt.Sprintf("%s (%d %s)", o.Kind, o.Status, o.ErrorCode)
	default:
		return fmt.Sprintf("%s (%d)", o.Kind, o.Status)
	}
}

// FatalError is returned by listing calls when the credential is unusable.
type FatalError struct {
	Status int
	Code   string
}

func (e *FatalError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("credential rejected: %s", e.Code)
	}
	return fmt.Sprintf("credential rejected: status %d", e.Status)
}

// IsFatal reports whether err is (or wraps) a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

type errorBody struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func parseErrorCode(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	return eb.ErrorCode
}

func isFatalCode(code string) bool {
	switch code {
	case CodeAuthRequired, CodeInvalidToken, CodeBlockedUser:
		return true
	}
	return false
}

// classify turns a raw response into an Outcome. The limit error code wins
// over the status because the platform sometimes reports it with 200.
func classify(status int, body []byte) Outcome {
	code := parseErrorCode(body)
	out := Outcome{Status: status, ErrorCode: code, Body: truncate(string(body), 512)}

	switch {
	case status == http.StatusTooManyRequests || code == CodeLikeExceeded:
		out.Kind = RateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden || isFatalCode(code):
		out.Kind = Fatal
	case status == http.StatusOK && code == "":
		out.Kind = Success
	default:
		out.Kind = Transient
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
