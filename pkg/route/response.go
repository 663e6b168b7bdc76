package route

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Response is the HTTP-response-like value a loader or action may return
// (or return as an error via Throw) to signal a redirect or an error
// status. It intentionally mirrors the shape of *http.Response closely
// enough that ErrorResponseFromResponse can build directly from one,
// since request-like objects elsewhere in the engine already wrap
// *http.Request (see package request).
type Response struct {
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte
}

// IsRedirect reports whether the response status is in the 300–399 range.
func (r *Response) IsRedirect() bool {
	return r != nil && r.Status >= 300 && r.Status < 400
}

// IsClientOrServerError reports whether the response status is 4xx/5xx.
func (r *Response) IsClientOrServerError() bool {
	return r != nil && r.Status >= 400
}

// RevalidateHeader is the header a loader/action response uses to force a
// full revalidation on the follow-up navigation.
const RevalidateHeader = "X-Remix-Revalidate"

// ForcesRevalidate reports whether the response carries RevalidateHeader,
// matched case-insensitively.
func (r *Response) ForcesRevalidate() bool {
	if r == nil || r.Header == nil {
		return false
	}
	return r.Header.Get(RevalidateHeader) != ""
}

// Redirect builds a 302 redirect Response to the given location.
func Redirect(location string) *Response {
	return RedirectWithStatus(location, http.StatusFound)
}

// RedirectWithStatus builds a redirect Response with an explicit 3xx status.
func RedirectWithStatus(location string, status int) *Response {
	h := make(http.Header)
	h.Set("Location", location)
	return &Response{Status: status, Header: h}
}

// PreservesMethodAndBody reports whether a redirect status preserves the
// original method and body on the follow-up request — true only for
// 307/308.
func (r *Response) PreservesMethodAndBody() bool {
	return r != nil && (r.Status == http.StatusTemporaryRedirect || r.Status == http.StatusPermanentRedirect)
}

// ResponseError wraps a *Response so a loader/action can "throw" a redirect
// or an error status as a Go error return, distinguishing it from a
// *Response simply returned as data. A redirect in either form is followed
// only after every sibling loader of the phase has finished; neither form
// aborts sibling loaders. Realizing "throw" as an error return (rather than a
// panic) keeps loaders ordinary Go functions.
type ResponseError struct {
	*Response
}

func (e *ResponseError) Error() string {
	if e.StatusText != "" {
		return fmt.Sprintf("dataroute: response error %d %s", e.Status, e.StatusText)
	}
	return fmt.Sprintf("dataroute: response error %d", e.Status)
}

func (e *ResponseError) Unwrap() error { return nil }

// Throw wraps resp as an error a loader or action can return to signal a
// thrown Response (as opposed to a returned one).
func Throw(resp *Response) error {
	return &ResponseError{Response: resp}
}

// AsResponse extracts the *Response from a thrown ResponseError, if err is
// (or wraps) one.
func AsResponse(err error) (*Response, bool) {
	var re *ResponseError
	if errors.As(err, &re) {
		return re.Response, true
	}
	return nil, false
}

// ErrorResponse is the sentinel error type for thrown, non-redirect
// Responses (4xx/5xx) and for the engine's own synthesized errors (404,
// 405, 400). Callers distinguish it from a plain error via
// IsRouteErrorResponse.
type ErrorResponse struct {
	Status     int
	StatusText string
	Data       any
	Internal   bool
}

func (e *ErrorResponse) Error() string {
	if e.StatusText != "" {
		return fmt.Sprintf("%d %s", e.Status, e.StatusText)
	}
	return fmt.Sprintf("%d", e.Status)
}

// IsRouteErrorResponse reports whether err is (or wraps) an *ErrorResponse.
func IsRouteErrorResponse(err error) bool {
	var er *ErrorResponse
	return errors.As(err, &er)
}

// AsErrorResponse extracts the *ErrorResponse from err, if any.
func AsErrorResponse(err error) (*ErrorResponse, bool) {
	var er *ErrorResponse
	if errors.As(err, &er) {
		return er, true
	}
	return nil, false
}

// ErrorResponseFromResponse wraps a thrown non-redirect Response into an
// ErrorResponse, parsing its body as JSON when the Content-Type begins with
// "application/json" and as text otherwise.
func ErrorResponseFromResponse(resp *Response) *ErrorResponse {
	er := &ErrorResponse{Status: resp.Status, StatusText: resp.StatusText}
	ct := ""
	if resp.Header != nil {
		ct = resp.Header.Get("Content-Type")
	}
	if strings.HasPrefix(ct, "application/json") {
		var v any
		if err := json.Unmarshal(resp.Body, &v); err == nil {
			er.Data = v
			return er
		}
	}
	er.Data = string(resp.Body)
	return er
}

// Sentinel errors for the engine's own synthesized failure modes, following
// a sentinel + wrapper-struct error style.
var (
	ErrNoMatch             = errors.New("dataroute: no route matched")
	ErrNoAction            = errors.New("dataroute: no action found for path")
	ErrBinaryFormOnGet     = errors.New("dataroute: cannot submit binary form data using GET")
	ErrEmptyRouteTree      = errors.New("dataroute: route tree must not be empty")
	ErrDuplicateRouteID    = errors.New("dataroute: duplicate route id")
	ErrUnknownBasename     = errors.New("dataroute: unknown basename")
	ErrAborted             = errors.New("dataroute: aborted")
	ErrAbortedDeferred     = errors.New("dataroute: aborted deferred")
	ErrDisposed            = errors.New("dataroute: router disposed")
	ErrRequiresAbortSignal = errors.New("dataroute: request must carry an abort signal")
	ErrMethodNotAllowed    = errors.New("dataroute: method not allowed for static handler")
)

// NotFoundError builds the 404 ErrorResponse for an unmatched URL.
func NotFoundError(path string) *ErrorResponse {
	return &ErrorResponse{Status: http.StatusNotFound, StatusText: "Not Found", Data: fmt.Sprintf("No route matches URL %q", path)}
}

// NoActionError builds the 405 ErrorResponse for a non-GET navigation whose
// leaf match exposes no action.
func NoActionError(path string) *ErrorResponse {
	return &ErrorResponse{Status: http.StatusMethodNotAllowed, StatusText: "Method Not Allowed", Data: fmt.Sprintf("No action found for %q", path)}
}

// BinaryFormOnGetError builds the 400 ErrorResponse for a GET submission
// carrying a binary field.
func BinaryFormOnGetError() *ErrorResponse {
	return &ErrorResponse{Status: http.StatusBadRequest, StatusText: "Bad Request", Data: "Cannot submit binary form data using GET"}
}
