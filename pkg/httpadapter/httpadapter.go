// Package httpadapter mounts the Static Handler behind a real HTTP server,
// translating *http.Request into the engine's request.Submission and the
// returned static.Context back into an http.ResponseWriter write. This is
// the one piece of "glue to an actual HTTP server" SPEC_FULL.md allows
// without making the engine itself depend on a transport — it is an
// optional, separately importable package, grounded on
// test/integration/chi_test.go's "mount a handler behind a chi.Router
// catch-all route" pattern.
package httpadapter

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/dataroute/dataroute/pkg/request"
	"github.com/dataroute/dataroute/pkg/route"
	"github.com/dataroute/dataroute/pkg/static"
)

// Handler adapts a *static.Handler to http.Handler.
type Handler struct {
	static *static.Handler
}

// New wraps a static.Handler for serving over HTTP.
func New(h *static.Handler) *Handler {
	return &Handler{static: h}
}

// Mount registers h on r's catch-all route, per
// test/integration/chi_test.go's r.Handle("/*", ...) mounting convention.
func Mount(r chi.Router, h *Handler) {
	r.Handle("/*", h)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var sub *request.Submission
	if r.Method != http.MethodGet {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			_ = r.ParseForm()
		}
		sub = &request.Submission{
			Method:   r.Method,
			EncType:  r.Header.Get("Content-Type"),
			FormData: url.Values(r.Form),
		}
		if r.MultipartForm != nil {
			sub.Files = r.MultipartForm.File
		}
	}

	result, err := h.static.Query(r.Context(), r.URL.String(), sub)
	if err != nil {
		writeAdapterError(w, err)
		return
	}

	if result.Redirect != nil {
		status := result.Redirect.Status
		if status == 0 {
			status = http.StatusFound
		}
		http.Redirect(w, r, result.Redirect.Header.Get("Location"), status)
		return
	}

	for _, headers := range result.LoaderHeaders {
		copyHeader(w.Header(), headers)
	}
	for _, headers := range result.ActionHeaders {
		copyHeader(w.Header(), headers)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.StatusCode)
	_ = json.NewEncoder(w).Encode(serializeContext(result))
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func writeAdapterError(w http.ResponseWriter, err error) {
	switch err {
	case route.ErrMethodNotAllowed:
		w.WriteHeader(http.StatusMethodNotAllowed)
	case route.ErrRequiresAbortSignal:
		w.WriteHeader(http.StatusInternalServerError)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// serializable is the JSON shape written for a query result; error values
// are flattened to their ErrorResponse data since plain Go errors don't
// serialize usefully as JSON.
type serializable struct {
	LoaderData map[string]any          `json:"loaderData"`
	ActionData map[string]any          `json:"actionData"`
	Errors     map[string]errorPayload `json:"errors,omitempty"`
	StatusCode int                     `json:"statusCode"`
}

type errorPayload struct {
	Type       string `json:"__type"`
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	Data       any    `json:"data"`
}

func serializeContext(ctx *static.Context) serializable {
	s := serializable{LoaderData: ctx.LoaderData, ActionData: ctx.ActionData, StatusCode: ctx.StatusCode}
	if len(ctx.Errors) > 0 {
		s.Errors = make(map[string]errorPayload, len(ctx.Errors))
		for id, err := range ctx.Errors {
			if er, ok := route.AsErrorResponse(err); ok {
				s.Errors[id] = errorPayload{Type: "RouteErrorResponse", Status: er.Status, StatusText: er.StatusText, Data: er.Data}
				continue
			}
			s.Errors[id] = errorPayload{Type: "Error", Status: http.StatusInternalServerError, Data: err.Error()}
		}
	}
	return s
}
