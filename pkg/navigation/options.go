package navigation

import (
	"log/slog"
	"mime/multipart"

	"github.com/dataroute/dataroute/pkg/route"
)

// NavigateOptions configures a Navigate call's submission opts:
// formMethod, formEncType, formData, replace, preventScrollReset.
type NavigateOptions struct {
	Replace            bool
	PreventScrollReset bool
	FormMethod         string
	FormEncType        string
	FormData           map[string][]string

	// Files carries any binary/file fields for a submission. A GET
	// submission carrying any file field cannot be serialized into a URL
	// query and fails synchronously instead.
	Files map[string][]*multipart.FileHeader
}

// isSubmission reports whether opts describes a non-GET submission. When
// formMethod is absent and formData is present, behavior matches
// formMethod="get".
func (o NavigateOptions) isSubmission() bool {
	if o.FormMethod == "" {
		return false
	}
	return o.FormMethod != "GET" && o.FormMethod != "get"
}

// isGetSubmission reports whether opts describes a GET submission: formData
// or a file field present, and formMethod absent or "GET" — the
// "formMethod absent + formData present behaves like formMethod='get'" rule.
func (o NavigateOptions) isGetSubmission() bool {
	if len(o.FormData) == 0 && len(o.Files) == 0 {
		return false
	}
	return !o.isSubmission()
}

// hasBinary reports whether opts carries any file field.
func (o NavigateOptions) hasBinary() bool {
	return len(o.Files) > 0
}

// FetchOptions configures a Fetch call against the Fetcher Registry.
type FetchOptions struct {
	FormMethod  string
	FormEncType string
	FormData    map[string][]string
}

func (o FetchOptions) isSubmission() bool {
	if o.FormMethod == "" {
		return false
	}
	return o.FormMethod != "GET" && o.FormMethod != "get"
}

// HydrationData seeds the engine's initial state from a server-rendered
// query result.
type HydrationData struct {
	LoaderData map[string]any
	ActionData map[string]any
	Errors     map[string]error
}

// Config is the engine factory's input: routes, history, an optional
// basename, and optional hydration data from a prior server render.
type Config struct {
	Routes        []*route.Route
	History       HistoryAdapter
	Basename      string
	HydrationData *HydrationData

	// Logger receives structured records for each navigation/fetch.
	// Defaults to slog.Default() if nil.
	Logger *slog.Logger
}
