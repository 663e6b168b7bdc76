package navigation

import (
	"context"
	"net/url"

	"github.com/dataroute/dataroute/pkg/request"
	"github.com/dataroute/dataroute/pkg/revalidate"
	"github.com/dataroute/dataroute/pkg/route"
)

// runInput is the fully-resolved plan for one pass through the loader
// phase + commit.
type runInput struct {
	target          route.Location
	matches         route.Matches
	eligible        map[string]bool
	historyAction   route.HistoryAction
	commitHistory   bool
	markInitialized bool

	actionData   map[string]any
	presetErrors map[string]error
	prevKeyForPOP string
	chainDepth   int
}

// runTransitionForLocation is the entry point for an ordinary navigate()
// call (GET or submission) and for a history-observed POP.
func (e *Engine) runTransitionForLocation(target route.Location, opts NavigateOptions, historyIntent route.HistoryAction, commitHistory bool) {
	e.performTransition(target, opts, historyIntent, commitHistory, 0, target.Key, false)
}

// performTransition resolves matching, runs an action if this is a
// submission, computes the revalidation plan, and hands off to
// runTransition for the loader phase + commit. It also handles the
// action-redirect branch directly, since an action redirect short-circuits
// before any loader ever runs.
func (e *Engine) performTransition(target route.Location, opts NavigateOptions, historyIntent route.HistoryAction, commitHistory bool, chainDepth int, popKey string, forceRevalidateAll bool) {
	e.mu.Lock()
	prevLoc := e.state.Location
	prevMatches := e.state.Matches
	prevErrored := cloneBoolMap(e.prevErrored)
	e.mu.Unlock()

	getSubmission := opts.isGetSubmission()
	if getSubmission && !opts.hasBinary() {
		if href, err := request.GetSubmissionHref(fullHref(target), url.Values(opts.FormData)); err == nil {
			target.Search = parseHref(href).Search
		}
	}

	matches, ok := e.matcher.Match(target.Pathname)
	if !ok {
		e.logger.Warn("navigation: no route matched", "path", target.Pathname)
		e.commitNotFound(target, historyIntent, commitHistory)
		return
	}

	// Hash-only navigation fast path: pathname and search unchanged, no
	// loader runs, idle -> idle synchronously.
	if historyIntent != route.HistoryPop &&
		target.Pathname == prevLoc.Pathname && target.Search == prevLoc.Search && target.Hash != prevLoc.Hash &&
		!opts.isSubmission() && !getSubmission {
		e.commitHashOnly(target, opts.Replace, commitHistory)
		return
	}

	// A GET submission with a binary field can't be serialized into a URL
	// query: fail synchronously at the boundary above the targeted route,
	// running only its ancestors' loaders.
	if getSubmission && opts.hasBinary() {
		leaf, hasLeaf := matches.Leaf()
		boundary := matches.BoundaryFor(leafRouteID(leaf, hasLeaf))
		e.runTransition(runInput{
			target: target, matches: matches, eligible: ancestorsUpTo(matches, boundary),
			historyAction: pushOrReplace(historyIntent, opts.Replace),
			commitHistory: commitHistory, chainDepth: chainDepth, prevKeyForPOP: popKey,
			presetErrors: map[string]error{boundary: route.BinaryFormOnGetError()},
		})
		return
	}

	if opts.isSubmission() {
		leaf, hasLeaf := matches.Leaf()
		if !hasLeaf || leaf.Route.Action == nil {
			boundary := matches.BoundaryFor(leafRouteID(leaf, hasLeaf))
			e.runTransition(runInput{
				target: target, matches: matches, eligible: ancestorsUpTo(matches, boundary),
				historyAction: pushOrReplace(historyIntent, opts.Replace),
				commitHistory: commitHistory, chainDepth: chainDepth, prevKeyForPOP: popKey,
				presetErrors: map[string]error{boundary: route.NoActionError(target.Pathname)},
			})
			return
		}

		e.mu.Lock()
		e.state.Navigation = route.Navigation{State: route.NavigationSubmitting, Location: target, FormMethod: opts.FormMethod, FormEncType: opts.FormEncType, FormData: opts.FormData}
		e.mu.Unlock()
		e.notify()
		e.abortAllDeferred()

		href := fullHref(target)
		req, err := request.NewSubmission(context.Background(), href, &request.Submission{Method: opts.FormMethod, EncType: opts.FormEncType, FormData: url.Values(opts.FormData)})
		var data any
		var actionErr error
		if err != nil {
			actionErr = err
		} else {
			data, actionErr = leaf.Route.Action(req)
		}

		if actionErr == nil {
			e.runTransition(runInput{
				target: target, matches: matches, eligible: allEligible(matches),
				historyAction: pushOrReplace(historyIntent, opts.Replace), commitHistory: commitHistory, chainDepth: chainDepth, prevKeyForPOP: popKey,
				actionData: map[string]any{leaf.Route.ID: data},
			})
			return
		}

		if resp, isResp := route.AsResponse(actionErr); isResp && resp.IsRedirect() {
			newTarget := parseHref(resp.Header.Get("Location"))
			newOpts := NavigateOptions{Replace: true}
			if resp.PreservesMethodAndBody() {
				newOpts.FormMethod, newOpts.FormEncType, newOpts.FormData = opts.FormMethod, opts.FormEncType, opts.FormData
			}
			e.performTransition(newTarget, newOpts, route.HistoryPush, commitHistory, chainDepth+1, "", resp.ForcesRevalidate())
			return
		}

		var errObj error = actionErr
		if resp, isResp := route.AsResponse(actionErr); isResp {
			errObj = route.ErrorResponseFromResponse(resp)
		}
		boundary := matches.BoundaryFor(leaf.Route.ID)
		e.runTransition(runInput{
			target: target, matches: matches, eligible: ancestorsUpTo(matches, boundary),
			historyAction: pushOrReplace(historyIntent, opts.Replace), commitHistory: commitHistory, chainDepth: chainDepth, prevKeyForPOP: popKey,
			presetErrors: map[string]error{boundary: errObj},
		})
		return
	}

	eligible := allEligible(matches)
	if !forceRevalidateAll {
		sameURL := target.SameAddress(prevLoc) && len(prevMatches) > 0
		plan := revalidate.Plan(revalidate.Input{
			PrevMatches:         prevMatches,
			NextMatches:         matches,
			PrevURL:             &url.URL{Path: prevLoc.Pathname, RawQuery: prevLoc.Search, Fragment: prevLoc.Hash},
			NextURL:             &url.URL{Path: target.Pathname, RawQuery: target.Search, Fragment: target.Hash},
			SameURLRenavigation: sameURL,
			PrevErrored:         prevErrored,
		})
		eligible = plan
		if sameURL {
			opts.Replace = true
		}
	}

	e.runTransition(runInput{
		target: target, matches: matches, eligible: eligible,
		historyAction: pushOrReplace(historyIntent, opts.Replace), commitHistory: commitHistory, chainDepth: chainDepth, prevKeyForPOP: popKey,
	})
}

func pushOrReplace(intent route.HistoryAction, forceReplace bool) route.HistoryAction {
	if intent == route.HistoryPop {
		return route.HistoryPop
	}
	if forceReplace {
		return route.HistoryReplace
	}
	return route.HistoryPush
}

func leafRouteID(m route.Match, ok bool) string {
	if !ok {
		return ""
	}
	return m.Route.ID
}

func cloneBoolMap(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// runTransition runs the loader phase for in.matches/in.eligible, detects a
// loader redirect (recursing into performTransition for the follow-up), and
// otherwise commits the new idle state.
func (e *Engine) runTransition(in runInput) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.navSeq++
	navID := e.navSeq
	if e.activeCancel != nil {
		e.activeCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.activeCancel = cancel
	e.activeNavID = navID
	prevLoaderData := e.state.LoaderData
	e.state.Navigation = route.Navigation{State: route.NavigationLoading, Location: in.target}
	e.mu.Unlock()
	e.logger.Debug("navigation: loading", "navigationId", navID, "path", in.target.Pathname)
	e.notify()

	e.abortUnmatchedDeferred(in.matches)

	href := fullHref(in.target)
	phase := e.runLoaderPhase(ctx, href, in.matches, in.eligible, prevLoaderData)
	for k, v := range in.presetErrors {
		phase.errors[k] = v
	}

	if phase.redirect != nil && in.chainDepth < maxRedirectChain {
		newTarget := parseHref(phase.redirect.location)
		newReplace := in.historyAction == route.HistoryReplace
		e.performTransition(newTarget, NavigateOptions{Replace: newReplace}, route.HistoryPush, in.commitHistory, in.chainDepth+1, "", phase.redirect.forceRevalidate)
		return
	}

	e.mu.Lock()
	if e.disposed || e.activeNavID != navID {
		e.mu.Unlock()
		e.logger.Debug("navigation: superseded, dropping commit", "navigationId", navID)
		return
	}

	newPrevErrored := make(map[string]bool, len(phase.errors))
	for id := range phase.errors {
		newPrevErrored[id] = true
	}
	e.prevErrored = newPrevErrored

	newState := e.state
	newState.Matches = in.matches
	newState.Location = in.target
	newState.LoaderData = phase.loaderData
	newState.Errors = phase.errors
	if in.actionData != nil {
		newState.ActionData = in.actionData
	} else {
		newState.ActionData = map[string]any{}
	}
	newState.Navigation = route.IdleNavigation
	if in.markInitialized {
		newState.Initialized = true
	}
	newState.HistoryAction = in.historyAction
	e.state = newState
	e.mu.Unlock()

	if len(phase.errors) > 0 {
		e.logger.Warn("navigation: committed with errors", "navigationId", navID, "path", in.target.Pathname, "errorCount", len(phase.errors))
	} else {
		e.logger.Debug("navigation: committed", "navigationId", navID, "path", in.target.Pathname)
	}
	e.commitHistoryEntry(in, href)
	e.notify()
}

func (e *Engine) commitHistoryEntry(in runInput, href string) {
	if !in.commitHistory {
		return
	}
	var loc route.Location
	switch in.historyAction {
	case route.HistoryPush:
		loc = e.history.Push(href, nil)
	case route.HistoryReplace:
		loc = e.history.Replace(href, nil)
	default:
		return // POP: history already moved; key is the one the listener reported
	}
	e.mu.Lock()
	e.state.Location.Key = loc.Key
	e.mu.Unlock()
}

// commitNotFound handles an unmatched URL with a synthesized 404: errors
// keyed at the root boundary, prior loaderData discarded except the root
// route's.
func (e *Engine) commitNotFound(target route.Location, historyIntent route.HistoryAction, commitHistory bool) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.navSeq++
	navID := e.navSeq
	if e.activeCancel != nil {
		e.activeCancel()
	}
	_, cancel := context.WithCancel(context.Background())
	e.activeCancel = cancel
	e.activeNavID = navID

	rootIDVal := rootID(e.routes)
	preservedRoot, hadRoot := e.state.LoaderData[rootIDVal]
	matches := rootOnlyMatches(e.routes)
	loaderData := map[string]any{}
	if hadRoot {
		loaderData[rootIDVal] = preservedRoot
	}
	e.state.Matches = matches
	e.state.Location = target
	e.state.LoaderData = loaderData
	e.state.ActionData = map[string]any{}
	e.state.Errors = map[string]error{rootIDVal: route.NotFoundError(target.Pathname)}
	e.state.Navigation = route.IdleNavigation
	e.state.HistoryAction = pushOrReplace(historyIntent, false)
	e.mu.Unlock()

	e.commitHistoryEntry(runInput{commitHistory: commitHistory, historyAction: e.state.HistoryAction}, fullHref(target))
	e.notify()
}

// commitHashOnly handles the hash-only fast path: no loader runs, the key
// advances, navigation never leaves idle.
func (e *Engine) commitHashOnly(target route.Location, replace bool, commitHistory bool) {
	e.mu.Lock()
	e.state.Location = target
	historyAction := pushOrReplace(route.HistoryPush, replace)
	e.state.HistoryAction = historyAction
	e.mu.Unlock()

	e.commitHistoryEntry(runInput{commitHistory: commitHistory, historyAction: historyAction}, fullHref(target))
	e.notify()
}
