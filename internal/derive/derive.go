// Package derive implements the derivation engine (C9): replaying a source
// store's event log through a compiled filter and committing matched
// upserts (and mirrored deletes) into a second, target event store, so the
// target always holds the live result of "this filter applied to that
// store" rather than a snapshot computed once and discarded.
package derive

import (
	"context"

	"skygent.dev/skygent/internal/errs"
	"skygent.dev/skygent/internal/filter"
	"skygent.dev/skygent/internal/sync"

	intstore "skygent.dev/skygent/internal/store"
)

// EvalMode records which replay semantics produced a view: EventTime means
// the view was built from history alone and rejects effectful filters (a
// live trending/link-validity check can't meaningfully reinterpret a past
// instant); DeriveTime means evaluation reflects present-day collaborator
// state, matching what a live filter would report right now.
type EvalMode string

const (
	EventTime  EvalMode = "event_time"
	DeriveTime EvalMode = "derive_time"
)

// BatchCommitSize is how many scanned source events (upserts, matched or
// not, and deletes) within one scanned page accumulate before the engine
// persists a checkpoint, bounding how much replay work is repeated if a
// derive run is interrupted mid-replay.
const BatchCommitSize = 256

// Engine replays a source store's event log through a compiled predicate,
// committing into a target store. It holds no store reference of its own:
// Run takes source and target explicitly so one Engine can serve any pair.
type Engine struct{}

// NewEngine builds a derivation Engine.
func NewEngine() *Engine { return &Engine{} }

// Result summarizes one Run invocation.
type Result struct {
	MatchedURIs   []string
	DeletedURIs   []string
	EventsScanned int
	Reset         bool
}

// Run replays events from source since target's checkpoint for source (or
// from the beginning, if reset or no checkpoint exists) through pred,
// committing matched upserts and mirrored deletes into target as it goes.
//
// EventTime mode rejects effectful predicates outright (filter.IsEffectful):
// replaying history through a live trending/link-validity check would
// reinterpret a past instant with present-day state, which is exactly what
// EventTime mode exists to avoid.
//
// If target already holds a checkpoint for source whose filter signature or
// evaluation mode differs from pred/mode, Run fails without writing unless
// reset is true: silently replaying under a changed filter would merge two
// different views' matches into one target (P5).
func (e *Engine) Run(ctx context.Context, source, target *intstore.Store, pred *filter.Predicate, mode EvalMode, reset bool) (*Result, error) {
	if mode == EventTime && filter.IsEffectful(pred.Expr()) {
		return nil, errs.NewCliInputError("EventTime mode does not allow effectful filters")
	}

	sig := filter.ComputeSignature(pred.Expr()).String()
	sourceName := source.Name()

	cp, err := target.GetViewCheckpoint(ctx, sourceName)
	if err != nil {
		return nil, errs.NewStoreIoError(sourceName, err)
	}

	var afterSeq int64
	didReset := false
	switch {
	case cp == nil:
		didReset = true
	case cp.FilterHash != sig || cp.EvaluationMode != string(mode):
		if !reset {
			return nil, errs.NewCliInputError(
				"derive target's stored filter/mode differs from the requested one; pass reset to replay from scratch")
		}
		didReset = true
	case reset:
		didReset = true
	default:
		afterSeq = cp.LastSourceSeq
	}

	if didReset {
		if err := target.ResetProjection(ctx); err != nil {
			return nil, errs.NewStoreIoError(sourceName, err)
		}
		if err := target.DeleteViewCheckpoint(ctx, sourceName); err != nil {
			return nil, errs.NewStoreIoError(sourceName, err)
		}
		afterSeq = 0
	}

	result := &Result{Reset: didReset}
	matchedThisRun := map[string]bool{}
	const scanLimit = 1000

	for {
		page, err := source.ScanSince(ctx, afterSeq, scanLimit)
		if err != nil {
			return nil, errs.NewStoreIoError(sourceName, err)
		}
		if len(page.Events) == 0 {
			break
		}

		sinceLastCommit := 0
		for _, evt := range page.Events {
			result.EventsScanned++
			afterSeq = evt.Seq

			if evt.Kind == intstore.EventDelete {
				present, err := target.IndexPresent(ctx, evt.URI)
				if err != nil {
					return nil, errs.NewStoreIoError(sourceName, err)
				}
				if present {
					if _, err := target.AppendDelete(ctx, evt.URI, evt.EventTime); err != nil {
						return nil, errs.NewStoreIoError(sourceName, err)
					}
					result.DeletedURIs = append(result.DeletedURIs, evt.URI)
					if matchedThisRun[evt.URI] {
						result.MatchedURIs = removeURI(result.MatchedURIs, evt.URI)
						delete(matchedThisRun, evt.URI)
					}
				}
				sinceLastCommit++
				continue
			}

			post, err := sync.DecodePost(evt.Payload)
			if err != nil {
				return nil, errs.NewParseError("derive", evt.URI, err)
			}

			matched, err := pred.EvalWithContext(ctx, post)
			if err != nil {
				return nil, errs.NewFilterEvalError("derive evaluation failed for "+evt.URI, err)
			}
			if matched {
				if _, err := target.AppendUpsertIfMissing(ctx, evt.URI, evt.CID, evt.EventTime, evt.Payload); err != nil {
					return nil, errs.NewStoreIoError(sourceName, err)
				}
				result.MatchedURIs = append(result.MatchedURIs, evt.URI)
				matchedThisRun[evt.URI] = true
			}

			sinceLastCommit++
			if sinceLastCommit >= BatchCommitSize {
				if err := target.SetViewCheckpoint(ctx, sourceName, afterSeq, sig, string(mode)); err != nil {
					return nil, errs.NewStoreIoError(sourceName, err)
				}
				sinceLastCommit = 0
			}
		}

		if !page.Truncated {
			break
		}
	}

	if err := target.SetViewCheckpoint(ctx, sourceName, afterSeq, sig, string(mode)); err != nil {
		return nil, errs.NewStoreIoError(sourceName, err)
	}
	return result, nil
}

// removeURI drops the first occurrence of uri from s, preserving order of
// the rest: used when a post matches and is deleted within the same run, so
// MatchedURIs reflects what's actually live in target, not a replay log.
func removeURI(s []string, uri string) []string {
	for i, v := range s {
		if v == uri {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
