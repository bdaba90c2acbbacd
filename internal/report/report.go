// Package report implements the reporter and NDJSON materializer (C11):
// turning a derivation Result into a durable, atomically-written file.
package report

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"skygent.dev/skygent/internal/bsky"
	"skygent.dev/skygent/internal/derive"
	"skygent.dev/skygent/internal/errs"
	"skygent.dev/skygent/internal/sync"

	intstore "skygent.dev/skygent/internal/store"
)

// Summary is the machine-readable report of one derivation run.
type Summary struct {
	ViewName      string `json:"viewName"`
	MatchedCount  int    `json:"matchedCount"`
	EventsScanned int    `json:"eventsScanned"`
	Reset         bool   `json:"reset"`
}

// Summarize builds a Summary from a derivation Result.
func Summarize(viewName string, result *derive.Result) Summary {
	return Summary{
		ViewName:      viewName,
		MatchedCount:  len(result.MatchedURIs),
		EventsScanned: result.EventsScanned,
		Reset:         result.Reset,
	}
}

// Materialize writes every matched post, one JSON object per line, to path.
// It writes to a temp file in the same directory and renames into place, so
// a reader never observes a partially written file and a crash mid-write
// never corrupts a previous successful materialization.
func Materialize(ctx context.Context, st *intstore.Store, result *derive.Result, path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".materialize-*")
	if err != nil {
		return errs.NewStoreIoError(path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)

	for _, uri := range result.MatchedURIs {
		post, err := fetchPost(ctx, st, uri)
		if err != nil {
			tmp.Close()
			return err
		}
		if post == nil {
			continue // deleted since the derive run completed
		}
		if err := enc.Encode(post); err != nil {
			tmp.Close()
			return errs.NewStoreIoError(path, err)
		}
	}

	if err := w.Flush(); err != nil {
		tmp.Close()
		return errs.NewStoreIoError(path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errs.NewStoreIoError(path, err)
	}
	if err := tmp.Close(); err != nil {
		return errs.NewStoreIoError(path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errs.NewStoreIoError(path, err)
	}
	return nil
}

func fetchPost(ctx context.Context, st *intstore.Store, uri string) (*bsky.Post, error) {
	evt, err := st.GetByURI(ctx, uri)
	if err != nil {
		return nil, errs.NewStoreIoError(uri, err)
	}
	if evt == nil || evt.Kind == intstore.EventDelete {
		return nil, nil
	}
	return sync.DecodePost(evt.Payload)
}
