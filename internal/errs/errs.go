// Package errs implements Skygent's tagged error taxonomy.
//
// Every operation that can fail returns (or wraps) a *Error carrying one of
// the Kind values below, so callers can branch on failure class with
// errors.As instead of string matching, and the reporter can decide whether
// a failure is recoverable without knowing the component that raised it.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an Error by the stage that raised it, not by a vendor or
// dependency name, so handling logic never depends on a specific library.
type Kind string

const (
	KindCliInput       Kind = "CliInputError"
	KindFilterCompile  Kind = "FilterCompileError"
	KindFilterEval     Kind = "FilterEvalError"
	KindParse          Kind = "ParseError"
	KindBsky           Kind = "BskyError"
	KindStoreIO        Kind = "StoreIoError"
	KindStoreLock      Kind = "StoreLockError"
	KindSync           Kind = "SyncError"
	KindCredential     Kind = "CredentialError"
	KindFilterLibrary  Kind = "FilterLibraryError"
	KindFilterNotFound Kind = "FilterNotFound"
)

// SyncStage identifies which pipeline phase a SyncError originated in.
type SyncStage string

const (
	StageSource SyncStage = "source"
	StageParse  SyncStage = "parse"
	StageFilter SyncStage = "filter"
	StageStore  SyncStage = "store"
)

// Error is the canonical error type returned from Skygent engine operations.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether err (or any error in its chain) carries kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// As extracts the *Error from err's chain, or nil if there is none.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

func newErr(kind Kind, msg string, cause error, ctx map[string]any) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause, Context: ctx}
}

// NewCliInputError reports invalid user-supplied input, validated at a boundary.
func NewCliInputError(msg string) *Error {
	return newErr(KindCliInput, msg, nil, nil)
}

// NewFilterCompileError reports an AST that cannot be compiled to a predicate.
func NewFilterCompileError(msg string, cause error) *Error {
	return newErr(KindFilterCompile, msg, cause, nil)
}

// NewFilterEvalError reports a predicate that failed to evaluate.
func NewFilterEvalError(msg string, cause error) *Error {
	return newErr(KindFilterEval, msg, cause, nil)
}

// NewParseError reports a malformed upstream payload at a given stage/path.
func NewParseError(stage, path string, cause error) *Error {
	return newErr(KindParse, fmt.Sprintf("failed to parse %s", path), cause, map[string]any{
		"stage": stage,
		"path":  path,
	})
}

// NewBskyError reports an upstream HTTP/WS failure.
func NewBskyError(operation string, status int, cause error) *Error {
	return newErr(KindBsky, fmt.Sprintf("upstream call %s failed", operation), cause, map[string]any{
		"operation": operation,
		"status":    status,
	})
}

// NewStoreIoError reports a DB/filesystem failure on a store path.
func NewStoreIoError(path string, cause error) *Error {
	return newErr(KindStoreIO, fmt.Sprintf("store io failure at %s", path), cause, map[string]any{
		"path": path,
	})
}

// NewStoreLockError reports a failure to acquire a store's lock within waitFor.
func NewStoreLockError(store string, holderPID int) *Error {
	ctx := map[string]any{"store": store}
	if holderPID > 0 {
		ctx["holder_pid"] = holderPID
	}
	return newErr(KindStoreLock, fmt.Sprintf("could not acquire lock for store %q", store), nil, ctx)
}

// NewSyncError wraps a pipeline-local failure at the given stage.
func NewSyncError(stage SyncStage, cause error) *Error {
	return newErr(KindSync, fmt.Sprintf("sync failed at stage %s", stage), cause, map[string]any{
		"stage": stage,
	})
}

// NewCredentialError reports a credentials-collaborator failure.
func NewCredentialError(msg string, cause error) *Error {
	return newErr(KindCredential, msg, cause, nil)
}

// NewFilterLibraryError reports a named-filter persistence failure.
func NewFilterLibraryError(msg string, cause error) *Error {
	return newErr(KindFilterLibrary, msg, cause, nil)
}

// NewFilterNotFoundError reports that a named filter does not exist.
func NewFilterNotFoundError(name string) *Error {
	return newErr(KindFilterNotFound, fmt.Sprintf("filter %q not found", name), nil, map[string]any{
		"name": name,
	})
}
