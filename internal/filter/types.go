// Package filter implements Skygent's boolean filter language: primitive
// newtypes, the FilterExpr AST (C1), the DSL parser (C2), and the compiled
// predicate runtime (C3).
package filter

import "time"

// Handle is a user-facing alias, e.g. "alice.bsky.social".
type Handle string

// DID is a stable decentralized identifier, e.g. "did:plc:abc123".
type DID string

// Hashtag is a lowercased tag with no leading "#".
type Hashtag string

// URI is an AT Protocol record locator: at://did/collection/rkey.
type URI string

// CID is a content-addressed hash identifying a specific record revision.
type CID string

// StoreName identifies a store directory under the configured store root.
type StoreName string

// EventSeq is the monotonically increasing sequence number of an event-log row.
type EventSeq uint64

// Timestamp is a UTC instant; posts and events carry one apiece.
type Timestamp = time.Time

// ErrorPolicyKind tags an ErrorPolicy variant.
type ErrorPolicyKind string

const (
	PolicyInclude ErrorPolicyKind = "Include"
	PolicyExclude ErrorPolicyKind = "Exclude"
	PolicyRetry   ErrorPolicyKind = "Retry"
)

// ErrorPolicy governs how an effectful atom's evaluation failure is handled.
type ErrorPolicy struct {
	Kind        ErrorPolicyKind `json:"kind"`
	MaxRetries  int             `json:"maxRetries,omitempty"`
	BaseDelay   time.Duration   `json:"baseDelay,omitempty"`
}

// Include builds the Include error policy.
func Include() ErrorPolicy { return ErrorPolicy{Kind: PolicyInclude} }

// Exclude builds the Exclude error policy.
func Exclude() ErrorPolicy { return ErrorPolicy{Kind: PolicyExclude} }

// Retry builds the Retry error policy. baseDelay must be >= 0 and finite.
func Retry(maxRetries int, baseDelay time.Duration) ErrorPolicy {
	return ErrorPolicy{Kind: PolicyRetry, MaxRetries: maxRetries, BaseDelay: baseDelay}
}

// Validate reports whether the policy is well-formed: a retry policy needs
// a non-negative retry count and a non-negative base delay.
func (p ErrorPolicy) Validate() bool {
	switch p.Kind {
	case PolicyInclude, PolicyExclude:
		return true
	case PolicyRetry:
		return p.MaxRetries >= 0 && p.BaseDelay >= 0
	default:
		return false
	}
}
