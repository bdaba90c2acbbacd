package bsky

import (
	"context"

	"skygent.dev/skygent/internal/errs"
)

// Credentials is the redacted identifier/password pair the engine core
// passes to an authenticating transport. The engine never reads or logs
// Password directly; call sites pass the struct straight through.
type Credentials struct {
	Identifier string
	Password   string
}

// CredentialsSource resolves a named secret into Credentials. The real
// implementation is chosen at the composition root and may be backed by
// the environment, a keyring, or a secrets manager; package bsky only
// depends on this interface.
type CredentialsSource interface {
	Resolve(ctx context.Context, key string) (Credentials, error)
}

// EnvCredentialsSource resolves credentials from a pair of environment
// variables named "<KEY>_IDENTIFIER" and "<KEY>_PASSWORD", the minimal
// collaborator needed to run the sync engines without a secrets manager.
type EnvCredentialsSource struct {
	Lookup func(string) (string, bool)
}

// Resolve implements CredentialsSource.
func (e EnvCredentialsSource) Resolve(_ context.Context, key string) (Credentials, error) {
	lookup := e.Lookup
	if lookup == nil {
		return Credentials{}, errs.NewCredentialError("no environment lookup configured", nil)
	}
	id, ok := lookup(key + "_IDENTIFIER")
	if !ok || id == "" {
		return Credentials{}, errs.NewCredentialError("missing "+key+"_IDENTIFIER", nil)
	}
	pw, ok := lookup(key + "_PASSWORD")
	if !ok || pw == "" {
		return Credentials{}, errs.NewCredentialError("missing "+key+"_PASSWORD", nil)
	}
	return Credentials{Identifier: id, Password: pw}, nil
}
