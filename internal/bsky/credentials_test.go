package bsky

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvCredentialsSourceResolvesBothVars(t *testing.T) {
	env := map[string]string{
		"SKYGENT_IDENTIFIER": "alice.bsky.social",
		"SKYGENT_PASSWORD":   "hunter2",
	}
	src := EnvCredentialsSource{Lookup: func(k string) (string, bool) { v, ok := env[k]; return v, ok }}

	creds, err := src.Resolve(context.Background(), "SKYGENT")
	require.NoError(t, err)
	assert.Equal(t, "alice.bsky.social", creds.Identifier)
	assert.Equal(t, "hunter2", creds.Password)
}

func TestEnvCredentialsSourceMissingIdentifierErrors(t *testing.T) {
	src := EnvCredentialsSource{Lookup: func(k string) (string, bool) { return "", false }}
	_, err := src.Resolve(context.Background(), "SKYGENT")
	assert.Error(t, err)
}

func TestEnvCredentialsSourceMissingPasswordErrors(t *testing.T) {
	env := map[string]string{"SKYGENT_IDENTIFIER": "alice.bsky.social"}
	src := EnvCredentialsSource{Lookup: func(k string) (string, bool) { v, ok := env[k]; return v, ok }}
	_, err := src.Resolve(context.Background(), "SKYGENT")
	assert.Error(t, err)
}

func TestEnvCredentialsSourceNoLookupConfigured(t *testing.T) {
	src := EnvCredentialsSource{}
	_, err := src.Resolve(context.Background(), "SKYGENT")
	assert.Error(t, err)
}
