package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comigor/writer-chat/internal/config"
	"github.com/comigor/writer-chat/internal/llm"
)

// isolate runs from an empty directory so no config.yaml or .env is read.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("SERVER_HOST", "127.0.0.1")
	t.Setenv("SERVER_PORT", "0")
}

func TestRun_MissingCredentialStopsBeforeClient(t *testing.T) {
	isolate(t)
	t.Setenv(config.APIKeyEnv, "")
	// A base URL the client would reject; the credential check must come first.
	t.Setenv("LLM_BASE_URL", "not a url")

	err := run(context.Background(), io.Discard)

	var cfgErr *config.ConfigError
	require.True(t, errors.As(err, &cfgErr), "expected *config.ConfigError, got %T: %v", err, err)
	require.Equal(t, config.APIKeyEnv, cfgErr.Key)

	var initErr *llm.ClientInitError
	require.False(t, errors.As(err, &initErr))
}

func TestRun_MalformedBaseURL(t *testing.T) {
	isolate(t)
	t.Setenv(config.APIKeyEnv, "sk-test")
	t.Setenv("LLM_BASE_URL", "ftp://openrouter.ai")

	err := run(context.Background(), io.Discard)

	var initErr *llm.ClientInitError
	require.True(t, errors.As(err, &initErr), "expected *llm.ClientInitError, got %T: %v", err, err)
}

func TestRun_StopsWhenContextIsDone(t *testing.T) {
	isolate(t)
	t.Setenv(config.APIKeyEnv, "sk-test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, run(ctx, io.Discard))
}
