package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadFromEnvironment(t *testing.T) {
	Reset()

	os.Setenv("VAULTAGENT_ROOT", "/srv/vault")
	os.Setenv("VAULTAGENT_DATA_DIR", "/var/lib/vaultagent")
	os.Setenv("VAULTAGENT_CONCURRENCY", "5")
	os.Setenv("VAULTAGENT_MAX_DEPTH", "2")
	os.Setenv("VAULTAGENT_QUEUE_LIMIT", "50")
	os.Setenv("VAULTAGENT_PERSIST", "0")
	os.Setenv("VAULTAGENT_PROVIDER_CMD", "llm-cli")
	os.Setenv("VAULTAGENT_TOKENIZER", "cl100k_base")
	defer func() {
		os.Unsetenv("VAULTAGENT_ROOT")
		os.Unsetenv("VAULTAGENT_DATA_DIR")
		os.Unsetenv("VAULTAGENT_CONCURRENCY")
		os.Unsetenv("VAULTAGENT_MAX_DEPTH")
		os.Unsetenv("VAULTAGENT_QUEUE_LIMIT")
		os.Unsetenv("VAULTAGENT_PERSIST")
		os.Unsetenv("VAULTAGENT_PROVIDER_CMD")
		os.Unsetenv("VAULTAGENT_TOKENIZER")
		Reset()
	}()

	env := Load()

	assert.Equal(t, "/srv/vault", env.VaultRoot)
	assert.Equal(t, "/var/lib/vaultagent", env.DataDir)
	assert.Equal(t, 5, env.Concurrency)
	assert.Equal(t, 2, env.MaxDepth)
	assert.Equal(t, 50, env.QueueLimit)
	assert.False(t, env.Persist)
	assert.Equal(t, "llm-cli", env.ProviderCmd)
	assert.Equal(t, "cl100k_base", env.Tokenizer)
}

func TestLoadDefaults(t *testing.T) {
	Reset()
	for _, key := range []string{
		"VAULTAGENT_ROOT", "VAULTAGENT_DATA_DIR", "VAULTAGENT_CONCURRENCY",
		"VAULTAGENT_MAX_DEPTH", "VAULTAGENT_QUEUE_LIMIT", "VAULTAGENT_PERSIST",
		"VAULTAGENT_PROVIDER_CMD", "VAULTAGENT_TOKENIZER",
	} {
		os.Unsetenv(key)
	}
	defer Reset()

	env := Load()

	assert.Equal(t, ".", env.VaultRoot)
	assert.NotEmpty(t, env.DataDir)
	assert.Equal(t, 3, env.Concurrency)
	assert.Equal(t, 3, env.MaxDepth)
	assert.Zero(t, env.QueueLimit)
	assert.True(t, env.Persist)
	assert.Equal(t, "claude", env.ProviderCmd)
	assert.Equal(t, "heuristic", env.Tokenizer)
}

func TestLoadBadIntFallsBack(t *testing.T) {
	Reset()
	os.Setenv("VAULTAGENT_CONCURRENCY", "many")
	defer func() {
		os.Unsetenv("VAULTAGENT_CONCURRENCY")
		Reset()
	}()

	assert.Equal(t, 3, Load().Concurrency)
}

func TestLoadCaches(t *testing.T) {
	Reset()
	defer Reset()

	first := Load()
	os.Setenv("VAULTAGENT_ROOT", "/elsewhere")
	defer os.Unsetenv("VAULTAGENT_ROOT")

	assert.Same(t, first, Load(), "loaded once, then cached until Reset")
}
