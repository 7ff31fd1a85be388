// Package config provides centralized configuration management.
// All environment lookups live here instead of scattered os.Getenv calls.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Env holds all vaultagent environment variables.
type Env struct {
	// VaultRoot is the root of the document vault (VAULTAGENT_ROOT)
	VaultRoot string

	// DataDir holds queue snapshots and the audit database (VAULTAGENT_DATA_DIR)
	DataDir string

	// Concurrency bounds simultaneous executions (VAULTAGENT_CONCURRENCY)
	Concurrency int

	// MaxDepth is the spawn recursion ceiling (VAULTAGENT_MAX_DEPTH)
	MaxDepth int

	// QueueLimit caps pending items, 0 = unlimited (VAULTAGENT_QUEUE_LIMIT)
	QueueLimit int

	// Persist toggles durable queue state (VAULTAGENT_PERSIST)
	Persist bool

	// ProviderCmd is the external generation CLI (VAULTAGENT_PROVIDER_CMD)
	ProviderCmd string

	// Tokenizer selects the token estimator: "heuristic" or a tiktoken
	// encoding name (VAULTAGENT_TOKENIZER)
	Tokenizer string

	// Model is the default model selector (DEFAULT_MODEL)
	Model string
}

var (
	env     *Env
	envOnce sync.Once
)

// Load returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Load() *Env {
	envOnce.Do(func() {
		env = &Env{
			VaultRoot:   getEnvDefault("VAULTAGENT_ROOT", "."),
			DataDir:     getEnvDefault("VAULTAGENT_DATA_DIR", defaultDataDir()),
			Concurrency: getEnvInt("VAULTAGENT_CONCURRENCY", 3),
			MaxDepth:    getEnvInt("VAULTAGENT_MAX_DEPTH", 3),
			QueueLimit:  getEnvInt("VAULTAGENT_QUEUE_LIMIT", 0),
			Persist:     os.Getenv("VAULTAGENT_PERSIST") != "0",
			ProviderCmd: getEnvDefault("VAULTAGENT_PROVIDER_CMD", "claude"),
			Tokenizer:   getEnvDefault("VAULTAGENT_TOKENIZER", "heuristic"),
			Model:       getEnvDefault("DEFAULT_MODEL", "claude-sonnet-4-20250514"),
		}
	})
	return env
}

// Reset clears the cached environment (for testing).
func Reset() {
	envOnce = sync.Once{}
	env = nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vaultagent"
	}
	return filepath.Join(home, ".local", "share", "vaultagent")
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
