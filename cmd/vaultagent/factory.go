package main

import (
	"fmt"
	"path/filepath"

	"github.com/mlindgren/vaultagent/internal/agentfile"
	"github.com/mlindgren/vaultagent/internal/assembler"
	"github.com/mlindgren/vaultagent/internal/config"
	"github.com/mlindgren/vaultagent/internal/engine"
	"github.com/mlindgren/vaultagent/internal/orchestrator"
	"github.com/mlindgren/vaultagent/internal/store"
	"github.com/mlindgren/vaultagent/internal/tokens"
	"github.com/mlindgren/vaultagent/pkg/llm"
)

// runtime bundles everything a daemon or one-shot command needs.
type runtime struct {
	env    *config.Env
	loader *agentfile.Loader
	orch   *orchestrator.Orchestrator
	audit  *store.Store
}

// buildRuntime wires the loader, engine and orchestrator from the
// environment configuration. Only one live orchestrator may own the queue
// snapshot, so commands running alongside a daemon pass persist=false.
func buildRuntime(withAudit, persist bool) (*runtime, error) {
	env := config.Load()
	if env.VaultRoot == "" {
		return nil, fmt.Errorf("vault root not set (use --root or VAULTAGENT_ROOT)")
	}

	loader := agentfile.NewLoader(env.VaultRoot)
	asm := assembler.New(env.VaultRoot, tokens.ForName(env.Tokenizer))
	provider := llm.NewCLIProvider(env.ProviderCmd)
	eng := engine.New(env.VaultRoot, provider, asm, env.Model)

	orch := orchestrator.New(orchestrator.Config{
		Concurrency: env.Concurrency,
		MaxDepth:    env.MaxDepth,
		QueueLimit:  env.QueueLimit,
		Persist:     env.Persist && persist,
		PersistPath: filepath.Join(env.DataDir, "queue.json"),
	}, loader, eng)
	eng.SetBroker(orch.Broker())

	rt := &runtime{env: env, loader: loader, orch: orch}

	if withAudit {
		auditStore, err := store.New(env.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open audit store: %w", err)
		}
		orch.SetAuditor(auditStore)
		rt.audit = auditStore
	}

	return rt, nil
}

func (rt *runtime) close() {
	if rt.audit != nil {
		rt.audit.Close()
	}
}
