package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mlindgren/vaultagent/internal/orchestrator"
	"github.com/mlindgren/vaultagent/internal/permission"
	runtimepkg "github.com/mlindgren/vaultagent/internal/runtime"
	"github.com/mlindgren/vaultagent/internal/watcher"
)

func runCmd() *cobra.Command {
	var cronInterval time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the agent daemon",
		Long: `Run the watcher, scheduler and permission broker until interrupted.

File events and cron schedules enqueue agent executions; the scheduler
dispatches them up to the configured concurrency.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(true, true)
			if err != nil {
				return err
			}

			agents, err := rt.loader.LoadAll()
			if err != nil {
				return fmt.Errorf("load agents: %w", err)
			}
			fmt.Fprintf(os.Stderr, "vaultagent %s: %d agents, vault %s\n",
				version, len(agents), rt.env.VaultRoot)

			shutdown := runtimepkg.NewShutdown(runtimepkg.DefaultTimeout)
			shutdown.ListenForSignals()
			ctx := shutdown.Context()

			shutdown.RegisterSimple("audit", rt.close)
			shutdown.Register("orchestrator", func(context.Context) error {
				rt.orch.Shutdown()
				return nil
			})

			w := watcher.New(rt.env.VaultRoot, rt.orch)
			w.SetAgents(agents)
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			go w.RunCron(ctx, cronInterval)

			bridge := permission.NewFileBridge(rt.env.DataDir, rt.orch.Broker())
			go bridge.Poll(ctx, 2*time.Second)

			inbox := orchestrator.NewInbox(rt.env.DataDir, rt.orch)
			go inbox.Poll(ctx, 2*time.Second)

			rt.orch.Run(ctx)

			shutdown.Trigger()
			shutdown.Wait()
			return nil
		},
	}

	cmd.Flags().DurationVar(&cronInterval, "cron-interval", 30*time.Second,
		"How often cron schedules are checked")
	return cmd
}
