package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mlindgren/vaultagent/internal/agentfile"
	"github.com/mlindgren/vaultagent/internal/config"
	"github.com/mlindgren/vaultagent/internal/domain"
	"github.com/mlindgren/vaultagent/internal/orchestrator"
	"github.com/mlindgren/vaultagent/internal/render"
	"github.com/mlindgren/vaultagent/internal/store"
)

func enqueueCmd() *cobra.Command {
	var (
		message  string
		priority int
		delay    time.Duration
		wait     bool
	)

	cmd := &cobra.Command{
		Use:   "enqueue <agent-path>",
		Short: "Queue an agent execution",
		Long: `Queue a manual execution of the agent at the given vault-relative path.

With --wait the item executes in this process, without touching the
daemon's queue, and the response is printed. Without it the request is
handed to a running daemon through the data-dir inbox.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := orchestrator.EnqueueRequest{
				AgentPath:    args[0],
				Context:      domain.ExecutionContext{Message: message},
				Priority:     domain.Priority(priority),
				ScheduledFor: time.Now().Add(delay),
			}

			if !wait {
				env := config.Load()
				if env.VaultRoot == "" {
					return fmt.Errorf("vault root not set (use --root or VAULTAGENT_ROOT)")
				}
				// Validate the document here so a typo fails at the
				// prompt, not in the daemon's log.
				if _, err := agentfile.NewLoader(env.VaultRoot).Load(args[0]); err != nil {
					return err
				}
				id, err := orchestrator.Submit(env.DataDir, req)
				if err != nil {
					return err
				}
				fmt.Printf("submitted %s (a running daemon will pick it up)\n", id)
				return nil
			}

			rt, err := buildRuntime(true, false)
			if err != nil {
				return err
			}
			defer rt.close()

			id, err := rt.orch.Enqueue(req)
			if err != nil {
				return err
			}
			fmt.Printf("queued %s\n", id)

			for {
				item, ok := rt.orch.Get(id)
				if !ok {
					return fmt.Errorf("item %s disappeared", id)
				}
				if item.Terminal() {
					if item.Status == domain.StatusFailed {
						return fmt.Errorf("execution failed: %s", item.Error)
					}
					if item.Result != nil {
						fmt.Println(item.Result.Response)
					}
					return nil
				}
				time.Sleep(200 * time.Millisecond)
			}
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Message passed to the agent")
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Priority (-1 low, 0 normal, 1 high)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Delay before the item becomes due")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for completion and print the response")
	return cmd
}

func queueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show queue state",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(false, true)
			if err != nil {
				return err
			}

			r := render.New(pretty)
			fmt.Print(r.Queue(rt.orch.QueueState()))
			if stats := rt.orch.Stats(); stats.Processed > 0 {
				fmt.Println()
				fmt.Print(r.Stats(stats))
			}
			return nil
		},
	}
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <item-id>",
		Short: "Cancel a pending queue item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(false, true)
			if err != nil {
				return err
			}

			if !rt.orch.Cancel(args[0]) {
				return fmt.Errorf("item %s is not pending (running items cannot be cancelled)", args[0])
			}
			fmt.Printf("cancelled %s\n", args[0])
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate execution statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			auditStore, err := store.New(config.Load().DataDir)
			if err != nil {
				return err
			}
			defer auditStore.Close()

			stats, err := auditStore.Stats()
			if err != nil {
				return err
			}
			render.NewRuns().Summary(stats)
			return nil
		},
	}
}
