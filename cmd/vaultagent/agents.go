package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mlindgren/vaultagent/internal/agentfile"
	"github.com/mlindgren/vaultagent/internal/config"
	"github.com/mlindgren/vaultagent/internal/render"
)

func agentsCmd() *cobra.Command {
	var show string

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List agent definitions in the vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := config.Load()
			if env.VaultRoot == "" {
				return fmt.Errorf("vault root not set (use --root or VAULTAGENT_ROOT)")
			}

			loader := agentfile.NewLoader(env.VaultRoot)

			if show != "" {
				agent, err := loader.Load(show)
				if err != nil {
					return err
				}
				w := render.Stdout()
				w.Header("AGENT %s", agent.Name)
				w.Item("Path:        %s", agent.Path)
				w.Item("Model:       %s", valueOr(agent.Model, "(default)"))
				w.Item("Tools:       %v", agent.Tools)
				w.Item("Read:        %v", agent.Permissions.Read)
				w.Item("Write:       %v", agent.Permissions.Write)
				w.Item("Spawn:       %v", agent.Permissions.Spawn)
				w.Item("Max spawns:  %d", agent.Constraints.MaxSpawns)
				w.Item("Max depth:   %d", agent.Constraints.MaxDepth)
				w.Item("Timeout:     %s", agent.Constraints.Timeout)
				return nil
			}

			agents, err := loader.LoadAll()
			if err != nil {
				return err
			}

			r := render.New(pretty)
			fmt.Print(r.Agents(agents))
			return nil
		},
	}

	cmd.Flags().StringVar(&show, "show", "", "Show one agent's full configuration")
	return cmd
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
