// Package main provides the vaultagent CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mlindgren/vaultagent/internal/config"
	"github.com/mlindgren/vaultagent/internal/render"
)

var (
	version   = "0.1.0"
	pretty    = true
	vaultRoot string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vaultagent",
		Short: "Agent orchestration for document vaults",
		Long: `vaultagent runs markdown-defined agents against a document vault.

Agents live as markdown files with YAML frontmatter under <vault>/agents/.
They are triggered by file changes, cron schedules, or manual enqueue, and
execute through an external generation CLI with vault-scoped permissions.

Use 'vaultagent run' to start the daemon.
Use 'vaultagent agents' to list definitions in the current vault.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if vaultRoot != "" {
				os.Setenv("VAULTAGENT_ROOT", vaultRoot)
				config.Reset()
			}
			if !render.IsTerminal() {
				pretty = false
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "Pretty print output")
	rootCmd.PersistentFlags().StringVar(&vaultRoot, "root", "", "Vault root (default $VAULTAGENT_ROOT or cwd)")

	rootCmd.AddCommand(
		runCmd(),
		enqueueCmd(),
		queueCmd(),
		cancelCmd(),
		agentsCmd(),
		permsCmd(),
		runsCmd(),
		statsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
