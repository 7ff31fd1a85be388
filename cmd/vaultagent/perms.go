package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mlindgren/vaultagent/internal/config"
	"github.com/mlindgren/vaultagent/internal/permission"
	"github.com/mlindgren/vaultagent/internal/render"
	"github.com/mlindgren/vaultagent/internal/store"
)

func permsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "perms",
		Short: "Review and resolve permission requests",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List pending permission requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := permission.ReadPending(config.Load().DataDir)
			if err != nil {
				return err
			}

			r := render.New(pretty)
			fmt.Print(r.Permissions(reqs))
			return nil
		},
	}

	grantCmd := &cobra.Command{
		Use:   "grant <request-id>",
		Short: "Grant a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(args[0], true)
		},
	}

	denyCmd := &cobra.Command{
		Use:   "deny <request-id>",
		Short: "Deny a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(args[0], false)
		},
	}

	cmd.AddCommand(listCmd, grantCmd, denyCmd)
	return cmd
}

func submit(id string, granted bool) error {
	by := os.Getenv("USER")
	if by == "" {
		by = "cli"
	}

	if err := permission.SubmitDecision(config.Load().DataDir, id, granted, by); err != nil {
		return err
	}

	verb := "denied"
	if granted {
		verb = "granted"
	}
	fmt.Printf("%s %s (daemon applies on next poll)\n", verb, id)
	return nil
}

func runsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recorded execution history",
		RunE: func(cmd *cobra.Command, args []string) error {
			auditStore, err := store.New(config.Load().DataDir)
			if err != nil {
				return err
			}
			defer auditStore.Close()

			runs, err := auditStore.ListRuns(limit)
			if err != nil {
				return err
			}
			render.NewRuns().History(runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}
