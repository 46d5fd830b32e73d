package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systemshift/mxvc/internal/op"
	"github.com/systemshift/mxvc/internal/repo"
)

// resolveOp finds an operation reachable from r by id prefix. "@" is the
// loaded operation.
func resolveOp(ctx context.Context, r *repo.ReadonlyRepo, s string) (op.OperationID, error) {
	if s == "@" {
		return r.OperationID(), nil
	}
	log, err := r.OperationLog(ctx, 0)
	if err != nil {
		return "", err
	}
	var matches []op.OperationID
	for _, e := range log {
		if strings.HasPrefix(string(e.ID), s) || strings.HasPrefix(e.ID.Short(), s) {
			matches = append(matches, e.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no operation matching %q", s)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("operation id prefix %q is ambiguous", s)
}

func (c *cli) opCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "op",
		Short: "Work with the operation log",
	}

	var limit int
	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Show the operation log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			defer r.Close()
			entries, err := r.OperationLog(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				marker := " "
				if e.ID == r.OperationID() {
					marker = "@"
				}
				md := e.Metadata
				fmt.Fprintf(out, "%s %s %s@%s %s\n", marker, e.ID.Short(), md.Username, md.Hostname,
					md.EndTime.Local().Format("2006-01-02 15:04:05"))
				fmt.Fprintf(out, "    %s\n", md.Description)
				if len(e.Parents) > 1 {
					fmt.Fprintf(out, "    (merged %d concurrent operations)\n", len(e.Parents))
				}
			}
			return nil
		},
	}
	logCmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most this many operations")

	restore := &cobra.Command{
		Use:   "restore operation",
		Short: "Restore the repository to the state after an operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			next, err := c.mutate(cmd, "restore to operation "+args[0], func(ctx context.Context, tx *repo.Transaction) error {
				id, err := resolveOp(ctx, tx.Base(), args[0])
				if err != nil {
					return err
				}
				return tx.RestoreOperation(ctx, id)
			})
			if err != nil {
				return err
			}
			defer next.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "Restored to operation", args[0])
			return nil
		},
	}

	undo := &cobra.Command{
		Use:   "undo [operation]",
		Short: "Undo an operation (default: the latest), keeping later changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "@"
			if len(args) == 1 {
				target = args[0]
			}
			var undone op.OperationID
			next, err := c.mutate(cmd, "undo operation", func(ctx context.Context, tx *repo.Transaction) error {
				id, err := resolveOp(ctx, tx.Base(), target)
				if err != nil {
					return err
				}
				undone = id
				tx.SetMetadataTag("undone", string(id))
				return tx.UndoOperation(ctx, id)
			})
			if err != nil {
				return err
			}
			defer next.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "Undid operation", undone.Short())
			return nil
		},
	}

	heads := &cobra.Command{
		Use:   "heads",
		Short: "List the operation heads without merging them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ids, err := repo.Heads(cmd.Context(), c.repoPath, c.settings, c.options()...)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	cmd.AddCommand(logCmd, restore, undo, heads)
	return cmd
}
