package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"skylink/internal/core"
)

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved session snapshots",
		Long: `List, show, and delete session snapshots in the configured store
(storage.driver: memory, sqlite, or postgres).

Examples:
  skylink sessions list
  skylink sessions show demo
  skylink sessions delete demo`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved snapshots",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withStore(cmd, func(ctx context.Context, store core.SnapshotStore) error {
					infos, err := store.List(ctx)
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
					_, _ = fmt.Fprintln(tw, "NAME\tSAVED\tDATASETS\tLINKS\tSUBSETS\tVIEWERS")
					for _, info := range infos {
						_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", info.Name, info.SavedAt.Format(time.RFC3339),
							info.Datasets, info.Links, info.Subsets, info.Viewers)
					}
					return tw.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "show <name>",
			Short: "Print a snapshot as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withStore(cmd, func(ctx context.Context, store core.SnapshotStore) error {
					snap, err := store.Load(ctx, args[0])
					if err != nil {
						return err
					}
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(snap)
				})
			},
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Delete a snapshot",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withStore(cmd, func(ctx context.Context, store core.SnapshotStore) error {
					if err := store.Delete(ctx, args[0]); err != nil {
						return err
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
					return nil
				})
			},
		},
	)
	return cmd
}

func (a *app) withStore(cmd *cobra.Command, fn func(context.Context, core.SnapshotStore) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := core.OpenSnapshotStore(ctx, a.cfg.Storage)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(ctx, store)
}
