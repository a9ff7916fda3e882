package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the derived-state cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "flush",
		Short: "Flush cached plugins, manifest and hooks and rebuild them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				if err := s.boot.Reinit(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Cache flushed (generation %d)\n", s.boot.Generation())
				return err
			})
		},
	})
	return cmd
}
