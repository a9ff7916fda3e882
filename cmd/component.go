package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zjrosen/kiln/internal/bootstrap"
	"github.com/zjrosen/kiln/internal/presentation"
)

func newComponentCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "component",
		Short: "Resolve registry components",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "show <key>",
		Short:   "Resolve a registry key to its factory and defaults",
		Example: `  kiln component show core.plugin-installer`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(_ context.Context, s *session) error {
				ref, err := s.boot.GetComponent(args[0], bootstrap.ComponentOptions{NoCache: true})
				if err != nil {
					return err
				}
				dto := presentation.FromRef(ref)
				f := opts.formatter(cmd)
				if opts.json {
					return f.FormatJSON(dto)
				}
				return f.FormatComponent(dto)
			})
		},
	})
	return cmd
}
