package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/kiln/internal/manifest"
)

func newManifestCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect the composed manifest",
	}
	cmd.AddCommand(newManifestShowCmd(opts), newManifestRegistryCmd(opts))
	return cmd
}

func newManifestShowCmd(opts *rootOptions) *cobra.Command {
	var (
		path      string
		fragments bool
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the merged manifest",
		Long: `Print the manifest composed from every enabled plugin.

Earlier plugins win conflicts, so the core plugin overrides everything.
The keys name, description, enabled and hidden never reach the manifest.`,
		Example: `  kiln manifest show
  kiln manifest show --path services.web
  kiln manifest show --fragments --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				m, err := s.boot.Manifest(ctx)
				if err != nil {
					return err
				}
				var v any = m.Tree()
				switch {
				case fragments:
					v = m.Data()
				case path != "":
					got, ok := m.Get(path)
					if !ok {
						return fmt.Errorf("%s: not set in manifest", path)
					}
					v = got
				}
				return printTree(cmd, opts, v)
			})
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "print only the value at this dotted path")
	cmd.Flags().BoolVar(&fragments, "fragments", false, "print each plugin fragment in composition order")
	return cmd
}

func newManifestRegistryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "registry",
		Short: "Print the component registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(cmd, func(_ context.Context, s *session) error {
				return printTree(cmd, opts, s.boot.Registry())
			})
		},
	}
}

// printTree writes v as JSON with --json, YAML otherwise.
func printTree(cmd *cobra.Command, opts *rootOptions, v any) error {
	if opts.json {
		return opts.formatter(cmd).FormatJSON(v)
	}
	if tree, ok := manifest.AsMap(v); ok && len(tree) == 0 {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "{}")
		return err
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("rendering yaml: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
