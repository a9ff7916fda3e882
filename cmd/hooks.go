package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/kiln/internal/hook"
)

func newHooksCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "List and run plugin hooks",
	}
	cmd.AddCommand(newHooksListCmd(opts), newHooksRunCmd(opts))
	return cmd
}

func newHooksListCmd(opts *rootOptions) *cobra.Command {
	var event string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List hooks declared by enabled plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				hooks, err := s.boot.Hooks(ctx)
				if err != nil {
					return err
				}
				if event != "" {
					hooks = filterHooks(hooks, event)
				}
				f := opts.formatter(cmd)
				if opts.json {
					return f.FormatJSON(hooks)
				}
				return f.FormatHooks(hooks)
			})
		},
	}
	cmd.Flags().StringVarP(&event, "event", "e", "", "only hooks for this event")
	return cmd
}

func filterHooks(hooks []hook.Descriptor, event string) []hook.Descriptor {
	out := make([]hook.Descriptor, 0, len(hooks))
	for _, h := range hooks {
		if h.Event == event {
			out = append(out, h)
		}
	}
	return out
}

func newHooksRunCmd(opts *rootOptions) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "run <event>",
		Short: "Run every hook registered for an event",
		Example: `  kiln hooks run plugin:added
  kiln hooks run deploy --data 'env: prod'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload any
			if data != "" {
				if err := yaml.Unmarshal([]byte(data), &payload); err != nil {
					return fmt.Errorf("parsing --data: %w", err)
				}
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				result, err := s.boot.RunHook(ctx, args[0], payload)
				if err != nil {
					return err
				}
				if opts.json {
					return opts.formatter(cmd).FormatJSON(result)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Ran %d hooks for %s\n", len(result.Ran), result.Event)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "YAML payload passed to each handler")
	return cmd
}
