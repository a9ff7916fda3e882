package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/kiln/internal/bootstrap"
	"github.com/zjrosen/kiln/internal/log"
	"github.com/zjrosen/kiln/internal/plugin"
	"github.com/zjrosen/kiln/internal/presentation"
	"github.com/zjrosen/kiln/internal/templates"
	"github.com/zjrosen/kiln/internal/watcher"
)

func newPluginsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "plugins",
		Aliases: []string{"plugin"},
		Short:   "List, add and remove plugins",
	}
	cmd.AddCommand(
		newPluginsListCmd(opts),
		newPluginsInfoCmd(opts),
		newPluginsAddCmd(opts),
		newPluginsRemoveCmd(opts),
		newPluginsWatchCmd(opts),
	)
	return cmd
}

func newPluginsListCmd(opts *rootOptions) *cobra.Command {
	var (
		all     bool
		typ     string
		channel string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered plugins",
		Long: `List every discovered plugin with its status.

Enabled plugins come first in discovery order (core, global, app, user),
followed by disabled and invalid ones. Hidden plugins are listed with --all.`,
		Example: `  kiln plugins list
  kiln plugins list --all --type user
  kiln plugins list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				d, err := listDiscovery(ctx, s.boot, plugin.DiscoverOptions{Type: plugin.Type(typ), Channel: channel})
				if err != nil {
					return err
				}
				rows := presentation.FromDiscovery(d, all)
				f := opts.formatter(cmd)
				if opts.json {
					return f.FormatJSON(rows)
				}
				return f.FormatPlugins(rows)
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include hidden plugins")
	cmd.Flags().StringVarP(&typ, "type", "t", "", "only plugins of this type (core, global, app, user)")
	cmd.Flags().StringVar(&channel, "channel", "", "discover as if on this release channel")
	return cmd
}

// listDiscovery returns the cached discovery, or a fresh uncached one when
// any option narrows it.
func listDiscovery(ctx context.Context, b *bootstrap.Bootstrap, opts plugin.DiscoverOptions) (plugin.Discovery, error) {
	if opts.Type != "" || opts.Channel != "" {
		enabled, err := b.Plugins(ctx, opts)
		if err != nil {
			return plugin.Discovery{}, err
		}
		return plugin.Discovery{Enabled: enabled}, nil
	}

	var (
		d   plugin.Discovery
		err error
	)
	if d.Enabled, err = b.Plugins(ctx, plugin.DiscoverOptions{}); err != nil {
		return d, err
	}
	if d.Disabled, err = b.DisabledPlugins(ctx); err != nil {
		return d, err
	}
	if d.Invalid, err = b.InvalidPlugins(ctx); err != nil {
		return d, err
	}
	return d, nil
}

func newPluginsInfoCmd(opts *rootOptions) *cobra.Command {
	var readme bool
	cmd := &cobra.Command{
		Use:   "info <name>",
		Short: "Show one plugin and its manifest fragment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				d, err := listDiscovery(ctx, s.boot, plugin.DiscoverOptions{})
				if err != nil {
					return err
				}
				name := plugin.ParseName(args[0])
				p, ok := d.Find(name)
				if !ok {
					return fmt.Errorf("%s: %w", name, bootstrap.ErrPluginNotFound)
				}

				f := opts.formatter(cmd)
				if opts.json {
					return f.FormatJSON(p)
				}
				status := presentation.StatusEnabled
				switch {
				case p.Error != "":
					status = presentation.StatusInvalid
				case !p.Enabled:
					status = presentation.StatusDisabled
				}
				if err := f.FormatPlugins([]presentation.PluginDTO{presentation.FromPlugin(p, status)}); err != nil {
					return err
				}
				if !readme {
					return nil
				}
				text, err := readREADME(p)
				if errors.Is(err, fs.ErrNotExist) {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), "No README.")
					return err
				}
				if err != nil {
					return err
				}
				return f.FormatMarkdown(text)
			})
		},
	}
	cmd.Flags().BoolVar(&readme, "readme", false, "render the plugin README")
	return cmd
}

// readREADME reads README.md from the plugin directory, or from the embedded
// set for core plugins.
func readREADME(p *plugin.Plugin) (string, error) {
	var (
		data []byte
		err  error
	)
	if p.IsCore() {
		data, err = fs.ReadFile(templates.PluginsFS(), p.Name+"/README.md")
	} else {
		data, err = os.ReadFile(filepath.Join(p.Dir, "README.md")) //nolint:gosec // G304: plugin dir from discovery
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func newPluginsAddCmd(opts *rootOptions) *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "add <name[@version]>",
		Short: "Install a plugin and rebuild derived state",
		Long: `Install a plugin through the configured installer and reinitialize.

Without --dest the plugin goes to the first configured user directory,
falling back to app and then global directories.`,
		Example: `  kiln plugins add greeter
  kiln plugins add greeter --dest ./plugins`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				p, err := s.boot.AddPlugin(ctx, args[0], dest)
				if err != nil {
					return err
				}
				if opts.json {
					return opts.formatter(cmd).FormatJSON(presentation.FromPlugin(p, presentation.StatusEnabled))
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Added %s to %s\n", p.Name, p.Dir)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&dest, "dest", "", "plugin directory to install into")
	return cmd
}

func newPluginsRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a plugin and rebuild derived state",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				p, err := s.boot.RemovePlugin(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", p.Name)
				return err
			})
		},
	}
}

func newPluginsWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Reinitialize whenever a plugin directory changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				return watchPlugins(ctx, cmd, s.boot)
			})
		},
	}
}

func watchPlugins(ctx context.Context, cmd *cobra.Command, b *bootstrap.Bootstrap) error {
	var dirs []string
	for _, d := range b.Config().Plugins.Dirs {
		path := expandHome(d.Path)
		if err := os.MkdirAll(path, 0o750); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		dirs = append(dirs, path)
	}
	if len(dirs) == 0 {
		return errors.New("no plugin directories configured")
	}

	w, err := watcher.New(watcher.DefaultConfig(dirs))
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Watching %d plugin directories\n", len(dirs))
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if err := b.Reinit(ctx); err != nil {
				log.ErrorErr(log.CatWatcher, "Reinit after change failed", err)
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "reinit failed: %v\n", err)
				continue
			}
			_, _ = fmt.Fprintf(out, "Reinitialized (generation %d)\n", b.Generation())
		}
	}
}

func expandHome(path string) string {
	if len(path) > 1 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
