package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/kiln/internal/flags"
)

type flagRow struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

func newFlagsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flags",
		Short: "Show feature flags and whether they are on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			facade, err := opts.loadConfig()
			if err != nil {
				return err
			}
			cfg, err := facade.Config()
			if err != nil {
				return err
			}
			reg := flags.New(cfg.Flags)

			rows := make([]flagRow, 0, len(flags.Known))
			for _, name := range flags.Names() {
				rows = append(rows, flagRow{Name: name, Enabled: reg.Enabled(name), Description: flags.Known[name]})
			}
			if opts.json {
				return opts.formatter(cmd).FormatJSON(rows)
			}
			for _, r := range rows {
				state := "off"
				if r.Enabled {
					state = "on"
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-3s  %s\n", r.Name, state, r.Description); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

