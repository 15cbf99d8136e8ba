package cli

import (
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the chatctl profile",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective profile (API key masked)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				p, path, err := profileFor(cmd)
				if err != nil {
					return err
				}
				data, err := yaml.Marshal(p.Masked())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", path, data)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set one profile value and save it",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, _ := cmd.Flags().GetString("profile")
				if path == "" {
					path = DefaultProfilePath()
				}
				// env and flag overrides are not persisted
				p, err := LoadProfile(path)
				if err != nil {
					return err
				}
				if err := p.Set(args[0], args[1]); err != nil {
					return err
				}
				if err := SaveProfile(p, path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", path)
				return nil
			},
		},
	)
	return cmd
}
