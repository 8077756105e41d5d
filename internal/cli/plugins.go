package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/nanoreport/internal/plugin"
	"github.com/ppiankov/nanoreport/internal/settings"
)

// pluginCmd represents the plugin command
var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Inspect registered report plugins",
}

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List report plugins",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := newPipeline()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, name := range p.Registry().Names() {
			def, err := p.Registry().Get(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", def.Name, def.Version, def.Description)
		}
		return w.Flush()
	},
}

var pluginSchemaCmd = &cobra.Command{
	Use:   "schema <plugin>",
	Short: "Print the JSON schema and flags of a plugin's settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := newPipeline()
		if err != nil {
			return err
		}
		def, err := p.Registry().Get(args[0])
		if err != nil {
			return err
		}

		data, err := plugin.ConfigSchema(def)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))

		if verbose {
			for _, f := range def.Settings.Fields() {
				fmt.Fprintf(cmd.ErrOrStderr(), "--%s\t%s\n", settings.FlagName(def.Name, f.Name), f.Help)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pluginCmd)
	pluginCmd.AddCommand(pluginListCmd)
	pluginCmd.AddCommand(pluginSchemaCmd)
}
