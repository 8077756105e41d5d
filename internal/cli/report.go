package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/nanoreport/internal/pipeline"
	"github.com/ppiankov/nanoreport/internal/reporter"
	"github.com/ppiankov/nanoreport/internal/settings"
)

var (
	reportJSON    string
	reportTimeout time.Duration
)

// reportSchemas are the plugins whose settings get flags on the report command
var reportSchemas = map[string]*settings.Schema{
	reporter.Name: reporter.Schema(),
}

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report <plugin>",
	Short: "Render a report with the named plugin",
	Long: `Report loads a report plugin, resolves its settings and renders it.

Every plugin setting is available as --report-<plugin>-<setting>. Settings
marked with an environment variable also read SNAKEMAKE_REPORT_<PLUGIN>_<SETTING>.
Values may also be given in the config file under report.<plugin>.

Example:
  nanoreport report nanopub --report-nanopub-workflow rna-seq
  nanoreport report nanopub --report-nanopub-workflow rna-seq --report-nanopub-use-test-server=false
  SNAKEMAKE_REPORT_NANOPUB_PROFILE=~/np/profile.yml nanoreport report nanopub --report-nanopub-workflow wf`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportJSON, "json", "", "write the publish result as JSON to this path")
	reportCmd.Flags().DurationVar(&reportTimeout, "timeout", 2*time.Minute, "overall report timeout")

	for name, schema := range reportSchemas {
		addSettingFlags(reportCmd.Flags(), name, schema)
	}
}

func runReport(cmd *cobra.Command, args []string) error {
	name := args[0]

	p, _, err := newPipeline()
	if err != nil {
		return err
	}

	def, err := p.Registry().Get(name)
	if err != nil {
		return err
	}
	values, err := collectSettings(cmd.Flags(), name, def.Settings, defaultSettingSource())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()

	result, err := p.Report(ctx, name, values)
	if err != nil {
		return err
	}

	if reportJSON != "" {
		if err := pipeline.WriteJSON(result, reportJSON); err != nil {
			return err
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s\n", reportJSON)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.URI)
	return nil
}
