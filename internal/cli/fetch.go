package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/nanoreport/internal/pipeline"
)

var (
	fetchOut     string
	fetchJSON    string
	fetchVerify  bool
	fetchTimeout time.Duration
	fetchNoCache bool
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch <uri>",
	Short: "Fetch a published nanopublication",
	Long: `Fetch downloads a published nanopublication as N-Quads.

With --verify the trusty URI code and the signature are checked.

Example:
  nanoreport fetch https://np.test.knowledgepixels.com/RA... --verify
  nanoreport fetch https://w3id.org/np/RA... --out np.nq`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchOut, "out", "", "write the N-Quads to this path instead of stdout")
	fetchCmd.Flags().StringVar(&fetchJSON, "json", "", "write the fetch result as JSON to this path")
	fetchCmd.Flags().BoolVar(&fetchVerify, "verify", false, "verify trusty code and signature")
	fetchCmd.Flags().DurationVar(&fetchTimeout, "timeout", time.Minute, "fetch timeout")
	fetchCmd.Flags().BoolVar(&fetchNoCache, "no-cache", false, "disable cache (force fresh fetch)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if fetchNoCache {
		cfg.Cache.Enabled = false
	}
	p, err := pipeline.NewPipeline(cfg, newLogger(cfg))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	result, data, err := p.Fetch(ctx, args[0], fetchVerify)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Fetched %d quads (cached: %v)\n", result.Quads, result.Cached)
		if result.Verified {
			fmt.Fprintf(os.Stderr, "✓ Verified %s\n", result.URI)
		}
	}

	if fetchJSON != "" {
		if err := pipeline.WriteJSON(result, fetchJSON); err != nil {
			return err
		}
	}

	if fetchOut != "" {
		if err := os.WriteFile(fetchOut, data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", fetchOut, err)
		}
		return nil
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
