package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fluxscan",
	Short: "fluxscan - scriptable market scanner",
	Long: `fluxscan runs user-written Starlark scanners over market data.

Scanners read OHLCV series through a restricted namespace (ta, np, pd,
params) and set signal/metrics, or call AddColumn for exploration tables.

Usage:
  go run ./cmd/fluxscan [command]

Examples:
  go run ./cmd/fluxscan validate scanners/rsi.yaml
  go run ./cmd/fluxscan scan scanners/rsi.yaml --symbols RELIANCE,TCS
  go run ./cmd/fluxscan api
  go run ./cmd/fluxscan scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
