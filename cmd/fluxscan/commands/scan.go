package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/fluxscan/internal/scanner"
	"github.com/wonny/fluxscan/internal/scannerdef"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <definition>",
	Short: "Run a scanner definition over symbols",
	Long: `Run a scanner definition once and print the signals.

The definition is a YAML or TOML file with code and parameters, or a bare
Starlark script. Nothing is stored; use the API for tracked runs.

Example:
  go run ./cmd/fluxscan scan scanners/rsi.yaml --symbols RELIANCE,TCS,INFY
  go run ./cmd/fluxscan scan breakout.star --exchange BSE --param window=55 --parallel`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

var (
	scanSymbols  []string
	scanExchange string
	scanInterval string
	scanLookback int
	scanParallel bool
	scanWorkers  int
	scanParams   []string
	scanJSON     bool
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringSliceVar(&scanSymbols, "symbols", nil, "symbols to scan (default $SCANNER_TEST_SYMBOLS)")
	scanCmd.Flags().StringVar(&scanExchange, "exchange", "", "exchange (default from the definition, then NSE)")
	scanCmd.Flags().StringVar(&scanInterval, "interval", "", "bar interval: 1m,3m,5m,10m,15m,30m,1h,D,W,M")
	scanCmd.Flags().IntVar(&scanLookback, "lookback", 0, "days of history to load")
	scanCmd.Flags().BoolVar(&scanParallel, "parallel", false, "scan symbols concurrently")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 0, "worker count in parallel mode")
	scanCmd.Flags().StringArrayVar(&scanParams, "param", nil, "parameter override key=value (repeatable)")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print the batch result as JSON")
}

func runScan(cmd *cobra.Command, args []string) error {
	def, err := scannerdef.Load(args[0])
	if err != nil {
		return fmt.Errorf("load definition: %w", err)
	}
	overrides, err := scannerdef.ParseOverrides(scanParams)
	if err != nil {
		return err
	}

	a, err := newApp(appOptions{skipStorage: true})
	if err != nil {
		return err
	}
	defer a.close()

	settings := def.Settings.Batch()
	if scanExchange != "" {
		settings.Exchange = strings.ToUpper(scanExchange)
	}
	if scanInterval != "" {
		settings.Interval = scanInterval
	}
	if scanLookback > 0 {
		settings.LookbackDays = scanLookback
	}

	schema, err := scanner.ParseSchema(def.Parameters)
	if err != nil {
		return fmt.Errorf("parameters: %w", err)
	}
	params, err := scanner.MergeParams(schema, overrides, settings)
	if err != nil {
		return err
	}

	symbols := scanSymbols
	if len(symbols) == 0 {
		symbols = a.cfg.Scanner.TestSymbols
	}
	tasks := make([]scanner.SymbolTask, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			tasks = append(tasks, scanner.SymbolTask{
				Symbol:       s,
				Exchange:     params["exchange"].(string),
				Interval:     params["interval"].(string),
				LookbackDays: int(params["lookback_days"].(int64)),
			})
		}
	}

	fields := map[string]interface{}{
		"scanner": def.Name,
		"symbols": len(tasks),
	}
	if hash, err := scannerdef.Hash(def); err == nil {
		fields["hash"] = hash[:12]
	}
	a.log.WithFields(fields).Info("Scan started")

	// Ctrl+C cancels: running symbols finish, pending ones are skipped.
	token := scanner.NewCancelToken()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	go func() {
		if _, ok := <-quit; ok {
			token.Cancel()
		}
	}()

	res := a.engine.Execute(context.Background(), scanner.Request{
		Code:     def.Code,
		Tasks:    tasks,
		Params:   params,
		Parallel: scanParallel || a.cfg.Scanner.Parallel,
		Workers:  scanWorkers,
		Cancel:   token,
		Progress: func(percent float64, symbol string) {
			if verbose {
				PrintProgress("scan", symbol, int(percent), 100)
			}
		},
	})

	if scanJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printBatch(def.Name, res)
	if res.Status == scanner.StatusValidationError {
		return fmt.Errorf("scan failed: %s", res.Error)
	}
	return nil
}
