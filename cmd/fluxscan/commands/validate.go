package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/fluxscan/internal/scanner"
	"github.com/wonny/fluxscan/internal/scannerdef"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate <definition>...",
	Short: "Check scanner definitions without running them",
	Long: `Parse each definition and run the script validator over its code.
Errors make the command exit non-zero; warnings are printed only.

Example:
  go run ./cmd/fluxscan validate scanners/*.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		def, err := scannerdef.Load(path)
		if err != nil {
			PrintError(fmt.Sprintf("%s: %v", path, err))
			failed++
			continue
		}

		vr := scanner.Validate(def.Code)
		for _, w := range vr.Warnings {
			PrintWarning(fmt.Sprintf("%s: %s", path, w))
		}
		if !vr.Valid {
			for _, e := range vr.Errors {
				PrintError(fmt.Sprintf("%s: %s", path, e))
			}
			failed++
			continue
		}
		PrintSuccess(fmt.Sprintf("%s: %s is valid", path, def.Name))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d definitions invalid", failed, len(args))
	}
	return nil
}
