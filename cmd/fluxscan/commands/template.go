package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wonny/fluxscan/internal/scanner"
	"github.com/wonny/fluxscan/internal/scannerdef"
)

// templateCmd represents the template command
var templateCmd = &cobra.Command{
	Use:   "template [name]",
	Short: "Print the starter template or a bundled example",
	Long: `Without a name, print the starter template followed by the list of
bundled examples. With a name, print that example as a YAML definition
ready for "fluxscan scan".

Example:
  go run ./cmd/fluxscan template
  go run ./cmd/fluxscan template rsi_oversold > rsi.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTemplate,
}

func init() {
	rootCmd.AddCommand(templateCmd)
}

func runTemplate(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		starter := scanner.StarterTemplate()
		fmt.Println(starter.Code)
		PrintSeparator()
		fmt.Println("Examples:")
		for _, t := range scanner.Examples() {
			PrintKeyValue(t.Name, t.Description, 20)
		}
		return nil
	}

	tpl, ok := scanner.Example(args[0])
	if !ok {
		return fmt.Errorf("unknown template %q", args[0])
	}
	out, err := yaml.Marshal(scannerdef.Definition{
		Name:        tpl.Name,
		Description: tpl.Description,
		Code:        tpl.Code,
		Parameters:  tpl.Parameters,
	})
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}
