package commands

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/wonny/fluxscan/internal/scanner"
)

// Common formatting helpers so every command prints the same way.

// PrintProgress prints a progress step with counter
// Example: [scan] RELIANCE [40/100]
func PrintProgress(tag string, message string, current int, total int) {
	fmt.Printf("[%s] %s [%d/%d]\n", tag, message, current, total)
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// printBatch renders a batch result: signals as a table with their metrics,
// exploration rows with their own columns, then per-symbol errors.
func printBatch(name string, res *scanner.BatchResult) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", name)
	PrintSeparator()
	PrintKeyValue("Status", string(res.Status), 10)
	PrintKeyValue("Scanned", fmt.Sprintf("%d", res.TotalScanned), 10)
	PrintKeyValue("Signals", fmt.Sprintf("%d", res.SignalsFound), 10)
	PrintKeyValue("Elapsed", fmt.Sprintf("%dms", res.ExecutionMillis()), 10)
	if res.Error != "" {
		PrintKeyValue("Error", res.Error, 10)
	}
	PrintDoubleSeparator()

	var signals, rows []scanner.ScanResult
	for _, r := range res.Results {
		if r.IsExploration() {
			rows = append(rows, r)
		} else {
			signals = append(signals, r)
		}
	}

	if len(signals) > 0 {
		fmt.Println()
		widths := []int{14, 8, 8, 40}
		PrintTableHeader([]string{"SYMBOL", "EXCHANGE", "SIGNAL", "METRICS"}, widths)
		for _, r := range signals {
			PrintTableRow([]string{r.Symbol, r.Exchange, r.Signal, formatMetrics(r.Metrics)}, widths)
		}
	}

	if len(rows) > 0 {
		fmt.Println()
		header := []string{"SYMBOL"}
		widths := []int{14}
		for _, c := range rows[0].Columns {
			header = append(header, c.Name)
			widths = append(widths, max(len(c.Name), 12))
		}
		PrintTableHeader(header, widths)
		for _, r := range rows {
			values := []string{r.Symbol}
			for i := range rows[0].Columns {
				v := ""
				if i < len(r.Columns) {
					v = formatColumn(r.Columns[i])
				}
				values = append(values, v)
			}
			PrintTableRow(values, widths)
		}
	}

	if len(res.Errors) > 0 {
		fmt.Println()
		for _, e := range res.Errors {
			PrintError(fmt.Sprintf("%s: %s", e.Symbol, e.Message))
		}
	}
}

func formatMetrics(m map[string]interface{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(m[k], "")))
	}
	return strings.Join(parts, " ")
}

func formatColumn(c scanner.Column) string {
	return formatValue(c.Value, c.Format)
}

// formatValue renders numbers with the decimals of a column format such as
// "1.2" (two decimals); other values use %v.
func formatValue(v interface{}, format string) string {
	switch x := v.(type) {
	case float64:
		decimals := 2
		if _, d, ok := strings.Cut(format, "."); ok {
			if n, err := strconv.Atoi(d); err == nil && n >= 0 && n <= 8 {
				decimals = n
			}
		}
		return strconv.FormatFloat(x, 'f', decimals, 64)
	case nil:
		return "-"
	default:
		return fmt.Sprintf("%v", x)
	}
}
