package watchlist

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fluxscan/internal/scanner"
)

func TestNew(t *testing.T) {
	w := New("  Nifty IT ", "", "bse")
	assert.Equal(t, "Nifty IT", w.Name)
	assert.Equal(t, "BSE", w.Exchange)
	assert.NotNil(t, w.Symbols)

	assert.Equal(t, "NSE", New("x", "", "LSE").Exchange)
}

func TestAddRemove(t *testing.T) {
	w := New("test", "", "NSE")

	assert.True(t, w.Add("reliance", ""))
	assert.False(t, w.Add("RELIANCE", "nse"), "duplicate add is a no-op")
	assert.True(t, w.Add("reliance", "BSE"))
	assert.True(t, w.Add("tcs", "XYZ"))
	assert.False(t, w.Add("  ", "NSE"))

	assert.Equal(t, []Entry{
		{Symbol: "RELIANCE", Exchange: "NSE"},
		{Symbol: "RELIANCE", Exchange: "BSE"},
		{Symbol: "TCS", Exchange: "NSE"},
	}, w.Symbols)

	assert.Equal(t, 1, w.Remove("reliance", "bse"))
	assert.Equal(t, 2, w.Len())
	assert.Equal(t, 0, w.Remove("INFY", ""))

	w.Add("reliance", "BSE")
	assert.Equal(t, 2, w.Remove("RELIANCE", ""))
	assert.Equal(t, []Entry{{Symbol: "TCS", Exchange: "NSE"}}, w.Symbols)
}

func TestSetSymbolsAndTasks(t *testing.T) {
	w := New("test", "", "NSE")
	w.SetSymbols([]Entry{{Symbol: "infy"}, {Symbol: "INFY"}, {Symbol: "sbin", Exchange: "bse"}})

	assert.Equal(t, []scanner.SymbolTask{
		{Symbol: "INFY", Exchange: "NSE"},
		{Symbol: "SBIN", Exchange: "BSE"},
	}, w.Tasks())
}

func TestParseCSV(t *testing.T) {
	input := "Symbol,Exchange\nreliance,NSE\n\ntcs\ninfy, bse\nwipro,LSE\n"

	entries, err := ParseCSV(strings.NewReader(input), "NSE")
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Symbol: "RELIANCE", Exchange: "NSE"},
		{Symbol: "TCS", Exchange: "NSE"},
		{Symbol: "INFY", Exchange: "BSE"},
		{Symbol: "WIPRO", Exchange: "NSE"},
	}, entries)

	_, err = ParseCSV(strings.NewReader("\"unterminated\n"), "NSE")
	assert.Error(t, err)
}

func TestParseHTMLTable(t *testing.T) {
	page := `<html><body>
<table><tr><th>Index</th><th>Value</th></tr><tr><td>NIFTY</td><td>22000</td></tr></table>
<table>
  <tr><th>Company</th><th>Symbol</th><th>Exchange</th></tr>
  <tr><td>Tata Consultancy</td><td> tcs </td><td>NSE</td></tr>
  <tr><td>Infosys</td><td>INFY</td><td>bse</td></tr>
  <tr><td>Blank</td><td></td><td>NSE</td></tr>
</table>
</body></html>`

	entries, err := ParseHTMLTable(strings.NewReader(page), "NSE")
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Symbol: "TCS", Exchange: "NSE"},
		{Symbol: "INFY", Exchange: "BSE"},
	}, entries)

	_, err = ParseHTMLTable(strings.NewReader("<p>nothing</p>"), "NSE")
	assert.Error(t, err)
}

func TestIsSupportedExchange(t *testing.T) {
	assert.True(t, IsSupportedExchange("mcx"))
	assert.False(t, IsSupportedExchange("NYSE"))
}
