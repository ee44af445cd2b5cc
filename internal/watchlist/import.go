package watchlist

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseCSV reads SYMBOL[,EXCHANGE] rows. Blank rows are skipped and unknown
// exchanges fall back to defaultExchange. A header row whose first cell is
// "symbol" is ignored.
func ParseCSV(r io.Reader, defaultExchange string) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	defaultExchange = normalizeExchange(defaultExchange, "NSE")
	var entries []Entry
	for line := 1; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "symbol") {
			continue
		}

		exchange := defaultExchange
		if len(row) > 1 {
			exchange = normalizeExchange(row[1], defaultExchange)
		}
		entries = append(entries, Entry{
			Symbol:   strings.ToUpper(strings.TrimSpace(row[0])),
			Exchange: exchange,
		})
	}
	return entries, nil
}

// ParseHTMLTable extracts symbols from the first table whose header has a
// "Symbol" column, as found on index constituent pages. An "Exchange"
// column is honoured when present.
func ParseHTMLTable(r io.Reader, defaultExchange string) ([]Entry, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	defaultExchange = normalizeExchange(defaultExchange, "NSE")
	var entries []Entry
	found := false

	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		symbolCol, exchangeCol := -1, -1
		table.Find("tr").First().Find("th, td").Each(func(i int, cell *goquery.Selection) {
			switch strings.ToLower(strings.TrimSpace(cell.Text())) {
			case "symbol", "ticker", "code":
				symbolCol = i
			case "exchange", "series":
				exchangeCol = i
			}
		})
		if symbolCol < 0 {
			return true
		}
		found = true

		table.Find("tr").Slice(1, goquery.ToEnd).Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			symbol := strings.ToUpper(strings.TrimSpace(cells.Eq(symbolCol).Text()))
			if symbol == "" {
				return
			}
			exchange := defaultExchange
			if exchangeCol >= 0 {
				exchange = normalizeExchange(cells.Eq(exchangeCol).Text(), defaultExchange)
			}
			entries = append(entries, Entry{Symbol: symbol, Exchange: exchange})
		})
		return false
	})

	if !found {
		return nil, errors.New("no table with a symbol column found")
	}
	return entries, nil
}
