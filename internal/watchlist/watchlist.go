// Package watchlist holds symbol lists and their import formats.
package watchlist

import (
	"strings"
	"time"

	"github.com/wonny/fluxscan/internal/scanner"
)

// SupportedExchanges are the exchange codes a watchlist entry may carry.
var SupportedExchanges = []string{"NSE", "BSE", "NFO", "BFO", "CDS", "BCD", "MCX"}

// IsSupportedExchange reports whether code (any case) is supported.
func IsSupportedExchange(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, ex := range SupportedExchanges {
		if ex == code {
			return true
		}
	}
	return false
}

// Entry is one symbol with its exchange.
type Entry struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
}

// Watchlist is a named list of symbols scanned together.
type Watchlist struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Exchange    string    `json:"exchange"` // default for entries without one
	Symbols     []Entry   `json:"symbols"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// New creates an empty watchlist. An unsupported default exchange becomes NSE.
func New(name, description, exchange string) *Watchlist {
	return &Watchlist{
		Name:        strings.TrimSpace(name),
		Description: description,
		Exchange:    normalizeExchange(exchange, scanner.DefaultExchange),
		Symbols:     []Entry{},
	}
}

func normalizeExchange(exchange, fallback string) string {
	exchange = strings.ToUpper(strings.TrimSpace(exchange))
	if exchange == "" || !IsSupportedExchange(exchange) {
		return fallback
	}
	return exchange
}

// normalize upper-cases an entry and fills its exchange from the default.
func (w *Watchlist) normalize(e Entry) Entry {
	return Entry{
		Symbol:   strings.ToUpper(strings.TrimSpace(e.Symbol)),
		Exchange: normalizeExchange(e.Exchange, w.Exchange),
	}
}

// SetSymbols replaces the entries, dropping blanks and duplicates.
func (w *Watchlist) SetSymbols(entries []Entry) {
	w.Symbols = make([]Entry, 0, len(entries))
	for _, e := range entries {
		w.Add(e.Symbol, e.Exchange)
	}
}

// Add appends a symbol. It returns false when the symbol is blank or the
// same symbol and exchange pair is already present.
func (w *Watchlist) Add(symbol, exchange string) bool {
	e := w.normalize(Entry{Symbol: symbol, Exchange: exchange})
	if e.Symbol == "" {
		return false
	}
	for _, s := range w.Symbols {
		if s == e {
			return false
		}
	}
	w.Symbols = append(w.Symbols, e)
	return true
}

// Remove drops a symbol. With an empty exchange every exchange's entry for
// the symbol goes. It returns the number removed.
func (w *Watchlist) Remove(symbol, exchange string) int {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	exchange = strings.ToUpper(strings.TrimSpace(exchange))

	kept := w.Symbols[:0]
	removed := 0
	for _, s := range w.Symbols {
		if s.Symbol == symbol && (exchange == "" || s.Exchange == exchange) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	w.Symbols = kept
	return removed
}

// Len returns the number of entries.
func (w *Watchlist) Len() int {
	return len(w.Symbols)
}

// Tasks turns the entries into scanner tasks.
func (w *Watchlist) Tasks() []scanner.SymbolTask {
	tasks := make([]scanner.SymbolTask, len(w.Symbols))
	for i, s := range w.Symbols {
		tasks[i] = scanner.SymbolTask{Symbol: s.Symbol, Exchange: s.Exchange}
	}
	return tasks
}
