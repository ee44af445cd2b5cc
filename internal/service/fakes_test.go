package service

import (
	"context"
	"time"

	"github.com/wonny/fluxscan/internal/scanner"
	"github.com/wonny/fluxscan/internal/storage"
	"github.com/wonny/fluxscan/internal/storage/memory"
	"github.com/wonny/fluxscan/pkg/config"
	"github.com/wonny/fluxscan/pkg/logger"
)

// risingProvider serves n bars of steadily rising closes for every symbol
// except those listed as missing.
func risingProvider(n int, missing ...string) scanner.SeriesProvider {
	skip := make(map[string]bool)
	for _, s := range missing {
		skip[s] = true
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return scanner.ProviderFunc(func(_ context.Context, symbol, exchange, interval string, _ int) (*scanner.Series, error) {
		if skip[symbol] {
			return nil, nil
		}
		bars := make([]scanner.Bar, n)
		for i := range bars {
			c := 100 + float64(i)
			bars[i] = scanner.Bar{Time: base.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1000}
		}
		return &scanner.Series{Symbol: symbol, Exchange: exchange, Interval: interval, Bars: bars}, nil
	})
}

// failingResults rejects every save.
type failingResults struct {
	*memory.Results
	err error
}

func (f failingResults) SaveBatch(context.Context, []storage.Result) error {
	return f.err
}

type fixture struct {
	scanners   *memory.Scanners
	watchlists *memory.Watchlists
	history    *memory.History
	results    *memory.Results
	service    *ScannerService
}

func newFixture(provider scanner.SeriesProvider) *fixture {
	store := memory.New()
	f := &fixture{
		scanners:   store.Scanners(),
		watchlists: store.Watchlists(),
		history:    store.History(),
		results:    store.Results(),
	}
	engine := scanner.NewEngine(provider, scanner.Config{Workers: 2}, logger.Nop())
	f.service = NewScannerService(f.scanners, f.history, engine, config.ScannerConfig{
		TestSymbols: []string{"RELIANCE", "TCS", "INFY"},
	}, logger.Nop())
	return f
}

func (f *fixture) savedResults() []*storage.Result {
	list, _ := f.results.Recent(context.Background(), storage.ResultFilter{Limit: 1000})
	return list
}
