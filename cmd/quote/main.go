package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/app"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/config"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/provider"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/storage"
)

const usage = `usage: quote [-config path] [-mock] <command> [args]

commands:
  price TICKER [TICKER...]            current price(s)
  chain TICKER                        normalized options chain
  option TICKER STRIKE EXPIRATION     live call/put at strike and expiration
  status                              provider availability
  last [TICKER]                       last refreshed price(s) from storage
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("quote", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	mock := fs.Bool("mock", false, "Use synthetic data instead of live providers")
	timeout := fs.Duration("timeout", 45*time.Second, "Overall deadline")
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := loadConfig(*configPath, *mock)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	a := app.Build(cfg, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := dispatch(ctx, a, rest)
	if err != nil {
		fmt.Fprintln(stderr, err)
		switch {
		case errors.Is(err, errUsage):
			fmt.Fprint(stderr, usage)
			return 2
		case errors.Is(err, provider.ErrInvalidInput):
			return 2
		default:
			return 1
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(stderr, "Failed to encode output: %v\n", err)
		return 1
	}
	return 0
}

var errUsage = errors.New("invalid arguments")

// loadConfig falls back to defaults when the file is missing so the CLI
// works without setup.
func loadConfig(path string, mock bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
			return nil, err
		}
		cfg = &config.Config{}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if mock {
		cfg.Environment.Mode = "mock"
	}
	return cfg, nil
}

func dispatch(ctx context.Context, a *app.App, args []string) (interface{}, error) {
	cmd, params := args[0], args[1:]
	switch cmd {
	case "price":
		if len(params) == 0 {
			return nil, fmt.Errorf("%w: price needs at least one ticker", errUsage)
		}
		if len(params) == 1 {
			return a.Facade.FetchQuote(ctx, params[0])
		}
		return a.Facade.FetchStockPricesBatch(ctx, params), nil
	case "chain":
		if len(params) != 1 {
			return nil, fmt.Errorf("%w: chain needs one ticker", errUsage)
		}
		return a.Facade.FetchOptionsChain(ctx, params[0])
	case "option":
		if len(params) != 3 {
			return nil, fmt.Errorf("%w: option needs TICKER STRIKE EXPIRATION", errUsage)
		}
		strike, err := strconv.ParseFloat(params[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: strike %q", provider.ErrInvalidInput, params[1])
		}
		return a.Facade.FetchLiveOptionData(ctx, params[0], strike, params[2])
	case "status":
		return a.Orchestrator.Status(ctx), nil
	case "last":
		return lastPrices(a.Config.Refresh.StoragePath, params)
	default:
		return nil, fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func lastPrices(path string, tickers []string) (interface{}, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: refresh.storage_path is not configured", errUsage)
	}
	// Opening a missing SQLite path would create it.
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s does not exist yet", storage.ErrNoPriceRecord, path)
		}
		return nil, err
	}
	store, err := storage.NewStorage(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()
	if len(tickers) == 0 {
		return store.Prices(), nil
	}
	out := make(map[string]storage.PriceRecord, len(tickers))
	for _, t := range tickers {
		rec, err := store.LastPrice(t)
		if err != nil {
			return nil, err
		}
		out[strings.ToUpper(t)] = rec
	}
	return out, nil
}
