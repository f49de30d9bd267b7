package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/xraph/pledge"
	"github.com/xraph/pledge/store"
	"github.com/xraph/pledge/store/leveldb"
	"github.com/xraph/pledge/store/memory"
	"github.com/xraph/pledge/types"
)

// openStore builds the store named by store.driver. The grove-backed
// drivers are only available through the Forge extension.
func openStore() (store.Store, error) {
	switch driver := strings.ToLower(viper.GetString("store.driver")); driver {
	case "memory":
		return memory.New(), nil
	case "leveldb":
		return leveldb.New(viper.GetString("store.path"),
			leveldb.WithCache(viper.GetInt("store.cache")),
			leveldb.WithLogger(slog.Default()),
		)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}

// ledgerOptions returns the options derived from configuration.
func ledgerOptions() []pledge.Option {
	opts := []pledge.Option{
		pledge.WithLogger(slog.Default()),
		pledge.WithCurrency(viper.GetString("currency")),
	}
	if ops := viper.GetStringSlice("vault.operators"); len(ops) > 0 {
		addrs := make([]types.Address, len(ops))
		for i, op := range ops {
			addrs[i] = types.Address(op)
		}
		opts = append(opts, pledge.WithVaultOperators(addrs...))
	}
	return opts
}

// openLedger opens the configured store and starts a ledger on it.
func openLedger(ctx context.Context, extra ...pledge.Option) (*pledge.Ledger, error) {
	s, err := openStore()
	if err != nil {
		return nil, err
	}
	l := pledge.New(s, append(ledgerOptions(), extra...)...)
	if err := l.Start(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return l, nil
}
