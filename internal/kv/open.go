// ABOUTME: Backend selection from configuration
// ABOUTME: Builds the configured Store and applies the key prefix

package kv

import (
	"fmt"

	"github.com/2389/vpn-gateway/internal/config"
)

// Open builds the Store selected by cfg.Backend.
func Open(cfg config.StoreConfig) (Store, error) {
	var s Store
	var err error

	switch cfg.Backend {
	case config.BackendEtcd:
		s, err = NewEtcdStore(EtcdOptions{
			Endpoints:      cfg.Endpoints,
			Username:       cfg.Username,
			Password:       cfg.Password,
			DialTimeout:    cfg.DialTimeout,
			RequestTimeout: cfg.RequestTimeout,
			PageSize:       cfg.ScanPageSize,
		})
	case config.BackendBolt:
		s, err = NewBoltStore(cfg.Path, BoltOptions{
			OpenTimeout:    cfg.DialTimeout,
			RequestTimeout: cfg.RequestTimeout,
			PageSize:       cfg.ScanPageSize,
		})
	case config.BackendSQLite:
		s, err = NewSQLiteStore(cfg.Path, SQLiteOptions{
			RequestTimeout: cfg.RequestTimeout,
			PageSize:       cfg.ScanPageSize,
		})
	case config.BackendMemory:
		s = NewMemStore()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Backend, err)
	}

	return WithPrefix(s, cfg.KeyPrefix), nil
}
