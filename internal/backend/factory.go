// Package backend selects and constructs the ledger storage backend.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"finbot/internal/config"
	"finbot/internal/storage"
)

// Type identifies a storage backend.
type Type string

const (
	MemoryBackend   Type = "memory"
	SQLiteBackend   Type = "sqlite"
	PostgresBackend Type = "postgres"
)

func (t Type) String() string {
	return string(t)
}

func (t Type) IsValid() bool {
	switch t {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

// Result carries the constructed ledger and its cleanup function.
type Result struct {
	Ledger  storage.Ledger
	Cleanup func() error
}

// Factory builds ledgers from application configuration.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// CreateLedger constructs the ledger named by cfg.DBBackend.
func (f *Factory) CreateLedger(ctx context.Context, cfg *config.Config) (*Result, error) {
	t := Type(cfg.DBBackend)
	if !t.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.DBBackend)
	}

	switch t {
	case SQLiteBackend:
		ledger, err := storage.NewSQLiteLedger(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite ledger: %w", err)
		}
		f.logger.Info("Initialized sqlite backend", "db_path", cfg.SQLiteDBPath)
		return &Result{Ledger: ledger, Cleanup: ledger.Close}, nil

	case PostgresBackend:
		ledger, err := storage.NewPostgresLedger(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("initialize postgres ledger: %w", err)
		}
		f.logger.Info("Initialized postgres backend")
		return &Result{Ledger: ledger, Cleanup: ledger.Close}, nil

	case MemoryBackend:
		ledger := storage.NewMemoryLedger()
		f.logger.Info("Initialized memory backend")
		return &Result{Ledger: ledger, Cleanup: ledger.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", t)
	}
}
