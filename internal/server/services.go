package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/vaultsync/internal/server/blob"
	"github.com/openmined/vaultsync/internal/server/ledger"
)

type Services struct {
	Blob   blob.Backend
	Ledger *ledger.Ledger
}

func NewServices(config *Config, db *sqlx.DB) (*Services, error) {
	blobBackend, err := blob.New(&config.Blob)
	if err != nil {
		return nil, fmt.Errorf("blob backend: %w", err)
	}

	return newServices(blobBackend, db)
}

func newServices(blobBackend blob.Backend, db *sqlx.DB) (*Services, error) {
	ledgerSvc, err := ledger.New(db, blobBackend)
	if err != nil {
		return nil, err
	}

	return &Services{
		Blob:   blobBackend,
		Ledger: ledgerSvc,
	}, nil
}

func (s *Services) Start(ctx context.Context) error {
	count, err := s.Ledger.Count(ctx)
	if err != nil {
		return fmt.Errorf("start ledger: %w", err)
	}
	slog.Info("ledger ready", "files", count)
	return nil
}

func (s *Services) Shutdown(ctx context.Context) error {
	return nil
}
