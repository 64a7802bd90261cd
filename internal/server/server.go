package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/vaultsync/internal/db"
	"github.com/openmined/vaultsync/internal/server/handlers/ws"
	"github.com/openmined/vaultsync/internal/server/ledger"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	config *Config
	server *http.Server
	hub    *ws.WebsocketHub
	svc    *Services
	db     *sqlx.DB
}

func New(config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	sqlDB, err := db.NewSqliteDB(
		db.WithPath(config.DBPath),
		db.WithSchema(ledger.Schema),
		db.WithMaxOpenConns(4),
	)
	if err != nil {
		return nil, fmt.Errorf("ledger db: %w", err)
	}

	svc, err := NewServices(config, sqlDB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	s, err := newServer(config, svc)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	s.db = sqlDB
	return s, nil
}

func newServer(config *Config, svc *Services) (*Server, error) {
	hub := ws.NewHub()
	handler, err := SetupRoutes(config, svc, hub)
	if err != nil {
		return nil, err
	}

	return &Server{
		config: config,
		svc:    svc,
		hub:    hub,
		server: &http.Server{
			Addr:              config.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	slog.Info("vaultsync server start", "addr", s.config.HTTP.Addr, "vault", s.config.VaultDir, "blob", s.config.Blob.Backend)
	defer slog.Info("vaultsync server stop")

	if err := s.svc.Start(ctx); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", s.config.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.HTTP.Addr, err)
	}
	return s.serve(ctx, listener)
}

func (s *Server) serve(ctx context.Context, listener net.Listener) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		s.hub.Run(egCtx)
		return nil
	})

	eg.Go(func() error {
		if err := s.runHttpServer(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server start error", "error", err)
			return err
		}
		slog.Info("http server stopped")
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("vaultsync shutdown signal")
		return s.Stop(context.Background())
	})

	return eg.Wait()
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	s.hub.Shutdown(shutdownCtx)

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := s.svc.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) runHttpServer(listener net.Listener) error {
	if s.config.HTTP.CertFile != "" && s.config.HTTP.KeyFile != "" {
		slog.Info("server start tls", "addr", listener.Addr(), "cert", s.config.HTTP.CertFile, "key", s.config.HTTP.KeyFile)
		return s.server.ServeTLS(listener, s.config.HTTP.CertFile, s.config.HTTP.KeyFile)
	}
	slog.Info("server start http", "addr", listener.Addr())
	return s.server.Serve(listener)
}
