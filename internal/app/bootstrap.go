// Package app assembles the gateway from its parts: config, logging,
// journal, broker client, session and HTTP server.
package app

import (
	"log/slog"

	"optiongate/internal/infra"
	"optiongate/internal/infra/breeze"
	"optiongate/internal/infra/storage"
	"optiongate/internal/pacing"
	"optiongate/internal/server"
	"optiongate/internal/session"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Journal *storage.Journal
	Session *session.Session
	Server  *server.Server
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration, wires the logger, opens the order
// journal and builds the session and HTTP server. Config path may be
// empty for the default location.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping option gateway...")

	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	journal, err := storage.NewJournal(cfg.Orders.JournalPath)
	if err != nil {
		return err
	}
	b.Journal = journal
	slog.Info("✅ Order journal ready", slog.String("path", cfg.Orders.JournalPath))

	broker := breeze.NewClient(
		cfg.API.Breeze.RestURL,
		cfg.API.Breeze.WSURL,
		cfg.API.Breeze.APIKey,
		cfg.API.Breeze.APISecret,
	)

	b.Session = session.New(broker, journal, session.Config{
		Pacing: pacing.Config{
			MinInterval: cfg.PacingInterval(),
			Capacity:    cfg.Pacing.Capacity,
			EnqueueWait: cfg.EnqueueWait(),
		},
		JoinTimeout: cfg.JoinTimeout(),
	})

	b.Server = server.New(cfg, b.Session, journal)
	slog.Info("✅ Gateway assembled", slog.String("addr", cfg.Server.Addr))
	return nil
}

// Shutdown releases session resources.
func (b *Bootstrap) Shutdown() {
	if b.Session != nil {
		b.Session.Close()
	}
}
