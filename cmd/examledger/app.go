package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ruangsim/examledger/internal/db"
	"github.com/ruangsim/examledger/internal/handlers"
	"github.com/ruangsim/examledger/internal/logger"
	"github.com/ruangsim/examledger/internal/repository/postgres"
	"github.com/ruangsim/examledger/internal/service/auth"
	"github.com/ruangsim/examledger/internal/service/ledger"
	"github.com/ruangsim/examledger/internal/service/liveview"
	"github.com/ruangsim/examledger/internal/service/session"
	"github.com/ruangsim/examledger/internal/service/verification"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	gate *session.Gate
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	gate := session.NewGate(c.InactivityWindow, logger)

	authService, err := auth.NewService(auth.Config{SecretKey: c.SecretKey}, storage, gate, logger)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	ledgerService := ledger.NewService(ledger.Config{CodePrefix: c.CodePrefix}, storage, logger)

	views := liveview.NewSynchronizer(
		ledgerService,
		liveview.NewPGFeed(pool, liveview.ChannelAccountChanged, logger),
		liveview.NewPGFeed(pool, liveview.ChannelTokenChanged, logger),
		logger,
	)

	verifier := verification.NewClient(c.VerifierAddr, logger)

	mux := handlers.NewRouter(handlers.RouterConfig{
		Auth:     authService,
		Ledger:   ledgerService,
		Views:    views,
		Verifier: verifier,
		Recorder: gate,
		ExamAddr: c.ExamAddr,
		Logger:   logger,
	})

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		gate:       gate,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}

		// Ending the sessions cancels their contexts, which detaches any
		// remaining live view subscriptions
		s.gate.Close()

		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	slog.Info("Starting server")
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
