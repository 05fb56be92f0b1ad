package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"leaveflow/authz"
	"leaveflow/chain"
	"leaveflow/config"
	"leaveflow/database"
	"leaveflow/effects"
	"leaveflow/handlers"
	"leaveflow/ledger"
	"leaveflow/logging"
	"leaveflow/middleware"
	"leaveflow/notify"
	"leaveflow/repository"
	"leaveflow/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("failed to load configuration")
	}
	log := logging.New(cfg.LogLevel, cfg.LogPretty)

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	if err := database.SeedAdmin(db, cfg.AdminPassword, log); err != nil {
		log.Fatal().Err(err).Msg("failed to seed admin user")
	}

	directory := repository.NewDirectory(db)
	requests := repository.NewRequestRepository(db)
	balances := ledger.New(db, log.With().Str("component", "ledger").Logger())

	gateOptions := []authz.Option{
		authz.WithTTL(cfg.AuthzCacheTTL),
		authz.WithLogger(log.With().Str("component", "authz").Logger()),
	}
	if cfg.BreakGlassUserID != 0 {
		gateOptions = append(gateOptions, authz.WithBreakGlass(cfg.BreakGlassUserID))
		log.Warn().Uint("actor_id", cfg.BreakGlassUserID).Msg("break-glass actor configured")
	}
	gate := authz.New(directory, gateOptions...)
	resolver := chain.NewResolver(directory, cfg.ChainMaxDepth, log.With().Str("component", "chain").Logger())

	engine := workflow.New(requests, resolver, gate, directory,
		workflow.WithBalances(balances),
		workflow.WithLogger(log.With().Str("component", "workflow").Logger()),
	)

	dispatcher, closeDispatcher := newDispatcher(cfg, log)
	defer closeDispatcher()

	backlog := effects.NewBacklog(effects.DefaultBacklogSize)
	executor := effects.NewExecutor(balances, dispatcher, backlog, log.With().Str("component", "effects").Logger())
	reconciler := effects.NewReconciler(requests, balances, dispatcher, backlog,
		effects.WithInterval(cfg.ReconcileInterval),
		effects.WithRate(cfg.ReconcileRate),
		effects.WithLogger(log.With().Str("component", "reconciler").Logger()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go reconciler.Run(ctx)

	auth := middleware.NewAuth(cfg.JWTSecret, cfg.JWTExpiration, directory)
	router := &handlers.Router{
		Auth:     auth,
		Gate:     gate,
		Session:  handlers.NewAuthHandler(auth, directory, gate, log),
		Requests: handlers.NewRequestHandler(engine, executor, requests, balances, log),
		Admin:    handlers.NewAdminHandler(directory, balances, gate, log),
	}

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.ServerPort).Msg("server starting")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// newDispatcher publishes to NATS when NATS_URL is set and logs
// notifications otherwise.
func newDispatcher(cfg *config.Config, log zerolog.Logger) (notify.Dispatcher, func()) {
	if cfg.NATSURL == "" {
		return notify.NewLogDispatcher(log.With().Str("component", "notify").Logger()), func() {}
	}
	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("leaveflow"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.NATSURL).Msg("failed to connect to nats")
	}
	log.Info().Str("url", cfg.NATSURL).Str("prefix", cfg.NATSSubjectPrefix).Msg("publishing notifications to nats")
	return notify.NewNATSDispatcher(conn, cfg.NATSSubjectPrefix), func() {
		if err := conn.Drain(); err != nil {
			log.Warn().Err(err).Msg("nats drain failed")
		}
	}
}
