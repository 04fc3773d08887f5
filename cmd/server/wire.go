// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/tomtom215/tallyboard/internal/api"
	"github.com/tomtom215/tallyboard/internal/auth"
	"github.com/tomtom215/tallyboard/internal/authz"
	"github.com/tomtom215/tallyboard/internal/broadcast"
	"github.com/tomtom215/tallyboard/internal/config"
	"github.com/tomtom215/tallyboard/internal/eventbus"
	"github.com/tomtom215/tallyboard/internal/ledger"
	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/notify"
	"github.com/tomtom215/tallyboard/internal/provider"
	"github.com/tomtom215/tallyboard/internal/provider/card"
	"github.com/tomtom215/tallyboard/internal/provider/manual"
	"github.com/tomtom215/tallyboard/internal/provider/wallet"
	"github.com/tomtom215/tallyboard/internal/settlement"
	"github.com/tomtom215/tallyboard/internal/store"
	"github.com/tomtom215/tallyboard/internal/supervisor"
	"github.com/tomtom215/tallyboard/internal/supervisor/services"
)

// readinessProbeEvent is looked up by the store readiness check. It never
// exists; a clean not-found proves the store answers.
const readinessProbeEvent = "__readiness_probe__"

// app holds every wired component of one server process.
type app struct {
	cfg *config.Config

	store      store.Store
	bus        *eventbus.Bus
	ledger     *ledger.Ledger
	coord      *settlement.Coordinator
	reconciler *settlement.Reconciler
	gateway    *broadcast.Gateway
	forwarder  *eventbus.Forwarder
	handler    *api.Handler
	server     *http.Server
}

// buildApp wires the components described by cfg. The caller owns
// closeResources.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, store: st}

	if err := store.SeedEvents(ctx, st, cfg.Events); err != nil {
		a.closeResources()
		return nil, fmt.Errorf("seed events: %w", err)
	}

	a.bus = eventbus.New(eventbus.Config{OutputBuffer: cfg.Broadcast.BusBuffer})
	a.ledger = ledger.New(st, a.bus)

	opts := settlement.Options{}
	if hook := notify.NewWebhookHook(notify.Config{
		URL:     cfg.Notify.URL,
		Secret:  cfg.Notify.Secret,
		Timeout: cfg.Notify.Timeout,
	}); hook != nil {
		opts.Confirmed = hook
		opts.Review = hook
		logging.Info().Str("url", cfg.Notify.URL).Msg("Receipt and review webhook enabled")
	}

	adapters := buildAdapters(cfg.Providers)
	a.coord = settlement.NewCoordinator(a.ledger, st, provider.NewRegistry(adapters...), opts)
	a.reconciler = settlement.NewReconciler(a.coord, settlement.Config{
		SweepInterval:  cfg.Settlement.SweepInterval,
		StuckAfter:     cfg.Settlement.StuckAfter,
		ConfirmTimeout: cfg.Settlement.ConfirmTimeout,
		MaxAttempts:    cfg.Settlement.MaxAttempts,
	})

	a.gateway = broadcast.NewGateway(broadcast.Config{
		QueueSize:     cfg.Broadcast.QueueSize,
		SessionBuffer: cfg.Broadcast.SessionBuffer,
	})
	a.forwarder = eventbus.NewForwarder(a.bus, a.gateway)

	router, err := a.buildRouter()
	if err != nil {
		a.closeResources()
		return nil, err
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	a.server = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.Timeout,
		ReadTimeout:       cfg.Server.Timeout,
		// WebSocket sessions outlive any write timeout; handlers bound
		// their own writes.
		IdleTimeout: 2 * cfg.Server.Timeout,
	}
	return a, nil
}

func (a *app) buildRouter() (http.Handler, error) {
	cfg := a.cfg

	var jwtMgr *auth.JWTManager
	var staff *auth.StaffDirectory
	if len(cfg.Security.Staff) > 0 {
		var err error
		if jwtMgr, err = auth.NewJWTManager(&cfg.Security); err != nil {
			return nil, fmt.Errorf("jwt manager: %w", err)
		}
		if staff, err = auth.NewStaffDirectory(cfg.Security.Staff); err != nil {
			return nil, fmt.Errorf("staff directory: %w", err)
		}
		logging.Info().Int("accounts", staff.Len()).Msg("Staff login enabled")
	} else {
		logging.Warn().Msg("No staff accounts configured: login, manual methods and the review queue are unavailable")
	}

	enforcer, err := authz.NewEnforcer()
	if err != nil {
		return nil, fmt.Errorf("authorization policy: %w", err)
	}

	a.handler = api.NewHandler(api.Deps{
		Coordinator: a.coord,
		Ledger:      a.ledger,
		Store:       a.store,
		Gateway:     a.gateway,
		Config:      cfg,
		JWTManager:  jwtMgr,
		Staff:       staff,
	})
	a.handler.AddReadinessCheck("store", func(ctx context.Context) error {
		_, err := a.store.LoadEventConfig(ctx, readinessProbeEvent)
		if err == nil || errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	})

	router := api.NewRouter(
		a.handler,
		auth.NewMiddleware(jwtMgr),
		authz.NewMiddleware(enforcer),
		api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(&cfg.Security)),
	)
	return router.SetupChi(), nil
}

// openStore opens the configured backend.
func openStore(cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		logging.Warn().Msg("Using in-memory store: donations are lost on restart")
		return store.NewMemory(), nil
	default:
		b, err := store.OpenBadger(store.BadgerConfig{Path: cfg.Path, SyncWrites: cfg.SyncWrites})
		if err != nil {
			return nil, fmt.Errorf("open badger store at %s: %w", cfg.Path, err)
		}
		logging.Info().Str("path", cfg.Path).Bool("sync_writes", cfg.SyncWrites).Msg("Badger store opened")
		return b, nil
	}
}

// buildAdapters returns the enabled rails. Manual methods are always
// available; they only need a staff login.
func buildAdapters(cfg config.ProvidersConfig) []provider.Adapter {
	retry := provider.RetryPolicy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
		CallTimeout:    cfg.Retry.CallTimeout,
	}
	breaker := provider.BreakerConfig{
		MaxRequests:  cfg.Breaker.MaxRequests,
		Interval:     cfg.Breaker.Interval,
		Timeout:      cfg.Breaker.Timeout,
		MinRequests:  cfg.Breaker.MinRequests,
		FailureRatio: cfg.Breaker.FailureRatio,
	}

	adapters := []provider.Adapter{manual.New()}
	if cfg.Card.Enabled {
		adapters = append(adapters, card.New(card.Config{
			SecretKey:     cfg.Card.SecretKey,
			WebhookSecret: cfg.Card.WebhookSecret,
			Retry:         retry,
			Breaker:       breaker,
		}))
		logging.Info().Msg("Card rail enabled (Stripe)")
	}
	if cfg.Wallet.Enabled {
		adapters = append(adapters, wallet.New(wallet.Config{
			BaseURL:           cfg.Wallet.BaseURL,
			APIKey:            cfg.Wallet.APIKey,
			CallbackSecret:    cfg.Wallet.CallbackSecret,
			RequestsPerSecond: cfg.Wallet.RequestsPerSecond,
			Burst:             cfg.Wallet.Burst,
			Timeout:           cfg.Wallet.Timeout,
			Retry:             retry,
			Breaker:           breaker,
		}))
		logging.Info().Str("base_url", cfg.Wallet.BaseURL).Msg("Wallet rail enabled")
	}
	return adapters
}

// recover re-tracks donations left PENDING by a previous process.
func (a *app) recover(ctx context.Context) error {
	n, err := a.reconciler.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover pending donations: %w", err)
	}
	if n > 0 {
		logging.Info().Int("pending", n).Msg("Resumed tracking of pending donations")
	}
	return nil
}

// addServices places the long-lived components in their layers.
func (a *app) addServices(tree *supervisor.SupervisorTree) {
	tree.AddDataService(services.NewRunnerService(a.reconciler))
	tree.AddMessagingService(services.NewRunnerService(a.forwarder))
	tree.AddMessagingService(services.NewRunnerService(a.gateway))
	tree.AddAPIService(services.NewHTTPServerService(a.server, a.server.Addr, a.cfg.Server.ShutdownTimeout))
}

// closeResources releases the bus and the store.
func (a *app) closeResources() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing change bus")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}
}
