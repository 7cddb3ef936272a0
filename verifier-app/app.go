package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/compose-network/verifier/log"
	"github.com/compose-network/verifier/metrics"
	apisrv "github.com/compose-network/verifier/server/api"
	"github.com/compose-network/verifier/verifier-app/config"
	"github.com/compose-network/verifier/x/aligned"
	"github.com/compose-network/verifier/x/batcher"
	"github.com/compose-network/verifier/x/chain"
	"github.com/compose-network/verifier/x/identity"
	"github.com/compose-network/verifier/x/verifier"
	verifyhttp "github.com/compose-network/verifier/x/verifier/http"
)

const readyCheckTimeout = 5 * time.Second

// App represents the verification gateway application
type App struct {
	cfg     *config.Config
	log     zerolog.Logger
	modules *log.Logger

	rpc      chain.EthClient
	closeRPC func()
	identity *identity.Identity
	service  *verifier.Service

	// API server (HTTP)
	apiServer *apisrv.Server

	cancel context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	app := &App{
		cfg:     cfg,
		log:     logger.Module("app"),
		modules: logger,
	}

	if err := app.initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

// initialize sets up the application components
func (a *App) initialize(ctx context.Context) error {
	if err := a.initializeIdentity(); err != nil {
		return err
	}
	if err := a.initializeChain(ctx); err != nil {
		return err
	}
	if err := a.initializeService(); err != nil {
		return err
	}
	a.initializeAPIServer()
	return nil
}

func (a *App) initializeIdentity() error {
	id, err := identity.FromHex(a.cfg.Identity.PrivateKey, a.cfg.ChainID())
	if err != nil {
		return aligned.NewError(aligned.KindConfiguration, "invalid private key").WithCause(err)
	}
	a.identity = id

	a.log.Info().
		Str("address", id.Address().Hex()).
		Uint64("chain_id", a.cfg.ChainID()).
		Msg("Signing identity loaded")
	return nil
}

// initializeChain dials the RPC endpoint. A chain id mismatch is fatal;
// an unreachable endpoint is only logged and surfaces per request.
func (a *App) initializeChain(ctx context.Context) error {
	eth, err := chain.Dial(ctx, a.cfg.Chain.RPCURL)
	if err != nil {
		return aligned.NewError(aligned.KindConfiguration, "invalid rpc url").WithCause(err)
	}
	a.rpc = eth
	a.closeRPC = eth.Close

	checkCtx, cancel := context.WithTimeout(ctx, readyCheckTimeout)
	defer cancel()
	remote, err := eth.ChainID(checkCtx)
	if err != nil {
		a.log.Warn().Err(err).Msg("RPC endpoint unreachable at startup")
		return nil
	}
	if remote.Uint64() != a.cfg.ChainID() {
		return aligned.Errorf(aligned.KindConfiguration,
			"rpc endpoint serves chain %s but network %s is chain %d", remote, a.cfg.Verifier.Network, a.cfg.ChainID())
	}
	return nil
}

func (a *App) initializeService() error {
	base := a.modules.Logger

	svc, err := verifier.New(a.cfg.Verifier, base,
		verifier.WithSigner(a.identity),
		verifier.WithNonceSource(chain.NewNonceSequencer(a.rpc, a.cfg.Chain, base)),
		verifier.WithFeeSource(chain.NewFeeEstimator(a.rpc, a.cfg.Chain, base)),
		verifier.WithSubmitter(batcher.NewClient(a.cfg.Batcher, base)),
		verifier.WithConfirmer(chain.NewBatchVerifier(a.rpc, a.cfg.Chain, base)),
	)
	if err != nil {
		return err
	}
	a.service = svc
	return nil
}

// initializeAPIServer sets up the HTTP API server with all endpoints
func (a *App) initializeAPIServer() {
	s := apisrv.NewServer(a.cfg.API, a.modules.Logger)
	s.UseDefaults()

	// Health/readiness
	s.Router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	s.Router.HandleFunc("/ready", a.handleReady).Methods(http.MethodGet)

	// Metrics
	if a.cfg.Metrics.Enabled {
		s.Router.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	// Verification API
	verifyhttp.NewHandler(a.service, a.modules.Logger).RegisterMux(s.Router)

	a.apiServer = s
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.apiServer.Start(runCtx)
	}()

	return a.runWithGracefulShutdown(runCtx, errCh)
}

// runWithGracefulShutdown handles shutdown signals.
func (a *App) runWithGracefulShutdown(ctx context.Context, serverErr <-chan error) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a.log.Info().Msg("Verification gateway started")

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("Context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case runErr = <-serverErr:
		a.log.Error().Err(runErr).Msg("API server error")
	}

	a.cancel()
	a.shutdown(serverErr, runErr != nil)
	return runErr
}

// shutdown waits for the HTTP server to drain and closes the RPC client.
func (a *App) shutdown(serverErr <-chan error, serverDone bool) {
	a.log.Info().Msg("Initiating graceful shutdown")

	if !serverDone {
		select {
		case err := <-serverErr:
			if err != nil {
				a.log.Error().Err(err).Msg("API server shutdown error")
			}
		case <-time.After(a.cfg.ShutdownTimeout() + time.Second):
			a.log.Warn().Msg("API server did not stop in time")
		}
	}

	if a.closeRPC != nil {
		a.closeRPC()
	}

	a.log.Info().Msg("Graceful shutdown complete")
}

// handleHealth responds to liveness checks.
func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	apisrv.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"version":   Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady reports whether the RPC endpoint answers with the expected
// chain id.
func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	remote, err := a.rpc.ChainID(ctx)
	switch {
	case err != nil:
		apisrv.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "rpc_unreachable",
			"error":  err.Error(),
		})
	case remote.Uint64() != a.cfg.ChainID():
		apisrv.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "chain_mismatch",
			"chain_id": remote.Uint64(),
		})
	default:
		apisrv.WriteJSON(w, http.StatusOK, map[string]any{
			"status":   "ready",
			"chain_id": remote.Uint64(),
			"network":  a.cfg.Verifier.Network,
			"address":  a.identity.Address().Hex(),
		})
	}
}
