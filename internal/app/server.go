package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	intrnl "roomrelay/internal"
	"roomrelay/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// ServerHandle represents a running relay: the HTTP/WebSocket listener plus
// the background media evictor.
type ServerHandle struct {
	addr   string
	server *http.Server
	relay  *intrnl.Server
	store  *storage.Store
	group  *errgroup.Group
	cancel context.CancelFunc
	logger zerolog.Logger
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Relay exposes the wired core.
func (h *ServerHandle) Relay() *intrnl.Server {
	return h.relay
}

// Stop triggers a graceful shutdown; the background tasks exit with it.
func (h *ServerHandle) Stop() {
	if h == nil || h.cancel == nil {
		return
	}
	h.cancel()
}

// Wait blocks until the listener and the evictor have exited, then closes
// the store.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	err := h.group.Wait()
	if closeErr := h.store.Close(); closeErr != nil {
		h.logger.Error().Err(closeErr).Msg("store close")
	}
	return err
}

// RunServer opens the SQLite store, runs migrations, wires the relay and
// starts the listener and evictor in the background. Cancel ctx or call Stop
// to shut down, then Wait.
func RunServer(ctx context.Context, cfg ServerConfig, logger zerolog.Logger) (*ServerHandle, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	cfg.WSPath = NormalizeJoinPath(cfg.WSPath)
	if cfg.UploadDir == "" {
		cfg.UploadDir = intrnl.DefaultUploadDir
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	relay := intrnl.NewServer(store, intrnl.ServerOptions{
		UploadDir:       cfg.UploadDir,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		HistorySize:     cfg.HistorySize,
		ChannelCapacity: cfg.ChannelCapacity,
		JWTSecret:       cfg.JWTSecret,
		TokenTTL:        cfg.TokenTTL,
		Logger:          logger,
	})
	mux := http.NewServeMux()
	relay.Routes(mux, cfg.WSPath)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	evictor := intrnl.NewEvictor(relay.MediaLog(), cfg.DiskCapBytes, cfg.EvictInterval, logger).WithMetrics(relay.Metrics())

	handle := &ServerHandle{
		addr:   listener.Addr().String(),
		server: httpServer,
		relay:  relay,
		store:  store,
		group:  group,
		cancel: cancel,
		logger: logger,
	}

	group.Go(func() error {
		err := httpServer.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		return evictor.Run(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		// hijacked websocket connections are not tracked by Shutdown
		relay.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server shutdown")
		}
		return nil
	})

	logger.Info().
		Str("addr", handle.addr).
		Str("ws_path", cfg.WSPath).
		Str("db", cfg.DBPath).
		Str("uploads", cfg.UploadDir).
		Int64("disk_cap_bytes", cfg.DiskCapBytes).
		Msg("relay listening")
	return handle, nil
}
