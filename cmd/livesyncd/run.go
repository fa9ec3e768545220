package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/livesync/backend/internal/clock"
	"github.com/livesync/backend/internal/config"
	"github.com/livesync/backend/internal/identity"
	"github.com/livesync/backend/internal/mock"
	"github.com/livesync/backend/internal/session"
	"github.com/livesync/backend/internal/ws"
	"github.com/livesync/backend/pkg/livesync"
)

const shutdownTimeout = 5 * time.Second

func newRunCmd(configPath *string) *cobra.Command {
	var mockMode bool
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the synchronization engine and the inspection server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, mockMode)
		},
	}
	cmd.Flags().BoolVar(&mockMode, "mock", false, "observe simulated sessions")
	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, mockMode bool) error {
	kv, err := openSettings(cfg.State)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer kv.Close()

	ident := identity.New(cfg.Identity.InstallationID, cfg.Identity.UserID)
	log.Infof("Installation %s", ident.InstallationID())

	reporter, err := buildReporter(cfg.Report, ident, clock.Real())
	if err != nil {
		return err
	}

	tracked := session.NewStore()
	privacy := cfg.NewPrivacyFilter()
	var broadcaster *ws.Broadcaster
	opts := livesync.Options{
		Settings:   kv,
		StateKey:   cfg.State.Key,
		Retention:  retention(cfg.State),
		Reporter:   reporter,
		QueueSize:  cfg.Report.QueueSize,
		Event:      cfg.Report.Event,
		Expiration: cfg.Report.Expiration,
		Identity:   ident,
		Tracked:    tracked,
	}
	if cfg.Server.Enabled {
		broadcaster = ws.NewBroadcaster(tracked, privacy,
			cfg.Server.RecentEvents, cfg.Server.SnapshotInterval, cfg.Server.MaxConnections)
		defer broadcaster.Stop()
		opts.Tap = broadcaster
	}

	provider := mock.NewProvider()
	opts.Provider = provider

	engine, err := livesync.New(ctx, opts)
	if err != nil {
		if c, ok := reporter.(io.Closer); ok {
			c.Close()
		}
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Warningf("Closing reporter: %v", err)
		}
	}()

	if mockMode {
		log.Notice("Starting in mock mode")
		gen := mock.NewGenerator(provider, clock.Real(), cfg.Mock.Interval)
		gen.Seed(cfg.Mock.Sessions)
		for _, kind := range []session.Kind{mock.DeliveryKind, mock.ScoreKind} {
			if _, err := engine.Register(kind, mock.Extract); err != nil {
				return err
			}
		}
		gen.Start(ctx)
	} else {
		log.Notice("No session source attached; serving persisted records only")
	}

	if broadcaster == nil {
		<-ctx.Done()
		log.Notice("Shutting down...")
		return nil
	}

	broadcaster.SetHealthHook(engine.Health)
	server := ws.NewServer(cfg.Server, privacy, broadcaster, engine.Registry(), engine.Store())
	server.SetStatsSource(engine.Stats)

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Notice("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
