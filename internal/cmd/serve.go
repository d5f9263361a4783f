package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/skillbridge/skillbridge/internal/bridge"
	"github.com/skillbridge/skillbridge/internal/host"
	"github.com/skillbridge/skillbridge/internal/observability"
	"github.com/skillbridge/skillbridge/internal/registry"
	"github.com/skillbridge/skillbridge/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge with the built-in demo skills",
	Long: `Run the request bridge against the built-in demo skill registry.

The bridge binds a loopback port in the supported range (8090-8099) and
executes every skill on the built-in loop host, which stands in for an
application main thread.

Signal handling:
  • Ctrl+C (SIGINT) or SIGTERM: graceful shutdown (clears the persisted
    run flag so the next session does not auto-resume)
  • SIGHUP: simulated host reload — run state is persisted, the listener
    is torn down and the bridge is restored, resuming automatically when
    auto_start is enabled`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig
		observability.InitServerLogger("skillbridge", cfg.Logging.Level)
		logger := observability.ServerLogger

		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		loop := host.NewLoopHost(cfg.Host.TickInterval)
		b := bridge.New(cfg.Server, versionInfo.Version, registry.NewDemoTable(), loop)
		lc := bridge.NewLifecycle(b, st, st, cfg.Server.InstanceName, cfg.Server.AutoStart)

		loop.Run()
		defer loop.Stop()

		preferred := cfg.Server.PreferredPort
		if cmd.Flags().Changed("port") {
			preferred = servePort
		}

		if err := lc.Start(ctx, preferred); err != nil {
			return err
		}

		logger.Info("Bridge started",
			zap.Int("port", b.Port()),
			zap.String("instance", cfg.Server.InstanceName),
			zap.Bool("auto_start", cfg.Server.AutoStart),
			zap.String("version", versionInfo.Version))

		// Stale discovery rows from crashed sessions are advisory noise;
		// prune them opportunistically.
		if pruned, err := st.PruneInstances(ctx, 5*time.Minute); err == nil && pruned > 0 {
			logger.Debug("Pruned stale instances", zap.Int64("count", pruned))
		}

		done := make(chan struct{})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down bridge...")
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := lc.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Shutdown persistence failed", zap.Error(err))
			}
			_ = logger.Sync()
			close(done)
			return nil
		})

		// SIGHUP plays the host's "impending reset" announcement.
		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Reload requested: persisting run state")
			if err := lc.PrepareReload(ctx); err != nil {
				logger.Error("Reload preparation failed", zap.Error(err))
				return err
			}
			if err := lc.Restore(ctx); err != nil {
				logger.Error("Restore after reload failed", zap.Error(err))
				return err
			}
			logger.Info("Bridge restored", zap.Int("port", b.Port()))
			return nil
		})

		errChan := make(chan error, 1)
		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				errChan <- err
			}
		}()

		select {
		case <-done:
			return nil
		case err := <-errChan:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0,
		"preferred port (0 selects the first free port in the supported range)")

	_ = viper.BindPFlag("server.preferred_port", serveCmd.Flags().Lookup("port"))
}
