package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/counselling-resolver/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the search and resolution API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initResolver(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		server := api.New(env.Engine,
			api.WithRateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateBurst),
			api.WithAllowedOrigins(cfg.Server.AllowedOrigins),
			api.WithDefaultLimit(cfg.Engine.SearchLimit),
			api.WithReload(env.Reload),
		)
		srv := server.HTTPServer(fmt.Sprintf(":%d", port))

		go reloadOnHangup(ctx, env)

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// reloadOnHangup reloads reference data on SIGHUP until ctx is done. A failed
// reload leaves the current data in place.
func reloadOnHangup(ctx context.Context, env *resolverEnv) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			store, err := env.Reload(ctx)
			if err != nil {
				zap.L().Error("reload rejected, keeping current reference data", zap.Error(err))
				continue
			}
			zap.L().Info("reference data reloaded",
				zap.String("version", store.Version()),
				zap.Int("entities", store.Len()),
			)
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
