package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"invofox/internal/app"
	"invofox/internal/clients"
	"invofox/internal/transport/auth"
	"invofox/internal/transport/rest"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket hub and document pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if port != "" {
				a.Config.Port = port
			}
			return serve(ctx, a)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides PORT)")
	return cmd
}

func serve(ctx context.Context, a *app.App) error {
	log := a.Log.With().Str("component", "http").Logger()

	go a.Hub.Run(ctx)
	if a.Documents != nil {
		go a.Documents.Run(ctx, a.Config.Documents.RetryInterval)
	}

	srv := &http.Server{
		Addr:         ":" + a.Config.Port,
		Handler:      withCORS(newRouter(a, log)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
			return
		}
		srvErr <- nil
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-srvErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
	log.Info().Msg("shutdown complete")
	return nil
}

// newRouter mounts the protected API under a public root so /health and
// /files stay reachable without a token.
func newRouter(a *app.App, log zerolog.Logger) http.Handler {
	handler := rest.NewHandler(a.Ledger, log)

	var authMiddleware func(http.Handler) http.Handler
	if a.Config.Auth.Enabled {
		authMiddleware = auth.NewAuthenticator(a.Tokens, a.Config.Auth.StaticTokens, log).Middleware
	}

	router := handler.InitRouterWithAuth(authMiddleware)
	protected := chi.Router(router)
	if authMiddleware != nil {
		protected = router.With(authMiddleware)
	}

	protected.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		customerID := r.URL.Query().Get("customer_id")
		if customerID == "" {
			rest.ErrorBadRequest(w, "customer_id required")
			return
		}
		log.Debug().Str("customer_id", customerID).Msg("websocket connected")
		a.Hub.HandleWebSocket(w, r, customerID)
	})

	root := chi.NewRouter()
	if a.Files != nil {
		root.Get("/files/{file}", serveFile(a.Files))
	}
	root.Mount("/", router)
	return root
}

func serveFile(files *clients.StorageClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file := chi.URLParam(r, "file")
		path, err := files.Path(file)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "failed to access file", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", clients.OriginalName(file)))
		http.ServeFile(w, r, path)
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")

			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, X-Requested-With")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
