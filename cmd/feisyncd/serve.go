package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disconnec/FeiSync/internal/config"
	"github.com/disconnec/FeiSync/internal/httpserver"
	"github.com/disconnec/FeiSync/internal/state"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the FeiSync HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(cfg.LogLevel)
	log.Logger = log.With().Str("service", "feisyncd").Logger()
	if !cfg.LogJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	if err := os.MkdirAll(cfg.ConfigDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.ConfigDir).Msg("failed to create config directory")
	}

	st, err := state.Load(cfg.ConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load state")
	}

	srvCfg := st.ServerConfig()
	host := srvCfg.ListenHost
	port := srvCfg.Port
	if host == "" {
		host = cfg.ListenHost
	}
	if port == 0 {
		port = cfg.Port
	}

	srv := &httpserver.Server{
		Dispatcher:  st.NewDispatcher(),
		Version:     version,
		TimeoutSecs: srvCfg.TimeoutSecs,
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Duration(srvCfg.TimeoutSecs) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("starting FeiSync HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
	return nil
}
