package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/popchat/popchat/internal/server"
)

func main() {
	_ = godotenv.Load()

	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	loaded, err := server.NewConfigFromEnv()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	// Use the sanitized snapshot from here on so the port and shutdown
	// budget match what the server package actually runs with.
	cfg := server.SetConfig(loaded)

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().
		Level(server.ParseLevel(cfg.LogLevel))
	server.SetLogger(log)

	server.StartHub()

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout()); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
		if err := server.GetHub().Shutdown(cfg.ShutdownTimeout()); err != nil {
			log.Error().Err(err).Msg("hub shutdown incomplete")
		}
	}
}
