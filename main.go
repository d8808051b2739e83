package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"barber-whatsapp-bridge/api"
	"barber-whatsapp-bridge/backend"
	"barber-whatsapp-bridge/config"
	"barber-whatsapp-bridge/dispatch"
	"barber-whatsapp-bridge/scheduler"
	"barber-whatsapp-bridge/whatsapp"
)

func main() {
	// No .env file is fine; the host environment may carry everything.
	_ = godotenv.Load()
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The credential store can be briefly locked when the process is
	// restarted under a supervisor, so opening it retries with backoff.
	var transport *whatsapp.MeowTransport
	openBackoff := backoff.NewExponentialBackOff()
	openBackoff.InitialInterval = time.Second
	openBackoff.MaxElapsedTime = 25 * time.Second
	err = backoff.Retry(func() error {
		var err error
		transport, err = whatsapp.NewMeowTransport(ctx, cfg.SessionDBPath, "INFO")
		return err
	}, openBackoff)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open session store")
	}
	defer transport.Close()

	relay := backend.NewRelay(cfg.BackendURL, logger.With().Str("component", "relay").Logger())

	connector := whatsapp.NewConnector(whatsapp.ConnectorConfig{
		Transport:         transport,
		ReconnectDelay:    cfg.ReconnectDelay,
		CountryCode:       cfg.DefaultCountryCode,
		LocalNumberLength: cfg.LocalNumberLength,
		OnConnected: func(identity string) {
			relay.PushStatus(true, identity)
		},
		Logger: logger.With().Str("component", "connector").Logger(),
	})

	metrics := dispatch.NewMetrics(prometheus.DefaultRegisterer)
	dispatcher := dispatch.NewDispatcher(
		connector,
		relay,
		cfg.BulkSendDelay,
		metrics,
		logger.With().Str("component", "dispatch").Logger(),
	)

	reminders := scheduler.New(
		relay,
		dispatcher,
		cfg.ReminderInterval,
		logger.With().Str("component", "scheduler").Logger(),
	)
	go reminders.Run(ctx)

	if err := connector.Connect(ctx); err != nil {
		// The HTTP surface still comes up; an operator can hit
		// /reconnect once the underlying problem is fixed.
		logger.Error().Err(err).Msg("initial whatsapp connect failed")
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewServer(connector, dispatcher, logger.With().Str("component", "api").Logger()).Router(),
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("bridge listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
	transport.Disconnect()
}
