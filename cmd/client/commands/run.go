package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/dkeye/VoiceAgent/internal/adapters/http"
	"github.com/dkeye/VoiceAgent/internal/adapters/room"
	"github.com/dkeye/VoiceAgent/internal/adapters/rtc"
	sig "github.com/dkeye/VoiceAgent/internal/adapters/signal"
	"github.com/dkeye/VoiceAgent/internal/adapters/token"
	"github.com/dkeye/VoiceAgent/internal/app/clock"
	"github.com/dkeye/VoiceAgent/internal/app/loop"
	"github.com/dkeye/VoiceAgent/internal/app/orch"
	"github.com/dkeye/VoiceAgent/internal/config"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

const shutdownTimeout = 5 * time.Second

func runClient(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	config.LoadDotenv()
	cfg, err := config.Load(envName)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setLogLevel(cfg.LogLevel)

	sources := map[domain.DeviceKind]rtc.Source{}
	if cfg.MicrophoneSource == "silence" {
		mic := rtc.NewSilenceSource()
		defer mic.Close()
		sources[domain.DeviceMicrophone] = mic
	}

	// The loop outlives the signal context so teardown can still run on it.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	l := loop.New()

	rm := room.New(l, room.Options{
		ICEServers: cfg.ICEServers,
		Signal: sig.Options{
			ReadLimit:  cfg.ReadLimit,
			PingPeriod: cfg.PingPeriod,
		},
		Sources: sources,
	})
	local := domain.Participant{Identity: "local", Name: "You", IsLocal: true}
	o := orch.New(orch.Deps{
		Queue:          l,
		Room:           rm,
		Tokens:         token.NewProvider(cfg.TokenEndpoint, nil),
		Clock:          clock.Real(),
		AppConfig:      cfg.App,
		Local:          local,
		ConnectTimeout: cfg.ConnectionTimeout,
		ExitAnimation:  cfg.ExitAnimation,
		EventsTopic:    cfg.EventsTopic,
	})
	bridge := router.NewServer(cfg, l, o)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = l.Run(loopCtx)
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(ctx, cfg, bridge),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("voice agent client started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("server error")
		}
	}

	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	bridge.Close()

	if err := loop.Call(shutdownCtx, l, o.Close); err != nil {
		log.Warn().Err(err).Msg("session context not closed")
	}
	disconnectRoom(rm)
	stopLoop()
	<-loopDone
	log.Info().Msg("client exited gracefully")
	return nil
}

type roomCloser interface {
	State() core.ConnectionState
	Disconnect() error
}

// disconnectRoom drops a room the session left behind on shutdown.
func disconnectRoom(rm roomCloser) {
	if rm.State() == core.StateDisconnected {
		return
	}
	if err := rm.Disconnect(); err != nil {
		log.Warn().Err(err).Msg("room disconnect failed")
	}
}
