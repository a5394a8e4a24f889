package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sharetube/roomsync/internal/agent"
	"github.com/sharetube/roomsync/internal/playback"
	"github.com/sharetube/roomsync/internal/push"
	"github.com/sharetube/roomsync/internal/roomclient"
	"github.com/sharetube/roomsync/internal/sched"
	"github.com/sharetube/roomsync/internal/session"
	"github.com/sharetube/roomsync/internal/storage/sqlite"
	"github.com/sharetube/roomsync/pkg/validator"
	"github.com/sharetube/roomsync/pkg/ytvideodata"
)

const (
	PushSSE = "sse"
	PushWS  = "ws"
)

type AgentConfig struct {
	Email             string        `json:"email" validate:"required,email"`
	Token             string        `json:"-"`
	RelayURL          string        `json:"relay_url" validate:"required,url"`
	Push              string        `json:"push" validate:"oneof=sse ws"`
	Host              string        `json:"host"`
	Port              int           `json:"port" validate:"gte=0,lte=65535"`
	DBPath            string        `json:"db_path" validate:"required"`
	LogLevel          string        `json:"log_level"`
	PlaylistLimit     int           `json:"playlist_limit" validate:"gte=1"`
	BroadcastInterval time.Duration `json:"broadcast_interval" validate:"gt=0"`
	PollInterval      time.Duration `json:"poll_interval" validate:"gt=0"`
	RetryDelay        time.Duration `json:"retry_delay" validate:"gt=0"`
	HeartbeatTimeout  time.Duration `json:"heartbeat_timeout" validate:"gt=0"`
	DriftToleranceMs  int64         `json:"drift_tolerance_ms" validate:"gte=0"`
	LoadDelay         time.Duration `json:"load_delay" validate:"gte=0"`
	VideoDuration     time.Duration `json:"video_duration" validate:"gt=0"`
}

func (cfg *AgentConfig) Validate() error {
	if err := validator.NewValidator().Struct(cfg); err != nil {
		return fmt.Errorf("invalid agent config: %w", err)
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid agent config: %w", err)
	}

	return nil
}

func (cfg *AgentConfig) pushTransport() push.Transport {
	base := strings.TrimRight(cfg.RelayURL, "/")
	if cfg.Push == PushWS {
		wsBase := "ws" + strings.TrimPrefix(base, "http")
		return push.NewWS(wsBase+"/ws/connect", cfg.Token)
	}

	return push.NewSSE(base+"/api/connect", cfg.Token, &http.Client{})
}

type agentApp struct {
	loop    *sched.Loop
	session *session.Session
	store   *sqlite.Store
	handler http.Handler
}

func newAgent(cfg *AgentConfig, clk clock.Clock, logger *slog.Logger) (*agentApp, error) {
	store, err := sqlite.Open(cfg.DBPath, sqlite.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	loop := sched.NewLoop(clk, logger.With("component", "loop"))
	player := playback.NewVirtualPlayer(loop, playback.VirtualPlayerConfig{
		LoadDelay: cfg.LoadDelay,
		Duration:  cfg.VideoDuration,
	})
	rooms := roomclient.New(cfg.RelayURL, cfg.Token, nil, logger.With("component", "roomclient"))
	opener := push.NewClient(cfg.pushTransport(), logger.With("component", "push"))
	fetcher := ytvideodata.NewFetcher(&http.Client{Timeout: 10 * time.Second})

	sess := session.New(loop, player, rooms, opener, store, fetcher, logger, session.Config{
		Email:             cfg.Email,
		PlaylistLimit:     cfg.PlaylistLimit,
		BroadcastInterval: cfg.BroadcastInterval,
		PollInterval:      cfg.PollInterval,
		RetryDelay:        cfg.RetryDelay,
		HeartbeatTimeout:  cfg.HeartbeatTimeout,
		DriftToleranceMs:  cfg.DriftToleranceMs,
	})

	return &agentApp{
		loop:    loop,
		session: sess,
		store:   store,
		handler: agent.NewController(sess, logger).Mux(),
	}, nil
}

func RunAgent(ctx context.Context, cfg *AgentConfig) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals...)
	defer stop()

	a, err := newAgent(cfg, clock.New(), logger)
	if err != nil {
		return err
	}
	defer a.store.Close()

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() { loopDone <- a.loop.Run(loopCtx) }()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	if err := a.session.Restore(ctx); err != nil {
		logger.WarnContext(ctx, "failed to restore session", "error", err)
	}
	if err := a.session.Start(loopCtx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := serve(ctx, server, logger)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.session.Close(closeCtx); err != nil {
		logger.Warn("failed to close session", "error", err)
	}

	return serveErr
}
