package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/roomsync/internal/controller"
	"github.com/sharetube/roomsync/internal/repository/connection/inmemory"
	roomRedis "github.com/sharetube/roomsync/internal/repository/room/redis"
	"github.com/sharetube/roomsync/internal/service/room"
	"github.com/sharetube/roomsync/pkg/redisclient"
	"github.com/sharetube/roomsync/pkg/validator"
)

type RelayConfig struct {
	Secret            string        `json:"-" validate:"required,min=16"`
	Host              string        `json:"host"`
	Port              int           `json:"port" validate:"gte=0,lte=65535"`
	LogLevel          string        `json:"log_level"`
	MembersLimit      int           `json:"members_limit" validate:"gte=1"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval" validate:"gt=0"`
	MusicTTL          time.Duration `json:"music_ttl" validate:"gt=0"`
	OnlineTTL         time.Duration `json:"online_ttl" validate:"gt=0"`
	RedisPort         int           `json:"redis_port"`
	RedisHost         string        `json:"redis_host"`
	RedisPassword     string        `json:"-"`
}

func (cfg *RelayConfig) Validate() error {
	if err := validator.NewValidator().Struct(cfg); err != nil {
		return fmt.Errorf("invalid relay config: %w", err)
	}
	if cfg.OnlineTTL <= cfg.HeartbeatInterval {
		return fmt.Errorf("invalid relay config: online ttl must exceed heartbeat interval")
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid relay config: %w", err)
	}

	return nil
}

func newRelayHandler(rc *redis.Client, logger *slog.Logger, cfg *RelayConfig) http.Handler {
	service := room.NewService(
		roomRedis.NewRepo(rc, logger.With("component", "room-repo"), roomRedis.Config{
			MusicTTL:  cfg.MusicTTL,
			OnlineTTL: cfg.OnlineTTL,
		}),
		inmemory.NewRepo(logger.With("component", "connections")),
		logger.With("component", "room-service"),
		room.Config{
			Secret:            cfg.Secret,
			MembersLimit:      cfg.MembersLimit,
			HeartbeatInterval: cfg.HeartbeatInterval,
		},
	)

	return controller.NewController(service, logger).Mux()
}

// IssueToken signs a viewer token with the relay secret.
func IssueToken(cfg *RelayConfig, email string, ttl time.Duration) (string, error) {
	service := room.NewService(nil, nil, slog.Default(), room.Config{Secret: cfg.Secret})
	return service.IssueToken(email, ttl)
}

func RunRelay(ctx context.Context, cfg *RelayConfig) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals...)
	defer stop()

	rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
		Port:     cfg.RedisPort,
		Host:     cfg.RedisHost,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           newRelayHandler(rc, logger, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return serve(ctx, server, logger)
}
