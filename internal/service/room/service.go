package room

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sharetube/roomsync/internal/playback"
	"github.com/sharetube/roomsync/internal/repository/connection"
	"github.com/sharetube/roomsync/internal/repository/room"
	"github.com/sharetube/roomsync/pkg/validator"
)

const (
	EventConnect   = "connect"
	EventHeartbeat = "heartbeat"
	EventMusicSync = "music-sync"
)

var (
	ErrRoomFull     = errors.New("room is full or cannot be entered")
	ErrJoinOwnRoom  = errors.New("cannot join own room")
	ErrForbidden    = errors.New("only the room owner can share music")
	ErrInvalidEmail = errors.New("invalid email")
	ErrInvalidToken = errors.New("invalid token")
)

type iRoomRepo interface {
	AddParticipant(context.Context, *room.AddParticipantParams) error
	RemoveParticipant(ctx context.Context, guestEmail string) (string, error)
	RemoveFromRoom(ctx context.Context, ownerEmail, guestEmail string) error
	GetLocation(ctx context.Context, guestEmail string) (string, error)
	GetParticipants(ctx context.Context, ownerEmail string) ([]string, error)
	SetMusic(ctx context.Context, ownerEmail string, music playback.State) error
	GetMusic(ctx context.Context, ownerEmail string) (playback.State, error)
	SetOnline(ctx context.Context, email string) error
	RemoveOnline(ctx context.Context, email string) error
}

type iConnRepo interface {
	Add(email string, conn connection.Conn) connection.Conn
	Remove(email, id string) error
	Get(email string) (connection.Conn, error)
}

type Config struct {
	Secret            string
	MembersLimit      int
	HeartbeatInterval time.Duration
	SendTimeout       time.Duration
	Clock             clock.Clock
}

type service struct {
	roomRepo          iRoomRepo
	connRepo          iConnRepo
	validate          *validator.Validator
	logger            *slog.Logger
	clock             clock.Clock
	secret            []byte
	membersLimit      int
	heartbeatInterval time.Duration
	sendTimeout       time.Duration
}

func NewService(roomRepo iRoomRepo, connRepo iConnRepo, logger *slog.Logger, cfg Config) *service {
	if cfg.MembersLimit <= 0 {
		cfg.MembersLimit = 10
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	return &service{
		roomRepo:          roomRepo,
		connRepo:          connRepo,
		validate:          validator.NewValidator(),
		logger:            logger,
		clock:             cfg.Clock,
		secret:            []byte(cfg.Secret),
		membersLimit:      cfg.MembersLimit,
		heartbeatInterval: cfg.HeartbeatInterval,
		sendTimeout:       cfg.SendTimeout,
	}
}
