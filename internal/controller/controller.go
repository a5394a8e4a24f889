// Package controller serves the relay's HTTP API and push streams.
package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sharetube/roomsync/internal/repository/connection"
	"github.com/sharetube/roomsync/internal/service/room"
	"github.com/sharetube/roomsync/pkg/validator"
)

type iRoomService interface {
	ParseToken(token string) (string, error)
	JoinRoom(context.Context, *room.JoinRoomParams) (room.JoinRoomResponse, error)
	LeaveRoom(ctx context.Context, guestEmail string) error
	ShareMusic(context.Context, *room.ShareMusicParams) (room.ShareMusicResponse, error)
	Subscribe(ctx context.Context, email string, conn connection.Conn) error
	KeepAlive(ctx context.Context, email string, conn connection.Conn) error
	Cleanup(ctx context.Context, email string, conn connection.Conn)
}

type Controller struct {
	roomService iRoomService
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	logger      *slog.Logger
}

func NewController(roomService iRoomService, logger *slog.Logger) *Controller {
	return &Controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		roomService: roomService,
		validate:    validator.NewValidator(),
		logger:      logger,
	}
}
