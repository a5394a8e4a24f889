package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sharetube/roomsync/internal/playback"
	"github.com/sharetube/roomsync/internal/repository/room"
)

type JoinRoomParams struct {
	GuestEmail string
	OwnerEmail string
}

type JoinRoomResponse struct {
	// CurrentMusic is set only while the owner is playing.
	CurrentMusic *playback.State
}

func (s service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	if !s.validate.Email(params.OwnerEmail) {
		return JoinRoomResponse{}, ErrInvalidEmail
	}
	if params.GuestEmail == params.OwnerEmail {
		return JoinRoomResponse{}, ErrJoinOwnRoom
	}

	prevOwner, err := s.roomRepo.GetLocation(ctx, params.GuestEmail)
	if err != nil && !errors.Is(err, room.ErrLocationNotFound) {
		return JoinRoomResponse{}, fmt.Errorf("failed to get guest location: %w", err)
	}

	if err := s.roomRepo.AddParticipant(ctx, &room.AddParticipantParams{
		OwnerEmail: params.OwnerEmail,
		GuestEmail: params.GuestEmail,
		Limit:      s.membersLimit,
	}); err != nil {
		if errors.Is(err, room.ErrRoomFull) {
			return JoinRoomResponse{}, ErrRoomFull
		}
		return JoinRoomResponse{}, err
	}

	if prevOwner != "" && prevOwner != params.OwnerEmail {
		s.logger.InfoContext(ctx, "guest moved rooms", "guest", params.GuestEmail, "from", prevOwner, "to", params.OwnerEmail)
		if err := s.roomRepo.RemoveFromRoom(ctx, prevOwner, params.GuestEmail); err != nil {
			s.logger.WarnContext(ctx, "failed to leave previous room", "error", err)
		}
	}

	var resp JoinRoomResponse
	music, err := s.roomRepo.GetMusic(ctx, params.OwnerEmail)
	switch {
	case err == nil && music.IsPlaying:
		resp.CurrentMusic = &music
	case err != nil && !errors.Is(err, room.ErrMusicNotFound):
		s.logger.WarnContext(ctx, "failed to read current music", "owner", params.OwnerEmail, "error", err)
	}

	return resp, nil
}

// LeaveRoom is idempotent: leaving while in no room succeeds.
func (s service) LeaveRoom(ctx context.Context, guestEmail string) error {
	ownerEmail, err := s.roomRepo.RemoveParticipant(ctx, guestEmail)
	if err != nil {
		if errors.Is(err, room.ErrLocationNotFound) {
			return nil
		}
		return fmt.Errorf("failed to remove participant: %w", err)
	}

	s.logger.InfoContext(ctx, "guest left room", "guest", guestEmail, "owner", ownerEmail)
	return nil
}

type ShareMusicParams struct {
	SenderEmail string
	Music       playback.State
}

type ShareMusicResponse struct {
	Delivered int
}

// ShareMusic caches the owner's state and pushes it to every guest in the
// owner's room. Delivery failures are logged per guest.
func (s service) ShareMusic(ctx context.Context, params *ShareMusicParams) (ShareMusicResponse, error) {
	music := params.Music.Normalize()
	if music.OwnerEmail == "" || music.OwnerEmail != params.SenderEmail {
		return ShareMusicResponse{}, ErrForbidden
	}

	if err := s.roomRepo.SetMusic(ctx, music.OwnerEmail, music); err != nil {
		return ShareMusicResponse{}, fmt.Errorf("failed to cache music: %w", err)
	}

	data, err := json.Marshal(music)
	if err != nil {
		return ShareMusicResponse{}, fmt.Errorf("failed to marshal music: %w", err)
	}

	conns, err := s.getConns(ctx, music.OwnerEmail)
	if err != nil {
		return ShareMusicResponse{}, err
	}

	var resp ShareMusicResponse
	for _, conn := range conns {
		if err := s.send(ctx, conn, EventMusicSync, data); err != nil {
			s.logger.InfoContext(ctx, "failed to push music", "conn_id", conn.ID(), "error", err)
			continue
		}
		resp.Delivered++
	}

	return resp, nil
}
