package controller

import (
	"errors"
	"net/http"

	"github.com/sharetube/roomsync/internal/playback"
	"github.com/sharetube/roomsync/internal/service/room"
	"github.com/sharetube/roomsync/pkg/rest"
)

const firstState = "FIRST_STATE"

var errorStatuses = []struct {
	err    error
	status int
}{
	{room.ErrRoomFull, http.StatusForbidden},
	{room.ErrForbidden, http.StatusForbidden},
	{room.ErrJoinOwnRoom, http.StatusBadRequest},
	{room.ErrInvalidEmail, http.StatusBadRequest},
}

func (c Controller) writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			c.logger.InfoContext(r.Context(), "request rejected", "error", err)
			rest.WriteJSON(w, e.status, rest.Envelope{"error": e.err.Error()})
			return
		}
	}

	c.logger.ErrorContext(r.Context(), "request failed", "error", err)
	rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
}

type joinRoomRequest struct {
	OwnerEmail string `json:"ownerEmail" validate:"required,email"`
}

func (c Controller) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if err := rest.ReadJSON(r, &req); err != nil {
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	resp, err := c.roomService.JoinRoom(r.Context(), &room.JoinRoomParams{
		GuestEmail: c.getEmailFromCtx(r.Context()),
		OwnerEmail: req.OwnerEmail,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	var currentMusic any = firstState
	if resp.CurrentMusic != nil {
		currentMusic = resp.CurrentMusic
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{
		"message":      "joined the room",
		"currentMusic": currentMusic,
	})
}

func (c Controller) leaveRoom(w http.ResponseWriter, r *http.Request) {
	if err := c.roomService.LeaveRoom(r.Context(), c.getEmailFromCtx(r.Context())); err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"message": "left the room"})
}

func (c Controller) shareMusic(w http.ResponseWriter, r *http.Request) {
	var music playback.State
	if err := rest.ReadJSON(r, &music); err != nil {
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	resp, err := c.roomService.ShareMusic(r.Context(), &room.ShareMusicParams{
		SenderEmail: c.getEmailFromCtx(r.Context()),
		Music:       music,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"delivered": resp.Delivered})
}
