// Package agent serves the local control API of a running session.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sharetube/roomsync/internal/membership"
	"github.com/sharetube/roomsync/internal/playlist"
	"github.com/sharetube/roomsync/internal/roomclient"
	"github.com/sharetube/roomsync/internal/session"
	"github.com/sharetube/roomsync/pkg/rest"
	"github.com/sharetube/roomsync/pkg/validator"
)

type iSession interface {
	State(ctx context.Context) (session.View, error)
	EnqueueURL(ctx context.Context, rawURL string) (playlist.Item, error)
	Remove(ctx context.Context, id string) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Skip(ctx context.Context) error
	Seek(ctx context.Context, ms int64) error
	SetVolume(ctx context.Context, volume int) error
	SetRepeat(ctx context.Context, repeat bool) error
	Join(ctx context.Context, ownerEmail, displayName string) error
	Leave(ctx context.Context) error
}

type Controller struct {
	session  iSession
	validate *validator.Validator
	logger   *slog.Logger
}

func NewController(s iSession, logger *slog.Logger) *Controller {
	return &Controller{
		session:  s,
		validate: validator.NewValidator(),
		logger:   logger,
	}
}

func (c *Controller) Mux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(rest.RequestID)
	r.Use(rest.RequestLogger(c.logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/state", c.getState)
	r.Route("/queue", func(r chi.Router) {
		r.Post("/", c.enqueue)
		r.Delete("/{video-id}", c.removeFromQueue)
	})
	r.Route("/player", func(r chi.Router) {
		r.Post("/play", c.command(c.session.Play))
		r.Post("/pause", c.command(c.session.Pause))
		r.Post("/skip", c.command(c.session.Skip))
		r.Post("/seek", c.seek)
		r.Put("/volume", c.setVolume)
	})
	r.Put("/repeat", c.setRepeat)
	r.Route("/room", func(r chi.Router) {
		r.Post("/join", c.join)
		r.Post("/leave", c.command(c.session.Leave))
	})

	return r
}

var errorStatuses = []struct {
	err    error
	status int
}{
	{session.ErrNotOwner, http.StatusForbidden},
	{roomclient.ErrRoomFull, http.StatusForbidden},
	{playlist.ErrAlreadyQueued, http.StatusConflict},
	{playlist.ErrPlaylistLimitReached, http.StatusConflict},
	{playlist.ErrRemovingCurrent, http.StatusConflict},
	{playlist.ErrItemNotFound, http.StatusNotFound},
	{session.ErrInvalidURL, http.StatusBadRequest},
	{playlist.ErrInvalidItem, http.StatusBadRequest},
	{membership.ErrInvalidEmail, http.StatusBadRequest},
	{membership.ErrJoinOwnRoom, http.StatusBadRequest},
	{membership.ErrNoIdentity, http.StatusPreconditionFailed},
	{roomclient.ErrUnauthorized, http.StatusBadGateway},
	{roomclient.ErrForbidden, http.StatusBadGateway},
}

func (c *Controller) writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			rest.WriteJSON(w, e.status, rest.Envelope{"error": e.err.Error()})
			return
		}
	}

	var statusErr *roomclient.StatusError
	if errors.As(err, &statusErr) {
		rest.WriteJSON(w, http.StatusBadGateway, rest.Envelope{"error": statusErr.Error()})
		return
	}

	c.logger.ErrorContext(r.Context(), "request failed", "error", err)
	rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
}

func (c *Controller) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := rest.ReadJSON(r, dst); err != nil {
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return false
	}

	if validationErrors, ok := c.validate.Validate(dst); !ok {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return false
	}

	return true
}
