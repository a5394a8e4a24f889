package agent

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sharetube/roomsync/pkg/rest"
)

func (c *Controller) getState(w http.ResponseWriter, r *http.Request) {
	view, err := c.session.State(r.Context())
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": view})
}

type enqueueRequest struct {
	URL string `json:"url" validate:"required,url"`
}

func (c *Controller) enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if !c.decode(w, r, &req) {
		return
	}

	item, err := c.session.EnqueueURL(r.Context(), req.URL)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, rest.Envelope{"data": item})
}

func (c *Controller) removeFromQueue(w http.ResponseWriter, r *http.Request) {
	if err := c.session.Remove(r.Context(), chi.URLParam(r, "video-id")); err != nil {
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) command(fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context()); err != nil {
			c.writeError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

type seekRequest struct {
	ProgressMs *int64 `json:"progressMs" validate:"required,min=0"`
}

func (c *Controller) seek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if !c.decode(w, r, &req) {
		return
	}

	if err := c.session.Seek(r.Context(), *req.ProgressMs); err != nil {
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type volumeRequest struct {
	Volume *int `json:"volume" validate:"required,min=0,max=100"`
}

func (c *Controller) setVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if !c.decode(w, r, &req) {
		return
	}

	if err := c.session.SetVolume(r.Context(), *req.Volume); err != nil {
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type repeatRequest struct {
	Enabled bool `json:"enabled"`
}

func (c *Controller) setRepeat(w http.ResponseWriter, r *http.Request) {
	var req repeatRequest
	if !c.decode(w, r, &req) {
		return
	}

	if err := c.session.SetRepeat(r.Context(), req.Enabled); err != nil {
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type joinRequest struct {
	OwnerEmail       string `json:"ownerEmail" validate:"required,email"`
	OwnerDisplayName string `json:"ownerDisplayName" validate:"max=64"`
}

func (c *Controller) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !c.decode(w, r, &req) {
		return
	}

	if err := c.session.Join(r.Context(), req.OwnerEmail, req.OwnerDisplayName); err != nil {
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
