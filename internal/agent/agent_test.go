package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sharetube/roomsync/internal/membership"
	"github.com/sharetube/roomsync/internal/playback"
	"github.com/sharetube/roomsync/internal/playlist"
	"github.com/sharetube/roomsync/internal/roomclient"
	"github.com/sharetube/roomsync/internal/session"
	"github.com/stretchr/testify/assert"
)

type fakeSession struct {
	calls []string
	err   error
}

func (s *fakeSession) record(call string) error {
	s.calls = append(s.calls, call)
	return s.err
}

func (s *fakeSession) State(context.Context) (session.View, error) {
	return session.View{
		Role:     membership.RoleOwner,
		Status:   playback.StatusPlaying,
		Playback: playback.State{VideoID: "aaaaaaaaaaa", IsPlaying: true, ProgressMs: 1000, OwnerEmail: "me@x.io"},
		Volume:   100,
	}, s.err
}

func (s *fakeSession) EnqueueURL(_ context.Context, rawURL string) (playlist.Item, error) {
	return playlist.Item{ID: "aaaaaaaaaaa", Title: "A", URL: rawURL}, s.record("enqueue:" + rawURL)
}

func (s *fakeSession) Remove(_ context.Context, id string) error { return s.record("remove:" + id) }
func (s *fakeSession) Play(context.Context) error                { return s.record("play") }
func (s *fakeSession) Pause(context.Context) error               { return s.record("pause") }
func (s *fakeSession) Skip(context.Context) error                { return s.record("skip") }
func (s *fakeSession) Leave(context.Context) error               { return s.record("leave") }

func (s *fakeSession) Seek(_ context.Context, ms int64) error {
	return s.record(fmt.Sprintf("seek:%d", ms))
}

func (s *fakeSession) SetVolume(_ context.Context, volume int) error {
	return s.record(fmt.Sprintf("volume:%d", volume))
}

func (s *fakeSession) SetRepeat(_ context.Context, repeat bool) error {
	return s.record(fmt.Sprintf("repeat:%t", repeat))
}

func (s *fakeSession) Join(_ context.Context, ownerEmail, displayName string) error {
	return s.record("join:" + ownerEmail + ":" + displayName)
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestRoutes(t *testing.T) {
	s := &fakeSession{}
	h := NewController(s, slog.Default()).Mux()

	tests := []struct {
		method, path, body string
		status             int
		call               string
	}{
		{http.MethodPost, "/queue", `{"url":"https://youtu.be/aaaaaaaaaaa"}`, http.StatusCreated, "enqueue:https://youtu.be/aaaaaaaaaaa"},
		{http.MethodDelete, "/queue/bbbbbbbbbbb", ``, http.StatusNoContent, "remove:bbbbbbbbbbb"},
		{http.MethodPost, "/player/play", ``, http.StatusNoContent, "play"},
		{http.MethodPost, "/player/pause", ``, http.StatusNoContent, "pause"},
		{http.MethodPost, "/player/skip", ``, http.StatusNoContent, "skip"},
		{http.MethodPost, "/player/seek", `{"progressMs":0}`, http.StatusNoContent, "seek:0"},
		{http.MethodPut, "/player/volume", `{"volume":55}`, http.StatusNoContent, "volume:55"},
		{http.MethodPut, "/repeat", `{"enabled":true}`, http.StatusNoContent, "repeat:true"},
		{http.MethodPost, "/room/join", `{"ownerEmail":"a@x.io","ownerDisplayName":"Alice"}`, http.StatusNoContent, "join:a@x.io:Alice"},
		{http.MethodPost, "/room/leave", ``, http.StatusNoContent, "leave"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			s.calls = nil
			w := do(h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, []string{tt.call}, s.calls)
		})
	}
}

func TestGetState(t *testing.T) {
	h := NewController(&fakeSession{}, slog.Default()).Mux()

	w := do(h, http.MethodGet, "/state", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"OWNER"`)
	assert.Contains(t, w.Body.String(), `"status":"READY_PLAYING"`)
	assert.Contains(t, w.Body.String(), `"videoId":"aaaaaaaaaaa"`)
}

func TestValidation(t *testing.T) {
	s := &fakeSession{}
	h := NewController(s, slog.Default()).Mux()

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, "/player/volume", `{"volume":101}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/player/seek", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/room/join", `{"ownerEmail":"nope"}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, do(h, http.MethodPost, "/queue", `{"link":"x"}`).Code)
	assert.Empty(t, s.calls)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{session.ErrNotOwner, http.StatusForbidden},
		{fmt.Errorf("failed to enqueue: %w", playlist.ErrAlreadyQueued), http.StatusConflict},
		{playlist.ErrPlaylistLimitReached, http.StatusConflict},
		{fmt.Errorf("failed to join room: %w", roomclient.ErrRoomFull), http.StatusForbidden},
		{fmt.Errorf("failed to share music: %w", roomclient.ErrForbidden), http.StatusBadGateway},
		{&roomclient.StatusError{Code: 500}, http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := NewController(&fakeSession{err: tt.err}, slog.Default()).Mux()
			w := do(h, http.MethodPost, "/player/play", "")
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
