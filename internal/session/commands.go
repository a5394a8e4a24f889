package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sharetube/roomsync/internal/membership"
	"github.com/sharetube/roomsync/internal/playback"
	"github.com/sharetube/roomsync/internal/playlist"
	"github.com/sharetube/roomsync/internal/reconnect"
	"github.com/sharetube/roomsync/pkg/ytvideodata"
)

const titleTimeout = 5 * time.Second

type View struct {
	Role             membership.Role `json:"role"`
	OwnerEmail       string          `json:"ownerEmail,omitempty"`
	OwnerDisplayName string          `json:"ownerDisplayName,omitempty"`
	Status           playback.Status `json:"status"`
	Playback         playback.State  `json:"playback"`
	DurationMs       int64           `json:"durationMs"`
	Volume           int             `json:"volume"`
	Repeat           bool            `json:"repeat"`
	Queue            []playlist.Item `json:"queue"`
	Channel          reconnect.State `json:"channel"`
}

func (s *Session) State(ctx context.Context) (View, error) {
	var v View
	err := s.loop.Do(ctx, func() {
		m := s.members.Current()
		snapshot := s.controller.Snapshot()
		snapshot.OwnerEmail = m.OwnerEmail

		v = View{
			Role:             m.Role,
			OwnerEmail:       m.OwnerEmail,
			OwnerDisplayName: m.OwnerDisplayName,
			Status:           s.controller.Status(),
			Playback:         snapshot,
			DurationMs:       s.controller.DurationMs(),
			Volume:           s.controller.Volume(),
			Repeat:           s.engine.Repeat(),
			Queue:            s.engine.Items(),
			Channel:          s.channel.State(),
		}
	})

	return v, err
}

// EnqueueURL resolves the video behind rawURL and queues it. A failed title
// lookup falls back to the URL.
func (s *Session) EnqueueURL(ctx context.Context, rawURL string) (playlist.Item, error) {
	id, ok := ytvideodata.ParseID(rawURL)
	if !ok {
		return playlist.Item{}, ErrInvalidURL
	}
	if err := s.owning(ctx, func() error { return nil }); err != nil {
		return playlist.Item{}, err
	}

	item := playlist.Item{ID: id, Title: rawURL, URL: rawURL}
	if s.fetcher != nil {
		fetchCtx, cancel := context.WithTimeout(ctx, titleTimeout)
		data, err := s.fetcher.Get(fetchCtx, id)
		cancel()
		if err != nil {
			s.logger.WarnContext(ctx, "failed to fetch video title", "video_id", id, "error", err)
		} else if data.Title != "" {
			item.Title = data.Title
		}
	}

	err := s.owning(ctx, func() error {
		if err := s.engine.Enqueue(item); err != nil {
			return fmt.Errorf("failed to enqueue: %w", err)
		}
		return nil
	})

	return item, err
}

func (s *Session) Remove(ctx context.Context, id string) error {
	return s.owning(ctx, func() error {
		return s.engine.Remove(id)
	})
}

func (s *Session) Play(ctx context.Context) error {
	return s.owning(ctx, func() error {
		s.controller.Play()
		return nil
	})
}

func (s *Session) Pause(ctx context.Context) error {
	return s.owning(ctx, func() error {
		s.controller.Pause()
		return nil
	})
}

func (s *Session) Seek(ctx context.Context, ms int64) error {
	return s.owning(ctx, func() error {
		s.controller.Seek(ms)
		return nil
	})
}

func (s *Session) Skip(ctx context.Context) error {
	return s.owning(ctx, func() error {
		s.engine.Skip()
		return nil
	})
}

func (s *Session) SetRepeat(ctx context.Context, repeat bool) error {
	return s.owning(ctx, func() error {
		s.engine.SetRepeat(repeat)
		return nil
	})
}

// SetVolume is local to the viewer and allowed in any role.
func (s *Session) SetVolume(ctx context.Context, volume int) error {
	return s.loop.Do(ctx, func() {
		s.controller.SetVolume(volume)
	})
}

// owning runs fn on the loop unless the viewer is following someone.
func (s *Session) owning(ctx context.Context, fn func() error) error {
	var opErr error
	if err := s.loop.Do(ctx, func() {
		if s.members.Role() == membership.RoleFollower {
			opErr = ErrNotOwner
			return
		}
		opErr = fn()
	}); err != nil {
		return err
	}

	return opErr
}

// IsUserError reports whether err is a condition the caller can fix.
func IsUserError(err error) bool {
	for _, target := range []error{
		ErrNotOwner,
		ErrInvalidURL,
		playlist.ErrAlreadyQueued,
		playlist.ErrPlaylistLimitReached,
		playlist.ErrRemovingCurrent,
		playlist.ErrItemNotFound,
		playlist.ErrInvalidItem,
		membership.ErrJoinOwnRoom,
		membership.ErrInvalidEmail,
		membership.ErrNoIdentity,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
