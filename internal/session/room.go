package session

import (
	"context"
	"errors"

	"github.com/sharetube/roomsync/internal/membership"
	"github.com/sharetube/roomsync/internal/playback"
	"github.com/sharetube/roomsync/internal/reconnect"
	"github.com/sharetube/roomsync/internal/roomclient"
)

// Join follows ownerEmail's room. The local player is reset right away; the
// relay call happens outside the loop and a rejected join (room full) returns
// the viewer to its own room.
func (s *Session) Join(ctx context.Context, ownerEmail, displayName string) error {
	var (
		joinErr error
		seq     uint64
	)
	err := s.loop.Do(ctx, func() {
		if joinErr = s.members.Join(ctx, ownerEmail, displayName); joinErr != nil {
			return
		}

		s.receiver.Reset()
		s.broadcaster.Refresh()
		s.controller.Unload()
		s.clearMusic(ctx)
		s.channel.Ensure()
		s.joinedGen = 0
		if s.channel.State() == reconnect.StateConnecting {
			s.joinedGen = s.channel.Generation()
		}

		s.joinSeq++
		seq = s.joinSeq
	})
	if err != nil {
		return err
	}
	if joinErr != nil {
		return joinErr
	}

	s.logger.InfoContext(ctx, "joining room", "owner_email", ownerEmail)
	res, joinErr := s.joinRelay(ctx, ownerEmail)

	if err := s.loop.Do(ctx, func() { s.joinFinished(seq, ownerEmail, res, joinErr) }); err != nil {
		return err
	}

	return joinErr
}

// Leave returns to the viewer's own room. Local state is cleared even when the
// relay call fails.
func (s *Session) Leave(ctx context.Context) error {
	var left bool
	err := s.loop.Do(ctx, func() {
		if s.members.Role() != membership.RoleFollower {
			return
		}

		previous := s.members.Leave(ctx)
		s.joinSeq++
		s.receiver.Reset()
		s.controller.Unload()
		s.clearMusic(ctx)
		s.broadcaster.Refresh()
		left = true

		s.logger.InfoContext(ctx, "left room", "owner_email", previous.OwnerEmail)
	})
	if err != nil || !left {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	if err := s.rooms.Leave(ctx); err != nil {
		s.logger.WarnContext(ctx, "relay leave failed", "error", err)
	}

	return nil
}

// rejoin runs on the loop after the push channel reconnects.
func (s *Session) rejoin(ownerEmail string) {
	if s.joinedGen != 0 && s.joinedGen == s.channel.Generation() {
		s.joinedGen = 0
		s.logger.Debug("join already sent on this connection", "owner_email", ownerEmail)
		return
	}

	s.joinSeq++
	seq := s.joinSeq
	ctx := s.ctx

	s.spawn(func() {
		res, err := s.joinRelay(ctx, ownerEmail)
		s.loop.Post(func() { s.joinFinished(seq, ownerEmail, res, err) })
	})
}

func (s *Session) joinRelay(ctx context.Context, ownerEmail string) (roomclient.JoinResult, error) {
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()

	return s.rooms.Join(ctx, ownerEmail)
}

func (s *Session) joinFinished(seq uint64, ownerEmail string, res roomclient.JoinResult, err error) {
	if seq != s.joinSeq || s.members.Role() != membership.RoleFollower || s.members.OwnerEmail() != ownerEmail {
		s.logger.Debug("discarding stale join result", "owner_email", ownerEmail)
		return
	}

	if errors.Is(err, roomclient.ErrRoomFull) {
		s.logger.Warn("room is full, returning to own room", "owner_email", ownerEmail)
		s.members.Leave(s.ctx)
		s.receiver.Reset()
		s.controller.Unload()
		s.broadcaster.Refresh()
		return
	}
	if err != nil {
		s.joinedGen = 0
		s.logger.Warn("join failed, keeping membership for the next reconnect", "owner_email", ownerEmail, "error", err)
		return
	}

	if res.CurrentMusic == nil {
		return
	}
	snapshot := *res.CurrentMusic
	if snapshot.OwnerEmail == "" {
		snapshot.OwnerEmail = ownerEmail
	}
	if s.receiver.Apply(snapshot) {
		s.persistFollowed(s.ctx, snapshot)
	}
}

// PushMusic feeds a music-sync payload as if it arrived on the push channel.
func (s *Session) PushMusic(ctx context.Context, payload []byte) error {
	return s.loop.Do(ctx, func() {
		_ = s.handleMusicSync(ctx, payload)
	})
}

var _ playback.Listener = (*Session)(nil)
