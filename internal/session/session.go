// Package session is the root controller of the agent. It owns every playback
// component and exposes the operations the local API needs, each executed on
// the event loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sharetube/roomsync/internal/membership"
	"github.com/sharetube/roomsync/internal/playback"
	"github.com/sharetube/roomsync/internal/playlist"
	"github.com/sharetube/roomsync/internal/push"
	"github.com/sharetube/roomsync/internal/reconnect"
	"github.com/sharetube/roomsync/internal/roomclient"
	"github.com/sharetube/roomsync/internal/sched"
	"github.com/sharetube/roomsync/internal/syncer"
	"github.com/sharetube/roomsync/pkg/ctxlogger"
	"github.com/sharetube/roomsync/pkg/pushrouter"
	"github.com/sharetube/roomsync/pkg/ytvideodata"
)

var (
	ErrNotOwner   = errors.New("playback is controlled by the room owner")
	ErrInvalidURL = errors.New("invalid video url")
)

const networkTimeout = 10 * time.Second

type RoomClient interface {
	Join(ctx context.Context, ownerEmail string) (roomclient.JoinResult, error)
	Leave(ctx context.Context) error
	Share(ctx context.Context, state playback.State) error
}

type Store interface {
	membership.Store
	SaveMusic(ctx context.Context, state playback.State) error
	LoadMusic(ctx context.Context) (playback.State, bool, error)
	ClearMusic(ctx context.Context) error
}

type Fetcher interface {
	Get(ctx context.Context, videoID string) (*ytvideodata.VideoData, error)
}

type Config struct {
	Email             string
	PlaylistLimit     int
	BroadcastInterval time.Duration
	PollInterval      time.Duration
	RetryDelay        time.Duration
	HeartbeatTimeout  time.Duration
	DriftToleranceMs  int64
}

type Session struct {
	loop        sched.Executor
	controller  *playback.Controller
	engine      *playlist.Engine
	members     *membership.Manager
	broadcaster *syncer.Broadcaster
	receiver    *syncer.Receiver
	channel     *reconnect.Manager
	router      *pushrouter.Router
	rooms       RoomClient
	store       Store
	fetcher     Fetcher
	logger      *slog.Logger

	ctx     context.Context
	joinSeq uint64
	// joinedGen is the connection attempt Join already sent the relay join
	// on; its connect event skips the rejoin.
	joinedGen uint64
	spawn     func(func())
}

func New(
	loop sched.Executor,
	player playback.Player,
	rooms RoomClient,
	opener reconnect.Opener,
	store Store,
	fetcher Fetcher,
	logger *slog.Logger,
	cfg Config,
) *Session {
	s := &Session{
		loop:    loop,
		rooms:   rooms,
		store:   store,
		fetcher: fetcher,
		logger:  logger,
		ctx:     context.Background(),
		spawn:   func(fn func()) { go fn() },
	}

	s.controller = playback.NewController(player, loop, logger.With("component", "controller"), playback.Config{
		PollInterval: cfg.PollInterval,
	})
	s.engine = playlist.NewEngine(s.controller, cfg.PlaylistLimit, logger.With("component", "playlist"))
	s.members = membership.NewManager(cfg.Email, store, logger.With("component", "membership"))
	s.broadcaster = syncer.NewBroadcaster(rooms, s.controller, s.members, loop, cfg.BroadcastInterval,
		logger.With("component", "broadcaster"))
	s.receiver = syncer.NewReceiver(s.controller, s.members, cfg.DriftToleranceMs, logger.With("component", "receiver"))

	s.router = pushrouter.New()
	s.router.Use(s.logEvents)
	s.router.Handle(push.EventConnect, s.handleConnect)
	s.router.Handle(push.EventHeartbeat, s.handleHeartbeat)
	s.router.Handle(push.EventMusicSync, s.handleMusicSync)

	s.channel = reconnect.NewManager(opener, loop, loop.Post, s.members, s.router, s.rejoin,
		logger.With("component", "reconnect"), reconnect.Config{
			RetryDelay:       cfg.RetryDelay,
			HeartbeatTimeout: cfg.HeartbeatTimeout,
		})

	s.controller.SetListener(s)

	return s
}

// Restore reloads the persisted membership and last music. It should run once
// before Start.
func (s *Session) Restore(ctx context.Context) error {
	var restoreErr error
	err := s.loop.Do(ctx, func() {
		m, err := s.members.Restore(ctx)
		if err != nil {
			restoreErr = err
			return
		}

		music, ok, err := s.store.LoadMusic(ctx)
		if err != nil {
			restoreErr = fmt.Errorf("failed to restore music: %w", err)
			return
		}
		if !ok || music.Idle() {
			return
		}

		switch {
		case m.Role == membership.RoleFollower:
			s.receiver.Apply(music)
		case m.Role == membership.RoleOwner && music.OwnerEmail == m.OwnerEmail:
			s.controller.Load(music.VideoID)
			s.controller.Seek(music.ProgressMs)
			if !music.IsPlaying {
				s.controller.Pause()
			}
		}
		s.logger.InfoContext(ctx, "session restored",
			"role", m.Role.String(),
			"owner_email", m.OwnerEmail,
			"video_id", music.VideoID,
		)
	})
	if err != nil {
		return err
	}

	return restoreErr
}

// Start opens the push channel and arms the broadcaster. ctx bounds every
// background network call.
func (s *Session) Start(ctx context.Context) error {
	return s.loop.Do(ctx, func() {
		s.ctx = ctx
		s.broadcaster.Start(ctx)
		s.channel.Start()
	})
}

func (s *Session) Close(ctx context.Context) error {
	return s.loop.Do(ctx, func() {
		s.persistMusic(ctx)
		s.broadcaster.Close()
		s.channel.Close()
		s.controller.Close()
	})
}

// PlayerReady implements playback.Listener.
func (s *Session) PlayerReady(videoID string) {
	s.broadcaster.PlayerReady(videoID)
	s.receiver.PlayerReady(videoID)
}

// PlayerStateChanged implements playback.Listener.
func (s *Session) PlayerStateChanged(status playback.Status) {
	s.broadcaster.PlayerStateChanged(status)
	s.persistMusic(s.ctx)

	if status == playback.StatusEnded && s.members.Role() != membership.RoleFollower {
		s.engine.HandleEnded(s.controller.VideoID())
	}
}

func (s *Session) persistMusic(ctx context.Context) {
	if s.members.Role() == membership.RoleFollower {
		return
	}

	state := s.controller.Snapshot()
	state.OwnerEmail = s.members.OwnerEmail()
	if err := s.store.SaveMusic(ctx, state); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist music", "error", err)
	}
}

func (s *Session) clearMusic(ctx context.Context) {
	if err := s.store.ClearMusic(ctx); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear music", "error", err)
	}
}

func (s *Session) logEvents(next pushrouter.HandlerFunc) pushrouter.HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		ctx = ctxlogger.AppendCtx(ctx, slog.String("event", pushrouter.GetEventNameFromCtx(ctx)))
		if err := next(ctx, payload); err != nil {
			s.logger.WarnContext(ctx, "failed to handle push event", "error", err)
			return err
		}
		return nil
	}
}

func (s *Session) handleConnect(ctx context.Context, payload []byte) error {
	ctx = ctxlogger.AppendCtx(ctx, slog.String("connection_id", strings.Trim(string(payload), `"`)))
	s.logger.DebugContext(ctx, "relay assigned connection")
	return nil
}

func (s *Session) handleHeartbeat(ctx context.Context, _ []byte) error {
	s.logger.DebugContext(ctx, "heartbeat")
	return nil
}

func (s *Session) handleMusicSync(ctx context.Context, payload []byte) error {
	state, err := playback.ParseState(payload)
	if err != nil {
		s.logger.WarnContext(ctx, "malformed music-sync payload", "error", err)
	}

	if s.receiver.Apply(state) {
		s.persistFollowed(ctx, state)
	}
	return nil
}

func (s *Session) persistFollowed(ctx context.Context, state playback.State) {
	if err := s.store.SaveMusic(ctx, state); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist music", "error", err)
	}
}
