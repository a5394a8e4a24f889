package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/roomsync/internal/playback"
	"github.com/sharetube/roomsync/internal/repository/room"
)

const onlineValue = "online"

// KEYS[1] participant set, KEYS[2] guest location. ARGV: guest, limit, owner.
var addParticipantScript = redis.NewScript(`
	if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 1 then
		redis.call('SET', KEYS[2], ARGV[3])
		return 1
	end
	if redis.call('SCARD', KEYS[1]) >= tonumber(ARGV[2]) then
		return 0
	end
	redis.call('SADD', KEYS[1], ARGV[1])
	redis.call('SET', KEYS[2], ARGV[3])
	return 1
`)

type Config struct {
	MusicTTL  time.Duration
	OnlineTTL time.Duration
}

type repo struct {
	rc        *redis.Client
	musicTTL  time.Duration
	onlineTTL time.Duration
	logger    *slog.Logger
}

func NewRepo(rc *redis.Client, logger *slog.Logger, cfg Config) *repo {
	if cfg.MusicTTL <= 0 {
		cfg.MusicTTL = 5 * time.Second
	}
	if cfg.OnlineTTL <= 0 {
		cfg.OnlineTTL = 45 * time.Second
	}

	return &repo{
		rc:        rc,
		musicTTL:  cfg.MusicTTL,
		onlineTTL: cfg.OnlineTTL,
		logger:    logger,
	}
}

// AddParticipant puts the guest into the owner's room and records where the
// guest is. Joining a room the guest is already in succeeds even when full.
func (r repo) AddParticipant(ctx context.Context, params *room.AddParticipantParams) error {
	funcName := "room.redis.AddParticipant"
	r.logger.DebugContext(ctx, funcName, "params", params)

	added, err := addParticipantScript.Run(ctx, r.rc,
		[]string{r.roomKey(params.OwnerEmail), r.locationKey(params.GuestEmail)},
		params.GuestEmail, params.Limit, params.OwnerEmail,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}

	if added == 0 {
		r.logger.InfoContext(ctx, funcName, "error", room.ErrRoomFull)
		return room.ErrRoomFull
	}

	return nil
}

// RemoveParticipant takes the guest out of whatever room it is in and returns
// that room's owner.
func (r repo) RemoveParticipant(ctx context.Context, guestEmail string) (string, error) {
	funcName := "room.redis.RemoveParticipant"
	r.logger.DebugContext(ctx, funcName, "guest", guestEmail)

	ownerEmail, err := r.GetLocation(ctx, guestEmail)
	if err != nil {
		return "", err
	}

	pipe := r.rc.TxPipeline()
	pipe.SRem(ctx, r.roomKey(ownerEmail), guestEmail)
	pipe.Del(ctx, r.locationKey(guestEmail))
	if err := r.executePipe(ctx, pipe); err != nil {
		return "", fmt.Errorf("failed to remove participant: %w", err)
	}

	r.logger.DebugContext(ctx, funcName, "owner", ownerEmail)
	return ownerEmail, nil
}

// RemoveFromRoom drops the guest from one room's set, leaving its location as is.
func (r repo) RemoveFromRoom(ctx context.Context, ownerEmail, guestEmail string) error {
	return r.rc.SRem(ctx, r.roomKey(ownerEmail), guestEmail).Err()
}

func (r repo) GetLocation(ctx context.Context, guestEmail string) (string, error) {
	ownerEmail, err := r.rc.Get(ctx, r.locationKey(guestEmail)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", room.ErrLocationNotFound
		}
		return "", err
	}

	return ownerEmail, nil
}

func (r repo) GetParticipants(ctx context.Context, ownerEmail string) ([]string, error) {
	return r.rc.SMembers(ctx, r.roomKey(ownerEmail)).Result()
}

// SetMusic caches the owner's latest state. The entry expires quickly so that
// a silent owner stops handing stale state to joiners.
func (r repo) SetMusic(ctx context.Context, ownerEmail string, music playback.State) error {
	data, err := json.Marshal(music)
	if err != nil {
		return fmt.Errorf("failed to marshal music: %w", err)
	}

	return r.rc.Set(ctx, r.musicKey(ownerEmail), data, r.musicTTL).Err()
}

func (r repo) GetMusic(ctx context.Context, ownerEmail string) (playback.State, error) {
	data, err := r.rc.Get(ctx, r.musicKey(ownerEmail)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return playback.State{}, room.ErrMusicNotFound
		}
		return playback.State{}, err
	}

	return playback.ParseState(data)
}

// SetOnline marks the viewer online until the presence ttl runs out. Calling
// it again extends the deadline.
func (r repo) SetOnline(ctx context.Context, email string) error {
	return r.rc.Set(ctx, r.statusKey(email), onlineValue, r.onlineTTL).Err()
}

func (r repo) RemoveOnline(ctx context.Context, email string) error {
	return r.rc.Del(ctx, r.statusKey(email)).Err()
}

func (r repo) IsOnline(ctx context.Context, email string) (bool, error) {
	n, err := r.rc.Exists(ctx, r.statusKey(email)).Result()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}
