package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

func (r repo) roomKey(ownerEmail string) string {
	return "room:" + ownerEmail
}

func (r repo) locationKey(guestEmail string) string {
	return "user:location:" + guestEmail
}

func (r repo) musicKey(ownerEmail string) string {
	return "room:music:" + ownerEmail
}

func (r repo) statusKey(email string) string {
	return "status:" + email
}

func (r repo) executePipe(ctx context.Context, pipe redis.Pipeliner) error {
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		for _, cmd := range cmds {
			if err := cmd.Err(); err != nil {
				return err
			}
		}

		return err
	}

	return nil
}
