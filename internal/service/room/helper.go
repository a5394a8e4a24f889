package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/roomsync/internal/repository/connection"
)

// getConns returns the open streams of the guests in the owner's room. The
// owner never receives its own state.
func (s service) getConns(ctx context.Context, ownerEmail string) ([]connection.Conn, error) {
	guests, err := s.roomRepo.GetParticipants(ctx, ownerEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}

	conns := make([]connection.Conn, 0, len(guests))
	for _, guest := range guests {
		if guest == ownerEmail {
			continue
		}

		conn, err := s.connRepo.Get(guest)
		if err != nil {
			if errors.Is(err, connection.ErrNotFound) {
				s.logger.DebugContext(ctx, "guest has no open stream", "guest", guest)
				continue
			}
			return nil, err
		}

		conns = append(conns, conn)
	}

	return conns, nil
}

func (s service) send(ctx context.Context, conn connection.Conn, event string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	return conn.Send(ctx, event, data)
}
