package room

import (
	"context"
	"fmt"

	"github.com/sharetube/roomsync/internal/repository/connection"
)

var heartbeatPayload = []byte("ping")

// Subscribe registers conn as the viewer's push stream, marks the viewer
// online and greets it with its connection id. An older stream of the same
// viewer is closed.
func (s service) Subscribe(ctx context.Context, email string, conn connection.Conn) error {
	if err := s.roomRepo.SetOnline(ctx, email); err != nil {
		return fmt.Errorf("failed to set online: %w", err)
	}

	if prev := s.connRepo.Add(email, conn); prev != nil {
		s.logger.InfoContext(ctx, "replacing push stream", "email", email, "prev_conn_id", prev.ID())
		prev.Close()
	}

	if err := s.send(ctx, conn, EventConnect, []byte(conn.ID())); err != nil {
		return fmt.Errorf("failed to send connect event: %w", err)
	}

	return nil
}

// Heartbeat pings the stream and extends the viewer's presence.
func (s service) Heartbeat(ctx context.Context, email string, conn connection.Conn) error {
	if err := s.send(ctx, conn, EventHeartbeat, heartbeatPayload); err != nil {
		return err
	}

	return s.roomRepo.SetOnline(ctx, email)
}

// KeepAlive sends heartbeats until ctx is done or a heartbeat fails.
func (s service) KeepAlive(ctx context.Context, email string, conn connection.Conn) error {
	ticker := s.clock.Ticker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Heartbeat(ctx, email, conn); err != nil {
				return fmt.Errorf("heartbeat failed: %w", err)
			}
		}
	}
}

// Cleanup forgets a finished stream. When it was still the viewer's current
// stream the viewer goes offline and leaves its room.
func (s service) Cleanup(ctx context.Context, email string, conn connection.Conn) {
	conn.Close()

	if err := s.connRepo.Remove(email, conn.ID()); err != nil {
		s.logger.DebugContext(ctx, "stream already replaced", "email", email, "conn_id", conn.ID())
		return
	}

	if err := s.roomRepo.RemoveOnline(ctx, email); err != nil {
		s.logger.WarnContext(ctx, "failed to remove online status", "email", email, "error", err)
	}
	if err := s.LeaveRoom(ctx, email); err != nil {
		s.logger.WarnContext(ctx, "failed to leave room on disconnect", "email", email, "error", err)
	}
}
