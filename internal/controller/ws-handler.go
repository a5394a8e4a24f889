package controller

import (
	"context"
	"net/http"
)

func (c Controller) connectWS(w http.ResponseWriter, r *http.Request) {
	email := c.getEmailFromCtx(r.Context())

	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to upgrade connection", "error", err)
		return
	}

	conn := newWSConn(ws)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer c.roomService.Cleanup(context.WithoutCancel(ctx), email, conn)

	if err := c.roomService.Subscribe(ctx, email, conn); err != nil {
		c.logger.WarnContext(ctx, "failed to subscribe", "error", err)
		return
	}
	c.logger.InfoContext(ctx, "push stream opened", "conn_id", conn.ID(), "transport", "ws")

	// the stream is one-way; reading only notices the peer going away
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()
	go func() {
		select {
		case <-conn.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	err = c.roomService.KeepAlive(ctx, email, conn)
	c.logger.InfoContext(ctx, "push stream closed", "conn_id", conn.ID(), "reason", err)
}
