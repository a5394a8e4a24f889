package controller

import (
	"context"
	"net/http"
)

func (c Controller) connectSSE(w http.ResponseWriter, r *http.Request) {
	email := c.getEmailFromCtx(r.Context())

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	conn := newSSEConn(w)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer c.roomService.Cleanup(context.WithoutCancel(ctx), email, conn)

	if err := c.roomService.Subscribe(ctx, email, conn); err != nil {
		c.logger.WarnContext(ctx, "failed to subscribe", "error", err)
		return
	}
	c.logger.InfoContext(ctx, "push stream opened", "conn_id", conn.ID(), "transport", "sse")

	go func() {
		select {
		case <-conn.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	err := c.roomService.KeepAlive(ctx, email, conn)
	c.logger.InfoContext(ctx, "push stream closed", "conn_id", conn.ID(), "reason", err)
}
