// Package roomclient calls the relay's room and music endpoints.
package roomclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sharetube/roomsync/internal/playback"
)

var (
	ErrRoomFull     = errors.New("room is full")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

const firstState = "FIRST_STATE"

type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relay responded with status %d", e.Code)
	}
	return fmt.Sprintf("relay responded with status %d: %s", e.Code, e.Message)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

func New(baseURL, token string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
		logger:  logger,
	}
}

type JoinResult struct {
	Message string
	// CurrentMusic is nil when the owner is not playing anything.
	CurrentMusic *playback.State
}

type joinRequest struct {
	OwnerEmail string `json:"ownerEmail"`
}

type joinResponse struct {
	Message      string          `json:"message"`
	CurrentMusic json.RawMessage `json:"currentMusic"`
}

func (c *Client) Join(ctx context.Context, ownerEmail string) (JoinResult, error) {
	var resp joinResponse
	if err := c.do(ctx, http.MethodPost, "/api/room/join", joinRequest{OwnerEmail: ownerEmail}, &resp); err != nil {
		// the relay only refuses a join when the room has no free place
		if errors.Is(err, ErrForbidden) {
			err = ErrRoomFull
		}
		return JoinResult{}, fmt.Errorf("failed to join room: %w", err)
	}

	result := JoinResult{Message: resp.Message}
	raw := bytes.TrimSpace(resp.CurrentMusic)
	if len(raw) == 0 || raw[0] != '{' {
		return result, nil
	}

	state, err := playback.ParseState(raw)
	if err != nil {
		c.logger.WarnContext(ctx, "ignoring malformed join snapshot", "error", err)
		return result, nil
	}
	result.CurrentMusic = &state

	return result, nil
}

func (c *Client) Leave(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/room/leave", struct{}{}, nil); err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}
	return nil
}

func (c *Client) Share(ctx context.Context, state playback.State) error {
	if err := c.do(ctx, http.MethodPost, "/api/music/share", state, nil); err != nil {
		return fmt.Errorf("failed to share music: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dst any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{Code: resp.StatusCode, Message: errorMessage(data)}
	}

	if dst == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func errorMessage(data []byte) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error != "" {
		return envelope.Error
	}
	return strings.TrimSpace(string(data))
}
