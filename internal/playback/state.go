package playback

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var ErrMalformedState = errors.New("malformed playback state")

// State is the owner's playback snapshot as it travels over the wire.
// An empty VideoID means nothing is loaded.
type State struct {
	VideoID    string
	IsPlaying  bool
	ProgressMs int64
	OwnerEmail string
}

// Idle reports whether nothing is loaded.
func (s State) Idle() bool {
	return s.VideoID == ""
}

// Normalize enforces that an idle state is paused at zero and that progress is
// never negative.
func (s State) Normalize() State {
	if s.VideoID == "" {
		s.IsPlaying = false
		s.ProgressMs = 0
	}
	if s.ProgressMs < 0 {
		s.ProgressMs = 0
	}

	return s
}

type wireState struct {
	VideoID    *string `json:"videoId"`
	IsPlaying  bool    `json:"isPlaying"`
	ProgressMs int64   `json:"progressMs"`
	OwnerEmail string  `json:"ownerEmail"`
}

func (s State) MarshalJSON() ([]byte, error) {
	s = s.Normalize()
	w := wireState{
		IsPlaying:  s.IsPlaying,
		ProgressMs: s.ProgressMs,
		OwnerEmail: s.OwnerEmail,
	}
	if s.VideoID != "" {
		w.VideoID = &s.VideoID
	}

	return json.Marshal(w)
}

func (s *State) UnmarshalJSON(data []byte) error {
	parsed, err := ParseState(data)
	*s = parsed
	return err
}

// ParseState decodes a pushed state. It always returns a usable state: when the
// payload is malformed the result is idle and carries whatever owner email could
// be read, together with an error wrapping ErrMalformedState.
func ParseState(data []byte) (State, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrMalformedState, err)
	}

	var s State
	if raw, ok := fields["ownerEmail"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &s.OwnerEmail); err != nil {
			return State{}, fmt.Errorf("%w: ownerEmail: %w", ErrMalformedState, err)
		}
	}

	idle := State{OwnerEmail: s.OwnerEmail}

	if raw, ok := fields["videoId"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &s.VideoID); err != nil {
			return idle, fmt.Errorf("%w: videoId: %w", ErrMalformedState, err)
		}
	}

	playing, ok := fields["isPlaying"]
	if !ok {
		playing, ok = fields["playing"]
	}
	if ok && !isNull(playing) {
		if err := json.Unmarshal(playing, &s.IsPlaying); err != nil {
			return idle, fmt.Errorf("%w: isPlaying: %w", ErrMalformedState, err)
		}
	}

	if raw, ok := fields["progressMs"]; ok && !isNull(raw) {
		var progress float64
		if err := json.Unmarshal(raw, &progress); err != nil {
			return idle, fmt.Errorf("%w: progressMs: %w", ErrMalformedState, err)
		}
		s.ProgressMs = clampProgress(progress)
	}

	return s.Normalize(), nil
}

// clampProgress converts to int64 without overflowing.
func clampProgress(progress float64) int64 {
	switch {
	case progress <= 0:
		return 0
	case progress >= math.MaxInt64:
		return math.MaxInt64
	default:
		return int64(progress)
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
