package playlist

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sharetube/roomsync/pkg/validator"
)

var (
	ErrAlreadyQueued        = errors.New("video already queued")
	ErrItemNotFound         = errors.New("playlist item not found")
	ErrRemovingCurrent      = errors.New("cannot remove the video that is playing")
	ErrPlaylistLimitReached = errors.New("playlist limit reached")
	ErrInvalidItem          = errors.New("invalid playlist item")
)

const DefaultLimit = 25

type Item struct {
	ID    string `json:"id" validate:"required,len=11"`
	Title string `json:"title" validate:"max=256"`
	URL   string `json:"url" validate:"required,url"`
}

// Controller is the part of the playback controller the queue drives.
type Controller interface {
	Load(videoID string)
	Unload()
	Play()
	VideoID() string
}

// Engine is the owner's FIFO queue. The loaded video is always its head.
type Engine struct {
	items      []Item
	repeat     bool
	limit      int
	controller Controller
	validate   *validator.Validator
	logger     *slog.Logger
}

func NewEngine(controller Controller, limit int, logger *slog.Logger) *Engine {
	if limit <= 0 {
		limit = DefaultLimit
	}

	return &Engine{
		limit:      limit,
		controller: controller,
		validate:   validator.NewValidator(),
		logger:     logger,
	}
}

func (e *Engine) Items() []Item {
	items := make([]Item, len(e.items))
	copy(items, e.items)
	return items
}

func (e *Engine) Len() int {
	return len(e.items)
}

func (e *Engine) Repeat() bool {
	return e.repeat
}

func (e *Engine) SetRepeat(repeat bool) {
	e.repeat = repeat
}

// Enqueue appends item. When nothing is loaded the head of the queue starts.
func (e *Engine) Enqueue(item Item) error {
	if err := e.validate.Struct(item); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}
	if _, ok := e.indexOf(item.ID); ok {
		return ErrAlreadyQueued
	}
	if len(e.items) >= e.limit {
		return ErrPlaylistLimitReached
	}

	e.items = append(e.items, item)
	e.logger.Debug("video enqueued", "video_id", item.ID, "length", len(e.items))

	if e.controller.VideoID() == "" {
		e.controller.Load(e.items[0].ID)
	}

	return nil
}

// Advance drops currentID and loads whatever follows it, or unloads when
// nothing does.
func (e *Engine) Advance(currentID string) {
	idx, ok := e.indexOf(currentID)
	if ok {
		e.items = append(e.items[:idx], e.items[idx+1:]...)
	}

	if ok && idx < len(e.items) {
		next := e.items[idx].ID
		e.logger.Debug("advancing playlist", "from", currentID, "to", next)
		e.controller.Load(next)
		return
	}

	if !ok && len(e.items) > 0 {
		e.controller.Load(e.items[0].ID)
		return
	}

	e.logger.Debug("playlist exhausted", "last", currentID)
	e.controller.Unload()
}

// Remove deletes a queued entry that is not playing.
func (e *Engine) Remove(id string) error {
	if id == e.controller.VideoID() {
		return ErrRemovingCurrent
	}

	idx, ok := e.indexOf(id)
	if !ok {
		return ErrItemNotFound
	}

	e.items = append(e.items[:idx], e.items[idx+1:]...)
	return nil
}

func (e *Engine) Skip() {
	current := e.controller.VideoID()
	if current == "" {
		return
	}
	e.Advance(current)
}

// HandleEnded decides what follows the end of videoID.
func (e *Engine) HandleEnded(videoID string) {
	if e.repeat {
		e.controller.Play()
		return
	}
	e.Advance(videoID)
}

// Clear empties the queue without touching the player.
func (e *Engine) Clear() {
	e.items = nil
}

func (e *Engine) indexOf(id string) (int, bool) {
	for i, item := range e.items {
		if item.ID == id {
			return i, true
		}
	}
	return 0, false
}
