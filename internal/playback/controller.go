// Package playback wraps the embedded player in a state machine that queues
// commands until the player is ready and reports what it does to a listener.
package playback

import (
	"log/slog"
	"time"

	"github.com/sharetube/roomsync/internal/sched"
	"github.com/sharetube/roomsync/pkg/ytvideodata"
)

const (
	DefaultPollInterval = time.Second
	DefaultVolume       = 100
)

type intent struct {
	play *bool
	seek *int64
}

type Controller struct {
	player       Player
	scheduler    sched.Scheduler
	listener     Listener
	logger       *slog.Logger
	pollInterval time.Duration

	status     Status
	videoID    string
	progressMs int64
	durationMs int64
	volume     int
	pending    intent
	stopPoll   func()
	closed     bool
}

type Config struct {
	PollInterval time.Duration
}

// NewController attaches itself to player. The listener may be set later with
// SetListener, before any command is issued.
func NewController(player Player, scheduler sched.Scheduler, logger *slog.Logger, cfg Config) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	c := &Controller{
		player:       player,
		scheduler:    scheduler,
		logger:       logger,
		pollInterval: cfg.PollInterval,
		volume:       DefaultVolume,
		listener:     nopListener{},
	}
	player.Attach(c)

	return c
}

func (c *Controller) SetListener(l Listener) {
	if l == nil {
		l = nopListener{}
	}
	c.listener = l
}

func (c *Controller) Status() Status {
	return c.status
}

func (c *Controller) VideoID() string {
	return c.videoID
}

func (c *Controller) Volume() int {
	return c.volume
}

func (c *Controller) DurationMs() int64 {
	return c.durationMs
}

// Snapshot returns the local playback anchor. OwnerEmail is left empty.
func (c *Controller) Snapshot() State {
	if !c.closed && (c.status == StatusPlaying || c.status == StatusPaused) {
		c.progressMs = c.player.CurrentTimeMs()
	}

	playing := c.status == StatusPlaying
	if c.status == StatusLoading && c.pending.play != nil {
		playing = *c.pending.play
	}

	return State{
		VideoID:    c.videoID,
		IsPlaying:  playing,
		ProgressMs: c.progressMs,
	}.Normalize()
}

// Load switches to videoID and starts playing once the player is ready.
// An invalid id unloads.
func (c *Controller) Load(videoID string) {
	if c.closed {
		return
	}
	if !ytvideodata.ValidID(videoID) {
		if videoID != "" {
			c.logger.Warn("refusing to load invalid video id", "video_id", videoID)
		}
		c.Unload()
		return
	}

	c.cancelPoll()
	play := true
	c.pending = intent{play: &play}
	c.videoID = videoID
	c.progressMs = 0
	c.durationMs = 0
	c.status = StatusLoading

	c.logger.Debug("loading video", "video_id", videoID)
	c.player.Load(videoID)
	c.listener.PlayerStateChanged(c.status)
}

func (c *Controller) Unload() {
	if c.closed || c.status == StatusEmpty {
		return
	}

	c.cancelPoll()
	c.player.Unload()
	c.pending = intent{}
	c.videoID = ""
	c.progressMs = 0
	c.durationMs = 0
	c.status = StatusEmpty

	c.logger.Debug("player unloaded")
	c.listener.PlayerStateChanged(c.status)
}

func (c *Controller) Play() {
	if c.closed {
		return
	}

	switch c.status {
	case StatusLoading:
		play := true
		c.pending.play = &play
	case StatusEnded:
		c.player.Seek(0)
		c.progressMs = 0
		c.startPlaying()
	case StatusPaused:
		c.startPlaying()
	}
}

func (c *Controller) Pause() {
	if c.closed {
		return
	}

	switch c.status {
	case StatusLoading:
		play := false
		c.pending.play = &play
	case StatusPlaying:
		c.cancelPoll()
		c.player.Pause()
		c.progressMs = c.player.CurrentTimeMs()
		c.status = StatusPaused
		c.listener.PlayerStateChanged(c.status)
	}
}

func (c *Controller) Seek(ms int64) {
	if c.closed {
		return
	}
	if ms < 0 {
		ms = 0
	}
	if c.durationMs > 0 && ms > c.durationMs {
		ms = c.durationMs
	}

	switch c.status {
	case StatusLoading:
		c.pending.seek = &ms
	case StatusPlaying, StatusPaused, StatusEnded:
		c.player.Seek(ms)
		c.progressMs = ms
		if c.status == StatusEnded {
			c.status = StatusPaused
		}
		c.listener.PlayerStateChanged(c.status)
	}
}

// SetVolume clamps to 0..100. It is applied when the player becomes ready if
// nothing is loaded yet.
func (c *Controller) SetVolume(volume int) {
	volume = min(max(volume, 0), 100)
	c.volume = volume
	if c.status.Ready() {
		c.player.SetVolume(volume)
	}
}

// OnReady implements PlayerHandler.
func (c *Controller) OnReady(videoID string) {
	if c.closed {
		return
	}
	if c.status != StatusLoading || videoID != c.videoID {
		c.logger.Debug("ignoring stale ready event", "video_id", videoID, "current", c.videoID)
		return
	}

	c.durationMs = c.player.DurationMs()
	c.player.SetVolume(c.volume)
	c.status = StatusPaused

	pending := c.pending
	c.pending = intent{}
	if pending.seek != nil {
		seek := *pending.seek
		if c.durationMs > 0 && seek > c.durationMs {
			seek = c.durationMs
		}
		c.player.Seek(seek)
		c.progressMs = seek
	}
	if pending.play != nil && *pending.play {
		c.player.Play()
		c.status = StatusPlaying
		c.startPoll()
	}

	c.logger.Debug("player ready", "video_id", videoID, "status", c.status.String())
	c.listener.PlayerReady(videoID)
	c.listener.PlayerStateChanged(c.status)
}

// OnEnded implements PlayerHandler.
func (c *Controller) OnEnded(videoID string) {
	if c.closed || videoID != c.videoID || !c.status.Ready() || c.status == StatusEnded {
		return
	}

	c.cancelPoll()
	c.progressMs = c.durationMs
	c.status = StatusEnded

	c.logger.Debug("video ended", "video_id", videoID)
	c.listener.PlayerStateChanged(c.status)
}

// Close stops the progress poll, unloads the player and detaches from it.
// The controller keeps its last status but ignores later commands and player
// events.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.Snapshot()
	c.closed = true

	c.cancelPoll()
	c.player.Unload()
	c.player.Attach(nil)
	c.listener = nopListener{}
	c.pending = intent{}
}

func (c *Controller) startPlaying() {
	c.player.Play()
	c.status = StatusPlaying
	c.startPoll()
	c.listener.PlayerStateChanged(c.status)
}

func (c *Controller) startPoll() {
	if c.closed || c.stopPoll != nil {
		return
	}
	c.stopPoll = c.scheduler.Every(c.pollInterval, c.poll)
}

func (c *Controller) cancelPoll() {
	if c.stopPoll != nil {
		c.stopPoll()
		c.stopPoll = nil
	}
}

func (c *Controller) poll() {
	if c.status != StatusPlaying {
		return
	}
	c.progressMs = c.player.CurrentTimeMs()
}

type nopListener struct{}

func (nopListener) PlayerReady(string)        {}
func (nopListener) PlayerStateChanged(Status) {}
