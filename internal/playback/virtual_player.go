package playback

import (
	"time"

	"github.com/sharetube/roomsync/internal/sched"
)

const (
	DefaultLoadDelay = 500 * time.Millisecond
	DefaultDuration  = 3 * time.Minute
)

type VirtualPlayerConfig struct {
	LoadDelay time.Duration
	Duration  time.Duration
}

// VirtualPlayer is a headless Player driven by the scheduler clock. Every
// video has the same duration unless overridden with SetDuration.
type VirtualPlayer struct {
	scheduler sched.Scheduler
	handler   PlayerHandler
	loadDelay time.Duration
	duration  time.Duration
	durations map[string]time.Duration

	videoID   string
	ready     bool
	playing   bool
	basePos   time.Duration
	startedAt time.Time
	volume    int

	cancelReady func()
	cancelEnd   func()
}

func NewVirtualPlayer(scheduler sched.Scheduler, cfg VirtualPlayerConfig) *VirtualPlayer {
	if cfg.LoadDelay < 0 {
		cfg.LoadDelay = 0
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}

	return &VirtualPlayer{
		scheduler: scheduler,
		loadDelay: cfg.LoadDelay,
		duration:  cfg.Duration,
		durations: make(map[string]time.Duration),
		volume:    DefaultVolume,
	}
}

func (p *VirtualPlayer) SetDuration(videoID string, d time.Duration) {
	p.durations[videoID] = d
}

func (p *VirtualPlayer) Attach(h PlayerHandler) {
	p.handler = h
}

func (p *VirtualPlayer) Load(videoID string) {
	p.reset()
	p.videoID = videoID

	p.cancelReady = p.scheduler.After(p.loadDelay, func() {
		p.cancelReady = nil
		p.ready = true
		if p.handler != nil {
			p.handler.OnReady(videoID)
		}
	})
}

func (p *VirtualPlayer) Unload() {
	p.reset()
}

func (p *VirtualPlayer) Play() {
	if !p.ready || p.playing {
		return
	}
	if p.basePos >= p.videoDuration() {
		p.basePos = 0
	}

	p.playing = true
	p.startedAt = p.scheduler.Now()
	p.scheduleEnd()
}

func (p *VirtualPlayer) Pause() {
	if !p.playing {
		return
	}

	p.basePos = p.position()
	p.playing = false
	p.cancelEndTimer()
}

func (p *VirtualPlayer) Seek(ms int64) {
	if !p.ready {
		return
	}

	pos := time.Duration(ms) * time.Millisecond
	pos = min(max(pos, 0), p.videoDuration())
	p.basePos = pos
	if p.playing {
		p.startedAt = p.scheduler.Now()
		p.scheduleEnd()
	}
}

func (p *VirtualPlayer) SetVolume(volume int) {
	p.volume = volume
}

func (p *VirtualPlayer) Volume() int {
	return p.volume
}

func (p *VirtualPlayer) Playing() bool {
	return p.playing
}

func (p *VirtualPlayer) CurrentTimeMs() int64 {
	if !p.ready {
		return 0
	}
	return p.position().Milliseconds()
}

func (p *VirtualPlayer) DurationMs() int64 {
	if !p.ready {
		return 0
	}
	return p.videoDuration().Milliseconds()
}

func (p *VirtualPlayer) position() time.Duration {
	pos := p.basePos
	if p.playing {
		pos += p.scheduler.Now().Sub(p.startedAt)
	}
	return min(pos, p.videoDuration())
}

func (p *VirtualPlayer) videoDuration() time.Duration {
	if d, ok := p.durations[p.videoID]; ok {
		return d
	}
	return p.duration
}

func (p *VirtualPlayer) scheduleEnd() {
	p.cancelEndTimer()

	videoID := p.videoID
	remaining := p.videoDuration() - p.basePos
	p.cancelEnd = p.scheduler.After(remaining, func() {
		p.cancelEnd = nil
		p.basePos = p.videoDuration()
		p.playing = false
		if p.handler != nil {
			p.handler.OnEnded(videoID)
		}
	})
}

func (p *VirtualPlayer) cancelEndTimer() {
	if p.cancelEnd != nil {
		p.cancelEnd()
		p.cancelEnd = nil
	}
}

func (p *VirtualPlayer) reset() {
	if p.cancelReady != nil {
		p.cancelReady()
		p.cancelReady = nil
	}
	p.cancelEndTimer()
	p.videoID = ""
	p.ready = false
	p.playing = false
	p.basePos = 0
}
