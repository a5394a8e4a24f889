package playback

// Player is the embedded video player. All methods are called on the event
// loop and must not block.
type Player interface {
	// Attach sets the receiver of readiness and end-of-track events.
	Attach(h PlayerHandler)
	Load(videoID string)
	Unload()
	Play()
	Pause()
	Seek(ms int64)
	SetVolume(volume int)
	CurrentTimeMs() int64
	DurationMs() int64
}

// PlayerHandler receives player events. Implementations expect to be called on
// the event loop.
type PlayerHandler interface {
	OnReady(videoID string)
	OnEnded(videoID string)
}

// Listener observes the controller.
type Listener interface {
	PlayerReady(videoID string)
	PlayerStateChanged(status Status)
}
