package syncer

import (
	"log/slog"

	"github.com/sharetube/roomsync/internal/membership"
	"github.com/sharetube/roomsync/internal/playback"
)

const DefaultDriftToleranceMs = 2000

type Controller interface {
	Status() playback.Status
	VideoID() string
	Snapshot() playback.State
	Load(videoID string)
	Unload()
	Play()
	Pause()
	Seek(ms int64)
}

// Receiver reconciles the local controller with the last state pushed by the
// followed owner.
type Receiver struct {
	controller  Controller
	roles       Roles
	toleranceMs int64
	logger      *slog.Logger

	last *playback.State
}

func NewReceiver(controller Controller, roles Roles, toleranceMs int64, logger *slog.Logger) *Receiver {
	if toleranceMs <= 0 {
		toleranceMs = DefaultDriftToleranceMs
	}

	return &Receiver{
		controller:  controller,
		roles:       roles,
		toleranceMs: toleranceMs,
		logger:      logger,
	}
}

// Apply reconciles against state when it comes from the followed owner and
// reports whether it was accepted.
func (r *Receiver) Apply(state playback.State) bool {
	if r.roles.Role() != membership.RoleFollower {
		return false
	}
	if state.OwnerEmail == "" || state.OwnerEmail != r.roles.OwnerEmail() {
		r.logger.Debug("discarding state from another owner",
			"from", state.OwnerEmail,
			"following", r.roles.OwnerEmail(),
		)
		return false
	}

	state = state.Normalize()
	r.last = &state
	r.reconcile()

	return true
}

// Last is the most recent accepted state.
func (r *Receiver) Last() (playback.State, bool) {
	if r.last == nil {
		return playback.State{}, false
	}
	return *r.last, true
}

// Reset forgets the last state, e.g. when the followed room changes.
func (r *Receiver) Reset() {
	r.last = nil
}

func (r *Receiver) PlayerReady(string) {
	if r.last == nil || r.roles.Role() != membership.RoleFollower {
		return
	}
	r.reconcile()
}

func (r *Receiver) PlayerStateChanged(playback.Status) {}

func (r *Receiver) reconcile() {
	target := *r.last

	if target.Idle() {
		if r.controller.Status() != playback.StatusEmpty {
			r.controller.Unload()
		}
		return
	}

	if target.VideoID != r.controller.VideoID() {
		r.logger.Debug("following owner to new video", "video_id", target.VideoID)
		r.controller.Load(target.VideoID)
		return
	}

	status := r.controller.Status()
	if !status.Ready() {
		return
	}

	if target.IsPlaying && status != playback.StatusPlaying {
		r.controller.Play()
	}
	if !target.IsPlaying && status == playback.StatusPlaying {
		r.controller.Pause()
	}

	local := r.controller.Snapshot().ProgressMs
	drift := local - target.ProgressMs
	if drift < 0 {
		drift = -drift
	}
	if drift > r.toleranceMs {
		r.logger.Debug("correcting drift", "drift_ms", drift, "target_ms", target.ProgressMs)
		r.controller.Seek(target.ProgressMs)
	}
}
