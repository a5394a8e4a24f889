// Package reconnect supervises the push channel: it reopens it after failures
// while following and replays the room join whenever the relay confirms a new
// connection.
package reconnect

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sharetube/roomsync/internal/membership"
	"github.com/sharetube/roomsync/internal/push"
	"github.com/sharetube/roomsync/internal/sched"
)

const (
	DefaultRetryDelay       = 3 * time.Second
	DefaultHeartbeatTimeout = 120 * time.Second
)

var ErrHeartbeatTimeout = errors.New("no heartbeat received")

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "DISCONNECTED"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Opener interface {
	Open(onEvent func(push.Event), onClose func(error)) (closeFn func())
}

type Roles interface {
	Role() membership.Role
	OwnerEmail() string
}

type Dispatcher interface {
	Dispatch(ctx context.Context, eventName string, payload []byte) error
}

type Config struct {
	RetryDelay       time.Duration
	HeartbeatTimeout time.Duration
}

// Manager must only be used from the event loop. post hands callbacks from the
// stream goroutine back to the loop.
type Manager struct {
	opener     Opener
	scheduler  sched.Scheduler
	post       func(func()) bool
	roles      Roles
	dispatcher Dispatcher
	rejoin     func(ownerEmail string)
	logger     *slog.Logger

	retryDelay       time.Duration
	heartbeatTimeout time.Duration

	state          State
	generation     uint64
	closeStream    func()
	cancelRetry    func()
	cancelLiveness func()
}

func NewManager(
	opener Opener,
	scheduler sched.Scheduler,
	post func(func()) bool,
	roles Roles,
	dispatcher Dispatcher,
	rejoin func(ownerEmail string),
	logger *slog.Logger,
	cfg Config,
) *Manager {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = DefaultHeartbeatTimeout
	}

	return &Manager{
		opener:           opener,
		scheduler:        scheduler,
		post:             post,
		roles:            roles,
		dispatcher:       dispatcher,
		rejoin:           rejoin,
		logger:           logger,
		retryDelay:       cfg.RetryDelay,
		heartbeatTimeout: cfg.HeartbeatTimeout,
	}
}

func (m *Manager) State() State {
	return m.state
}

// Generation identifies the current connection attempt.
func (m *Manager) Generation() uint64 {
	return m.generation
}

func (m *Manager) Start() {
	if m.state == StateDisconnected {
		m.connect()
	}
}

// Ensure opens the channel if it is down. A pending retry is superseded.
func (m *Manager) Ensure() {
	if m.state != StateDisconnected {
		return
	}
	m.stopRetry()
	m.connect()
}

func (m *Manager) Close() {
	if m.state == StateClosed {
		return
	}

	m.generation++
	m.state = StateClosed
	m.stopRetry()
	m.stopLiveness()
	m.stopStream()
	m.logger.Info("push channel closed")
}

func (m *Manager) connect() {
	m.stopStream()
	m.generation++
	gen := m.generation
	m.state = StateConnecting
	m.logger.Info("opening push channel", "generation", gen)

	m.closeStream = m.opener.Open(
		func(ev push.Event) {
			m.post(func() { m.onEvent(gen, ev) })
		},
		func(err error) {
			m.post(func() { m.onError(gen, err) })
		},
	)
	m.armLiveness(gen)
}

func (m *Manager) onEvent(gen uint64, ev push.Event) {
	if gen != m.generation || m.state == StateClosed {
		return
	}

	m.armLiveness(gen)

	if ev.Name == push.EventConnect {
		m.state = StateConnected
		m.logger.Info("push channel connected", "connection_id", string(ev.Data))
		if m.roles.Role() == membership.RoleFollower {
			owner := m.roles.OwnerEmail()
			m.logger.Info("rejoining room after connect", "owner_email", owner)
			m.rejoin(owner)
		}
	}

	if err := m.dispatcher.Dispatch(context.Background(), ev.Name, ev.Data); err != nil {
		m.logger.Debug("push event not handled", "event", ev.Name, "error", err)
	}
}

func (m *Manager) onError(gen uint64, err error) {
	if gen != m.generation || (m.state != StateConnecting && m.state != StateConnected) {
		return
	}

	m.logger.Warn("push channel failed", "error", err, "generation", gen)
	m.stopLiveness()
	m.stopStream()
	m.state = StateDisconnected

	if m.roles.Role() != membership.RoleFollower {
		return
	}
	if m.cancelRetry != nil {
		return
	}

	m.logger.Info("scheduling push channel retry", "delay", m.retryDelay.String())
	m.cancelRetry = m.scheduler.After(m.retryDelay, func() {
		m.cancelRetry = nil
		if m.state == StateDisconnected {
			m.connect()
		}
	})
}

func (m *Manager) armLiveness(gen uint64) {
	m.stopLiveness()
	m.cancelLiveness = m.scheduler.After(m.heartbeatTimeout, func() {
		m.cancelLiveness = nil
		m.onError(gen, ErrHeartbeatTimeout)
	})
}

func (m *Manager) stopLiveness() {
	if m.cancelLiveness != nil {
		m.cancelLiveness()
		m.cancelLiveness = nil
	}
}

func (m *Manager) stopRetry() {
	if m.cancelRetry != nil {
		m.cancelRetry()
		m.cancelRetry = nil
	}
}

func (m *Manager) stopStream() {
	if m.closeStream != nil {
		m.closeStream()
		m.closeStream = nil
	}
}
