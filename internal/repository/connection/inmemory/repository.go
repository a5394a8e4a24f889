package inmemory

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/sharetube/roomsync/internal/repository/connection"
	"golang.org/x/exp/maps"
)

// repo holds at most one push stream per viewer.
type repo struct {
	conns  map[string]connection.Conn
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		conns:  make(map[string]connection.Conn),
		logger: logger,
	}
}

// Add registers conn for email and returns the stream it replaced, if any.
func (r *repo) Add(email string, conn connection.Conn) connection.Conn {
	funcName := "connection.inmemory.Add"
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Debug(funcName, "email", email, "conn_id", conn.ID())
	prev := r.conns[email]
	r.conns[email] = conn

	return prev
}

// Remove drops the stream registered for email, but only when it is still the
// one identified by id. A newer stream for the same viewer stays.
func (r *repo) Remove(email, id string) error {
	funcName := "connection.inmemory.Remove"
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Debug(funcName, "email", email, "conn_id", id)
	conn, ok := r.conns[email]
	if !ok || conn.ID() != id {
		r.logger.Debug(funcName, "error", connection.ErrNotFound)
		return connection.ErrNotFound
	}

	delete(r.conns, email)
	return nil
}

func (r *repo) Get(email string) (connection.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[email]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}

func (r *repo) Emails() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	emails := maps.Keys(r.conns)
	slices.Sort(emails)
	return emails
}

func (r *repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
