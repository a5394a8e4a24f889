// Package pushrouter dispatches named server-push events to handlers.
package pushrouter

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrUnknownEvent = errors.New("unknown event")

type HandlerFunc func(ctx context.Context, payload []byte) error

type Middleware func(next HandlerFunc) HandlerFunc

type Router struct {
	mu          sync.RWMutex
	routes      map[string]HandlerFunc
	middlewares []Middleware
}

func New() *Router {
	return &Router{routes: make(map[string]HandlerFunc)}
}

// Use appends middlewares applied to handlers registered afterwards.
func (r *Router) Use(mws ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.middlewares = append(r.middlewares, mws...)
}

func (r *Router) Handle(eventName string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}
	r.routes[eventName] = handler
}

func (r *Router) Dispatch(ctx context.Context, eventName string, payload []byte) error {
	r.mu.RLock()
	handler, exists := r.routes[eventName]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, eventName)
	}

	return handler(context.WithValue(ctx, eventNameKey, eventName), payload)
}
