package redisstream

import (
	"context"
	"errors"
	"sync"

	"github.com/fairyhunter13/dtq/internal/domain"
)

// HandlerFunc executes one attempt of a task and returns the result document
// stored on the job. Returning an error schedules a retry or, once attempts
// are exhausted, routes the job to the dead letter queue.
type HandlerFunc func(ctx context.Context, payload domain.JobPayload) (map[string]any, error)

// Registry maps task types to handlers. Unknown task types fall back to the
// echo handler so synthetic and exploratory jobs always complete.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	fallback HandlerFunc
}

// NewRegistry returns a registry with the built-in echo handler installed.
func NewRegistry() *Registry {
	r := &Registry{
		handlers: make(map[string]HandlerFunc),
		fallback: echoHandler,
	}
	r.handlers["echo"] = echoHandler
	r.handlers["fail"] = failHandler
	return r
}

// Register installs or replaces the handler for a task type.
func (r *Registry) Register(taskType string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskType] = fn
}

// Resolve returns the handler for a task type, or the fallback.
func (r *Registry) Resolve(taskType string) HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.handlers[taskType]; ok {
		return fn
	}
	return r.fallback
}

func echoHandler(_ context.Context, payload domain.JobPayload) (map[string]any, error) {
	output := any("echo")
	if msg, ok := payload.Data["message"]; ok {
		output = msg
	}
	return map[string]any{"status": "success", "output": output}, nil
}

// failHandler fails every attempt; it exists to exercise the retry and dead
// letter paths from the UI and load tooling.
func failHandler(_ context.Context, payload domain.JobPayload) (map[string]any, error) {
	msg := "simulated failure"
	if m, ok := payload.Data["error"].(string); ok && m != "" {
		msg = m
	}
	return nil, errors.New(msg)
}
