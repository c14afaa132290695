package tasks

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"sportsreg_app/internal/gateway"
	"sportsreg_app/internal/models"
	"sportsreg_app/internal/notify"
	"sportsreg_app/internal/repository"
)

// Deps carries the shared dependencies handlers need. One instance is built
// at worker startup and passed to every execution. Gateway may be nil when
// the worker runs without provider credentials.
type Deps struct {
	Store    repository.Store
	Notifier notify.Notifier
	Gateway  gateway.Gateway
	Log      *logrus.Logger
}

// TaskHandler executes one scheduled task run. The returned map is stored in
// the task history. Handlers must tolerate repeated execution; the worker
// guarantees at-least-once, not exactly-once.
type TaskHandler func(ctx context.Context, deps Deps, task models.ScheduledTask) (map[string]interface{}, error)

// Registry stores the mapping of task names to handlers
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]TaskHandler
}

// GlobalRegistry is the default global registry
var GlobalRegistry = &Registry{
	handlers: make(map[string]TaskHandler),
}

// Register adds a handler for a task name
func (r *Registry) Register(name string, handler TaskHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Get retrieves a handler for a task name
func (r *Registry) Get(name string) (TaskHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[name]
	return handler, ok
}

// RegisterHandler is a helper to register to the global registry
func RegisterHandler(name string, handler TaskHandler) {
	GlobalRegistry.Register(name, handler)
}

// GetHandler is a helper to get from the global registry
func GetHandler(name string) (TaskHandler, bool) {
	return GlobalRegistry.Get(name)
}
