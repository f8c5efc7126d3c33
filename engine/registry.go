package engine

import "github.com/brrr-dev/brrr/codec"

// Registry accumulates named task handlers before a Client/Worker is
// built, a builder that collects registrations up front rather than a
// package-level side-registry.
type Registry struct {
	tasks map[string]codec.HandlerFunc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]codec.HandlerFunc)}
}

// Register binds name to handler. Registering the same name twice
// overwrites the previous handler — useful for tests that patch a task,
// but a sign of a config error in production use.
func (r *Registry) Register(name string, handler codec.HandlerFunc) *Registry {
	r.tasks[name] = handler
	return r
}

// Handler looks up a registered handler by task name.
func (r *Registry) Handler(name string) (codec.HandlerFunc, bool) {
	h, ok := r.tasks[name]
	return h, ok
}

// Names returns every registered task name, for CLI introspection
// (`brrr list`).
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	return names
}
