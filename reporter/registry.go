package reporter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/imattdu/xtrace/errorx"
)

// Builder constructs a reporter from the shared config.
type Builder func(cfg Config) (Reporter, error)

// Registry maps reporter names, as used in configuration, to builders.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// DefaultRegistry holds the built-in reporters.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

func (r *Registry) Register(name string, b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = b
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.builders[name]
	return ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builders))
	for n := range r.builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build creates the reporter named by cfg.Name.
func (r *Registry) Build(cfg Config) (Reporter, error) {
	r.mu.RLock()
	b, ok := r.builders[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, errorx.New(errorx.ErrUnknownReporter,
			errorx.WithService(errorx.ServiceReporter),
			errorx.WithMessage(fmt.Sprintf("unknown reporter %q (registered: %v)", cfg.Name, r.Names())))
	}
	return b(cfg)
}

func Register(name string, b Builder) { DefaultRegistry.Register(name, b) }

func Build(cfg Config) (Reporter, error) { return DefaultRegistry.Build(cfg) }

func Names() []string { return DefaultRegistry.Names() }

func Has(name string) bool { return DefaultRegistry.Has(name) }

// builder adapts a concrete constructor so a failed build yields a nil
// interface rather than a typed nil.
func builder[R Reporter](ctor func(Config) (R, error)) Builder {
	return func(cfg Config) (Reporter, error) {
		r, err := ctor(cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}

func init() {
	Register("udp", builder(NewUDP))
	Register("tcp", builder(NewTCP))
	Register("http", builder(NewHTTP))
	Register("file", builder(NewFile))
	Register("pubsub", builder(NewPubSub))
	Register("memory", func(Config) (Reporter, error) { return NewMemory(), nil })
	Register("null", func(Config) (Reporter, error) { return NullReporter{}, nil })
}
