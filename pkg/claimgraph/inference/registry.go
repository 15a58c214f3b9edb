package inference

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/randalmurphal/claimgraph/pkg/claimgraph"
)

// ErrUnknownBackend is returned by Open for an unregistered name.
var ErrUnknownBackend = errors.New("unknown inference backend")

// Factory builds a backend from its settings.
type Factory func(Settings) (claimgraph.Inferencer, error)

// Backend names registered by this package.
const (
	BackendMock  = "mock"
	BackendRules = "rules"
	BackendLLM   = "llm"
)

var backends = struct {
	mu        sync.RWMutex
	factories map[string]Factory
}{factories: map[string]Factory{}}

func init() {
	Register(BackendMock, openMock)
	Register(BackendRules, openRules)
	Register(BackendLLM, openLLM)
}

// Register adds or replaces the factory for name.
func Register(name string, f Factory) {
	backends.mu.Lock()
	defer backends.mu.Unlock()
	backends.factories[name] = f
}

// Open builds the backend registered under name.
func Open(name string, s Settings) (claimgraph.Inferencer, error) {
	backends.mu.RLock()
	f, ok := backends.factories[name]
	backends.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownBackend, name, Backends())
	}
	inf, err := f(s)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", name, err)
	}
	return inf, nil
}

// Backends returns the registered names, sorted.
func Backends() []string {
	backends.mu.RLock()
	defer backends.mu.RUnlock()
	names := make([]string, 0, len(backends.factories))
	for name := range backends.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
