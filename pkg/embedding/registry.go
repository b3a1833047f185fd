package embedding

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownProvider is returned by Resolve for a name that was never registered.
var ErrUnknownProvider = errors.New("embedding: unknown provider")

// Registry is a closed set of embedding providers, assembled once at startup.
// Call sites resolve providers through it instead of string-matching inline.
type Registry struct {
	providers   map[string]Provider
	defaultName string
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under its own name. The first registered provider
// becomes the default until SetDefault is called.
func (r *Registry) Register(p Provider) {
	if r.defaultName == "" {
		r.defaultName = p.Name()
	}
	r.providers[p.Name()] = p
}

// SetDefault picks the provider returned by Default.
func (r *Registry) SetDefault(name string) error {
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	r.defaultName = name
	return nil
}

// Resolve returns the provider registered under name. An empty name resolves
// to the default provider.
func (r *Registry) Resolve(name string) (Provider, error) {
	if name == "" {
		name = r.defaultName
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Default returns the default provider.
func (r *Registry) Default() (Provider, error) {
	return r.Resolve("")
}

// Names lists the registered provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
