package connectors

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the configured connectors keyed by source code
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

// NewRegistry creates an empty connector registry
func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]Connector),
	}
}

// Register adds a connector. Registering a duplicate source code is a
// configuration bug and returns an error rather than silently replacing.
func (r *Registry) Register(c Connector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := c.Source().Code
	if code == "" {
		return fmt.Errorf("connector has empty source code")
	}
	if _, exists := r.connectors[code]; exists {
		return fmt.Errorf("connector %s already registered", code)
	}
	r.connectors[code] = c
	return nil
}

// Get returns the connector for a source code
func (r *Registry) Get(code string) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.connectors[code]
	return c, ok
}

// Codes returns every registered source code in stable order
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]string, 0, len(r.connectors))
	for code := range r.connectors {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// All returns every registered connector in stable code order
func (r *Registry) All() []Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]string, 0, len(r.connectors))
	for code := range r.connectors {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	all := make([]Connector, 0, len(codes))
	for _, code := range codes {
		all = append(all, r.connectors[code])
	}
	return all
}
