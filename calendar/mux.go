package calendar

import (
	"fmt"
	"sort"
	"sync"
)

// Mux holds the transports available to the application, by backend name.
type Mux struct {
	mu         sync.Mutex
	transports map[string]Transport
}

func NewMux() *Mux {
	return &Mux{
		transports: make(map[string]Transport),
	}
}

func (m *Mux) Get(backend string) (Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transports[backend]
	if !ok {
		return nil, fmt.Errorf("calendar backend %q is not implemented", backend)
	}
	return t, nil
}

func (m *Mux) Register(backend string, t Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transports[backend] = t
}

func (m *Mux) Backends() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.transports))
	for name := range m.transports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
