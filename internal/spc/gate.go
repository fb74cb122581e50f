package spc

import "sync"

// Gate remembers admitted fingerprints. Admit is an atomic check-and-insert.
type Gate struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewGate returns an empty gate.
func NewGate() *Gate {
	return &Gate{seen: make(map[string]struct{})}
}

// Admit records fp and reports whether it was new.
func (g *Gate) Admit(fp string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[fp]; ok {
		return false
	}
	g.seen[fp] = struct{}{}
	return true
}

// Seed marks fingerprints as already admitted.
func (g *Gate) Seed(fps ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, fp := range fps {
		if fp != "" {
			g.seen[fp] = struct{}{}
		}
	}
}

// Contains reports whether fp was admitted.
func (g *Gate) Contains(fp string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.seen[fp]
	return ok
}

// Reset forgets every fingerprint.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = make(map[string]struct{})
}

// Len returns the number of admitted fingerprints.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
