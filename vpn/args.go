package vpn

import "sync"

// Args holds the credentials of one connection attempt, keyed by the
// common.Credential* names.
type Args struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewArgs creates an empty Args.
func NewArgs() *Args {
	return &Args{values: make(map[string]string)}
}

// Lookup returns the value for key, or fallback if it is unset.
func (a *Args) Lookup(key, fallback string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if v, ok := a.values[key]; ok {
		return v
	}
	return fallback
}

// Take returns the value for key and removes it.
func (a *Args) Take(key string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.values[key]
	delete(a.values, key)
	return v, ok
}

// Set stores value under key. An empty value removes the key.
func (a *Args) Set(key, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if value == "" {
		delete(a.values, key)
		return
	}
	a.values[key] = value
}

// Remove deletes key.
func (a *Args) Remove(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.values, key)
}

// Contains reports whether key is set.
func (a *Args) Contains(key string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.values[key]
	return ok
}
