package policy

import "sync"

// Store holds the active Configuration per identity. Entries are created
// on first reference and persist until Reset. Replace swaps the whole
// snapshot under the lock, so a turn that captured a Configuration at
// admission keeps seeing that one value for its whole duration while the
// very next lookup observes the new one.
type Store struct {
	mu         sync.RWMutex
	byIdentity map[string]*Configuration
	defaults   *Configuration
}

// NewStore creates a Store that serves the given defaults for identities
// without an explicit configuration. A nil defaults falls back to Default().
func NewStore(defaults *Configuration) *Store {
	if defaults == nil {
		defaults = Default()
	}
	return &Store{
		byIdentity: make(map[string]*Configuration),
		defaults:   defaults,
	}
}

// Get returns the active snapshot for an identity. The returned value
// must be treated as read-only; use Clone before modifying.
func (s *Store) Get(identity string) *Configuration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cfg, ok := s.byIdentity[identity]; ok {
		return cfg
	}
	return s.defaults
}

// Replace installs cfg as the active configuration for an identity.
func (s *Store) Replace(identity string, cfg *Configuration) {
	if cfg == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byIdentity[identity] = cfg
}

// Reset drops the identity's configuration, reverting it to defaults.
func (s *Store) Reset(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byIdentity, identity)
}
