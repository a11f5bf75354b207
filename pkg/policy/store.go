package policy

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	// ErrNotFound is returned when no policy exists under the given name.
	ErrNotFound = errors.New("policy not found")
	// ErrAlreadyExists is returned on a duplicate policy name.
	ErrAlreadyExists = errors.New("policy already exists")
)

// Store holds the compiled policy set, keyed by name. A Replace swaps the
// whole set atomically so a file reload never exposes a half-loaded state.
type Store struct {
	logger *slog.Logger

	mu     sync.RWMutex
	byName map[string]*Policy
}

// NewStore creates an empty policy store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		logger: logger,
		byName: make(map[string]*Policy),
	}
}

// Create compiles a spec and adds it under its name.
func (s *Store) Create(spec Spec) (*Policy, error) {
	p, err := Compile(spec, s.logger)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[p.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, p.Name)
	}
	s.byName[p.Name] = p
	return p, nil
}

// Update recompiles a spec and replaces the policy of the same name.
func (s *Store) Update(name string, spec Spec) (*Policy, error) {
	spec.Name = name
	p, err := Compile(spec, s.logger)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	s.byName[name] = p
	return p, nil
}

// Get returns the policy with the given name.
func (s *Store) Get(name string) (*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p, nil
}

// Delete removes the policy with the given name.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(s.byName, name)
	return nil
}

// List returns all policies in evaluation order: descending priority,
// ties broken by name.
func (s *Store) List() []*Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policies := make([]*Policy, 0, len(s.byName))
	for _, p := range s.byName {
		policies = append(policies, p)
	}
	sort.Slice(policies, func(i, j int) bool {
		if policies[i].Priority != policies[j].Priority {
			return policies[i].Priority > policies[j].Priority
		}
		return policies[i].Name < policies[j].Name
	})
	return policies
}

// Replace compiles all specs and swaps them in as the complete policy
// set. On any compile error the store is left untouched.
func (s *Store) Replace(specs []Spec) error {
	next := make(map[string]*Policy, len(specs))
	for _, spec := range specs {
		p, err := Compile(spec, s.logger)
		if err != nil {
			return err
		}
		if _, ok := next[p.Name]; ok {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, p.Name)
		}
		next[p.Name] = p
	}

	s.mu.Lock()
	s.byName = next
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored policies.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byName)
}
