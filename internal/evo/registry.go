package evo

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrOperatorExists   = errors.New("operator already registered")
	ErrOperatorNotFound = errors.New("operator not found")
)

var recombinatorRegistry = struct {
	mu sync.RWMutex
	m  map[string]Recombinator
}{
	m: map[string]Recombinator{
		"uniform":   UniformCrossover{},
		"two_point": TwoPointCrossover{},
	},
}

// RegisterRecombinator makes a recombinator available to ResolveRecombinator
// under name.
func RegisterRecombinator(name string, r Recombinator) error {
	if name == "" {
		return errors.New("operator name is required")
	}
	if r == nil {
		return errors.New("operator is required")
	}

	recombinatorRegistry.mu.Lock()
	defer recombinatorRegistry.mu.Unlock()

	if _, exists := recombinatorRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrOperatorExists, name)
	}
	recombinatorRegistry.m[name] = r
	return nil
}

// ResolveRecombinator maps a configuration name to an operator. The empty
// name selects uniform crossover.
func ResolveRecombinator(name string) (Recombinator, error) {
	if name == "" {
		name = "uniform"
	}
	recombinatorRegistry.mu.RLock()
	r, ok := recombinatorRegistry.m[name]
	recombinatorRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, name)
	}
	return r, nil
}

func ListRecombinators() []string {
	recombinatorRegistry.mu.RLock()
	defer recombinatorRegistry.mu.RUnlock()

	names := make([]string, 0, len(recombinatorRegistry.m))
	for name := range recombinatorRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func unregisterRecombinatorForTests(name string) {
	recombinatorRegistry.mu.Lock()
	defer recombinatorRegistry.mu.Unlock()
	delete(recombinatorRegistry.m, name)
}
