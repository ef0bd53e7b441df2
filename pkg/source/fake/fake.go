// Package fake provides an in-memory Source implementation for testing.
package fake

import (
	"context"
	"sync"

	"github.com/bkero/ec2-route53-sync/pkg/source"
)

// Source is a fake implementation of source.Source backed by a fixed set of
// intents keyed by instance ID.
type Source struct {
	mu      sync.Mutex
	intents []*source.Intent
	err     error
	lookups [][]string
}

// New returns a fake Source pre-loaded with the given intents.
func New(intents []*source.Intent) *Source {
	return &Source{intents: intents}
}

// Intents returns the configured intents whose instance ID is in ids, in the
// order they were configured.
func (s *Source) Intents(_ context.Context, ids []string) ([]*source.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups = append(s.lookups, append([]string(nil), ids...))
	if s.err != nil {
		return nil, &source.InventoryLookupError{Err: s.err}
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := []*source.Intent{}
	for _, in := range s.intents {
		if want[in.InstanceID] {
			out = append(out, in)
		}
	}
	return out, nil
}

// TaggedIntents returns every configured intent.
func (s *Source) TaggedIntents(_ context.Context) ([]*source.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, &source.InventoryLookupError{Err: s.err}
	}
	out := make([]*source.Intent, len(s.intents))
	copy(out, s.intents)
	return out, nil
}

// SetIntents replaces the configured intents.
func (s *Source) SetIntents(intents []*source.Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents = intents
}

// SetError makes subsequent lookups fail with err (nil clears it).
func (s *Source) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Lookups returns the instance ID lists passed to Intents, oldest first.
func (s *Source) Lookups() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.lookups))
	copy(out, s.lookups)
	return out
}
