package service

import (
	"context"
	"errors"
	"sync"

	"github.com/septivank/youtilitics-worker/internal/db"
	"github.com/septivank/youtilitics-worker/internal/mq"
)

type memStore struct {
	mu      sync.Mutex
	getErr  error
	states  map[string]*db.EntityState
	samples map[string][]db.EntitySample
}

func newMemStore() *memStore {
	return &memStore{
		states:  make(map[string]*db.EntityState),
		samples: make(map[string][]db.EntitySample),
	}
}

func (s *memStore) GetEntityState(ctx context.Context, entityKey string) (*db.EntityState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	state, ok := s.states[entityKey]
	if !ok {
		return nil, nil
	}
	cp := *state
	return &cp, nil
}

func (s *memStore) UpsertEntityState(ctx context.Context, state *db.EntityState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *state
	s.states[state.EntityKey] = &cp
	return nil
}

func (s *memStore) UpsertSample(ctx context.Context, sample *db.EntitySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[sample.EntityKey] = append(s.samples[sample.EntityKey], *sample)
	return nil
}

func (s *memStore) setGetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getErr = err
}

func (s *memStore) state(key string) *db.EntityState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[key]
}

func (s *memStore) sampleCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples[key])
}

var errPublish = errors.New("channel closed")

type fakePublisher struct {
	mu     sync.Mutex
	fail   bool
	events []mq.SampleEvent
	keys   []string
}

func (p *fakePublisher) PublishSampleEvent(ctx context.Context, event mq.SampleEvent, routingKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errPublish
	}
	p.events = append(p.events, event)
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
