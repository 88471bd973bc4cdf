// Package stub provides a scriptable in-memory ledger.Source for tests
// and local development. Mutators mimic the contract's operations so a
// test can drive queue state between polling cycles.
package stub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"queue-market-watch/internal/domain"
)

// ErrQueueNotFound is returned when a queue id is unknown to the stub.
var ErrQueueNotFound = errors.New("queue not found")

// Source implements ledger.Source backed by in-memory state.
type Source struct {
	mu      sync.Mutex
	queues  map[uint32]domain.Queue
	tokens  map[uint32]domain.Snapshot
	failing map[uint32]error
	listErr error
}

// NewSource creates an empty stub source.
func NewSource() *Source {
	return &Source{
		queues:  make(map[uint32]domain.Queue),
		tokens:  make(map[uint32]domain.Snapshot),
		failing: make(map[uint32]error),
	}
}

// ListQueues returns every queue sorted by id.
func (s *Source) ListQueues(_ context.Context) ([]domain.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listErr != nil {
		return nil, s.listErr
	}

	queues := make([]domain.Queue, 0, len(s.queues))
	for _, q := range s.queues {
		q.TokenCount = uint32(len(s.tokens[q.QueueID]))
		queues = append(queues, q)
	}
	sort.Slice(queues, func(i, j int) bool { return queues[i].QueueID < queues[j].QueueID })
	return queues, nil
}

// ListTokens returns a copy of the queue's current snapshot.
func (s *Source) ListTokens(_ context.Context, queueID uint32) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failing[queueID]; ok {
		return nil, err
	}
	if _, ok := s.queues[queueID]; !ok {
		return nil, ErrQueueNotFound
	}
	return s.tokens[queueID].Clone(), nil
}

// SetQueue registers a queue. Existing tokens are preserved.
func (s *Source) SetQueue(queueID uint32, name, creator string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queues[queueID] = domain.Queue{QueueID: queueID, Name: name, Creator: creator}
	if _, ok := s.tokens[queueID]; !ok {
		s.tokens[queueID] = domain.Snapshot{}
	}
}

// Join appends a token owned by owner and returns its id.
func (s *Source) Join(queueID uint32, owner string) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.tokens[queueID]
	id := uint32(len(snap))
	s.tokens[queueID] = append(snap, domain.Token{TokenID: id, Owner: owner})
	return id
}

// List sets an asking price on the token.
func (s *Source) List(queueID, tokenID uint32, price uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.tokens[queueID]
	if int(tokenID) >= len(snap) {
		return fmt.Errorf("token %d not in queue %d", tokenID, queueID)
	}
	snap[tokenID].Price = price
	return nil
}

// Cancel removes the token's listing.
func (s *Source) Cancel(queueID, tokenID uint32) error {
	return s.List(queueID, tokenID, 0)
}

// Buy transfers the token to buyer and clears the listing.
func (s *Source) Buy(queueID, tokenID uint32, buyer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.tokens[queueID]
	if int(tokenID) >= len(snap) {
		return fmt.Errorf("token %d not in queue %d", tokenID, queueID)
	}
	snap[tokenID].Owner = buyer
	snap[tokenID].Price = 0
	return nil
}

// FailQueue makes ListTokens for the queue return err until cleared
// with a nil err.
func (s *Source) FailQueue(queueID uint32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.failing, queueID)
		return
	}
	s.failing[queueID] = err
}

// FailList makes ListQueues return err until cleared with a nil err.
func (s *Source) FailList(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}
