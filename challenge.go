package authkit

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	errChallengeNotFound = errors.New("login challenge not found")
	errChallengeExpired  = errors.New("login challenge expired")
	errChallengeBackend  = errors.New("login challenge backend unavailable")
)

// loginChallenge is the server-side half of a password-verified login
// that still owes its second factor.
type loginChallenge struct {
	AccountID string
	ExpiresAt int64
	Attempts  uint16
}

// challengeStore holds pending two-factor login challenges. RecordFailure
// must be atomic: it increments the attempt count and reports whether
// the cap was reached, deleting the challenge when it was.
type challengeStore interface {
	Save(ctx context.Context, challengeID string, record *loginChallenge, ttl time.Duration) error
	Get(ctx context.Context, challengeID string) (*loginChallenge, error)
	Delete(ctx context.Context, challengeID string) (bool, error)
	RecordFailure(ctx context.Context, challengeID string, maxAttempts int) (bool, error)
}

// memoryChallengeStore is the single-process default used when no
// redis client is configured.
type memoryChallengeStore struct {
	mu      sync.Mutex
	records map[string]*loginChallenge
	clock   func() time.Time
}

func newMemoryChallengeStore(clock func() time.Time) *memoryChallengeStore {
	if clock == nil {
		clock = time.Now
	}
	return &memoryChallengeStore{
		records: make(map[string]*loginChallenge),
		clock:   clock,
	}
}

func (s *memoryChallengeStore) Save(_ context.Context, challengeID string, record *loginChallenge, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.records[challengeID] = &cp
	return nil
}

func (s *memoryChallengeStore) Get(_ context.Context, challengeID string) (*loginChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[challengeID]
	if !ok {
		return nil, errChallengeNotFound
	}
	if s.clock().Unix() > record.ExpiresAt {
		delete(s.records, challengeID)
		return nil, errChallengeExpired
	}
	cp := *record
	return &cp, nil
}

func (s *memoryChallengeStore) Delete(_ context.Context, challengeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[challengeID]
	delete(s.records, challengeID)
	return ok, nil
}

func (s *memoryChallengeStore) RecordFailure(_ context.Context, challengeID string, maxAttempts int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[challengeID]
	if !ok {
		return false, errChallengeNotFound
	}
	if s.clock().Unix() > record.ExpiresAt {
		delete(s.records, challengeID)
		return false, errChallengeExpired
	}
	record.Attempts++
	if int(record.Attempts) >= maxAttempts {
		delete(s.records, challengeID)
		return true, nil
	}
	return false, nil
}
