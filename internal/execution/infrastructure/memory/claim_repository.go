package memory

import (
	"context"
	"errors"
	"sync"
)

// ClaimRepository is an in-memory posting guard for tests.
type ClaimRepository struct {
	mu     sync.Mutex
	claims map[string]struct{}
}

// NewClaimRepository constructs an empty repository.
func NewClaimRepository() *ClaimRepository {
	return &ClaimRepository{claims: make(map[string]struct{})}
}

// Claim takes the posting claim for a line.
func (r *ClaimRepository) Claim(ctx context.Context, lineID string) (bool, error) {
	_ = ctx
	if lineID == "" {
		return false, errors.New("claim repo: empty line id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.claims[lineID]; held {
		return false, nil
	}
	r.claims[lineID] = struct{}{}
	return true, nil
}

// Release frees a claim.
func (r *ClaimRepository) Release(ctx context.Context, lineID string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.claims, lineID)
	return nil
}

// Held reports whether a claim is currently held.
func (r *ClaimRepository) Held(lineID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, held := r.claims[lineID]
	return held
}
