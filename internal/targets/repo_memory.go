package targets

import (
	"context"
	"sync"
)

// MemoryRepo is a simple in-memory repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu         sync.Mutex
	businesses map[string]Business
	contacts   map[string]Contact
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{businesses: map[string]Business{}, contacts: map[string]Contact{}}
}

func (r *MemoryRepo) PutBusiness(b Business) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.businesses[b.ID] = b
}

func (r *MemoryRepo) PutContact(c Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts[c.ID] = c
}

func (r *MemoryRepo) GetBusiness(ctx context.Context, id string) (Business, bool, error) {
	if id == "" {
		return Business{}, false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.businesses[id]
	return b, ok, nil
}

func (r *MemoryRepo) GetContact(ctx context.Context, id string) (Contact, bool, error) {
	if id == "" {
		return Contact{}, false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[id]
	return c, ok, nil
}

func (r *MemoryRepo) SetBusinessStatus(ctx context.Context, id string, status BusinessStatus) error {
	if id == "" || status == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.businesses[id]
	if !ok {
		return ErrNotFound
	}
	b.Status = status
	r.businesses[id] = b
	return nil
}

func (r *MemoryRepo) SetContactStatus(ctx context.Context, id string, status ContactStatus) error {
	if id == "" || status == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	r.contacts[id] = c
	return nil
}
