package identity

import (
	"context"
	"sync"
	"time"
)

var _ Gateway = (*MemoryGateway)(nil)

// MemoryGateway implements Gateway in memory for tests and the DSN-less
// development mode.
type MemoryGateway struct {
	mu      sync.RWMutex
	byID    map[string]*Identity
	byEmail map[string]string
	resets  map[string]*ResetToken
	now     func() time.Time
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		byID:    make(map[string]*Identity),
		byEmail: make(map[string]string),
		resets:  make(map[string]*ResetToken),
		now:     time.Now,
	}
}

func (g *MemoryGateway) Create(ctx context.Context, id, email, passwordHash string) (*Identity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.byEmail[email]; ok {
		return nil, ErrAlreadyExists
	}
	if _, ok := g.byID[id]; ok {
		return nil, ErrAlreadyExists
	}
	now := g.now().UTC()
	ident := &Identity{ID: id, Email: email, PasswordHash: passwordHash, CreatedAt: now, UpdatedAt: now}
	g.byID[id] = ident
	g.byEmail[email] = id
	cp := *ident
	return &cp, nil
}

func (g *MemoryGateway) Find(ctx context.Context, id string) (*Identity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ident, ok := g.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ident
	return &cp, nil
}

func (g *MemoryGateway) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g.byID[id]
	return &cp, nil
}

func (g *MemoryGateway) UpdateEmail(ctx context.Context, id, email string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ident, ok := g.byID[id]
	if !ok {
		return ErrNotFound
	}
	if owner, taken := g.byEmail[email]; taken && owner != id {
		return ErrAlreadyExists
	}
	delete(g.byEmail, ident.Email)
	ident.Email = email
	ident.UpdatedAt = g.now().UTC()
	g.byEmail[email] = id
	return nil
}

func (g *MemoryGateway) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ident, ok := g.byID[id]
	if !ok {
		return ErrNotFound
	}
	ident.PasswordHash = passwordHash
	ident.UpdatedAt = g.now().UTC()
	return nil
}

func (g *MemoryGateway) Delete(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ident, ok := g.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(g.byEmail, ident.Email)
	delete(g.byID, id)
	return nil
}

func (g *MemoryGateway) CreateResetToken(ctx context.Context, userID string, ttl time.Duration) (*ResetToken, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rt := &ResetToken{
		Token:     newResetToken(),
		UserID:    userID,
		ExpiresAt: g.now().UTC().Add(ttl),
	}
	g.resets[rt.Token] = rt
	cp := *rt
	return &cp, nil
}

func (g *MemoryGateway) ConsumeResetToken(ctx context.Context, token string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rt, ok := g.resets[token]
	if !ok {
		return "", ErrNotFound
	}
	delete(g.resets, token)
	if g.now().UTC().After(rt.ExpiresAt) {
		return "", ErrTokenExpired
	}
	return rt.UserID, nil
}
