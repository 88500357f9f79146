package session

import (
	"sync"

	"github.com/google/uuid"
)

// Identity holds the opaque per-session token attached to every upstream
// request. A missing token is regenerated instead of failing the session.
type Identity struct {
	mu    sync.Mutex
	token string
	gen   func() string
}

// NewIdentity creates an identity with a freshly generated token.
func NewIdentity() *Identity {
	id := &Identity{gen: func() string { return uuid.NewString() }}
	id.token = id.gen()
	return id
}

// NewIdentityWith wraps an existing token, e.g. one supplied by a client.
// An empty token is regenerated on first use.
func NewIdentityWith(token string) *Identity {
	return &Identity{token: token, gen: func() string { return uuid.NewString() }}
}

// Token returns the current token, generating one if it is absent.
func (i *Identity) Token() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.token == "" {
		i.token = i.gen()
	}
	return i.token
}

// Clear drops the token; the next Token call generates a new one.
func (i *Identity) Clear() {
	i.mu.Lock()
	i.token = ""
	i.mu.Unlock()
}
