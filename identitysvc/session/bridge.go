// Package session bridges the identity provider and the views that depend on
// who is signed in.
package session

import (
	"context"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/sicatat/identitysvc"
)

// Observer receives every auth state change. u is nil after a sign-out.
type Observer func(ctx context.Context, u *identitysvc.User)

type subscription struct {
	id uint64
	fn Observer
}

// Bridge holds the current user of one session and fans state changes out to
// its observers.
type Bridge struct {
	id     string
	store  Store
	logger log.Logger

	mu        sync.Mutex
	user      *identitysvc.User
	observers []subscription
	nextID    uint64
}

func newBridge(id string, store Store, user *identitysvc.User, logger log.Logger) *Bridge {
	return &Bridge{id: id, store: store, user: user, logger: logger}
}

func (b *Bridge) ID() string { return b.id }

// CurrentUser returns a copy of the signed-in user, or nil.
func (b *Bridge) CurrentUser() *identitysvc.User {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.user == nil {
		return nil
	}
	u := *b.user
	return &u
}

// OnAuthStateChanged registers fn and calls it right away with the current
// state. The returned function unregisters fn; calling it more than once is
// harmless.
func (b *Bridge) OnAuthStateChanged(ctx context.Context, fn Observer) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.observers = append(b.observers, subscription{id, fn})
	user := b.user
	b.mu.Unlock()

	fn(ctx, copyUser(user))

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bridge) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.observers {
		if s.id == id {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			return
		}
	}
}

// Observers returns the number of live subscriptions.
func (b *Bridge) Observers() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.observers)
}

// SignIn persists u as this session's user and notifies observers.
func (b *Bridge) SignIn(ctx context.Context, u identitysvc.User) error {
	if u.Email == "" {
		return identitysvc.ErrInvalidArgument
	}
	if err := b.store.Put(b.id, u); err != nil {
		return err
	}

	b.mu.Lock()
	b.user = &u
	b.mu.Unlock()

	b.logger.Log("event", "sign_in", "session", b.id, "email", u.Email)
	b.notify(ctx, &u)
	return nil
}

// SignOut forgets the session's user and notifies observers with nil.
func (b *Bridge) SignOut(ctx context.Context) error {
	if err := b.store.Delete(b.id); err != nil {
		return err
	}

	b.mu.Lock()
	b.user = nil
	b.mu.Unlock()

	b.logger.Log("event", "sign_out", "session", b.id)
	b.notify(ctx, nil)
	return nil
}

func (b *Bridge) notify(ctx context.Context, u *identitysvc.User) {
	b.mu.Lock()
	observers := make([]subscription, len(b.observers))
	copy(observers, b.observers)
	b.mu.Unlock()

	for _, s := range observers {
		s.fn(ctx, copyUser(u))
	}
}

func copyUser(u *identitysvc.User) *identitysvc.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
