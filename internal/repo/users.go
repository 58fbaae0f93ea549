// Package repo holds the relay's concurrent user/group/contact-request
// repositories. All mutation goes through map-level atomic operations
// (LoadOrStore, CompareAndDelete) rather than a lock held across a wider
// critical section, per spec.md §5/§9.
package repo

import (
	"sync"
	"time"
)

// UserInfo is a registered user. Contacts, Username, LastLogin and
// PublicKey are mutable after creation and are guarded by mu; ID never
// changes once assigned.
type UserInfo struct {
	mu        sync.RWMutex
	ID        int32
	username  string
	contacts  map[int32]struct{}
	lastLogin time.Time
	publicKey []byte
}

// NewUserInfo creates a user with the given id and pseudo.
func NewUserInfo(id int32, username string) *UserInfo {
	return &UserInfo{
		ID:        id,
		username:  username,
		contacts:  make(map[int32]struct{}),
		lastLogin: time.Now(),
	}
}

// Username returns the user's current display name.
func (u *UserInfo) Username() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.username
}

// SetUsername updates the display name.
func (u *UserInfo) SetUsername(name string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.username = name
}

// LastLogin returns the last time this user identified a connection.
func (u *UserInfo) LastLogin() time.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.lastLogin
}

// Touch updates LastLogin to now.
func (u *UserInfo) Touch() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.lastLogin = time.Now()
}

// PublicKey returns the user's client-level public key, if any.
func (u *UserInfo) PublicKey() []byte {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.publicKey
}

// SetPublicKey stores the user's client-level public key.
func (u *UserInfo) SetPublicKey(key []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.publicKey = key
}

// HasContact reports whether other is in this user's contact set.
func (u *UserInfo) HasContact(other int32) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.contacts[other]
	return ok
}

// AddContact adds other to this user's contact set (idempotent).
func (u *UserInfo) AddContact(other int32) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.contacts[other] = struct{}{}
}

// RemoveContact removes other from this user's contact set one-sided; the
// peer's own contact entry, if any, is untouched (see spec.md §9).
func (u *UserInfo) RemoveContact(other int32) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.contacts, other)
}

// Contacts returns a snapshot of the current contact set.
func (u *UserInfo) Contacts() []int32 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]int32, 0, len(u.contacts))
	for id := range u.contacts {
		out = append(out, id)
	}
	return out
}

// Users is a concurrent id -> *UserInfo store.
type Users struct {
	m sync.Map // int32 -> *UserInfo
}

// NewUsers creates an empty user repository.
func NewUsers() *Users {
	return &Users{}
}

// Get returns the user for id, if registered.
func (r *Users) Get(id int32) (*UserInfo, bool) {
	v, ok := r.m.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*UserInfo), true
}

// PutIfAbsent registers user unless id is already taken, returning the
// winning entry and whether it was this call's user.
func (r *Users) PutIfAbsent(user *UserInfo) (*UserInfo, bool) {
	actual, loaded := r.m.LoadOrStore(user.ID, user)
	return actual.(*UserInfo), !loaded
}

// Exists reports whether id is registered.
func (r *Users) Exists(id int32) bool {
	_, ok := r.m.Load(id)
	return ok
}
