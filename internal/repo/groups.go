package repo

import "sync"

// GroupInfo is a chat group. Name and Members are mutable and guarded by
// mu; ID and AdminID never change after creation (ownership transfer is
// not a feature spec.md asks for).
type GroupInfo struct {
	mu      sync.RWMutex
	ID      int32
	AdminID int32
	name    string
	members map[int32]struct{}
}

// NewGroupInfo creates a group with admin as its sole initial member.
func NewGroupInfo(id int32, name string, admin int32) *GroupInfo {
	return &GroupInfo{
		ID:      id,
		AdminID: admin,
		name:    name,
		members: map[int32]struct{}{admin: {}},
	}
}

// Name returns the group's current display name.
func (g *GroupInfo) Name() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.name
}

// SetName updates the group's display name.
func (g *GroupInfo) SetName(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.name = name
}

// IsMember reports whether id currently belongs to the group.
func (g *GroupInfo) IsMember(id int32) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.members[id]
	return ok
}

// IsAdmin reports whether id is the group's admin.
func (g *GroupInfo) IsAdmin(id int32) bool {
	return id == g.AdminID
}

// AddMember adds id to the group.
func (g *GroupInfo) AddMember(id int32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[id] = struct{}{}
}

// RemoveMember removes id from the group.
func (g *GroupInfo) RemoveMember(id int32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members, id)
}

// Members returns a snapshot of the current member set, including the
// admin.
func (g *GroupInfo) Members() []int32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]int32, 0, len(g.members))
	for id := range g.members {
		out = append(out, id)
	}
	return out
}

// Groups is a concurrent id -> *GroupInfo store.
type Groups struct {
	m sync.Map // int32 -> *GroupInfo
}

// NewGroups creates an empty group repository.
func NewGroups() *Groups {
	return &Groups{}
}

// Get returns the group for id, if it exists.
func (r *Groups) Get(id int32) (*GroupInfo, bool) {
	v, ok := r.m.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*GroupInfo), true
}

// Put registers a newly-created group.
func (r *Groups) Put(g *GroupInfo) {
	r.m.Store(g.ID, g)
}

// Remove deletes a group (on DELETE_GROUP).
func (r *Groups) Remove(id int32) {
	r.m.Delete(id)
}

// Exists reports whether id names a current group.
func (r *Groups) Exists(id int32) bool {
	_, ok := r.m.Load(id)
	return ok
}
