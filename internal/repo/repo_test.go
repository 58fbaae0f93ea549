package repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsersPutIfAbsent(t *testing.T) {
	users := NewUsers()
	u1 := NewUserInfo(1, "alice")
	winner, inserted := users.PutIfAbsent(u1)
	require.True(t, inserted)
	assert.Same(t, u1, winner)

	u1dup := NewUserInfo(1, "mallory")
	winner2, inserted2 := users.PutIfAbsent(u1dup)
	assert.False(t, inserted2)
	assert.Same(t, u1, winner2)
}

func TestUserContactsOneSided(t *testing.T) {
	u1 := NewUserInfo(1, "alice")
	u1.AddContact(2)
	assert.True(t, u1.HasContact(2))

	u1.RemoveContact(2)
	assert.False(t, u1.HasContact(2))
}

func TestGroupAdminAndMembers(t *testing.T) {
	g := NewGroupInfo(10, "team", 1)
	assert.True(t, g.IsAdmin(1))
	assert.True(t, g.IsMember(1))
	assert.False(t, g.IsMember(2))

	g.AddMember(2)
	assert.True(t, g.IsMember(2))
	assert.ElementsMatch(t, []int32{1, 2}, g.Members())

	g.RemoveMember(2)
	assert.False(t, g.IsMember(2))
}

func TestContactRequestsSweep(t *testing.T) {
	reqs := NewContactRequests()
	old := &PendingContactRequest{
		RequestID:  "old",
		SenderID:   1,
		ReceiverID: 2,
		Timestamp:  time.Now().Add(-8 * 24 * time.Hour),
	}
	fresh := &PendingContactRequest{
		RequestID:  "fresh",
		SenderID:   1,
		ReceiverID: 2,
		Timestamp:  time.Now(),
	}
	reqs.PutIfAbsent(old)
	reqs.PutIfAbsent(fresh)

	removed := reqs.Sweep(time.Now())
	assert.Equal(t, 1, removed)

	_, ok := reqs.Get("old")
	assert.False(t, ok)
	_, ok = reqs.Get("fresh")
	assert.True(t, ok)
}
