package handler

import (
	"context"

	"github.com/chatrelay/relayd/internal/repo"
	"github.com/chatrelay/relayd/internal/servercontext"
	"github.com/chatrelay/relayd/internal/wire"
)

// GroupHandler implements group lifecycle management: CREATE_GROUP,
// ADD_GROUP_MEMBER, REMOVE_GROUP_MEMBER, LEAVE_GROUP, UPDATE_GROUP_NAME and
// DELETE_GROUP. Every operation except LEAVE_GROUP requires the caller to
// be the group's admin (spec.md §3/§4.5); ownership never transfers.
// Grounded on the GroupCreate/Join/Leave message family in
// pkg/protocol/group.go, adapted from signed peer-address membership to
// admin-gated integer client ids.
type GroupHandler struct{}

// NewGroupHandler builds a GroupHandler.
func NewGroupHandler() *GroupHandler { return &GroupHandler{} }

func (h *GroupHandler) Name() string { return "group" }

func (h *GroupHandler) CanHandle(t wire.MessageType) bool {
	switch t {
	case wire.TypeCreateGroup, wire.TypeAddGroupMember, wire.TypeRemoveGroupMember,
		wire.TypeLeaveGroup, wire.TypeUpdateGroupName, wire.TypeDeleteGroup:
		return true
	default:
		return false
	}
}

func (h *GroupHandler) Handle(_ context.Context, sc *servercontext.Context, call servercontext.HandlerCall) error {
	msg := call.Message
	body, ok := msg.Body.(*wire.ManagementMessage)
	if !ok || call.ClientID == 0 {
		return nil
	}

	switch msg.Type {
	case wire.TypeCreateGroup:
		h.create(sc, call, body)
	case wire.TypeAddGroupMember:
		h.addMember(sc, call, body)
	case wire.TypeRemoveGroupMember:
		h.removeMember(sc, call, body)
	case wire.TypeLeaveGroup:
		h.leave(sc, call, body)
	case wire.TypeUpdateGroupName:
		h.rename(sc, call, body)
	case wire.TypeDeleteGroup:
		h.delete(sc, call, body)
	}
	return nil
}

// create makes a new group with the sender as its sole admin/member
// (spec.md §4.5 "CREATE_GROUP: generate a new group id, create group with
// sender as admin and sole member, reply with a CREATE_GROUP
// {groupId, name, ack:true}").
func (h *GroupHandler) create(sc *servercontext.Context, call servercontext.HandlerCall, body *wire.ManagementMessage) {
	name, _ := paramString(body, "name")
	id := sc.NextID()
	group := repo.NewGroupInfo(id, name, call.ClientID)
	sc.Groups.Put(group)

	reply := wire.NewManagementMessage()
	reply.Params["groupId"] = int64(id)
	reply.Params["name"] = name
	reply.Params["ack"] = true
	sc.SendTo(0, call.ClientID, wire.TypeCreateGroup, reply)
}

func (h *GroupHandler) group(sc *servercontext.Context, call servercontext.HandlerCall, body *wire.ManagementMessage) (*repo.GroupInfo, bool) {
	groupID, ok := paramInt32(body, "groupId")
	if !ok {
		return nil, false
	}
	group, ok := sc.Groups.Get(groupID)
	if !ok {
		sc.SendError(call.ClientID, wire.LevelWarning, wire.ErrTypeUserNotFound, "unknown group id")
		return nil, false
	}
	return group, true
}

func (h *GroupHandler) requireAdmin(sc *servercontext.Context, call servercontext.HandlerCall, group *repo.GroupInfo) bool {
	if !group.IsAdmin(call.ClientID) {
		sc.SendError(call.ClientID, wire.LevelWarning, "NOT_ADMIN", "only the group admin may do this")
		return false
	}
	return true
}

// addMember notifies every current member other than the admin of the
// newcomer, adds it to the
// group, then sends the new member a CREATE-like ADD_GROUP_MEMBER carrying
// the group's full state, and finally acks the admin (spec.md §4.5).
func (h *GroupHandler) addMember(sc *servercontext.Context, call servercontext.HandlerCall, body *wire.ManagementMessage) {
	group, ok := h.group(sc, call, body)
	if !ok || !h.requireAdmin(sc, call, group) {
		return
	}
	memberID, ok := paramInt32(body, "newMemberId")
	if !ok || !sc.Users.Exists(memberID) || group.IsMember(memberID) {
		sc.SendError(call.ClientID, wire.LevelWarning, wire.ErrTypeUserNotFound, "unknown member id")
		return
	}

	notice := wire.NewManagementMessage()
	notice.Params["groupId"] = int64(group.ID)
	notice.Params["newMemberId"] = int64(memberID)
	for _, member := range group.Members() {
		if member == call.ClientID {
			continue
		}
		sc.SendTo(call.ClientID, member, wire.TypeAddGroupMember, notice)
	}

	group.AddMember(memberID)

	full := wire.NewManagementMessage()
	full.Params["groupId"] = int64(group.ID)
	full.Params["adminId"] = int64(group.AdminID)
	full.Params["name"] = group.Name()
	members := group.Members()
	full.Params["memberCount"] = int64(len(members))
	for i, id := range members {
		full.Params[memberKey(int32(i))] = int64(id)
	}
	sc.SendTo(call.ClientID, memberID, wire.TypeAddGroupMember, full)

	h.ackAdmin(sc, call, group, wire.TypeAddGroupMember)
}

// removeMember notifies every current member other than the admin first —
// the removed member
// recognizes itself by seeing its own id come back and leaves — then
// updates the repo and acks the admin (spec.md §4.5).
func (h *GroupHandler) removeMember(sc *servercontext.Context, call servercontext.HandlerCall, body *wire.ManagementMessage) {
	group, ok := h.group(sc, call, body)
	if !ok || !h.requireAdmin(sc, call, group) {
		return
	}
	memberID, ok := paramInt32(body, "memberId")
	if !ok || !group.IsMember(memberID) {
		sc.SendError(call.ClientID, wire.LevelWarning, wire.ErrTypeUserNotFound, "not a current member")
		return
	}

	notice := wire.NewManagementMessage()
	notice.Params["groupId"] = int64(group.ID)
	notice.Params["memberId"] = int64(memberID)
	for _, member := range group.Members() {
		if member == call.ClientID {
			continue
		}
		sc.SendTo(call.ClientID, member, wire.TypeRemoveGroupMember, notice)
	}

	group.RemoveMember(memberID)

	h.ackAdmin(sc, call, group, wire.TypeRemoveGroupMember)
}

// leave removes any non-admin member from the group and acks the leaver
// directly (spec.md §4.5); the admin must delete the group instead.
func (h *GroupHandler) leave(sc *servercontext.Context, call servercontext.HandlerCall, body *wire.ManagementMessage) {
	group, ok := h.group(sc, call, body)
	if !ok {
		return
	}
	if group.IsAdmin(call.ClientID) {
		sc.SendError(call.ClientID, wire.LevelWarning, "ADMIN_CANNOT_LEAVE", "the admin must delete the group instead of leaving")
		return
	}

	notice := wire.NewManagementMessage()
	notice.Params["groupId"] = int64(group.ID)
	notice.Params["memberId"] = int64(call.ClientID)
	for _, member := range group.Members() {
		if member == call.ClientID {
			continue
		}
		sc.SendTo(call.ClientID, member, wire.TypeLeaveGroup, notice)
	}

	group.RemoveMember(call.ClientID)

	reply := wire.NewManagementMessage()
	reply.Params["groupId"] = int64(group.ID)
	reply.Params["ack"] = true
	sc.SendTo(0, call.ClientID, wire.TypeLeaveGroup, reply)
}

func (h *GroupHandler) rename(sc *servercontext.Context, call servercontext.HandlerCall, body *wire.ManagementMessage) {
	group, ok := h.group(sc, call, body)
	if !ok || !h.requireAdmin(sc, call, group) {
		return
	}
	name, ok := paramString(body, "name")
	if !ok || name == "" {
		sc.SendError(call.ClientID, wire.LevelWarning, "VALIDATION", "group name must not be empty")
		return
	}
	group.SetName(name)

	notice := wire.NewManagementMessage()
	notice.Params["groupId"] = int64(group.ID)
	notice.Params["name"] = name
	for _, member := range group.Members() {
		if member == call.ClientID {
			continue
		}
		sc.SendTo(call.ClientID, member, wire.TypeUpdateGroupName, notice)
	}
	h.ackAdmin(sc, call, group, wire.TypeUpdateGroupName)
}

func (h *GroupHandler) delete(sc *servercontext.Context, call servercontext.HandlerCall, body *wire.ManagementMessage) {
	group, ok := h.group(sc, call, body)
	if !ok || !h.requireAdmin(sc, call, group) {
		return
	}
	members := group.Members()

	notice := wire.NewManagementMessage()
	notice.Params["groupId"] = int64(group.ID)
	for _, member := range members {
		if member == call.ClientID {
			continue
		}
		sc.SendTo(call.ClientID, member, wire.TypeDeleteGroup, notice)
	}

	sc.Groups.Remove(group.ID)
	h.ackAdmin(sc, call, group, wire.TypeDeleteGroup)
}

// ackAdmin acks the admin once a mutating group operation has notified every
// other current member (spec.md §8 "admin operations notify every
// currently-connected member exactly once, then ack the admin").
func (h *GroupHandler) ackAdmin(sc *servercontext.Context, call servercontext.HandlerCall, group *repo.GroupInfo, msgType wire.MessageType) {
	reply := wire.NewManagementMessage()
	reply.Params["groupId"] = int64(group.ID)
	reply.Params["ack"] = true
	sc.SendTo(0, call.ClientID, msgType, reply)
}
