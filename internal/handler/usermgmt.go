package handler

import (
	"context"
	"strconv"

	"github.com/chatrelay/relayd/internal/repo"
	"github.com/chatrelay/relayd/internal/servercontext"
	"github.com/chatrelay/relayd/internal/wire"
)

// UserManagementHandler handles the connection-identification and
// contact-list operations that do not involve a round-trip approval:
// CREATE_USER, CONNECT_USER, ADD_CONTACT, REMOVE_CONTACT, UPDATE_PSEUDO
// (spec.md §3/§4.5). Grounded on handleHandshake's peer-registration shape
// in pkg/network/relay_handlers.go, replacing its RSA handshake with the id
// assignment/lookup spec.md asks for instead.
type UserManagementHandler struct{}

// NewUserManagementHandler builds a UserManagementHandler.
func NewUserManagementHandler() *UserManagementHandler { return &UserManagementHandler{} }

func (h *UserManagementHandler) Name() string { return "user_management" }

func (h *UserManagementHandler) CanHandle(t wire.MessageType) bool {
	switch t {
	case wire.TypeCreateUser, wire.TypeConnectUser, wire.TypeAddContact,
		wire.TypeRemoveContact, wire.TypeUpdatePseudo:
		return true
	default:
		return false
	}
}

func (h *UserManagementHandler) Handle(_ context.Context, sc *servercontext.Context, call servercontext.HandlerCall) error {
	msg := call.Message
	body, ok := msg.Body.(*wire.ManagementMessage)
	if !ok {
		return nil
	}

	switch msg.Type {
	case wire.TypeCreateUser:
		h.createUser(sc, call, body)
	case wire.TypeConnectUser:
		h.connectUser(sc, call, body)
	case wire.TypeAddContact:
		h.addContact(sc, call, body)
	case wire.TypeRemoveContact:
		h.removeContact(sc, call, body)
	case wire.TypeUpdatePseudo:
		h.updatePseudo(sc, call, body)
	}
	return nil
}

// createUser assigns a fresh id, defaulting the pseudo to "User<id>" when
// none was supplied, binds the connection to it, and replies with
// {clientId, pseudo} (spec.md §4.5/§6).
func (h *UserManagementHandler) createUser(sc *servercontext.Context, call servercontext.HandlerCall, body *wire.ManagementMessage) {
	pseudo, _ := paramString(body, "pseudo")
	id := sc.NextID()
	if pseudo == "" {
		pseudo = "User" + strconv.Itoa(int(id))
	}
	user := repo.NewUserInfo(id, pseudo)
	sc.Users.PutIfAbsent(user)
	sc.Bind(call.ConnectionChannel, id) // fresh id, cannot already be bound

	reply := wire.NewManagementMessage()
	reply.Params["clientId"] = int64(id)
	reply.Params["pseudo"] = pseudo
	sc.SendTo(0, id, wire.TypeCreateUser, reply)
}

// connectUser reconnects an existing client id, carried in the packet
// header's From field per spec.md §6 ("CONNECT_USER (with its id in
// from)"), not a body parameter.
func (h *UserManagementHandler) connectUser(sc *servercontext.Context, call servercontext.HandlerCall, _ *wire.ManagementMessage) {
	clientID := call.Message.From
	user, exists := sc.Users.Get(clientID)
	if !exists {
		sc.ReplyError(call.ConnectionChannel, wire.LevelWarning, wire.ErrTypeUserNotFound, "unknown client id")
		sc.Close(call.ConnectionChannel)
		return
	}
	if !sc.Bind(call.ConnectionChannel, clientID) {
		sc.ReplyError(call.ConnectionChannel, wire.LevelWarning, wire.ErrTypeAlreadyConnected, "client already connected")
		sc.Close(call.ConnectionChannel)
		return
	}

	user.Touch()

	reply := wire.NewManagementMessage()
	reply.Params["clientId"] = int64(clientID)
	reply.Params["pseudo"] = user.Username()
	sc.SendTo(0, clientID, wire.TypeConnectUser, reply)
}

// addContact adds contactId to the sender's contact set and, if the target
// is currently connected, notifies it with the sender's id and pseudo
// (spec.md §4.5).
func (h *UserManagementHandler) addContact(sc *servercontext.Context, call servercontext.HandlerCall, body *wire.ManagementMessage) {
	if call.ClientID == 0 {
		return
	}
	contactID, ok := paramInt32(body, "contactId")
	if !ok || !sc.Users.Exists(contactID) {
		sc.SendError(call.ClientID, wire.LevelWarning, wire.ErrTypeUserNotFound, "unknown contact id")
		return
	}
	user, ok := sc.Users.Get(call.ClientID)
	if !ok {
		return
	}
	user.AddContact(contactID)

	if sc.IsActive(contactID) {
		notice := wire.NewManagementMessage()
		notice.Params["contactId"] = int64(call.ClientID)
		notice.Params["pseudo"] = user.Username()
		sc.SendTo(call.ClientID, contactID, wire.TypeAddContact, notice)
	}
}

// removeContact requires contactId to currently be a contact, then removes
// it one-sided — the peer's own contact entry is untouched (spec.md §9's
// Open Question decision, see DESIGN.md).
func (h *UserManagementHandler) removeContact(sc *servercontext.Context, call servercontext.HandlerCall, body *wire.ManagementMessage) {
	if call.ClientID == 0 {
		return
	}
	contactID, ok := paramInt32(body, "contactId")
	if !ok {
		return
	}
	user, ok := sc.Users.Get(call.ClientID)
	if !ok {
		return
	}
	if !user.HasContact(contactID) {
		sc.SendError(call.ClientID, wire.LevelWarning, "NOT_CONTACT", "not currently a contact")
		return
	}
	user.RemoveContact(contactID)
}

// updatePseudo requires a non-empty new pseudo, then notifies every
// currently-connected contact with {contactId:sender, newPseudo}
// (spec.md §4.5/S6).
func (h *UserManagementHandler) updatePseudo(sc *servercontext.Context, call servercontext.HandlerCall, body *wire.ManagementMessage) {
	if call.ClientID == 0 {
		return
	}
	pseudo, ok := paramString(body, "pseudo")
	if !ok || pseudo == "" {
		sc.SendError(call.ClientID, wire.LevelWarning, "VALIDATION", "pseudo must not be empty")
		return
	}
	user, ok := sc.Users.Get(call.ClientID)
	if !ok {
		return
	}
	user.SetUsername(pseudo)

	for _, contactID := range user.Contacts() {
		if !sc.IsActive(contactID) {
			continue
		}
		notice := wire.NewManagementMessage()
		notice.Params["contactId"] = int64(call.ClientID)
		notice.Params["newPseudo"] = pseudo
		sc.SendTo(call.ClientID, contactID, wire.TypeUpdatePseudo, notice)
	}
}
