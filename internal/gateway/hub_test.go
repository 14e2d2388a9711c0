package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"chat-gateway/internal/auth"
	"chat-gateway/internal/store"
)

// fakeVerifier resolves tokens of the form "tok-<user>" and rejects
// everything else.
type fakeVerifier struct{}

func (fakeVerifier) Verify(token, claimedUserID string) (string, error) {
	userID, ok := strings.CutPrefix(token, "tok-")
	if !ok || userID == "" {
		return "", auth.ErrUnauthenticated
	}
	if claimedUserID != "" && claimedUserID != userID {
		return "", auth.ErrUnauthenticated
	}
	return userID, nil
}

// fakeMessageStore is an in-memory MessageStore with scriptable failures.
type fakeMessageStore struct {
	mu        sync.Mutex
	messages  map[string]*store.Message
	nextID    int
	createErr error
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{messages: make(map[string]*store.Message)}
}

func (f *fakeMessageStore) seed(id, authorID, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[id] = &store.Message{ID: id, AuthorID: authorID, Content: content}
}

func (f *fakeMessageStore) CreateMessage(_ context.Context, authorID, content, parentMessageID string) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, f.createErr
	}
	if parentMessageID != "" {
		if _, ok := f.messages[parentMessageID]; !ok {
			return nil, store.ErrNotFound
		}
	}

	f.nextID++
	msg := &store.Message{
		ID:              fmt.Sprintf("m%d", f.nextID),
		AuthorID:        authorID,
		Content:         content,
		ParentMessageID: parentMessageID,
	}
	f.messages[msg.ID] = msg
	return msg, nil
}

func (f *fakeMessageStore) GetMessageByID(_ context.Context, id string) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg, ok := f.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return msg, nil
}

func newTestHub(t *testing.T) (*Hub, *fakeMessageStore) {
	t.Helper()
	messages := newFakeMessageStore()
	hub := NewHub(messages, fakeVerifier{}, nil, nil, newTestLogger())
	return hub, messages
}

// connectAs opens an authenticated connection for a user.
func connectAs(t *testing.T, hub *Hub, connID, userID string) (*Session, *fakeSender) {
	t.Helper()
	sender := newFakeSender(connID)
	sess := hub.Connect(sender)
	if err := hub.Authenticate(context.Background(), sess, "tok-"+userID, ""); err != nil {
		t.Fatalf("Authenticate(%s) failed: %v", userID, err)
	}
	return sess, sender
}

// inbound feeds one raw client frame through the hub.
func inbound(t *testing.T, hub *Hub, sess *Session, eventType EventType, data map[string]any) {
	t.Helper()
	raw, err := json.Marshal(&Event{Type: eventType, Data: data})
	if err != nil {
		t.Fatalf("marshal inbound event: %v", err)
	}
	hub.HandleInbound(context.Background(), sess, raw)
}

func TestHubPresenceLifecycle(t *testing.T) {
	hub, _ := newTestHub(t)

	observerSess, observer := connectAs(t, hub, "obs", "observer")
	_ = observerSess

	// First connection: exactly one global userOnline.
	sessA1, _ := connectAs(t, hub, "a1", "alice")
	if got := observer.receivedOfType(EventUserOnline); len(got) != 2 {
		// observer's own online plus alice's
		t.Fatalf("observer saw %d userOnline events; want 2", len(got))
	}

	// Second device: no additional userOnline.
	sessA2, _ := connectAs(t, hub, "a2", "alice")
	aliceOnline := 0
	for _, ev := range observer.receivedOfType(EventUserOnline) {
		if ev.Data["userId"] == "alice" {
			aliceOnline++
		}
	}
	if aliceOnline != 1 {
		t.Errorf("observer saw %d userOnline for alice; want 1", aliceOnline)
	}

	// First device drops: no userOffline while a connection remains.
	hub.Disconnect(context.Background(), sessA1)
	if got := observer.receivedOfType(EventUserOffline); len(got) != 0 {
		t.Errorf("observer saw %d userOffline after first drop; want 0", len(got))
	}

	// Last device drops: exactly one userOffline.
	hub.Disconnect(context.Background(), sessA2)
	got := observer.receivedOfType(EventUserOffline)
	if len(got) != 1 || got[0].Data["userId"] != "alice" {
		t.Fatalf("observer saw %v userOffline events; want one for alice", got)
	}
}

func TestHubRejectsEventsBeforeAuth(t *testing.T) {
	hub, _ := newTestHub(t)

	sender := newFakeSender("c1")
	sess := hub.Connect(sender)

	inbound(t, hub, sess, EventJoinRoom, map[string]any{"roomId": "r1"})

	errs := sender.receivedOfType(EventError)
	if len(errs) != 1 || errs[0].Data["code"] != CodeUnauthenticated {
		t.Fatalf("pre-auth joinRoom produced %v; want one UNAUTHENTICATED error", errs)
	}
	if got := len(hub.rooms.MembersOf("r1")); got != 0 {
		t.Errorf("unauthenticated connection joined a room")
	}
}

func TestHubUnauthenticatedConnectionIsInvisible(t *testing.T) {
	hub, _ := newTestHub(t)

	ghost := newFakeSender("ghost")
	hub.Connect(ghost)

	connectAs(t, hub, "a1", "alice")

	// The grace-period connection hears nothing, not even global presence.
	if got := ghost.received(); len(got) != 0 {
		t.Errorf("unauthenticated connection received %d events; want 0", len(got))
	}
}

func TestHubAuthenticateEvent(t *testing.T) {
	hub, _ := newTestHub(t)

	sender := newFakeSender("c1")
	sess := hub.Connect(sender)

	inbound(t, hub, sess, EventAuthenticate, map[string]any{"token": "tok-alice"})

	if sess.State() != StateActive {
		t.Fatalf("session state = %v after authenticate; want active", sess.State())
	}
	if sess.UserID() != "alice" {
		t.Errorf("session user = %q; want alice", sess.UserID())
	}
	if acks := sender.receivedOfType(EventConnected); len(acks) != 1 {
		t.Errorf("received %d connected acks; want 1", len(acks))
	}

	// A second authenticate on a live session is a validation error.
	inbound(t, hub, sess, EventAuthenticate, map[string]any{"token": "tok-alice"})
	errs := sender.receivedOfType(EventError)
	if len(errs) != 1 || errs[0].Data["code"] != CodeValidationError {
		t.Errorf("re-authenticate produced %v; want one VALIDATION_ERROR", errs)
	}
}

func TestHubAuthenticateBadToken(t *testing.T) {
	hub, _ := newTestHub(t)

	sender := newFakeSender("c1")
	sess := hub.Connect(sender)

	inbound(t, hub, sess, EventAuthenticate, map[string]any{"token": "garbage"})

	if sess.State() != StateConnecting {
		t.Errorf("session state = %v after failed auth; want connecting", sess.State())
	}
	errs := sender.receivedOfType(EventError)
	if len(errs) != 1 || errs[0].Data["code"] != CodeUnauthenticated {
		t.Fatalf("failed auth produced %v; want one UNAUTHENTICATED error", errs)
	}
}

func TestHubJoinRoomNotices(t *testing.T) {
	hub, _ := newTestHub(t)

	sessA, senderA := connectAs(t, hub, "a1", "alice")
	sessB, senderB := connectAs(t, hub, "b1", "bob")

	inbound(t, hub, sessB, EventJoinRoom, map[string]any{"roomId": "r1"})
	inbound(t, hub, sessA, EventJoinRoom, map[string]any{"roomId": "r1"})

	// Bob, already in the room, hears about alice; alice does not hear
	// about her own join.
	joins := senderB.receivedOfType(EventUserJoinedRoom)
	if len(joins) != 1 || joins[0].Data["userId"] != "alice" {
		t.Fatalf("bob saw joins %v; want one for alice", joins)
	}
	if got := senderA.receivedOfType(EventUserJoinedRoom); len(got) != 0 {
		t.Errorf("alice saw %d join notices for her own join; want 0", len(got))
	}
}

func TestHubJoinRoomValidation(t *testing.T) {
	hub, _ := newTestHub(t)
	sess, sender := connectAs(t, hub, "a1", "alice")

	inbound(t, hub, sess, EventJoinRoom, map[string]any{"roomId": ""})
	inbound(t, hub, sess, EventJoinRoom, map[string]any{"roomId": strings.Repeat("x", 65)})

	errs := sender.receivedOfType(EventError)
	if len(errs) != 2 {
		t.Fatalf("received %d errors; want 2", len(errs))
	}
	for _, ev := range errs {
		if ev.Data["code"] != CodeValidationError {
			t.Errorf("error code = %v; want VALIDATION_ERROR", ev.Data["code"])
		}
	}

	// The length limit counts characters, not bytes: a 64-rune multibyte
	// room name is valid.
	wideRoom := strings.Repeat("ü", 64)
	inbound(t, hub, sess, EventJoinRoom, map[string]any{"roomId": wideRoom})
	if got := sender.receivedOfType(EventError); len(got) != 2 {
		t.Errorf("multibyte room name of 64 characters was rejected")
	}
	if !hub.rooms.IsMember(sess.ID(), wideRoom) {
		t.Errorf("join of multibyte room name did not register membership")
	}
}

func TestHubTypingScenario(t *testing.T) {
	hub, _ := newTestHub(t)

	sessA, senderA := connectAs(t, hub, "a1", "alice")
	sessB, senderB := connectAs(t, hub, "b1", "bob")

	inbound(t, hub, sessA, EventJoinRoom, map[string]any{"roomId": "r1"})
	inbound(t, hub, sessB, EventJoinRoom, map[string]any{"roomId": "r1"})

	inbound(t, hub, sessA, EventTyping, map[string]any{"roomId": "r1", "isTyping": true})

	// Bob receives the typing notice; alice does not see her own.
	typing := senderB.receivedOfType(EventUserTyping)
	if len(typing) != 1 || typing[0].Data["userId"] != "alice" {
		t.Fatalf("bob saw typing %v; want one for alice", typing)
	}
	if got := senderA.receivedOfType(EventUserTyping); got != nil {
		t.Errorf("alice saw her own typing notice")
	}

	// Leaving the room clears typing state without an explicit stop.
	inbound(t, hub, sessA, EventLeaveRoom, map[string]any{"roomId": "r1"})
	if users := hub.TypingUsersIn("r1"); len(users) != 0 {
		t.Errorf("TypingUsersIn(r1) = %v after leave; want empty", users)
	}
}

func TestHubTypingDefaultRoom(t *testing.T) {
	hub, _ := newTestHub(t)

	sessA, _ := connectAs(t, hub, "a1", "alice")
	sessB, senderB := connectAs(t, hub, "b1", "bob")

	inbound(t, hub, sessB, EventJoinRoom, map[string]any{"roomId": DefaultRoom})
	inbound(t, hub, sessA, EventTyping, map[string]any{"isTyping": true})

	if users := hub.TypingUsersIn(DefaultRoom); len(users) != 1 || users[0] != "alice" {
		t.Errorf("TypingUsersIn(general) = %v; want [alice]", users)
	}
	if got := senderB.receivedOfType(EventUserTyping); len(got) != 1 {
		t.Errorf("bob saw %d typing notices in the default room; want 1", len(got))
	}
}

func TestHubSendMessageBroadcastsGlobally(t *testing.T) {
	hub, _ := newTestHub(t)

	sessA, senderA := connectAs(t, hub, "a1", "alice")
	_, senderB := connectAs(t, hub, "b1", "bob")

	inbound(t, hub, sessA, EventSendMessage, map[string]any{"content": "hello"})

	// Messages are global: every connection sees them, rooms or not.
	for name, sender := range map[string]*fakeSender{"alice": senderA, "bob": senderB} {
		msgs := sender.receivedOfType(EventNewMessage)
		if len(msgs) != 1 {
			t.Fatalf("%s saw %d newMessage events; want 1", name, len(msgs))
		}
		if msgs[0].Data["authorId"] != "alice" || msgs[0].Data["content"] != "hello" {
			t.Errorf("%s saw message %v", name, msgs[0].Data)
		}
	}
}

func TestHubReplyNotification(t *testing.T) {
	hub, messages := newTestHub(t)
	messages.seed("parent1", "bob", "original")

	sessA, senderA := connectAs(t, hub, "a1", "alice")
	_, senderB1 := connectAs(t, hub, "b1", "bob")
	_, senderB2 := connectAs(t, hub, "b2", "bob")

	inbound(t, hub, sessA, EventSendMessage, map[string]any{
		"content":         "replying",
		"parentMessageId": "parent1",
	})

	// Every one of bob's connections gets the reply notice.
	for name, sender := range map[string]*fakeSender{"b1": senderB1, "b2": senderB2} {
		replies := sender.receivedOfType(EventMessageReply)
		if len(replies) != 1 {
			t.Fatalf("%s saw %d messageReply events; want 1", name, len(replies))
		}
		if replies[0].Data["parentMessageId"] != "parent1" {
			t.Errorf("%s reply notice = %v", name, replies[0].Data)
		}
	}

	// The sender gets the global newMessage but never a reply notice for
	// their own message.
	if got := senderA.receivedOfType(EventMessageReply); len(got) != 0 {
		t.Errorf("alice received %d reply notices for her own reply", len(got))
	}
}

func TestHubSelfReplyNotNotified(t *testing.T) {
	hub, messages := newTestHub(t)
	messages.seed("parent1", "alice", "mine")

	sessA, senderA := connectAs(t, hub, "a1", "alice")

	inbound(t, hub, sessA, EventSendMessage, map[string]any{
		"content":         "talking to myself",
		"parentMessageId": "parent1",
	})

	if got := senderA.receivedOfType(EventMessageReply); len(got) != 0 {
		t.Errorf("self-reply produced %d notices; want 0", len(got))
	}
}

func TestHubSendMessageBadParent(t *testing.T) {
	hub, _ := newTestHub(t)

	sessA, senderA := connectAs(t, hub, "a1", "alice")
	_, senderB := connectAs(t, hub, "b1", "bob")

	inbound(t, hub, sessA, EventSendMessage, map[string]any{
		"content":         "orphan",
		"parentMessageId": "missing",
	})

	// Sender gets exactly one scoped error; nobody gets a newMessage.
	errs := senderA.receivedOfType(EventError)
	if len(errs) != 1 || errs[0].Data["code"] != CodeNotFound {
		t.Fatalf("sender saw %v; want one NOT_FOUND error", errs)
	}
	if got := senderB.receivedOfType(EventNewMessage); len(got) != 0 {
		t.Errorf("bob saw %d newMessage events after a failed persist; want 0", len(got))
	}
	if got := senderB.receivedOfType(EventError); len(got) != 0 {
		t.Errorf("the sender's error leaked to another connection")
	}
}

func TestHubSendMessageUpstreamFailure(t *testing.T) {
	hub, messages := newTestHub(t)
	messages.createErr = fmt.Errorf("persistence timeout")

	sessA, senderA := connectAs(t, hub, "a1", "alice")

	inbound(t, hub, sessA, EventSendMessage, map[string]any{"content": "doomed"})

	errs := senderA.receivedOfType(EventError)
	if len(errs) != 1 || errs[0].Data["code"] != CodeUpstreamFailure {
		t.Fatalf("sender saw %v; want one UPSTREAM_FAILURE error", errs)
	}
}

func TestHubGetOnlineUsers(t *testing.T) {
	hub, _ := newTestHub(t)

	sessA, senderA := connectAs(t, hub, "a1", "alice")
	_, senderB := connectAs(t, hub, "b1", "bob")

	inbound(t, hub, sessA, EventGetOnlineUsers, nil)

	replies := senderA.receivedOfType(EventOnlineUsers)
	if len(replies) != 1 {
		t.Fatalf("requester saw %d onlineUsers replies; want 1", len(replies))
	}
	users, ok := replies[0].Data["users"].([]string)
	if !ok || len(users) != 2 {
		t.Errorf("onlineUsers payload = %v; want two users", replies[0].Data["users"])
	}

	// The reply is a unicast to the requester only.
	if got := senderB.receivedOfType(EventOnlineUsers); len(got) != 0 {
		t.Errorf("onlineUsers reply leaked to another connection")
	}
}

func TestHubDisconnectTeardown(t *testing.T) {
	hub, _ := newTestHub(t)

	sessA, _ := connectAs(t, hub, "a1", "alice")
	sessB, senderB := connectAs(t, hub, "b1", "bob")

	inbound(t, hub, sessA, EventJoinRoom, map[string]any{"roomId": "r1"})
	inbound(t, hub, sessB, EventJoinRoom, map[string]any{"roomId": "r1"})
	inbound(t, hub, sessA, EventTyping, map[string]any{"roomId": "r1", "isTyping": true})

	hub.Disconnect(context.Background(), sessA)

	if users := hub.TypingUsersIn("r1"); len(users) != 0 {
		t.Errorf("TypingUsersIn(r1) = %v after disconnect; want empty", users)
	}
	if members := hub.rooms.MembersOf("r1"); len(members) != 1 || members[0] != "b1" {
		t.Errorf("MembersOf(r1) = %v after disconnect; want [b1]", members)
	}
	if got := senderB.receivedOfType(EventUserLeftRoom); len(got) != 1 {
		t.Errorf("bob saw %d userLeftRoom notices; want 1", len(got))
	}
	if got := senderB.receivedOfType(EventUserOffline); len(got) != 1 {
		t.Errorf("bob saw %d userOffline events; want 1", len(got))
	}
}

func TestHubDisconnectClearsTypingWithoutMembership(t *testing.T) {
	hub, _ := newTestHub(t)

	sessA, _ := connectAs(t, hub, "a1", "alice")

	// Typing with no roomId lands in the default room, which alice never
	// joined; teardown must still clear it.
	inbound(t, hub, sessA, EventTyping, map[string]any{"isTyping": true})
	inbound(t, hub, sessA, EventTyping, map[string]any{"roomId": "r1", "isTyping": true})

	if users := hub.TypingUsersIn(DefaultRoom); len(users) != 1 {
		t.Fatalf("TypingUsersIn(general) = %v before disconnect; want [alice]", users)
	}

	hub.Disconnect(context.Background(), sessA)

	if users := hub.TypingUsersIn(DefaultRoom); len(users) != 0 {
		t.Errorf("TypingUsersIn(general) = %v after disconnect; want empty", users)
	}
	if users := hub.TypingUsersIn("r1"); len(users) != 0 {
		t.Errorf("TypingUsersIn(r1) = %v after disconnect; want empty", users)
	}
}

func TestHubDisconnectIsIdempotent(t *testing.T) {
	hub, _ := newTestHub(t)

	sessA, _ := connectAs(t, hub, "a1", "alice")
	_, senderB := connectAs(t, hub, "b1", "bob")

	hub.Disconnect(context.Background(), sessA)
	before := len(senderB.received())

	// Running teardown again must not emit anything or disturb state.
	hub.Disconnect(context.Background(), sessA)
	if after := len(senderB.received()); after != before {
		t.Errorf("second Disconnect emitted %d extra events", after-before)
	}
	if hub.presence.IsOnline("alice") {
		t.Error("alice still online after teardown")
	}
}

func TestHubDisconnectBeforeAuth(t *testing.T) {
	hub, _ := newTestHub(t)

	sender := newFakeSender("c1")
	sess := hub.Connect(sender)
	_, observer := connectAs(t, hub, "obs", "observer")

	// Teardown of a never-authenticated connection is silent and safe.
	hub.Disconnect(context.Background(), sess)

	if got := observer.receivedOfType(EventUserOffline); len(got) != 0 {
		t.Errorf("observer saw %d userOffline for an unauthenticated teardown", len(got))
	}
}

func TestHubMalformedFrames(t *testing.T) {
	hub, _ := newTestHub(t)
	sess, sender := connectAs(t, hub, "a1", "alice")

	hub.HandleInbound(context.Background(), sess, []byte("{not json"))
	hub.HandleInbound(context.Background(), sess, []byte(`{"type":"nonsense","data":{}}`))
	hub.HandleInbound(context.Background(), sess, []byte(`{"type":"userOnline","data":{}}`))

	errs := sender.receivedOfType(EventError)
	if len(errs) != 3 {
		t.Fatalf("received %d errors; want 3", len(errs))
	}
	for _, ev := range errs {
		if ev.Data["code"] != CodeValidationError {
			t.Errorf("error code = %v; want VALIDATION_ERROR", ev.Data["code"])
		}
	}
}

func TestHubServiceBroadcastHooks(t *testing.T) {
	hub, _ := newTestHub(t)

	_, senderA := connectAs(t, hub, "a1", "alice")
	_, senderB := connectAs(t, hub, "b1", "bob")

	hub.BroadcastMessageUpdate("m1", "edited", "alice")
	hub.BroadcastMessageDelete("m2", "bob")

	for name, sender := range map[string]*fakeSender{"alice": senderA, "bob": senderB} {
		if got := sender.receivedOfType(EventMessageUpdated); len(got) != 1 {
			t.Errorf("%s saw %d messageUpdated events; want 1", name, len(got))
		}
		if got := sender.receivedOfType(EventMessageDeleted); len(got) != 1 {
			t.Errorf("%s saw %d messageDeleted events; want 1", name, len(got))
		}
	}
}

func TestHubSendMessageContentLimit(t *testing.T) {
	hub, _ := newTestHub(t)
	sess, sender := connectAs(t, hub, "a1", "alice")

	inbound(t, hub, sess, EventSendMessage, map[string]any{
		"content": strings.Repeat("x", 2001),
	})

	errs := sender.receivedOfType(EventError)
	if len(errs) != 1 || errs[0].Data["code"] != CodeValidationError {
		t.Fatalf("oversized content produced %v; want one VALIDATION_ERROR", errs)
	}
}
