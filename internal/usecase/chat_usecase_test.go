package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
)

func roomIDs(rooms []models.ChatRoom) []string {
	ids := make([]string, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.CustomerID)
	}
	return ids
}

func TestSubscribeToRooms_FromIndex(t *testing.T) {
	env := newTestEnv(t)
	env.set(t, "chatRooms", map[string]any{
		"c1": map[string]any{"customerName": "An", "lastMessage": "old", "lastMessageTimestamp": int64(100), "unreadCountAdmin": int64(2)},
		"c2": map[string]any{"lastMessage": "new", "lastMessageTimestamp": int64(200), "customerOnline": true},
	})

	got := newLatest[[]models.ChatRoom]()
	sub, err := env.uc.SubscribeToRooms(context.Background(), "a1", got.on)
	require.NoError(t, err)
	defer sub.Close()

	rooms := got.waitFor(t, func(r []models.ChatRoom) bool { return len(r) == 2 })
	assert.Equal(t, []string{"c2", "c1"}, roomIDs(rooms))
	assert.Equal(t, models.ChatRoom{
		ID: "c2", CustomerID: "c2", CustomerName: models.UnknownCustomerName,
		LastMessage: "new", LastMessageTimestamp: 200, IsOnline: true,
	}, rooms[0])
	assert.Equal(t, 2, rooms[1].UnreadCount)
	assert.Equal(t, "An", rooms[1].CustomerName)
}

func TestSubscribeToRooms_FallbackFromMessages(t *testing.T) {
	env := newTestEnv(t)
	env.set(t, "messages", map[string]any{
		"c1": map[string]any{
			"m1": map[string]any{"senderId": "c1", "senderName": "Binh", "message": "hello", "timestamp": int64(50)},
			"m2": map[string]any{"senderId": "a1", "message": "hi there", "timestamp": int64(100)},
		},
		"f1": map[string]any{"senderId": "c2", "senderRole": "customer", "senderName": "Chi", "message": "ping", "timestamp": int64(200)},
	})

	got := newLatest[[]models.ChatRoom]()
	sub, err := env.uc.SubscribeToRooms(context.Background(), "a1", got.on)
	require.NoError(t, err)
	defer sub.Close()

	rooms := got.waitFor(t, func(r []models.ChatRoom) bool { return len(r) == 2 })
	assert.Equal(t, []string{"c2", "c1"}, roomIDs(rooms))
	for _, r := range rooms {
		assert.Zero(t, r.UnreadCount)
		assert.False(t, r.IsOnline)
	}
	assert.Equal(t, "Chi", rooms[0].CustomerName)
	assert.Equal(t, "Binh", rooms[1].CustomerName)
	assert.Equal(t, "hi there", rooms[1].LastMessage)
	assert.Equal(t, int64(100), rooms[1].LastMessageTimestamp)

	// a new message updates the projection
	env.set(t, "messages/c1/m3", map[string]any{"senderId": "c1", "message": "again", "timestamp": int64(300)})
	rooms = got.waitFor(t, func(r []models.ChatRoom) bool { return len(r) == 2 && r[0].CustomerID == "c1" })
	assert.Equal(t, "again", rooms[0].LastMessage)

	// once the index exists the fallback listener is released
	env.set(t, "chatRooms/c9", map[string]any{"customerName": "Indexed", "lastMessageTimestamp": int64(1)})
	rooms = got.waitFor(t, func(r []models.ChatRoom) bool { return len(r) == 1 })
	assert.Equal(t, "Indexed", rooms[0].CustomerName)
	env.settle(t)
	assert.Equal(t, 1, env.store.Stats().Listeners, "only the index listener stays attached")

	_, calls := got.get()
	env.set(t, "messages/c5/m1", map[string]any{"senderId": "c5", "message": "ignored", "timestamp": int64(999)})
	env.settle(t)
	_, after := got.get()
	assert.Equal(t, calls, after)
}

func TestSubscribeToRooms_FallbackSkipsUnresolvableRecords(t *testing.T) {
	env := newTestEnv(t)
	env.set(t, "messages", map[string]any{
		"c1": map[string]any{
			"m1": map[string]any{"senderId": "c1", "message": "hello", "timestamp": int64(50)},
		},
		"-Nflat1": map[string]any{"receiverId": "c2", "senderName": "Agent", "read": false},
		"-Nflat2": map[string]any{"senderName": "Nobody", "read": false},
	})

	got := newLatest[[]models.ChatRoom]()
	sub, err := env.uc.SubscribeToRooms(context.Background(), "a1", got.on)
	require.NoError(t, err)
	defer sub.Close()

	rooms := got.waitFor(t, func(r []models.ChatRoom) bool { return len(r) > 0 })
	assert.Equal(t, []string{"c1", "c2"}, roomIDs(rooms))
	assert.Equal(t, models.UnknownCustomerName, rooms[1].CustomerName)
}

func TestSubscribeToRooms_FallbackInfersCustomerSide(t *testing.T) {
	env := newTestEnv(t)
	env.set(t, "messages", map[string]any{
		"k1": map[string]any{"senderId": "c2", "receiverId": "a1", "senderName": "Chi", "message": "help", "timestamp": int64(10)},
		"k2": map[string]any{"senderId": "a1", "receiverId": "c2", "senderName": "Agent", "message": "on it", "timestamp": int64(20)},
	})

	got := newLatest[[]models.ChatRoom]()
	sub, err := env.uc.SubscribeToRooms(context.Background(), "a1", got.on)
	require.NoError(t, err)
	defer sub.Close()

	rooms := got.waitFor(t, func(r []models.ChatRoom) bool { return len(r) > 0 })
	require.Equal(t, []string{"c2"}, roomIDs(rooms))
	assert.Equal(t, "Chi", rooms[0].CustomerName)
	assert.Equal(t, "on it", rooms[0].LastMessage)
}

func TestFlatCustomerID(t *testing.T) {
	agents := map[string]bool{"a1": true, "a2": true}
	tests := []struct {
		name string
		rec  map[string]any
		want string
	}{
		{"explicit customer id", map[string]any{"customerId": "c1", "senderId": "a1"}, "c1"},
		{"stored customer role", map[string]any{"senderId": "c1", "senderRole": "customer", "receiverId": "a1"}, "c1"},
		{"stored admin role", map[string]any{"senderId": "a9", "senderRole": "admin", "receiverId": "c1"}, "c1"},
		{"customer to agent", map[string]any{"senderId": "c1", "receiverId": "a1"}, "c1"},
		{"agent to customer", map[string]any{"senderId": "a2", "receiverId": "c1"}, "c1"},
		{"receiver only", map[string]any{"receiverId": "c1"}, "c1"},
		{"agent without receiver", map[string]any{"senderId": "a1"}, ""},
		{"nothing", map[string]any{"senderName": "x"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, flatCustomerID(tt.rec, agents))
		})
	}
}

func TestSubscribeToRooms_PresenceAndDispose(t *testing.T) {
	env := newTestEnv(t)

	got := newLatest[[]models.ChatRoom]()
	sub, err := env.uc.SubscribeToRooms(context.Background(), "a1", got.on)
	require.NoError(t, err)

	got.waitFor(t, func(r []models.ChatRoom) bool { return r != nil })
	assert.Equal(t, map[string]any{"isOnline": true, "lastSeen": int64(1_700_000_000_000)}, env.get(t, "admins/a1"))

	sub.Close()
	sub.Close()
	select {
	case <-sub.Done():
	default:
		t.Fatal("done channel not closed")
	}
	assert.Equal(t, false, env.get(t, "admins/a1/isOnline"))

	_, calls := got.get()
	env.set(t, "chatRooms/c1", map[string]any{"lastMessage": "late"})
	env.set(t, "admins/a1/isOnline", true)
	env.settle(t)
	_, after := got.get()
	assert.Equal(t, calls, after, "no deliveries after close")
	assert.Equal(t, 0, env.store.Stats().Listeners)
}

func TestSubscribeToRooms_SuppressesIdenticalLists(t *testing.T) {
	env := newTestEnv(t)
	env.set(t, "chatRooms/c1", map[string]any{"lastMessage": "x", "lastMessageTimestamp": int64(1)})

	got := newLatest[[]models.ChatRoom]()
	sub, err := env.uc.SubscribeToRooms(context.Background(), "a1", got.on)
	require.NoError(t, err)
	defer sub.Close()
	got.waitFor(t, func(r []models.ChatRoom) bool { return len(r) == 1 })

	// a field the projection ignores
	env.set(t, "chatRooms/c1/unreadCountCustomer", 3)
	env.settle(t)
	_, calls := got.get()
	assert.Equal(t, 1, calls)
}

func TestDetectShape(t *testing.T) {
	tests := []struct {
		name  string
		setup map[string]any
		want  Shape
	}{
		{
			name: "room nested wins",
			setup: map[string]any{
				"chatRooms/c1/messages/m1": map[string]any{"message": "a"},
				"messages/c1/m1":           map[string]any{"message": "a"},
			},
			want: ShapeRoomNested,
		},
		{
			name:  "customer nested",
			setup: map[string]any{"messages/c1/m1": map[string]any{"message": "a"}},
			want:  ShapeCustomerNested,
		},
		{
			name:  "flat",
			setup: map[string]any{"messages/m1": map[string]any{"senderId": "c1", "message": "a"}},
			want:  ShapeFlatFiltered,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			for p, v := range tt.setup {
				env.set(t, p, v)
			}
			b, err := env.uc.DetectShape(context.Background(), "c1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Shape)
			assert.Equal(t, "c1", b.CustomerID)
		})
	}
}

func TestDetectShape_ProbeFailureCountsAsAbsent(t *testing.T) {
	env := newTestEnv(t)
	env.set(t, "chatRooms/c1/messages/m1", map[string]any{"message": "a"})
	env.set(t, "messages/c1/m1", map[string]any{"message": "a"})
	env.ch.getErrs["chatRooms/c1/messages"] = models.ErrChannelUnavailable

	var reported []error
	b, err := env.uc.detectShape(context.Background(), "c1", func(err error) { reported = append(reported, err) })
	require.NoError(t, err)
	assert.Equal(t, ShapeCustomerNested, b.Shape)
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], models.ErrChannelUnavailable)

	_, err = env.uc.DetectShape(context.Background(), "bad.id")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestSubscribeToMessages_Live(t *testing.T) {
	env := newTestEnv(t)
	env.set(t, "messages/c1/m2", map[string]any{"senderId": "a1", "senderRole": "admin", "message": "reply", "timestamp": int64(20)})
	env.set(t, "messages/c1/m1", map[string]any{"senderId": "c1", "messageText": "hi", "timestamp": int64(10)})

	got := newLatest[[]models.ChatMessage]()
	sub, err := env.uc.SubscribeToMessages(context.Background(), "c1", got.on)
	require.NoError(t, err)
	defer sub.Close()

	msgs := got.waitFor(t, func(m []models.ChatMessage) bool { return len(m) == 2 })
	assert.Equal(t, "hi", msgs[0].Message)
	assert.Equal(t, models.SenderRoleCustomer, msgs[0].SenderRole)
	assert.Equal(t, "reply", msgs[1].Message)

	env.set(t, "messages/c1/m0", map[string]any{"senderId": "c1", "message": "first", "timestamp": int64(5)})
	msgs = got.waitFor(t, func(m []models.ChatMessage) bool { return len(m) == 3 })
	assert.Equal(t, "m0", msgs[0].ID)
}

func TestSubscribeToMessages_FlatIgnoresOtherCustomers(t *testing.T) {
	env := newTestEnv(t)
	env.set(t, "messages/k1", map[string]any{"senderId": "c1", "message": "mine", "timestamp": int64(1)})

	got := newLatest[[]models.ChatMessage]()
	sub, err := env.uc.SubscribeToMessages(context.Background(), "c1", got.on)
	require.NoError(t, err)
	defer sub.Close()
	got.waitFor(t, func(m []models.ChatMessage) bool { return len(m) == 1 })

	env.set(t, "messages/k2", map[string]any{"senderId": "c2", "message": "theirs", "timestamp": int64(2)})
	env.settle(t)
	msgs, calls := got.get()
	assert.Equal(t, 1, calls)
	assert.Len(t, msgs, 1)
}

func TestSubscribeToMessages_CloseDuringDetection(t *testing.T) {
	env := newTestEnv(t)
	gate := make(chan struct{})
	env.ch.getGate = gate
	env.set(t, "messages/c1/m1", map[string]any{"message": "a"})

	got := newLatest[[]models.ChatMessage]()
	sub, err := env.uc.SubscribeToMessages(context.Background(), "c1", got.on)
	require.NoError(t, err)
	sub.Close()
	close(gate)

	time.Sleep(50 * time.Millisecond)
	env.settle(t)
	_, calls := got.get()
	assert.Zero(t, calls)
	assert.Equal(t, 0, env.store.Stats().Listeners)
}

func TestSubscribeToMessages_DetectTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.ch.getGate = make(chan struct{})

	errs := make(chan error, 4)
	sub, err := env.uc.SubscribeToMessages(context.Background(), "c1", func([]models.ChatMessage) {},
		WithDetectTimeout(20*time.Millisecond),
		WithErrorHandler(func(err error) { errs <- err }),
	)
	require.NoError(t, err)
	defer sub.Close()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout not reported")
	}
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, errs, "timeout is reported once")
}

func TestSubscribeToMessages_NoShapeFlapping(t *testing.T) {
	env := newTestEnv(t)
	env.set(t, "messages/c1/m1", map[string]any{"senderId": "c1", "message": "first", "timestamp": int64(1)})

	got := newLatest[[]models.ChatMessage]()
	sub, err := env.uc.SubscribeToMessages(context.Background(), "c1", got.on)
	require.NoError(t, err)
	defer sub.Close()
	got.waitFor(t, func(m []models.ChatMessage) bool { return len(m) == 1 })

	// the room nested store appears after detection bound the customer store
	env.set(t, "chatRooms/c1/messages/x", map[string]any{"senderId": "c1", "message": "elsewhere", "timestamp": int64(5)})
	env.set(t, "messages/c1/m2", map[string]any{"senderId": "a1", "message": "second", "timestamp": int64(2)})

	got.waitFor(t, func(m []models.ChatMessage) bool { return len(m) == 2 })
	env.settle(t)
	msgs, _ := got.get()
	for _, m := range msgs {
		assert.NotEqual(t, "x", m.ID)
	}
	assert.Equal(t, []string{"m1", "m2"}, []string{msgs[0].ID, msgs[1].ID})
	assert.Equal(t, 1, env.store.Stats().Listeners)
}

func TestSendMessage(t *testing.T) {
	env := newTestEnv(t)

	msg, err := env.uc.SendMessage(context.Background(), SendMessageParams{
		CustomerID: "c1", AgentID: "a1", AgentName: "Agent", Text: "  hello ",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Message)
	assert.Equal(t, models.SenderRoleAdmin, msg.SenderRole)
	assert.Equal(t, int64(1_700_000_000_000), msg.Timestamp)

	updates := env.ch.Updates()
	require.Len(t, updates, 1, "the fan-out is a single multi-path update")
	assert.Equal(t, "", updates[0].path)
	assert.Len(t, updates[0].fields, 5)

	for _, path := range []string{"messages/c1", "chatRooms/c1/messages"} {
		snap, err := env.store.Get(context.Background(), path)
		require.NoError(t, err)
		children := snap.Children()
		require.Len(t, children, 1, path)
		rec := children[0].Map()
		assert.Equal(t, "hello", rec["message"])
		assert.Equal(t, "hello", rec["messageText"])
		assert.Equal(t, "admin", rec["senderRole"])
		assert.Equal(t, "c1", rec["receiverId"])
		assert.Equal(t, "text", rec["type"])
		assert.Equal(t, false, rec["read"])
	}

	assert.Equal(t, "hello", env.get(t, "chatRooms/c1/lastMessage"))
	assert.Equal(t, int64(1_700_000_000_000), env.get(t, "chatRooms/c1/lastMessageTimestamp"))
	assert.Equal(t, int64(1), env.get(t, "chatRooms/c1/unreadCountCustomer"))

	env.uc.Wait()
	assert.Equal(t, []string{models.EventMessageSent}, env.events.Types())
}

func TestSendMessage_DefaultsAgentName(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.uc.SendMessage(context.Background(), SendMessageParams{CustomerID: "c1", AgentID: "a1", Text: "x"})
	require.NoError(t, err)

	snap, err := env.store.Get(context.Background(), "messages/c1")
	require.NoError(t, err)
	assert.Equal(t, "Admin", snap.Children()[0].Map()["senderName"])
}

func TestSendMessage_Invalid(t *testing.T) {
	env := newTestEnv(t)
	tests := []SendMessageParams{
		{CustomerID: "c1", AgentID: "a1", Text: "   "},
		{CustomerID: "", AgentID: "a1", Text: "x"},
		{CustomerID: "c1", AgentID: "", Text: "x"},
		{CustomerID: "c.1", AgentID: "a1", Text: "x"},
	}
	for _, p := range tests {
		_, err := env.uc.SendMessage(context.Background(), p)
		assert.ErrorIs(t, err, models.ErrInvalidArgument, "%+v", p)
	}
	assert.Empty(t, env.ch.Updates())
}

func TestSendMessage_WriteFailure(t *testing.T) {
	env := newTestEnv(t)
	env.ch.updateErr = models.ErrChannelUnavailable

	msg, err := env.uc.SendMessage(context.Background(), SendMessageParams{CustomerID: "c1", AgentID: "a1", Text: "x"})
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, models.ErrChannelUnavailable)
	assert.Nil(t, env.get(t, ""))

	env.uc.Wait()
	assert.Empty(t, env.events.Types())
}

func TestMarkMessagesAsRead(t *testing.T) {
	env := newTestEnv(t)
	env.set(t, "chatRooms/c1", map[string]any{
		"unreadCountAdmin": 2,
		"messages": map[string]any{
			"m1": map[string]any{"senderId": "c1", "senderRole": "customer", "message": "a", "read": false},
			"m2": map[string]any{"senderId": "c1", "message": "b"},
			"m3": map[string]any{"senderId": "a1", "senderRole": "admin", "message": "c", "read": false},
		},
	})
	env.set(t, "messages/c1", map[string]any{
		"m1": map[string]any{"senderId": "c1", "senderRole": "customer", "message": "a", "read": false},
		"m2": map[string]any{"senderId": "c1", "message": "b"},
		"m4": map[string]any{"senderId": "c1", "message": "seen", "read": true},
	})

	n, err := env.uc.MarkMessagesAsRead(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, p := range []string{"messages/c1/m1/read", "messages/c1/m2/read", "chatRooms/c1/messages/m1/read", "chatRooms/c1/messages/m2/read"} {
		assert.Equal(t, true, env.get(t, p), p)
	}
	assert.Equal(t, false, env.get(t, "chatRooms/c1/messages/m3/read"), "admin messages are untouched")
	assert.Equal(t, int64(0), env.get(t, "chatRooms/c1/unreadCountAdmin"))

	updates := env.ch.Updates()
	require.Len(t, updates, 3)
	assert.Equal(t, "messages/c1", updates[0].path)
	assert.Equal(t, map[string]any{"m1/read": true, "m2/read": true}, updates[0].fields)
	assert.Equal(t, "chatRooms/c1/messages", updates[1].path)
	assert.Equal(t, "chatRooms/c1", updates[2].path)

	env.ch.reset()
	n, err = env.uc.MarkMessagesAsRead(context.Background(), "c1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, env.ch.Updates(), "a second call writes nothing")

	env.uc.Wait()
	assert.Equal(t, []string{models.EventMessagesRead}, env.events.Types())
}

func TestMarkMessagesAsRead_CountsFanOutCopiesOnce(t *testing.T) {
	env := newTestEnv(t)
	copyOf := func() map[string]any {
		return map[string]any{"senderId": "c1", "message": "hello", "timestamp": int64(10), "read": false}
	}
	env.set(t, "messages/c1/p1", copyOf())
	env.set(t, "chatRooms/c1/messages/p2", copyOf())
	env.set(t, "chatRooms/c1/messages/p3", map[string]any{"senderId": "c1", "message": "other", "timestamp": int64(11)})

	n, err := env.uc.MarkMessagesAsRead(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, true, env.get(t, "messages/c1/p1/read"))
	assert.Equal(t, true, env.get(t, "chatRooms/c1/messages/p2/read"))
}

func TestMarkMessagesAsRead_ReadFailure(t *testing.T) {
	env := newTestEnv(t)
	env.ch.getErrs["messages/c1"] = errors.New("offline")

	_, err := env.uc.MarkMessagesAsRead(context.Background(), "c1")
	assert.ErrorContains(t, err, "offline")
	assert.Empty(t, env.ch.Updates())
}

func TestUpdateAgentStatus(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.uc.UpdateAgentStatus(context.Background(), "a1", true))
	assert.Equal(t, map[string]any{"isOnline": true, "lastSeen": int64(1_700_000_000_000)}, env.get(t, "admins/a1"))

	assert.ErrorIs(t, env.uc.UpdateAgentStatus(context.Background(), "", true), models.ErrInvalidArgument)

	env.uc.Wait()
	assert.Equal(t, []string{models.EventAgentStatus}, env.events.Types())
}

func TestGetMessages(t *testing.T) {
	env := newTestEnv(t)
	env.set(t, "chatRooms/c1/messages", map[string]any{
		"m2": map[string]any{"message": "b", "timestamp": int64(2)},
		"m1": map[string]any{"message": "a", "timestamp": int64(1)},
	})

	msgs, err := env.uc.GetMessages(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].Message)

	msgs, err = env.uc.GetMessages(context.Background(), "c2")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRoomSelector(t *testing.T) {
	env := newTestEnv(t)
	env.set(t, "messages/c1/m1", map[string]any{"senderId": "c1", "message": "from c1", "timestamp": int64(1)})
	env.set(t, "messages/c2/m1", map[string]any{"senderId": "c2", "message": "from c2", "timestamp": int64(1)})

	type delivery struct {
		customerID string
		msgs       []models.ChatMessage
	}
	got := newLatest[delivery]()
	sel := env.uc.NewRoomSelector(func(customerID string, msgs []models.ChatMessage) {
		got.on(delivery{customerID: customerID, msgs: msgs})
	})
	defer sel.Close()

	require.NoError(t, sel.Select(context.Background(), "c1"))
	got.waitFor(t, func(d delivery) bool { return d.customerID == "c1" })

	require.NoError(t, sel.Select(context.Background(), "c2"))
	assert.Equal(t, "c2", sel.Selected())
	got.waitFor(t, func(d delivery) bool { return d.customerID == "c2" })

	env.set(t, "messages/c1/m2", map[string]any{"senderId": "c1", "message": "late", "timestamp": int64(2)})
	env.settle(t)
	d, _ := got.get()
	assert.Equal(t, "c2", d.customerID, "the previous room no longer feeds the list")
	assert.Equal(t, 1, env.store.Stats().Listeners)

	sel.Close()
	assert.Equal(t, "", sel.Selected())
	assert.Equal(t, 0, env.store.Stats().Listeners)
}
