package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/repo/realtime"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/logger/log"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/util"
)

// SubscribeToRooms streams the room list seen by an agent and marks the
// agent online until the subscription is closed. Rooms come from the
// chatRooms index; while the index is empty they are projected from the
// stored messages instead.
func (uc *ChatUseCase) SubscribeToRooms(ctx context.Context, agentID string, onRooms func([]models.ChatRoom), opts ...SubscribeOption) (*Subscription, error) {
	if err := realtime.ValidateKey(agentID); err != nil {
		return nil, fmt.Errorf("%w: agent id: %v", models.ErrInvalidArgument, err)
	}
	o := uc.subscribeOptions(opts)
	sub := newSubscription("rooms", o.onError, uc.metrics.subscriptions.WithLabelValues("rooms"))

	if err := uc.UpdateAgentStatus(ctx, agentID, true); err != nil {
		sub.report(fmt.Errorf("mark agent online: %w", err))
	}
	sub.add(func() {
		ctx, cancel := util.NewTimeoutContext(ctx, uc.opts.PresenceTimeout)
		defer cancel()
		if err := uc.UpdateAgentStatus(ctx, agentID, false); err != nil {
			log.Warnw(ctx, "failed to mark agent offline", "agent_id", agentID, "error", err)
		}
	})

	w := &roomsWatcher{
		uc:      uc,
		agentID: agentID,
		ctx:     context.WithoutCancel(ctx),
		sub:     sub,
		onRooms: onRooms,
	}
	sub.add(w.stop)

	unsub, err := uc.channel.Subscribe(w.ctx, rootChatRooms, w.handleIndex, sub.report)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", rootChatRooms, err)
	}
	sub.add(unsub)
	return sub, nil
}

// roomsWatcher switches between the index listener and the fallback
// listener on the messages tree. gen changes whenever the active source
// changes so deliveries from a replaced source are dropped.
type roomsWatcher struct {
	uc      *ChatUseCase
	agentID string
	ctx     context.Context
	sub     *Subscription
	onRooms func([]models.ChatRoom)

	mu       sync.Mutex
	gen      uint64
	stopped  bool
	fallback realtime.Unsubscribe
}

func (w *roomsWatcher) stop() {
	w.mu.Lock()
	w.stopped = true
	w.gen++
	unsub := w.fallback
	w.fallback = nil
	w.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (w *roomsWatcher) handleIndex(snap realtime.Snapshot) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}

	if snap.Exists() {
		unsub := w.fallback
		if unsub != nil {
			w.fallback = nil
			w.gen++
		}
		gen := w.gen
		w.mu.Unlock()
		if unsub != nil {
			unsub()
		}
		w.emit(gen, roomsFromIndex(snap))
		return
	}

	if w.fallback != nil {
		w.mu.Unlock()
		return
	}
	w.gen++
	gen := w.gen
	unsub, err := w.uc.channel.Subscribe(w.ctx, rootMessages, func(s realtime.Snapshot) {
		w.emit(gen, roomsFromMessages(s, w.agentID))
	}, w.sub.report)
	if err != nil {
		w.mu.Unlock()
		w.sub.report(fmt.Errorf("subscribe %s: %w", rootMessages, err))
		return
	}
	w.fallback = unsub
	w.mu.Unlock()
}

func (w *roomsWatcher) emit(gen uint64, rooms []models.ChatRoom) {
	w.mu.Lock()
	stale := w.stopped || gen != w.gen
	w.mu.Unlock()
	if stale {
		return
	}
	emit(w.sub, rooms, w.onRooms)
}

func roomsFromIndex(snap realtime.Snapshot) []models.ChatRoom {
	children := snap.Children()
	rooms := make([]models.ChatRoom, 0, len(children))
	for _, child := range children {
		rec := child.Map()
		room := models.ChatRoom{
			ID:                   child.Key(),
			CustomerID:           child.Key(),
			CustomerName:         stringField(rec, models.RoomFieldCustomerName),
			CustomerEmail:        stringField(rec, models.RoomFieldCustomerEmail),
			LastMessage:          stringField(rec, models.RoomFieldLastMessage),
			LastMessageTimestamp: int64Field(rec, models.RoomFieldLastMessageTimestamp),
			UnreadCount:          int(int64Field(rec, models.RoomFieldUnreadCountAdmin)),
			IsOnline:             boolField(rec, models.RoomFieldCustomerOnline),
		}
		if room.CustomerName == "" {
			room.CustomerName = models.UnknownCustomerName
		}
		rooms = append(rooms, room)
	}
	sortRooms(rooms)
	return rooms
}

// roomsFromMessages projects one room per customer from the messages tree.
// A child whose values are all objects is a per-customer bucket; any other
// child is a flat record.
func roomsFromMessages(snap realtime.Snapshot, agentID string) []models.ChatRoom {
	type bucket struct {
		latest       models.ChatMessage
		hasLatest    bool
		nameTS       int64
		customerName string
	}
	buckets := map[string]*bucket{}
	add := func(customerID, id string, raw any) {
		if customerID == "" {
			return
		}
		b, ok := buckets[customerID]
		if !ok {
			b = &bucket{}
			buckets[customerID] = b
		}
		msg := NormalizeMessage(id, raw, customerID)
		if !b.hasLatest || later(msg, b.latest) {
			b.latest = msg
			b.hasLatest = true
		}
		if msg.SenderRole == models.SenderRoleCustomer && msg.SenderName != "" && (b.customerName == "" || msg.Timestamp >= b.nameTS) {
			b.customerName = msg.SenderName
			b.nameTS = msg.Timestamp
		}
	}

	children := snap.Children()
	var flat []realtime.Snapshot
	for _, child := range children {
		rec := child.Map()
		if len(rec) == 0 {
			continue
		}
		if !isBucket(rec) {
			flat = append(flat, child)
			continue
		}
		if _, ok := buckets[child.Key()]; !ok {
			buckets[child.Key()] = &bucket{}
		}
		for _, m := range child.Children() {
			add(child.Key(), m.Key(), m.Value)
		}
	}

	agents := knownAgents(flat, agentID)
	for _, child := range flat {
		rec := child.Map()
		add(flatCustomerID(rec, agents), child.Key(), rec)
	}

	rooms := make([]models.ChatRoom, 0, len(buckets))
	for customerID, b := range buckets {
		room := models.ChatRoom{
			ID:           customerID,
			CustomerID:   customerID,
			CustomerName: b.customerName,
		}
		if b.hasLatest {
			room.LastMessage = b.latest.Message
			room.LastMessageTimestamp = b.latest.Timestamp
		}
		if room.CustomerName == "" {
			room.CustomerName = models.UnknownCustomerName
		}
		rooms = append(rooms, room)
	}
	sortRooms(rooms)
	return rooms
}

func later(a, b models.ChatMessage) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	return a.ID > b.ID
}

func isBucket(rec map[string]any) bool {
	for _, v := range rec {
		if _, ok := v.(map[string]any); !ok {
			return false
		}
	}
	return true
}

// knownAgents collects the subscribed agent plus every id a record with a
// stored role attributes to the admin side.
func knownAgents(flat []realtime.Snapshot, agentID string) map[string]bool {
	agents := map[string]bool{agentID: true}
	for _, child := range flat {
		rec := child.Map()
		role, ok := models.ParseSenderRole(rec[models.FieldSenderRole])
		if !ok {
			continue
		}
		id := stringField(rec, models.FieldSenderID)
		if role == models.SenderRoleCustomer {
			id = stringField(rec, models.FieldReceiverID)
		}
		if id != "" {
			agents[id] = true
		}
	}
	return agents
}

// flatCustomerID picks the customer a flat record belongs to. Without a
// stored role the side that is not a known agent is the customer. An empty
// result means the record belongs to no room.
func flatCustomerID(rec map[string]any, agents map[string]bool) string {
	if id := stringField(rec, models.FieldCustomerID); id != "" {
		return id
	}
	sender := stringField(rec, models.FieldSenderID)
	receiver := stringField(rec, models.FieldReceiverID)
	if role, ok := models.ParseSenderRole(rec[models.FieldSenderRole]); ok {
		if role == models.SenderRoleCustomer {
			return sender
		}
		return receiver
	}
	switch {
	case sender != "" && !agents[sender]:
		return sender
	case receiver != "" && !agents[receiver]:
		return receiver
	}
	return ""
}

func sortRooms(rooms []models.ChatRoom) {
	sort.SliceStable(rooms, func(i, j int) bool {
		if rooms[i].LastMessageTimestamp != rooms[j].LastMessageTimestamp {
			return rooms[i].LastMessageTimestamp > rooms[j].LastMessageTimestamp
		}
		return rooms[i].CustomerID < rooms[j].CustomerID
	})
}
