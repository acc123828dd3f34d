package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/repo/realtime"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/logger"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/logger/log"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/util"
)

const (
	defaultDetectTimeout   = 10 * time.Second
	defaultPresenceTimeout = 5 * time.Second
	eventPublishTimeout    = 10 * time.Second
)

type ChatOptions struct {
	DetectTimeout   time.Duration
	PresenceTimeout time.Duration
}

type ChatUseCase struct {
	channel  realtime.Channel
	events   EventPublisher
	validate *validator.Validate
	log      *logger.Logger
	metrics  *chatMetrics
	opts     ChatOptions
	now      func() time.Time

	// wg tracks background event publishing.
	wg sync.WaitGroup
}

func NewChatUseCase(channel realtime.Channel, events EventPublisher, opts ChatOptions) *ChatUseCase {
	if opts.DetectTimeout <= 0 {
		opts.DetectTimeout = defaultDetectTimeout
	}
	if opts.PresenceTimeout <= 0 {
		opts.PresenceTimeout = defaultPresenceTimeout
	}
	return &ChatUseCase{
		channel:  channel,
		events:   events,
		validate: validator.New(),
		log:      logger.MustNamed("chat"),
		metrics:  newChatMetrics(),
		opts:     opts,
		now:      time.Now,
	}
}

type chatMetrics struct {
	subscriptions *prometheus.GaugeVec
	shapes        *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

func newChatMetrics() *chatMetrics {
	m := &chatMetrics{}
	var err error
	if m.subscriptions, err = util.GetGaugeVec("chat_active_subscriptions", "Open chat subscriptions by kind.", "kind"); err != nil {
		panic(err)
	}
	if m.shapes, err = util.GetCounterVec("chat_detected_shapes_total", "Detected message storage shapes.", "shape"); err != nil {
		panic(err)
	}
	if m.latency, err = util.GetHistogramVec("chat_operation_duration_seconds", "operation", "status"); err != nil {
		panic(err)
	}
	return m
}

func (uc *ChatUseCase) observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	uc.metrics.latency.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

func (uc *ChatUseCase) subscribeOptions(opts []SubscribeOption) subscribeOptions {
	o := subscribeOptions{detectTimeout: uc.opts.DetectTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.onError == nil {
		o.onError = func(err error) {
			uc.log.Warnw("subscription error", "error", err)
		}
	}
	return o
}

func (uc *ChatUseCase) nowMillis() int64 {
	return uc.now().UnixMilli()
}

// SubscribeToMessages streams the normalized conversation of one customer.
// The storage shape is detected once in the background; the live listener is
// attached only if the subscription is still open by then.
func (uc *ChatUseCase) SubscribeToMessages(ctx context.Context, customerID string, onMessages func([]models.ChatMessage), opts ...SubscribeOption) (*Subscription, error) {
	if err := realtime.ValidateKey(customerID); err != nil {
		return nil, fmt.Errorf("%w: customer id: %v", models.ErrInvalidArgument, err)
	}
	o := uc.subscribeOptions(opts)
	sub := newSubscription("messages", o.onError, uc.metrics.subscriptions.WithLabelValues("messages"))

	detectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.detectTimeout)
	if !sub.add(cancel) {
		return sub, nil
	}

	go func() {
		defer cancel()
		binding, err := uc.detectShape(detectCtx, customerID, sub.report)
		if err != nil {
			sub.report(err)
			return
		}
		if sub.Closed() {
			return
		}
		log.Debugw(ctx, "message shape detected", "customer_id", customerID, "shape", binding.Shape.String())

		unsub, err := uc.channel.Subscribe(context.WithoutCancel(ctx), binding.Path, func(snap realtime.Snapshot) {
			emit(sub, binding.Messages(snap), onMessages)
		}, sub.report)
		if err != nil {
			sub.report(fmt.Errorf("subscribe %s: %w", binding.Path, err))
			return
		}
		sub.add(unsub)
	}()
	return sub, nil
}

// GetMessages reads the normalized conversation of one customer once.
func (uc *ChatUseCase) GetMessages(ctx context.Context, customerID string) ([]models.ChatMessage, error) {
	binding, err := uc.DetectShape(ctx, customerID)
	if err != nil {
		return nil, err
	}
	snap, err := uc.channel.Get(ctx, binding.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", binding.Path, err)
	}
	return binding.Messages(snap), nil
}

// SendMessageParams contains parameters for sending a message
type SendMessageParams struct {
	CustomerID string `json:"customer_id" validate:"required"`
	AgentID    string `json:"agent_id" validate:"required"`
	AgentName  string `json:"agent_name"`
	Text       string `json:"message" validate:"required"`
}

// SendMessage writes an admin message to both nested layouts and refreshes
// the room summary in a single multi-path update. Nothing is reported as
// sent when the write fails.
func (uc *ChatUseCase) SendMessage(ctx context.Context, params SendMessageParams) (_ *models.ChatMessage, err error) {
	defer func(start time.Time) { uc.observe("send_message", start, err) }(time.Now())

	params.Text = strings.TrimSpace(params.Text)
	if err := uc.validate.Struct(params); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}
	for _, id := range []string{params.CustomerID, params.AgentID} {
		if err := realtime.ValidateKey(id); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
		}
	}
	if params.AgentName == "" {
		params.AgentName = "Admin"
	}

	roomMsgPath, err := uc.channel.Push(ctx, roomMessagesPath(params.CustomerID))
	if err != nil {
		return nil, fmt.Errorf("generate message key: %w", err)
	}
	customerMsgPath, err := uc.channel.Push(ctx, customerMessagesPath(params.CustomerID))
	if err != nil {
		return nil, fmt.Errorf("generate message key: %w", err)
	}

	now := uc.nowMillis()
	record := models.MessageRecord{
		SenderID:    params.AgentID,
		SenderName:  params.AgentName,
		SenderRole:  models.SenderRoleAdmin,
		ReceiverID:  params.CustomerID,
		CustomerID:  params.CustomerID,
		MessageText: params.Text,
		Message:     params.Text,
		Timestamp:   now,
		Type:        "text",
		Read:        false,
	}
	room := roomPath(params.CustomerID)
	fields := map[string]any{
		roomMsgPath:     record.Fields(),
		customerMsgPath: record.Fields(),
	}
	fields[realtime.Join(room, models.RoomFieldLastMessage)] = params.Text
	fields[realtime.Join(room, models.RoomFieldLastMessageTimestamp)] = now
	fields[realtime.Join(room, models.RoomFieldUnreadCountCustomer)] = 1
	if err := uc.channel.Update(ctx, "", fields); err != nil {
		return nil, fmt.Errorf("write message: %w", err)
	}

	msg := &models.ChatMessage{
		ID:         realtime.Snapshot{Path: roomMsgPath}.Key(),
		SenderID:   params.AgentID,
		SenderName: params.AgentName,
		SenderRole: models.SenderRoleAdmin,
		Message:    params.Text,
		Timestamp:  now,
	}
	log.Infow(ctx, "message sent", "customer_id", params.CustomerID, "message_id", msg.ID)

	uc.publish(ctx, models.ChatEvent{
		Type:       models.EventMessageSent,
		CustomerID: params.CustomerID,
		AgentID:    params.AgentID,
		MessageID:  msg.ID,
		Message:    params.Text,
		Timestamp:  now,
	})
	return msg, nil
}

// MarkMessagesAsRead flips unread customer messages to read in both nested
// layouts and resets the admin unread counter of the room. It returns the
// number of distinct messages flipped; a copy stored in both layouts counts
// once even under different keys. A call with nothing to change writes
// nothing.
func (uc *ChatUseCase) MarkMessagesAsRead(ctx context.Context, customerID string) (_ int, err error) {
	defer func(start time.Time) { uc.observe("mark_read", start, err) }(time.Now())

	if err := realtime.ValidateKey(customerID); err != nil {
		return 0, fmt.Errorf("%w: customer id: %v", models.ErrInvalidArgument, err)
	}

	locations := []string{customerMessagesPath(customerID), roomMessagesPath(customerID)}
	counterPath := realtime.Join(roomPath(customerID), models.RoomFieldUnreadCountAdmin)
	reads := append(append([]string{}, locations...), counterPath)
	snaps := make([]realtime.Snapshot, len(reads))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range reads {
		g.Go(func() error {
			snap, err := uc.channel.Get(gctx, path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			snaps[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	flipped := map[string]struct{}{}
	for i, path := range locations {
		fields := map[string]any{}
		for _, child := range snaps[i].Children() {
			msg := NormalizeMessage(child.Key(), child.Value, customerID)
			if msg.SenderRole != models.SenderRoleCustomer || msg.Read {
				continue
			}
			fields[realtime.Join(child.Key(), models.FieldRead)] = true
			flipped[readIdentity(msg)] = struct{}{}
		}
		if len(fields) == 0 {
			continue
		}
		if err := uc.channel.Update(ctx, path, fields); err != nil {
			return 0, fmt.Errorf("mark read %s: %w", path, err)
		}
	}

	// a zero or missing counter needs no reset
	if toInt64(snaps[len(locations)].Value) != 0 {
		if err := uc.channel.Update(ctx, roomPath(customerID), map[string]any{models.RoomFieldUnreadCountAdmin: 0}); err != nil {
			return 0, fmt.Errorf("reset unread counter: %w", err)
		}
	}

	if len(flipped) > 0 {
		log.Infow(ctx, "messages marked as read", "customer_id", customerID, "count", len(flipped))
		uc.publish(ctx, models.ChatEvent{
			Type:       models.EventMessagesRead,
			CustomerID: customerID,
			Count:      len(flipped),
			Timestamp:  uc.nowMillis(),
		})
	}
	return len(flipped), nil
}

// readIdentity matches the two stored copies of one fanned-out message.
func readIdentity(msg models.ChatMessage) string {
	if msg.Timestamp == 0 {
		return "key:" + msg.ID
	}
	return fmt.Sprintf("%s|%d|%s", msg.SenderID, msg.Timestamp, msg.Message)
}

// UpdateAgentStatus publishes the agent's presence record.
func (uc *ChatUseCase) UpdateAgentStatus(ctx context.Context, agentID string, isOnline bool) (err error) {
	defer func(start time.Time) { uc.observe("agent_status", start, err) }(time.Now())

	if err := realtime.ValidateKey(agentID); err != nil {
		return fmt.Errorf("%w: agent id: %v", models.ErrInvalidArgument, err)
	}
	now := uc.nowMillis()
	err = uc.channel.Update(ctx, presencePath(agentID), map[string]any{
		models.PresenceFieldIsOnline: isOnline,
		models.PresenceFieldLastSeen: now,
	})
	if err != nil {
		return fmt.Errorf("update presence: %w", err)
	}

	uc.publish(ctx, models.ChatEvent{
		Type:      models.EventAgentStatus,
		AgentID:   agentID,
		IsOnline:  util.Ptr(isOnline),
		Timestamp: now,
	})
	return nil
}

// publish sends the event in the background; failures are only logged.
func (uc *ChatUseCase) publish(ctx context.Context, event models.ChatEvent) {
	if uc.events == nil {
		return
	}
	uc.wg.Add(1)
	go func() {
		defer uc.wg.Done()
		ctx, cancel := util.NewTimeoutContext(ctx, eventPublishTimeout)
		defer cancel()
		if err := uc.events.Publish(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
			log.Warnw(ctx, "failed to publish chat event", "type", event.Type, "error", err)
		}
	}()
}

// Wait blocks until background event publishing has finished.
func (uc *ChatUseCase) Wait() {
	uc.wg.Wait()
}
