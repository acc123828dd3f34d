package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/config"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
	pkgmdw "github.com/nguyentranbao-ct/field-booking-admin/internal/server/middleware"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/usecase"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/logger"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/util"
)

// Frame types exchanged over the chat socket.
const (
	FrameRooms    = "rooms"
	FrameMessages = "messages"
	FrameSent     = "sent"
	FrameRead     = "read"
	FrameError    = "error"

	FrameSelect = "select"
	FrameSend   = "send"
	FrameMark   = "mark_read"
)

const (
	maxFrameSize     = 64 << 10
	defaultWriteWait = 10 * time.Second
	defaultPingEvery = 30 * time.Second
)

// ClientFrame is a command sent by the dashboard.
type ClientFrame struct {
	Type       string `json:"type"`
	CustomerID string `json:"customer_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ServerFrame is pushed to the dashboard.
type ServerFrame struct {
	Type       string `json:"type"`
	CustomerID string `json:"customer_id,omitempty"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
}

type SocketHandler struct {
	chat      *usecase.ChatUseCase
	upgrader  websocket.Upgrader
	writeWait time.Duration
	pingEvery time.Duration
	log       *logger.Logger
	active    prometheus.Gauge

	mu       sync.Mutex
	sessions map[*socketSession]struct{}
	wg       sync.WaitGroup
}

func NewSocketHandler(conf *config.Config, chat *usecase.ChatUseCase) (*SocketHandler, error) {
	gauge, err := util.GetGaugeVec("chat_socket_connections", "Open dashboard sockets")
	if err != nil {
		return nil, err
	}
	origins := pkgmdw.CORSPattern(conf.Server.CORSOrigins)
	writeWait, pingEvery := conf.Chat.SocketWriteWait, conf.Chat.SocketPingEvery
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	if pingEvery <= 0 {
		pingEvery = defaultPingEvery
	}
	return &SocketHandler{
		chat: chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins.MatchString(origin)
			},
		},
		writeWait: writeWait,
		pingEvery: pingEvery,
		log:       logger.MustNamed("socket"),
		active:    gauge.WithLabelValues(),
		sessions:  make(map[*socketSession]struct{}),
	}, nil
}

// Serve upgrades the request and runs the session until the client leaves.
// The agent is marked online for as long as the rooms feed is open.
func (h *SocketHandler) Serve(c echo.Context) error {
	agent := pkgmdw.GetAgent(c)
	if agent == nil {
		return models.ErrUnauthorized
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already answered the client
		h.log.Warnw("upgrade failed", "agent_id", agent.ID, "error", err)
		return nil
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	s := &socketSession{
		h:      h,
		conn:   conn,
		agent:  agent,
		outbox: newOutbox(),
	}
	h.track(s)
	defer h.untrack(s)

	s.run(ctx)
	return nil
}

func (h *SocketHandler) track(s *socketSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = struct{}{}
	h.wg.Add(1)
	h.active.Inc()
}

func (h *SocketHandler) untrack(s *socketSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s)
	h.wg.Done()
	h.active.Dec()
}

// Shutdown closes every open socket and waits until their sessions have
// released presence and subscriptions. The HTTP server does not track
// hijacked connections, so this must run alongside its shutdown.
func (h *SocketHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for s := range h.sessions {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type socketSession struct {
	h      *SocketHandler
	conn   *websocket.Conn
	agent  *models.Agent
	outbox *outbox

	rooms    *usecase.Subscription
	selector *usecase.RoomSelector
}

func (s *socketSession) run(ctx context.Context) {
	log := s.h.log.With("agent_id", s.agent.ID)
	log.Infow("socket opened")
	defer log.Infow("socket closed")

	onError := usecase.WithErrorHandler(func(err error) {
		s.outbox.pushError("", err)
	})

	s.selector = s.h.chat.NewRoomSelector(func(customerID string, msgs []models.ChatMessage) {
		s.outbox.setMessages(customerID, msgs)
	}, onError)
	defer s.selector.Close()

	rooms, err := s.h.chat.SubscribeToRooms(ctx, s.agent.ID, s.outbox.setRooms, onError)
	if err != nil {
		log.Errorw("subscribe rooms", "error", err)
		s.outbox.pushError("", err)
	} else {
		s.rooms = rooms
		defer s.rooms.Close()
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx)
	}()

	s.readLoop(ctx)
	s.outbox.close()
	<-writerDone
	_ = s.conn.Close()
}

func (s *socketSession) readLoop(ctx context.Context) {
	pongWait := s.h.pingEvery * 2
	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.h.log.Debugw("read frame", "agent_id", s.agent.ID, "error", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.outbox.pushError("", fmt.Errorf("%w: malformed frame", models.ErrInvalidArgument))
			continue
		}
		s.handle(ctx, frame)
	}
}

func (s *socketSession) handle(ctx context.Context, frame ClientFrame) {
	switch frame.Type {
	case FrameSelect:
		s.outbox.keepMessagesOf(frame.CustomerID)
		if err := s.selector.Select(ctx, frame.CustomerID); err != nil {
			s.outbox.pushError(frame.CustomerID, err)
			return
		}
		s.markRead(ctx, frame.CustomerID)
	case FrameMark:
		s.markRead(ctx, frame.CustomerID)
	case FrameSend:
		msg, err := s.h.chat.SendMessage(ctx, usecase.SendMessageParams{
			CustomerID: frame.CustomerID,
			AgentID:    s.agent.ID,
			AgentName:  s.agent.DisplayName(),
			Text:       frame.Message,
		})
		if err != nil {
			s.outbox.pushError(frame.CustomerID, err)
			return
		}
		s.outbox.push(ServerFrame{Type: FrameSent, CustomerID: frame.CustomerID, Data: msg})
	default:
		s.outbox.pushError(frame.CustomerID, fmt.Errorf("%w: unknown frame type %q", models.ErrInvalidArgument, frame.Type))
	}
}

func (s *socketSession) markRead(ctx context.Context, customerID string) {
	n, err := s.h.chat.MarkMessagesAsRead(ctx, customerID)
	if err != nil {
		s.outbox.pushError(customerID, err)
		return
	}
	if n > 0 {
		s.outbox.push(ServerFrame{Type: FrameRead, CustomerID: customerID, Data: n})
	}
}

func (s *socketSession) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.h.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.h.writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case _, ok := <-s.outbox.ready:
			for _, frame := range s.outbox.drain() {
				_ = s.conn.SetWriteDeadline(time.Now().Add(s.h.writeWait))
				if err := s.conn.WriteJSON(frame); err != nil {
					s.h.log.Debugw("write frame", "agent_id", s.agent.ID, "error", err)
					_ = s.conn.Close()
					return
				}
			}
			if !ok {
				_ = s.conn.SetWriteDeadline(time.Now().Add(s.h.writeWait))
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}
}

// outbox keeps only the latest rooms list and the latest message list of
// the selected customer, so a slow client never builds up stale snapshots.
// Acknowledgements and errors are queued in order.
type outbox struct {
	mu       sync.Mutex
	rooms    *ServerFrame
	messages *ServerFrame
	keep     string
	events   []ServerFrame
	closed   bool
	ready    chan struct{}
}

func newOutbox() *outbox {
	return &outbox{ready: make(chan struct{}, 1)}
}

func (o *outbox) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}

func (o *outbox) setRooms(rooms []models.ChatRoom) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if rooms == nil {
		rooms = []models.ChatRoom{}
	}
	o.rooms = &ServerFrame{Type: FrameRooms, Data: rooms}
	o.signal()
}

func (o *outbox) setMessages(customerID string, msgs []models.ChatMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || customerID != o.keep {
		return
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	o.messages = &ServerFrame{Type: FrameMessages, CustomerID: customerID, Data: msgs}
	o.signal()
}

// keepMessagesOf drops a pending message list of any other customer.
func (o *outbox) keepMessagesOf(customerID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.keep = customerID
	if o.messages != nil && o.messages.CustomerID != customerID {
		o.messages = nil
	}
}

func (o *outbox) push(frame ServerFrame) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.events = append(o.events, frame)
	o.signal()
}

func (o *outbox) pushError(customerID string, err error) {
	o.push(ServerFrame{Type: FrameError, CustomerID: customerID, Error: err.Error()})
}

func (o *outbox) drain() []ServerFrame {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]ServerFrame, 0, len(o.events)+2)
	if o.rooms != nil {
		out = append(out, *o.rooms)
		o.rooms = nil
	}
	if o.messages != nil {
		out = append(out, *o.messages)
		o.messages = nil
	}
	out = append(out, o.events...)
	o.events = nil
	return out
}

func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.ready)
}
