// Package channel - постоянное двунаправленное соединение с сервером
// координации. Входящие кадры разбираются на границе в protocol.Message
// и доставляются обработчикам одной горутиной в порядке поступления.
package channel

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shenikar/emergency_response_client/internal/protocol"
	"github.com/sirupsen/logrus"
)

const (
	// pingInterval - как часто отправляем ping серверу
	pingInterval = 30 * time.Second

	// pongWait - без pong дольше этого соединение считается мертвым
	pongWait = 60 * time.Second

	// writeWait - таймаут на запись одного кадра
	writeWait = 10 * time.Second

	maxMessageSize = 64 * 1024

	inboxSize = 256
)

// Handler получает входящие сообщения одного вида
type Handler func(msg protocol.Message)

// Options - параметры подключения
type Options struct {
	URL    string
	Token  string
	Policy ReconnectPolicy
}

// Channel - общий на процесс канал реального времени
type Channel struct {
	url    string
	token  string
	policy ReconnectPolicy
	dialer Dialer
	logger *logrus.Logger

	mu        sync.Mutex
	conn      Conn
	state     State
	closed    bool
	stop      chan struct{}
	inbox     chan event
	handlers  map[protocol.Kind][]*Subscription
	listeners []*Subscription
	nextID    uint64

	writeMu sync.Mutex
}

// event - элемент единой очереди доставки: сообщение или смена состояния.
// last - последнее событие очереди, после него цикл доставки завершается.
type event struct {
	msg   protocol.Message
	state State
	last  bool
}

func New(opts Options, dialer Dialer, logger *logrus.Logger) *Channel {
	policy := opts.Policy
	if policy.Attempts <= 0 {
		policy = DefaultReconnectPolicy()
	}
	return &Channel{
		url:      opts.URL,
		token:    opts.Token,
		policy:   policy,
		dialer:   dialer,
		logger:   logger,
		state:    StateDisconnected,
		handlers: make(map[protocol.Kind][]*Subscription),
	}
}

// Connect подключается к серверу. Ошибки: ErrAuthRejected, ErrNetwork.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.closed = false
	if c.stop == nil {
		c.stop = make(chan struct{})
		c.inbox = make(chan event, inboxSize)
		go c.dispatch(c.stop, c.inbox)
	}
	stop := c.stop
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	log := c.logger.WithFields(logrus.Fields{
		"component": "channel",
		"method":    "Connect",
		"url":       c.url,
	})
	log.Info("Connecting to coordination server")

	conn, err := c.dialer.Dial(ctx, c.url, c.header())
	if err != nil {
		log.WithError(err).Error("Failed to connect to coordination server")
		c.mu.Lock()
		if c.stop == stop {
			c.setStateLocked(StateDisconnected)
		}
		c.mu.Unlock()
		return err
	}

	if !c.attach(conn, stop) {
		return errors.New("channel disconnected during connect")
	}
	log.Info("Connected to coordination server")
	return nil
}

func (c *Channel) header() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	h.Set("X-Client-Session", uuid.NewString())
	return h
}

// attach подключает новое соединение, если канал не закрыли за время набора
func (c *Channel) attach(conn Conn, stop chan struct{}) bool {
	c.mu.Lock()
	if c.closed || c.stop != stop {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	replaced := c.conn
	c.conn = conn
	c.setStateLocked(StateConnected)
	inbox := c.inbox
	c.mu.Unlock()

	// readPump старого соединения увидит c.conn != conn и не начнет переподключение
	if replaced != nil && replaced != conn {
		_ = replaced.Close()
	}

	connDone := make(chan struct{})
	go c.readPump(conn, stop, inbox, connDone)
	go c.pingLoop(conn, stop, connDone)
	return true
}

func (c *Channel) readPump(conn Conn, stop chan struct{}, inbox chan event, connDone chan struct{}) {
	defer close(connDone)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(conn, err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		msg, err := protocol.Decode(frame)
		if err != nil {
			var unknown *protocol.UnknownEventError
			if errors.As(err, &unknown) {
				c.logger.WithField("event", unknown.Event).Debug("Ignoring unknown channel event")
			} else {
				c.logger.WithError(err).Warn("Failed to decode channel message")
			}
			continue
		}

		select {
		case inbox <- event{msg: msg}:
		case <-stop:
			return
		}
	}
}

func (c *Channel) pingLoop(conn Conn, stop chan struct{}, connDone chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-connDone:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

// handleDrop переводит канал в переподключение после обрыва
func (c *Channel) handleDrop(conn Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	_ = conn.Close()
	if c.closed {
		c.mu.Unlock()
		return
	}
	stop := c.stop
	c.setStateLocked(StateReconnecting)
	c.mu.Unlock()

	if websocket.IsUnexpectedCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.WithError(cause).Warn("Channel connection lost, reconnecting")
	} else {
		c.logger.WithError(cause).Info("Channel connection closed, reconnecting")
	}
	go c.reconnect(stop)
}

// reconnect делает ограниченное число попыток с фиксированной задержкой
func (c *Channel) reconnect(stop chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for attempt := 1; attempt <= c.policy.Attempts; attempt++ {
		timer := time.NewTimer(c.policy.Delay)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}
		if c.State() == StateConnected {
			return
		}

		log := c.logger.WithFields(logrus.Fields{
			"component":    "channel",
			"attempt":      attempt,
			"max_attempts": c.policy.Attempts,
		})

		conn, err := c.dialer.Dial(ctx, c.url, c.header())
		if err != nil {
			log.WithError(err).Warn("Reconnection attempt failed")
			continue
		}
		if c.attach(conn, stop) {
			log.Info("Channel reconnected")
		}
		return
	}

	c.mu.Lock()
	if c.stop == stop && !c.closed {
		c.setStateLocked(StateFailed)
	}
	c.mu.Unlock()
	c.logger.WithField("attempts", c.policy.Attempts).Error("Channel reconnection attempts exhausted")
}

// Send отправляет сообщение без подтверждения. Без соединения - no-op.
func (c *Channel) Send(msg protocol.Message) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		c.logger.WithError(err).Error("Failed to encode channel message")
		return
	}

	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if conn == nil || state != StateConnected {
		c.logger.WithFields(logrus.Fields{
			"event": msg.Kind().Event(),
			"state": state.String(),
		}).Debug("Channel not connected, dropping message")
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.WithError(err).WithField("event", msg.Kind().Event()).Warn("Failed to write channel message")
		// readPump увидит закрытие и запустит переподключение
		_ = conn.Close()
	}
}

// Disconnect закрывает соединение; переподключения после него нет.
// StateDisconnected доставляется слушателям через очередь, после
// уже выполняющегося обработчика.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.stop == nil {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.stop)
	c.stop = nil
	inbox := c.inbox
	c.inbox = nil
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	c.logger.WithField("component", "channel").Info("Channel disconnected")

	last := event{state: StateDisconnected, last: true}
	select {
	case inbox <- last:
	default:
		go func() { inbox <- last }()
	}
}

// State возвращает текущее состояние соединения
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// On регистрирует обработчик; подписку нужно освободить через Release
func (c *Channel) On(kind protocol.Kind, handler Handler) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	sub := &Subscription{channel: c, id: c.nextID, kind: kind, handler: handler}
	c.handlers[kind] = append(c.handlers[kind], sub)
	return sub
}

// OnStateChange подписывает на смену состояния соединения
func (c *Channel) OnStateChange(fn func(State)) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	sub := &Subscription{channel: c, id: c.nextID, onState: fn}
	c.listeners = append(c.listeners, sub)
	return sub
}

// HandlerCount - число живых обработчиков события
func (c *Channel) HandlerCount(kind protocol.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[kind])
}

func (c *Channel) release(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub.onState != nil {
		c.listeners = removeSub(c.listeners, sub)
		return
	}
	c.handlers[sub.kind] = removeSub(c.handlers[sub.kind], sub)
	if len(c.handlers[sub.kind]) == 0 {
		delete(c.handlers, sub.kind)
	}
}

func removeSub(list []*Subscription, sub *Subscription) []*Subscription {
	out := list[:0]
	for _, s := range list {
		if s != sub {
			out = append(out, s)
		}
	}
	for i := len(out); i < len(list); i++ {
		list[i] = nil
	}
	return out
}

// setStateLocked ставит состояние в очередь доставки; вызывается под c.mu
func (c *Channel) setStateLocked(state State) {
	if c.state == state {
		return
	}
	c.state = state
	if c.inbox == nil {
		return
	}
	select {
	case c.inbox <- event{state: state}:
	default:
		c.logger.WithField("state", state.String()).Warn("Channel inbox full, state change not delivered")
	}
}

func (c *Channel) activeListenersLocked() []*Subscription {
	return append([]*Subscription(nil), c.listeners...)
}

func (c *Channel) dispatch(stop chan struct{}, inbox chan event) {
	for ev := range inbox {
		if ev.msg == nil {
			c.mu.Lock()
			listeners := c.activeListenersLocked()
			c.mu.Unlock()
			for _, l := range listeners {
				c.invokeState(l, ev.state)
			}
			if ev.last {
				return
			}
			continue
		}

		// после Disconnect сообщения из очереди не доставляются
		select {
		case <-stop:
			continue
		default:
		}

		c.mu.Lock()
		subs := append([]*Subscription(nil), c.handlers[ev.msg.Kind()]...)
		c.mu.Unlock()
		for _, s := range subs {
			c.invoke(s, ev.msg)
		}
	}
}

func (c *Channel) invoke(s *Subscription, msg protocol.Message) {
	if s.released.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("event", msg.Kind().Event()).Errorf("Channel handler panicked: %v", r)
		}
	}()
	s.handler(msg)
}

func (c *Channel) invokeState(s *Subscription, state State) {
	if s.released.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("state", state.String()).Errorf("Channel state listener panicked: %v", r)
		}
	}()
	s.onState(state)
}

// Subscription - зарегистрированный обработчик. Release идемпотентен.
type Subscription struct {
	channel  *Channel
	id       uint64
	kind     protocol.Kind
	handler  Handler
	onState  func(State)
	released atomic.Bool
}

func (s *Subscription) Release() {
	if s == nil || !s.released.CompareAndSwap(false, true) {
		return
	}
	if s.channel != nil {
		s.channel.release(s)
	}
}

// Released - подписка уже освобождена
func (s *Subscription) Released() bool {
	return s.released.Load()
}

// Kind - вид сообщения, на который подписан обработчик
func (s *Subscription) Kind() protocol.Kind {
	return s.kind
}
