package graphql

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"golang.org/x/sync/errgroup"

	"github.com/c360/socialgate/events"
)

// Websocket protocol frame types (graphql-ws wire protocol).
const (
	wsConnectionInit      = "connection_init"
	wsConnectionAck       = "connection_ack"
	wsConnectionTerminate = "connection_terminate"
	wsStart               = "start"
	wsStop                = "stop"
	wsData                = "data"
	wsError               = "error"
	wsComplete            = "complete"
	wsKeepAlive           = "ka"
)

const (
	writeWait        = 10 * time.Second
	keepAlivePeriod  = 20 * time.Second
	maxFrameSize     = 1 << 20
	sendQueueBacklog = 16
)

// wsFrame is one protocol frame in either direction.
type wsFrame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// subscriber is one websocket connection carrying any number of active
// subscription operations.
type subscriber struct {
	conn *websocket.Conn
	send chan wsFrame
	done chan struct{}

	mu   sync.Mutex
	subs map[string]*ast.Field // operation id -> subscription root field

	closeOnce sync.Once
}

func (c *subscriber) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// enqueue queues a frame without blocking the event path. A subscriber that
// cannot drain its queue is dropped rather than stalling every other client.
func (c *subscriber) enqueue(f wsFrame) bool {
	select {
	case <-c.done:
		return false
	case c.send <- f:
		return true
	default:
		return false
	}
}

func (c *subscriber) operations() map[string]*ast.Field {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*ast.Field, len(c.subs))
	for id, f := range c.subs {
		out[id] = f
	}
	return out
}

// subscriptionServer owns the websocket transport: connection lifecycle,
// protocol frames, and the fanout of bus events to active operations. Every
// delivered event gets a fresh subscription context, so nothing leaks from
// one delivery into the next.
type subscriptionServer struct {
	builder  *ContextBuilder
	executor *Executor
	bus      events.Bus
	metrics  *gatewayMetrics
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	clients   map[*subscriber]struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	cancelBus func()
}

func newSubscriptionServer(builder *ContextBuilder, executor *Executor, bus events.Bus, metrics *gatewayMetrics, logger *slog.Logger) *subscriptionServer {
	return &subscriptionServer{
		builder:  builder,
		executor: executor,
		bus:      bus,
		metrics:  metrics,
		logger:   logger.With("component", "subscriptions"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			Subprotocols:    []string{"graphql-ws"},
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*subscriber]struct{}),
	}
}

// start subscribes to the event bus. Deliveries stop when ctx is cancelled
// or stop is called.
func (s *subscriptionServer) start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)
	cancelBus, err := s.bus.Subscribe(s.ctx, s.dispatch)
	if err != nil {
		s.logger.Error("Event bus subscribe failed, subscriptions inactive", "error", err)
		return
	}
	s.cancelBus = cancelBus
	s.logger.Info("Subscription transport started")
}

func (s *subscriptionServer) stop() {
	s.mu.Lock()
	if s.cancelBus != nil {
		s.cancelBus()
		s.cancelBus = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	clients := make([]*subscriber, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	s.logger.Info("Subscription transport stopped")
}

// handleUpgrade promotes an HTTP request to a subscription connection.
func (s *subscriptionServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	c := &subscriber{
		conn: conn,
		send: make(chan wsFrame, sendQueueBacklog),
		done: make(chan struct{}),
		subs: make(map[string]*ast.Field),
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.metrics.clientConnected()
	s.logger.Info("Subscription client connected", "remote", conn.RemoteAddr().String())

	go s.writePump(c)
	s.readPump(c)
}

// readPump drives the protocol state machine for one connection. It runs on
// the upgrade goroutine and returns when the connection dies.
func (s *subscriptionServer) readPump(c *subscriber) {
	defer s.dropClient(c)

	for {
		var frame wsFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("Subscription client read error", "error", err)
			}
			return
		}

		switch frame.Type {
		case wsConnectionInit:
			c.enqueue(wsFrame{Type: wsConnectionAck})

		case wsStart:
			s.handleStart(c, frame)

		case wsStop:
			c.mu.Lock()
			delete(c.subs, frame.ID)
			c.mu.Unlock()
			c.enqueue(wsFrame{ID: frame.ID, Type: wsComplete})

		case wsConnectionTerminate:
			return
		}
	}
}

// handleStart registers one subscription operation on the connection.
func (s *subscriptionServer) handleStart(c *subscriber, frame wsFrame) {
	var req Request
	if err := json.Unmarshal(frame.Payload, &req); err != nil {
		s.sendError(c, frame.ID, "start payload is not a GraphQL request")
		return
	}

	doc, perr := parser.ParseQuery(&ast.Source{Name: "subscription", Input: req.Query})
	if perr != nil {
		s.sendError(c, frame.ID, perr.Error())
		return
	}
	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		s.sendError(c, frame.ID, "operation not found in document")
		return
	}
	if op.Operation != ast.Subscription {
		s.sendError(c, frame.ID, "only subscription operations are accepted on this transport")
		return
	}
	if len(op.SelectionSet) != 1 {
		s.sendError(c, frame.ID, "subscriptions select exactly one root field")
		return
	}
	field, ok := op.SelectionSet[0].(*ast.Field)
	if !ok {
		s.sendError(c, frame.ID, "fragments are not supported")
		return
	}
	if eventTypeFor(field.Name) == "" {
		s.sendError(c, frame.ID, "unknown subscription field "+field.Name)
		return
	}

	c.mu.Lock()
	c.subs[frame.ID] = field
	c.mu.Unlock()
}

// dispatch fans one bus event out to every matching operation. Each delivery
// is its own operation: fresh context, fresh caches, own metrics sample.
func (s *subscriptionServer) dispatch(ctx context.Context, ev events.Event) {
	s.mu.Lock()
	clients := make([]*subscriber, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range clients {
		g.Go(func() error {
			s.deliver(gctx, c, ev)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *subscriptionServer) deliver(ctx context.Context, c *subscriber, ev events.Event) {
	for id, field := range c.operations() {
		if eventTypeFor(field.Name) != ev.Type {
			continue
		}

		start := time.Now()
		oc := s.builder.Subscription(ctx)
		val, err := s.executor.projectEvent(WithOperation(ctx, oc), field, ev)
		s.metrics.record(KindSubscription, start, err)
		if err != nil {
			s.logger.Warn("Subscription delivery failed",
				"field", field.Name, "error", err)
			s.sendError(c, id, PresentError(err, field.Name).Message)
			continue
		}

		payload, err := json.Marshal(map[string]any{
			"data": map[string]any{fieldKey(field): val},
		})
		if err != nil {
			s.logger.Error("Subscription payload encoding failed", "error", err)
			continue
		}
		if !c.enqueue(wsFrame{ID: id, Type: wsData, Payload: payload}) {
			s.logger.Warn("Subscription client too slow, dropping",
				"remote", c.conn.RemoteAddr().String())
			s.dropClient(c)
			return
		}
	}
}

// writePump serializes all writes to one connection and emits keep-alives.
func (s *subscriptionServer) writePump(c *subscriber) {
	ticker := time.NewTicker(keepAlivePeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(wsFrame{Type: wsKeepAlive}); err != nil {
				return
			}
		}
	}
}

func (s *subscriptionServer) dropClient(c *subscriber) {
	s.mu.Lock()
	_, present := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()

	if !present {
		return
	}
	c.close()
	s.metrics.clientDisconnected()
	s.logger.Info("Subscription client disconnected")
}

func (s *subscriptionServer) sendError(c *subscriber, id, message string) {
	payload, _ := json.Marshal(map[string]string{"message": message})
	c.enqueue(wsFrame{ID: id, Type: wsError, Payload: payload})
}

// eventTypeFor maps a subscription root field to the bus event type it
// listens for. Empty means the field is unknown.
func eventTypeFor(field string) string {
	switch field {
	case "messageCreated":
		return events.TypeMessageCreated
	case "messageDeleted":
		return events.TypeMessageDeleted
	}
	return ""
}
