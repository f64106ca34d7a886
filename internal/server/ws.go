package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	eventbus "github.com/hanpama/splgraph/internal/eventbus"
	events "github.com/hanpama/splgraph/internal/events"
	executor "github.com/hanpama/splgraph/internal/executor"
	language "github.com/hanpama/splgraph/internal/language"
	reqid "github.com/hanpama/splgraph/internal/reqid"
)

// Subprotocol is the WebSocket subprotocol spoken on the GraphQL endpoint.
const Subprotocol = "graphql-transport-ws"

// graphql-transport-ws message types.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

// Close codes defined by graphql-transport-ws.
const (
	closeBadRequest          = 4400
	closeUnauthorized        = 4401
	closeInitTimeout         = 4408
	closeSubscriberExists    = 4409
	closeTooManyInitRequests = 4429
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		Subprotocols: []string{Subprotocol},
		CheckOrigin: func(r *http.Request) bool {
			if !h.opt.CORS.enabled() {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || h.opt.CORS.allows(origin)
		},
	}
}

func (h *Handler) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		return
	}
	if conn.Subprotocol() != Subprotocol {
		closeConn(conn, websocket.CloseProtocolError, "unsupported subprotocol")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	ctx, _ = reqid.NewContext(ctx)

	c := &wsConn{
		h:      h,
		conn:   conn,
		ctx:    ctx,
		active: map[string]context.CancelFunc{},
	}
	c.serve()
}

// wsConn is one graphql-transport-ws connection. Reads happen on the serving
// goroutine, every operation runs on its own goroutine and writes are
// serialized by mu.
type wsConn struct {
	h    *Handler
	conn *websocket.Conn
	ctx  context.Context

	mu     sync.Mutex
	acked  bool
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

func (c *wsConn) serve() {
	defer func() {
		c.mu.Lock()
		for _, cancel := range c.active {
			cancel()
		}
		c.mu.Unlock()
		c.wg.Wait()
		_ = c.conn.Close()
	}()

	initTimer := time.AfterFunc(c.h.opt.ConnectionInitTimeout, func() {
		c.mu.Lock()
		acked := c.acked
		c.mu.Unlock()
		if !acked {
			c.close(closeInitTimeout, "Connection initialisation timeout")
		}
	})
	defer initTimer.Stop()

	for {
		var msg wsMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		if !c.handle(msg) {
			return
		}
	}
}

// handle processes one client message and reports whether the connection
// stays open.
func (c *wsConn) handle(msg wsMessage) bool {
	switch msg.Type {
	case msgConnectionInit:
		c.mu.Lock()
		if c.acked {
			c.mu.Unlock()
			c.close(closeTooManyInitRequests, "Too many initialisation requests")
			return false
		}
		c.acked = true
		c.mu.Unlock()
		c.send(wsMessage{Type: msgConnectionAck})

	case msgPing:
		c.send(wsMessage{Type: msgPong})

	case msgPong:

	case msgSubscribe:
		c.mu.Lock()
		acked := c.acked
		c.mu.Unlock()
		if !acked {
			c.close(closeUnauthorized, "Unauthorized")
			return false
		}
		if msg.ID == "" {
			c.close(closeBadRequest, "Subscribe message requires an id")
			return false
		}
		var req GraphQLRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.Query == "" {
			c.close(closeBadRequest, "Invalid subscribe payload")
			return false
		}
		ctx, cancel := context.WithCancel(c.ctx)
		c.mu.Lock()
		if _, exists := c.active[msg.ID]; exists {
			c.mu.Unlock()
			cancel()
			c.close(closeSubscriberExists, "Subscriber for "+msg.ID+" already exists")
			return false
		}
		c.active[msg.ID] = cancel
		c.mu.Unlock()

		// each operation is traced and logged on its own
		opCtx, _ := reqid.NewContext(ctx)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.run(opCtx, msg.ID, req)
		}()

	case msgComplete:
		c.mu.Lock()
		cancel, ok := c.active[msg.ID]
		delete(c.active, msg.ID)
		c.mu.Unlock()
		if ok {
			cancel()
		}

	default:
		c.close(closeBadRequest, "Unknown message type "+msg.Type)
		return false
	}
	return true
}

// run executes one operation and streams its results to the client.
func (c *wsConn) run(ctx context.Context, id string, req GraphQLRequest) {
	defer func() {
		c.mu.Lock()
		if cancel, ok := c.active[id]; ok {
			cancel()
			delete(c.active, id)
		}
		c.mu.Unlock()
	}()

	doc, errs := c.h.prepare(req.Query)
	if errs != nil {
		c.sendPayload(id, msgError, errs)
		return
	}

	opType := operationType(doc, req.OperationName)
	if opType != language.Subscription {
		res := c.h.execute(ctx, req, doc, opType)
		c.sendPayload(id, msgNext, responseFrom(res))
		c.sendComplete(ctx, id)
		return
	}

	stream, err := c.h.exec.Subscribe(ctx, executor.Params{
		Document:      doc,
		OperationName: req.OperationName,
		Variables:     req.Variables,
	})
	if err != nil {
		c.sendPayload(id, msgError, []responseError{{Message: err.Error()}})
		return
	}

	start := time.Now()
	eventbus.Publish(ctx, events.SubscriptionStart{OperationName: req.OperationName})
	results := 0
	for res := range stream {
		results++
		c.sendPayload(id, msgNext, responseFrom(res))
	}
	eventbus.Publish(ctx, events.SubscriptionFinish{
		OperationName: req.OperationName,
		Results:       results,
		Duration:      time.Since(start),
	})
	c.sendComplete(ctx, id)
}

// sendComplete tells the client an operation ended, unless the client
// completed it first.
func (c *wsConn) sendComplete(ctx context.Context, id string) {
	if ctx.Err() != nil && c.ctx.Err() == nil {
		c.mu.Lock()
		_, stillActive := c.active[id]
		c.mu.Unlock()
		if !stillActive {
			return
		}
	}
	c.send(wsMessage{ID: id, Type: msgComplete})
}

func (c *wsConn) sendPayload(id, typ string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw, _ = json.Marshal([]responseError{{Message: err.Error()}})
		typ = msgError
	}
	c.send(wsMessage{ID: id, Type: typ, Payload: raw})
}

func (c *wsConn) send(msg wsMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteJSON(msg)
}

func (c *wsConn) close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	closeConn(c.conn, code, reason)
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}
