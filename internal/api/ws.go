package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ta-engine/internal/logger"
	"ta-engine/internal/service"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsReadLimit    = 1 << 20
	wsMaxInFlight  = 4
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// ToolCall is one agent request.
type ToolCall struct {
	ID   json.RawMessage `json:"id"`
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ToolReply carries either Result or Error for the call with the same ID.
type ToolReply struct {
	ID     json.RawMessage    `json:"id"`
	Result any                `json:"result,omitempty"`
	Error  *service.ErrorBody `json:"error,omitempty"`
}

// session is one agent connection.
type session struct {
	conn  *websocket.Conn
	send  chan []byte
	done  chan struct{} // closed when the write side stops
	tools *Tools
	ctx   context.Context
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	ctx, tid := logger.EnsureTraceID(context.WithoutCancel(r.Context()))
	if s.metrics != nil {
		s.metrics.WSSessions.Inc()
	}
	slog.Info("agent session opened", "trace_id", tid, "remote", r.RemoteAddr)

	sess := &session{conn: conn, send: make(chan []byte, 64), done: make(chan struct{}), tools: s.tools, ctx: ctx}
	go sess.writePump()
	go func() {
		sess.readPump()
		if s.metrics != nil {
			s.metrics.WSSessions.Dec()
		}
		slog.Info("agent session closed", "trace_id", tid)
	}()
}

func (c *session) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		close(c.done)
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads calls until the peer goes away, then waits for in-flight
// calls and closes the send channel.
func (c *session) readPump() {
	ctx, cancel := context.WithCancel(c.ctx)
	var wg sync.WaitGroup
	sem := make(chan struct{}, wsMaxInFlight)
	defer func() {
		cancel()
		wg.Wait()
		close(c.send)
	}()

	c.conn.SetReadLimit(wsReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var call ToolCall
		if err := json.Unmarshal(msg, &call); err != nil {
			c.reply(ToolReply{Error: &service.ErrorBody{Kind: service.KindBadRequest, Message: "invalid call: " + err.Error()}})
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			c.reply(c.dispatch(ctx, call))
		}()
	}
}

func (c *session) dispatch(ctx context.Context, call ToolCall) ToolReply {
	start := time.Now()
	result, err := c.tools.Call(ctx, call.Tool, call.Args)
	if err != nil {
		slog.Debug("tool call failed", append(logger.LogWithTrace(ctx), "tool", call.Tool, "error", err)...)
		return ToolReply{ID: call.ID, Error: service.NewErrorBody(err)}
	}
	slog.Debug("tool call served", append(logger.LogWithTrace(ctx), "tool", call.Tool, "elapsed", time.Since(start))...)
	return ToolReply{ID: call.ID, Result: result}
}

func (c *session) reply(r ToolReply) {
	payload, err := json.Marshal(r)
	if err != nil {
		payload, _ = json.Marshal(ToolReply{ID: r.ID, Error: service.NewErrorBody(err)})
	}
	select {
	case c.send <- payload:
	case <-c.done:
	}
}
