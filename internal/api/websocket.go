package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thereceipt/printer-bridge/internal/bridge"
)

// WebSocket message types
const (
	EventCommand  = "command"
	EventState    = "state"
	EventResponse = "response"
	EventError    = "error"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// wsClient is one /events connection. It receives state changes and may
// send commands, which run in the order they arrive.
type wsClient struct {
	conn   *websocket.Conn
	send   chan WSMessage
	server *Server
	done   chan struct{}
	logger *zap.Logger
}

// handleEvents streams connection state and accepts commands.
func (s *Server) handleEvents(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{
		conn:   conn,
		send:   make(chan WSMessage, 64),
		server: s,
		done:   make(chan struct{}),
		logger: s.logger.With(zap.String("remote", c.Request.RemoteAddr)),
	}
	client.logger.Debug("event client connected")

	go client.writePump()
	go client.watchState()
	client.readPump()
}

func (c *wsClient) writePump() {
	defer c.conn.Close()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-c.done:
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// watchState pushes the current state and then every change.
func (c *wsClient) watchState() {
	last := bridge.State(-1)
	for {
		changed := c.server.bridge.Watch()
		if state := c.server.bridge.State(); state != last {
			last = state
			c.push(WSMessage{Event: EventState, Data: map[string]any{"state": state.String()}})
		}
		select {
		case <-changed:
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		close(c.done)
		c.logger.Debug("event client disconnected")
	}()

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		c.handleMessage(ctx, &msg)
	}
}

func (c *wsClient) handleMessage(ctx context.Context, msg *WSMessage) {
	if msg.Event != EventCommand {
		c.sendError("unknown event: " + msg.Event)
		return
	}

	cmd, _ := msg.Data["command"].(string)
	if cmd == "" {
		c.sendError("command is required")
		return
	}

	result := c.server.executor.Execute(ctx, cmd)
	if !result.Success {
		c.sendError(result.Error)
		return
	}

	data := map[string]any{"success": true}
	if result.Message != "" {
		data["message"] = result.Message
	}
	for k, v := range result.Data {
		data[k] = v
	}
	c.push(WSMessage{Event: EventResponse, Data: data})
}

func (c *wsClient) sendError(message string) {
	c.push(WSMessage{
		Event: EventError,
		Data:  map[string]any{"error": message},
	})
}

func (c *wsClient) push(msg WSMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	}
}
