package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	aiService "github.com/stemforge/stem-forge/backend/internal/service/ai"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsWriteWait  = 10 * time.Second
)

// wsHandler WebSocket流式对话处理器
type wsHandler struct {
	parent   *Handler
	upgrader websocket.Upgrader
}

func newWSHandler(parent *Handler) *wsHandler {
	return &wsHandler{
		parent: parent,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// inboundMessage 客户端发送的消息。type 为 "chat" 时开始一次对话，为 "cancel" 时中止当前对话。
type inboundMessage struct {
	Type string `json:"type"`
	ChatRequest
}

// outgoingMessage 服务端推送的消息
type outgoingMessage struct {
	Type         string `json:"type"`
	RequestID    string `json:"requestId,omitempty"`
	Chunk        string `json:"chunk,omitempty"`
	FullResponse string `json:"full_response,omitempty"`
	Error        string `json:"error,omitempty"`
	Done         bool   `json:"done"`
	Timestamp    int64  `json:"timestamp"`
}

// wsConn 串行化对同一连接的写操作
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msg outgoingMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg.Timestamp = time.Now().Unix()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(msg)
}

// handleWebSocket 处理WebSocket连接
func (h *wsHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("[websocket] upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	out := &wsConn{conn: conn}
	go h.pingLoop(ctx, conn)

	var (
		wg            sync.WaitGroup
		cancelCurrent context.CancelFunc = func() {}
	)
	defer func() {
		cancelCurrent()
		wg.Wait()
	}()

	_ = out.send(outgoingMessage{Type: "connected"})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("[websocket] read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		switch msg.Type {
		case "cancel":
			cancelCurrent()
		case "chat", "":
			// 同一连接上一次只处理一轮对话
			cancelCurrent()
			wg.Wait()

			turnCtx, turnCancel := context.WithCancel(ctx)
			cancelCurrent = turnCancel
			requestID := uuid.NewString()

			wg.Add(1)
			go func(req ChatRequest) {
				defer wg.Done()
				defer turnCancel()
				h.runTurn(turnCtx, out, requestID, req)
			}(msg.ChatRequest)
		default:
			_ = out.send(outgoingMessage{Type: "error", Error: "unknown message type", Done: true})
		}
	}
}

// runTurn relays one tutor answer over the connection.
func (h *wsHandler) runTurn(ctx context.Context, out *wsConn, requestID string, req ChatRequest) {
	stream, err := h.parent.aiService.Stream(ctx, req.Prompt, h.parent.resolveHistory(ctx, req))
	if err != nil {
		_ = out.send(outgoingMessage{Type: "error", RequestID: requestID, Error: err.Error(), Done: true})
		return
	}
	defer stream.Close()

	for {
		event, err := stream.Recv()
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				_ = out.send(outgoingMessage{Type: "cancelled", RequestID: requestID, Done: true})
			}
			return
		}

		switch event.Type {
		case aiService.EventChunk:
			if err := out.send(outgoingMessage{Type: "chunk", RequestID: requestID, Chunk: event.Chunk}); err != nil {
				return
			}
		case aiService.EventDone:
			_ = out.send(outgoingMessage{Type: "done", RequestID: requestID, FullResponse: event.FullResponse, Done: true})
			h.parent.persistExchange(context.WithoutCancel(ctx), req, event.FullResponse)
			return
		case aiService.EventError:
			_ = out.send(outgoingMessage{Type: "error", RequestID: requestID, Error: event.Err.Error(), Done: true})
			return
		}
	}
}

// pingLoop 定期发送ping消息
func (h *wsHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
