package json

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/tendermint/tendermint/libs/log"
)

type ctxKey int

const requestIDKey ctxKey = iota

// requestID returns the JSON-RPC id of the WebSocket request being served.
func requestID(ctx context.Context) json.RawMessage {
	if id, ok := ctx.Value(requestIDKey).(json.RawMessage); ok && len(id) > 0 {
		return id
	}
	return json.RawMessage("-1")
}

type wsConn struct {
	conn   *websocket.Conn
	queue  chan []byte
	done   chan struct{}
	logger log.Logger
}

// send queues msg for delivery. It returns false once the connection is closed.
func (wsc *wsConn) send(msg []byte) bool {
	select {
	case wsc.queue <- msg:
		return true
	case <-wsc.done:
		return false
	}
}

func (wsc *wsConn) sendLoop() {
	for {
		select {
		case <-wsc.done:
			return
		case msg := <-wsc.queue:
			writer, err := wsc.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				wsc.logger.Error("failed to create writer", "error", err)
				continue
			}
			if _, err = writer.Write(msg); err != nil {
				wsc.logger.Error("failed to write message", "error", err)
			}
			if err = writer.Close(); err != nil {
				wsc.logger.Error("failed to close writer", "error", err)
			}
		}
	}
}

func (h *handler) wsHandler(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	wsc, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to update to WebSocket connection", "error", err)
		return
	}
	remoteAddr := wsc.RemoteAddr().String()

	ws := &wsConn{
		conn:   wsc,
		queue:  make(chan []byte),
		done:   make(chan struct{}),
		logger: h.logger,
	}
	go ws.sendLoop()

	defer func() {
		if err := h.srv.client.UnsubscribeAll(context.Background(), remoteAddr); err != nil {
			h.logger.Debug("failed to unsubscribe WebSocket client", "addr", remoteAddr, "err", err)
		}
		close(ws.done)
		if err := wsc.Close(); err != nil {
			h.logger.Error("failed to close WebSocket connection", "err", err)
		}
	}()

	for {
		mt, msg, err := wsc.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Error("failed to read next WebSocket message", "error", err)
			}
			break
		}

		if mt != websocket.TextMessage {
			h.logger.Debug("expected text message")
			continue
		}

		var envelope struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.Unmarshal(msg, &envelope)
		ctx := context.WithValue(context.Background(), requestIDKey, envelope.ID)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, "", bytes.NewReader(msg))
		if err != nil {
			h.logger.Error("failed to create request", "error", err)
			continue
		}
		req.RemoteAddr = remoteAddr
		req.Header.Set("Content-Type", "application/json")

		writer := new(bytes.Buffer)
		h.serveJSONRPCforWS(newResponseWriter(writer), req, ws)
		if !ws.send(writer.Bytes()) {
			break
		}
	}
}

func newResponseWriter(w io.Writer) http.ResponseWriter {
	return &wsResponse{w}
}

// wsResponse is a simple implementation of http.ResponseWriter
type wsResponse struct {
	w io.Writer
}

var _ http.ResponseWriter = wsResponse{}

// Write use underlying writer to write response to WebSocket
func (w wsResponse) Write(bytes []byte) (int, error) {
	return w.w.Write(bytes)
}

func (w wsResponse) Header() http.Header {
	return http.Header{}
}

func (w wsResponse) WriteHeader(statusCode int) {
}
