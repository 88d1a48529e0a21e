package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"transitmap/internal/domain"
	"transitmap/internal/hub"
	"transitmap/internal/store"
)

// WSHandler keeps a live cluster view per connected map client. A client
// reports its viewport and filter state; the server answers with the
// clusters for that view and pushes fresh ones after every feed reload.
type WSHandler struct {
	hub        *hub.Hub
	store      *store.Store
	cellSizePx int
	logger     *slog.Logger
}

func NewWSHandler(h *hub.Hub, s *store.Store, cellSizePx int, logger *slog.Logger) *WSHandler {
	return &WSHandler{hub: h, store: s, cellSizePx: cellSizePx, logger: logger}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ClustersMessage struct {
	Type    string          `json:"type"`
	Payload ClustersPayload `json:"payload"`
}

type ClustersPayload struct {
	Clusters []domain.Cluster `json:"clusters"`
	Count    int              `json:"count"`
}

type PongMessage struct {
	Type string `json:"type"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	clientID := uuid.New().String()
	client := hub.NewClient(clientID, 256)

	h.hub.Register(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			continue
		}

		switch msg.Type {
		case "view":
			var view hub.View
			if err := json.Unmarshal(msg.Payload, &view); err != nil {
				continue
			}
			if view.CellSizePx <= 0 {
				view.CellSizePx = h.cellSizePx
			}
			client.SetView(view)
			h.sendClusters(client, view)

		case "ping":
			h.sendPong(client)
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// PushAll recomputes clusters for every client that reported a view and
// queues the result. Called after each successful feed reload.
func (h *WSHandler) PushAll() {
	h.hub.ForEachClient(func(client *hub.Client) {
		view, ok := client.View()
		if !ok {
			return
		}
		h.sendClusters(client, view)
	})
}

func (h *WSHandler) sendClusters(client *hub.Client, view hub.View) {
	clusters := computeClusters(h.store, view.Filter, view.Viewport, view.CellSizePx)

	msg := ClustersMessage{
		Type: "clusters",
		Payload: ClustersPayload{
			Clusters: clusters,
			Count:    len(clusters),
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.hub.TrySend(client, data)
}

func (h *WSHandler) sendPong(client *hub.Client) {
	data, err := json.Marshal(PongMessage{Type: "pong"})
	if err != nil {
		return
	}
	h.hub.TrySend(client, data)
}
