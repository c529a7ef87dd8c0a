package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"pdf-qa/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	TypeWebsocketQuery  = "query"
	TypeWebsocketAnswer = "answer"
	TypeWebsocketPing   = "ping"
	TypeWebsocketPong   = "pong"
	TypeWebsocketError  = "error"

	wsReadLimit   = 512 * 1024
	wsReadTimeout = 60 * time.Second
)

type WebsocketRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type WebSocketQueryPayload struct {
	Query string `json:"query"`
}

type WebSocketResponse struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type WebSocketHandler struct {
	svc      *service.Service
	sessions *SessionManager
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(svc *service.Service, sessions *SessionManager, clientURL string) *WebSocketHandler {
	return &WebSocketHandler{
		svc:      svc,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || clientURL == "*" || origin == clientURL {
					return true
				}
				u, err := url.Parse(origin)
				return err == nil && u.Host == r.Host
			},
		},
	}
}

// HandleWebSocket serves questions over a websocket bound to the caller's session
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	state, err := h.sessions.Load(c)
	if err != nil {
		respondError(c, err)
		return
	}

	// the upgrade response is written by gorilla, so carry over a fresh session cookie
	header := http.Header{}
	if cookies := c.Writer.Header().Values("Set-Cookie"); len(cookies) > 0 {
		header["Set-Cookie"] = cookies
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, header)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	ctx := c.Request.Context()
	for {
		_, p, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("session", state.ID).Msg("Websocket read error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var req WebsocketRequest
		var res WebSocketResponse
		if err := json.Unmarshal(p, &req); err != nil {
			res = wsError("Invalid message")
		} else {
			res = h.handleMessage(ctx, state.ID, req)
		}
		if err := conn.WriteJSON(res); err != nil {
			log.Warn().Err(err).Str("session", state.ID).Msg("Websocket write error")
			return
		}
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, sessionID string, req WebsocketRequest) WebSocketResponse {
	switch req.Type {
	case TypeWebsocketPing:
		return WebSocketResponse{Type: TypeWebsocketPong}
	case TypeWebsocketQuery:
		var payload WebSocketQueryPayload
		if len(req.Payload) > 0 {
			if err := json.Unmarshal(req.Payload, &payload); err != nil {
				return wsError("Invalid message")
			}
		}

		unlock := h.sessions.Lock(sessionID)
		defer unlock()
		// reload on every message so uploads over HTTP are seen
		state, err := h.sessions.Get(ctx, sessionID)
		if err != nil {
			return wsServiceError(err)
		}
		answer, err := h.svc.Query(ctx, state, payload.Query)
		if err != nil {
			return wsServiceError(err)
		}
		if err := h.sessions.Save(ctx, state); err != nil {
			return wsServiceError(err)
		}
		return WebSocketResponse{Type: TypeWebsocketAnswer, Payload: gin.H{
			"query":                payload.Query,
			"answer":               answer,
			"conversation_history": state.ConversationHistory,
		}}
	default:
		return wsError("Unknown message type")
	}
}

func wsServiceError(err error) WebSocketResponse {
	status, message := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Websocket query failed")
	}
	return wsError(message)
}

func wsError(message string) WebSocketResponse {
	return WebSocketResponse{Type: TypeWebsocketError, Payload: gin.H{"message": message}}
}
