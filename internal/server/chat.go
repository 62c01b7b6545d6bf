package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/crm-manual-rag/internal/rag"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// chatRequest is the incoming WebSocket message format.
type chatRequest struct {
	Type    string `json:"type"` // "ask" or "search"
	Content string `json:"content"`
}

// chatResponse is the outgoing WebSocket message format. An ask produces
// any number of "delta" messages followed by one "answer" or "error".
type chatResponse struct {
	Type       string          `json:"type"` // "delta", "answer", "results" or "error"
	Content    string          `json:"content,omitempty"`
	HTML       string          `json:"html,omitempty"`
	Language   string          `json:"language,omitempty"`
	Sources    []rag.Source    `json:"sources,omitempty"`
	TokenUsage *rag.TokenUsage `json:"token_usage,omitempty"`
}

// chatConn serialises writes; gorilla connections allow one writer at a time.
type chatConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *chatConn) send(resp chatResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(resp)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()
	c := &chatConn{conn: conn}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warnf("websocket read: %v", err)
			}
			return
		}

		var req chatRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			s.sendError(c, "invalid message format")
			continue
		}
		if req.Content == "" {
			s.sendError(c, "content is required")
			continue
		}

		switch req.Type {
		case "ask", "":
			s.handleAskMessage(c, r, req)
		case "search":
			s.handleSearchMessage(c, r, req)
		default:
			s.sendError(c, "unknown message type: "+req.Type)
		}
	}
}

func (s *Server) handleAskMessage(c *chatConn, r *http.Request, req chatRequest) {
	if s.deps.Assistant == nil {
		s.sendError(c, "LLM provider not configured")
		return
	}

	reply, err := s.deps.Assistant.AskStream(r.Context(), req.Content, func(delta string) error {
		return c.send(chatResponse{Type: "delta", Content: delta})
	})
	if err != nil {
		s.sendError(c, "question failed: "+err.Error())
		return
	}

	usage := reply.TokenUsage
	s.sendResponse(c, chatResponse{
		Type:       "answer",
		Content:    reply.Answer.Answer,
		HTML:       reply.HTML,
		Language:   reply.Language,
		Sources:    reply.Sources,
		TokenUsage: &usage,
	})
}

func (s *Server) handleSearchMessage(c *chatConn, r *http.Request, req chatRequest) {
	if s.deps.Retriever == nil {
		s.sendError(c, "search is not configured")
		return
	}
	ret, err := s.deps.Retriever.Retrieve(r.Context(), req.Content)
	if err != nil {
		s.sendError(c, "search failed: "+err.Error())
		return
	}
	s.sendResponse(c, chatResponse{
		Type:     "results",
		Language: ret.Language,
		Sources:  rag.Sources(ret.Results),
	})
}

func (s *Server) sendResponse(c *chatConn, resp chatResponse) {
	if err := c.send(resp); err != nil {
		s.log.Warnf("websocket write: %v", err)
	}
}

func (s *Server) sendError(c *chatConn, message string) {
	s.sendResponse(c, chatResponse{Type: "error", Content: message})
}
