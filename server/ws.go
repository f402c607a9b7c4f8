package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xhad/askflare/pkg/ingest"
	"go.uber.org/zap"
)

// WebSocket message types.
const (
	TypeQuery    = "query"
	TypeStatus   = "status"
	TypeProgress = "progress"
	TypeResponse = "response"
	TypeError    = "error"
)

// URLIngester scrapes a site and writes its pages to the vector store.
type URLIngester interface {
	IngestURL(ctx context.Context, url string, progress func(done, total int)) (ingest.Stats, error)
}

type Message struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

const writeWait = 10 * time.Second

// conn serializes writes; gorilla connections allow one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.CORSOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := s.upgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()
	ws.SetReadLimit(int64(s.config.MaxMessageLen) * 4)

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	c := &conn{ws: ws}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("malformed websocket message", zap.Error(err))
			if err := c.send(Message{Type: TypeError, Content: "invalid message format"}); err != nil {
				s.logger.Warn("failed to send message", zap.Error(err))
			}
			continue
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}

		wg.Add(1)
		go func(msg Message) {
			defer wg.Done()
			s.handleMessage(ctx, c, msg)
		}(msg)
	}
}

func (s *Server) handleMessage(ctx context.Context, c *conn, msg Message) {
	logger := s.logger.With(zap.String("message_id", msg.ID))
	reply := func(msgType, content string, data interface{}) {
		if err := c.send(Message{Type: msgType, ID: msg.ID, Content: content, Data: data}); err != nil {
			logger.Warn("failed to send message", zap.Error(err))
		}
	}

	query := strings.TrimSpace(msg.Content)
	if msg.Type != "" && msg.Type != TypeQuery {
		reply(TypeError, fmt.Sprintf("unsupported message type: %s", msg.Type), nil)
		return
	}

	if url := urlPattern.FindString(query); url != "" && s.ingester != nil {
		reply(TypeStatus, fmt.Sprintf("Processing URL: %s", url), nil)

		stats, err := s.ingester.IngestURL(ctx, url, func(done, total int) {
			reply(TypeProgress, fmt.Sprintf("Indexed %d of %d pages", done, total), nil)
		})
		if err != nil {
			logger.Error("url ingestion failed", zap.String("url", url), zap.Error(err))
			reply(TypeError, unavailableMessage, nil)
			return
		}
		reply(TypeStatus, fmt.Sprintf("Indexed %d documents (%d chunks)", stats.Documents, stats.Chunks), stats)

		// Only continue with chat if the message holds more than the URL.
		query = strings.TrimSpace(strings.Replace(query, url, "", 1))
		if query == "" {
			return
		}
	}

	if fields := s.validateMessage(ChatRequest{Message: query}); fields != nil {
		reply(TypeError, fields["message"], nil)
		return
	}

	result, err := s.resolver.Resolve(ctx, query)
	if err != nil {
		logger.Error("websocket query failed", zap.Error(err))
		reply(TypeError, unavailableMessage, nil)
		return
	}
	reply(TypeResponse, result.Response, ChatResponse{
		Classification: result.Classification,
		Response:       result.Response,
		Citations:      result.Citations,
	})
}
