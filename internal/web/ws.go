package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Joseda-hg/taskflow/internal/agent"
	"github.com/Joseda-hg/taskflow/internal/model"
)

const (
	wsReadLimit    = 64 << 10
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsFrame is one client message. Plain text frames are accepted too.
type wsFrame struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// handleWebSocket processes frames one at a time; a reply is written before
// the next frame is read.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	ctx := c.Request.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				s.logger.Debug("websocket read", zap.Error(err))
			}
			return
		}

		frame := decodeFrame(data)
		if strings.TrimSpace(frame.Message) == "" {
			continue
		}

		reply, err := s.assistant.Handle(ctx, agent.Request{
			Owner: s.owner,
			Text:  frame.Message,
			Kind:  model.ParseMessageKind(frame.Type),
		})
		if err != nil {
			s.logger.Error("agent turn failed", zap.String("turn", reply.TurnID), zap.Error(err))
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			s.logger.Debug("websocket write", zap.Error(err))
			return
		}
	}
}

func decodeFrame(data []byte) wsFrame {
	var frame wsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return wsFrame{Message: string(data)}
	}
	return frame
}
