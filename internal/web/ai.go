package web

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Joseda-hg/taskflow/internal/agent"
	"github.com/Joseda-hg/taskflow/internal/model"
	"github.com/Joseda-hg/taskflow/internal/transcribe"
)

const (
	maxAudioBytes  = 25 << 20
	maxUploadBytes = 5 << 20
)

type chatInput struct {
	Message string `json:"message" form:"message"`
	Type    string `json:"type" form:"type"`
}

func (s *Server) handleHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		s.fail(c, badRequest("invalid limit"))
		return
	}
	messages, err := s.store.RecentMessages(c.Request.Context(), s.owner, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// handleChat accepts a form or JSON body with a message field.
func (s *Server) handleChat(c *gin.Context) {
	var in chatInput
	if err := c.ShouldBind(&in); err != nil {
		s.fail(c, badRequest(err.Error()))
		return
	}
	if strings.TrimSpace(in.Message) == "" {
		s.fail(c, badRequest("message is required"))
		return
	}

	reply, err := s.assistant.Handle(c.Request.Context(), agent.Request{
		Owner: s.owner,
		Text:  in.Message,
		Kind:  model.ParseMessageKind(in.Type),
	})
	s.respondReply(c, reply, err)
}

func (s *Server) handleVoice(c *gin.Context) {
	data, filename, err := readFormFile(c, "audio", maxAudioBytes)
	if err != nil {
		s.fail(c, err)
		return
	}
	if filename == "" {
		filename = transcribe.DefaultFilename
	}
	reply, err := s.assistant.HandleVoice(c.Request.Context(), s.owner, data, filename)
	s.respondReply(c, reply, err)
}

func (s *Server) handleUpload(c *gin.Context) {
	data, filename, err := readFormFile(c, "file", maxUploadBytes)
	if err != nil {
		s.fail(c, err)
		return
	}
	reply, err := s.assistant.HandleUpload(c.Request.Context(), s.owner, filename, data)
	s.respondReply(c, reply, err)
}

// respondReply answers 200 with conversational errors; only a storage
// failure turns into a 500, still carrying the reply body.
func (s *Server) respondReply(c *gin.Context, reply agent.Reply, err error) {
	if err != nil {
		_ = c.Error(err)
		s.logger.Error("agent turn failed", zap.String("turn", reply.TurnID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, reply)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func readFormFile(c *gin.Context, field string, limit int64) ([]byte, string, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, "", badRequest(fmt.Sprintf("multipart field %q is required", field))
	}
	if header.Size > limit {
		return nil, "", badRequest(fmt.Sprintf("%s is larger than %d bytes", field, limit))
	}
	data, err := readAll(header)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", field, err)
	}
	if len(data) == 0 {
		return nil, "", badRequest(fmt.Sprintf("%s is empty", field))
	}
	return data, header.Filename, nil
}

func readAll(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
