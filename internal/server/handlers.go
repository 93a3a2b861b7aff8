package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ahtavarasmus/TextAndDrive/internal/agent"
	"github.com/ahtavarasmus/TextAndDrive/internal/history"
	"github.com/ahtavarasmus/TextAndDrive/internal/httperr"
	"github.com/ahtavarasmus/TextAndDrive/internal/protocol"
	"github.com/ahtavarasmus/TextAndDrive/internal/tools"
)

type turnRequest struct {
	Transcript  string `json:"transcript" binding:"required"`
	ChatContext string `json:"chat_context"`
}

type turnResponse struct {
	SessionID    string `json:"session_id"`
	Transcript   string `json:"transcript"`
	Decision     string `json:"decision,omitempty"`
	ToolName     string `json:"tool_name,omitempty"`
	SendResult   string `json:"send_result,omitempty"`
	Confirmation string `json:"confirmation"`
	Source       string `json:"source"`
}

type recordingResponse struct {
	turnResponse
	Audio       string `json:"audio,omitempty"`
	AudioFormat string `json:"audio_format,omitempty"`
}

func newTurnResponse(sessionID string, res *agent.TurnResult) turnResponse {
	out := turnResponse{SessionID: sessionID}
	if res == nil {
		return out
	}
	out.Transcript = res.Transcript
	out.ToolName = res.ToolName
	out.SendResult = res.SendResult
	out.Confirmation = res.Confirmation
	out.Source = string(res.Source)
	if res.Decision != nil {
		out.Decision = res.Decision.Raw()
	}
	return out
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listTools(c *gin.Context) {
	defs := s.deps.Agent.Tools()
	if defs == nil {
		defs = []tools.Definition{}
	}
	c.JSON(http.StatusOK, gin.H{"tools": defs})
}

func (s *Server) createSession(c *gin.Context) {
	sess, err := s.deps.Sessions.NewSession()
	if err != nil {
		s.logger.Error("failed to create session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	s.logger.Info("session created", "session", sess.ID)
	c.JSON(http.StatusCreated, gin.H{"session_id": sess.ID, "max_messages": s.deps.Sessions.Limit()})
}

func (s *Server) deleteSession(c *gin.Context) {
	id := c.Param("sessionId")
	if err := s.deps.Sessions.EndSession(id); err != nil {
		s.sessionError(c, id, err)
		return
	}
	s.logger.Info("session deleted", "session", id)
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "session_id": id})
}

func (s *Server) sessionHistory(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	msgs, err := sess.Snapshot()
	if err != nil {
		s.sessionError(c, sess.ID, err)
		return
	}
	if msgs == nil {
		msgs = []protocol.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sess.ID, "messages": msgs})
}

func (s *Server) createTurn(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transcript is required"})
		return
	}

	res, err := s.deps.Agent.ProcessTurn(c.Request.Context(), sess, agent.TurnRequest{
		Transcript:  req.Transcript,
		ChatContext: req.ChatContext,
	})
	if err != nil {
		s.upstreamError(c, sess.ID, err, newTurnResponse(sess.ID, res))
		return
	}
	c.JSON(http.StatusOK, newTurnResponse(sess.ID, res))
}

func (s *Server) createRecording(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if s.deps.Recordings == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "speech is not configured"})
		return
	}

	file, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'audio' is required"})
		return
	}
	dir := s.deps.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "recording-"+uuid.NewString()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, path); err != nil {
		s.logger.Error("failed to store recording", "session", sess.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store recording"})
		return
	}
	defer os.Remove(path)

	out, err := s.deps.Recordings.HandleRecording(c.Request.Context(), sess, path)
	if out != nil {
		defer out.Cleanup()
	}
	if err != nil {
		var body turnResponse
		if out != nil {
			body = newTurnResponse(sess.ID, out.Turn)
			body.Transcript = out.Transcript
		}
		s.upstreamError(c, sess.ID, err, body)
		return
	}

	resp := recordingResponse{turnResponse: newTurnResponse(sess.ID, out.Turn)}
	resp.Transcript = out.Transcript
	if out.AudioPath != "" {
		audio, err := os.ReadFile(out.AudioPath)
		if err != nil {
			s.logger.Warn("failed to read synthesized audio", "session", sess.ID, "error", err)
		} else {
			resp.Audio = base64.StdEncoding.EncodeToString(audio)
			resp.AudioFormat = "mp3"
		}
	}
	c.JSON(http.StatusOK, resp)
}

// session resolves :sessionId, answering 404 itself when it is unknown.
func (s *Server) session(c *gin.Context) (*history.Session, bool) {
	id := c.Param("sessionId")
	sess, err := s.deps.Sessions.Session(id)
	if err != nil {
		s.sessionError(c, id, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) sessionError(c *gin.Context, id string, err error) {
	if errors.Is(err, history.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "session_id": id})
		return
	}
	s.logger.Error("session store failed", "session", id, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "session store failed"})
}

// upstreamError reports a failed LLM or transcription call. The partial turn
// is included since a tool may already have run.
func (s *Server) upstreamError(c *gin.Context, id string, err error, partial turnResponse) {
	status := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	body := gin.H{"error": err.Error(), "turn": partial}
	var apiErr *httperr.Error
	if errors.As(err, &apiErr) {
		body["upstream_status"] = apiErr.StatusCode
	}
	s.logger.Error("turn failed", "session", id, "status", status, "error", err)
	c.JSON(status, body)
}
